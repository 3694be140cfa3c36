/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package interp is the frame-invocation and exception-unwinding
// contract (spec §4.5): given a resolved Method, it builds a Frame,
// runs its code, and on an exception walks the method's exception
// table to find a handler or propagates to the caller. The concrete
// bytecode-dispatch switch loop over the full opcode set is out of
// scope (spec Non-goals) — run only implements the handful of
// opcodes needed to exercise the translator, monitor hooks, and
// unwinding contract end to end; a production dispatch loop plugs in
// at the same switch.
package interp

import (
	"errors"
	"fmt"

	"jelatine/internal/bytecode"
	"jelatine/internal/classloader"
	"jelatine/internal/excnames"
	"jelatine/internal/frames"
	"jelatine/internal/gfunction"
	"jelatine/internal/heap"
	"jelatine/internal/javastring"
	"jelatine/internal/object"
	"jelatine/internal/stringpool"
	"jelatine/internal/thread"
)

// ErrNoHandler is returned (and then translated into a thrown Java
// exception by the caller) when unwinding exhausts every frame on the
// stack without finding a matching handler.
var ErrNoHandler = errors.New("interp: exception propagated past top of stack")

// Machine ties together one thread's call stack with the shared heap,
// class table, monitor table, and string manager it executes against.
type Machine struct {
	Heap     *heap.Heap
	Classes  *classloader.Table
	Monitors *thread.MonitorTable
	Self     *thread.Thread
	Strings  *javastring.Manager
	Stack    *frames.Stack
}

// classIOUnavailable stands in for the class-file I/O adapter (spec
// Non-goals: "the class-file I/O adapter") wherever the interpreter
// needs to resolve a constant-pool reference to a class that hasn't
// already been loaded by some other path.
func classIOUnavailable(*classloader.Klass) error {
	return errors.New("interp: class-file I/O is outside the execution core")
}

// Invoke builds a frame for method on klass and runs it to completion,
// returning the top-of-operand-stack return value (spec §4.5 "Frame
// invocation"). Native methods are dispatched straight to
// internal/gfunction's table rather than through a frame (spec §4.10
// "single call site"). Synchronized methods acquire/release the
// declaring object's (or, for static methods, the class's) monitor
// around the call (spec §4.4 "synchronized-method monitor entry/exit
// opcode injection" — here done directly rather than via injected
// opcodes, since the dispatch loop itself is out of scope).
func (m *Machine) Invoke(klass *classloader.Klass, method *classloader.Method, receiver object.Object, args []int64) (int64, error) {
	if method.IsNative {
		return m.invokeNative(klass, method, receiver, args)
	}

	frame, err := m.Stack.CreateFrame(klass, method, method.MaxLocals)
	if err != nil {
		return 0, err
	}
	for i, a := range args {
		*m.Stack.LocalSlot(&frame, i) = a
	}
	if err := m.Stack.PushFrame(frame); err != nil {
		return 0, err
	}
	defer m.Stack.PopFrame()

	if method.IsSynchronized {
		lockRef := receiver.Ref
		if method.IsStatic {
			lockRef = heap.Ref(klass.Index + 1) // classes are locked via a sentinel ref derived from their index
		}
		m.Monitors.Enter(m.Self, lockRef)
		defer m.Monitors.Exit(m.Self, lockRef)
	}

	return m.run(&frame, method)
}

// invokeNative is native-method dispatch's single call site (spec
// §4.10): it builds the same "owner/name/descriptor" key the class
// loader's constant-pool method refs resolve against, looks it up in
// gfunction.MethodSignatures, and validates the caller supplied
// exactly the declared number of param slots (the receiver counts as
// slot 0 for instance methods) before invoking the Go body.
func (m *Machine) invokeNative(klass *classloader.Klass, method *classloader.Method, receiver object.Object, args []int64) (int64, error) {
	key := stringpool.GetString(klass.NameIndex) + "." +
		stringpool.GetString(method.NameIndex) + stringpool.GetString(method.DescriptorIndex)

	gm, ok := gfunction.MethodSignatures[key]
	if !ok {
		return 0, fmt.Errorf("interp: no native method registered for %s", key)
	}

	params := args
	if !method.IsStatic {
		params = make([]int64, 0, len(args)+1)
		params = append(params, int64(receiver.Ref))
		params = append(params, args...)
	}
	if len(params) != gm.ParamSlots {
		return 0, fmt.Errorf("interp: native method %s expects %d param slots, got %d", key, gm.ParamSlots, len(params))
	}

	gm2 := &gfunction.Machine{
		Heap:     m.Heap,
		Classes:  m.Classes,
		Monitors: m.Monitors,
		Self:     m.Self,
		Strings:  m.Strings,
	}
	return gm.Function(gm2, params)
}

// run executes method.Code starting at frame.PC until a return
// opcode, an unhandled exception, or the code runs out, routing any
// raised exception through handleException. A generic (untranslated) opcode is
// resolved against the method's own constant pool and handed to the
// prelink translator, then re-dispatched at the same PC without
// advancing it, so the freshly specialized opcode executes in the same
// pass (spec §4.4 "translate on first execution").
func (m *Machine) run(frame *frames.Frame, method *classloader.Method) (int64, error) {
	if method.Code == nil {
		return 0, fmt.Errorf("interp: method has no bytecode")
	}
	code := method.Code.Bytes
	for frame.PC < len(code) {
		op := bytecode.Op(code[frame.PC])
		switch op {
		case 0xB1: // return (void)
			return 0, nil
		case 0xAC: // ireturn
			top, _ := frame.PopOperand()
			return top, nil
		case bytecode.OpNewResolved:
			classIdx := int32(code[frame.PC+1]) | int32(code[frame.PC+2])<<8
			klass := classloader.ClassByIndex(classIdx)
			obj := object.New(m.Self, m.Heap, klass, m.rootsForGC)
			frame.PushOperand(int64(obj.Ref))
			frame.PC += 3
		case bytecode.OpGetFieldRef, bytecode.OpGetFieldScalar:
			slot := int(code[frame.PC+1]) | int(code[frame.PC+2])<<8
			ref, _ := frame.PopOperand()
			obj := object.Object{Ref: heap.Ref(ref)}
			if op == bytecode.OpGetFieldRef {
				frame.PushOperand(int64(obj.GetRefField(m.Heap, slot).Ref))
			} else {
				frame.PushOperand(int64(obj.Scalars(m.Heap)[slot]))
			}
			frame.PC += 3
		case bytecode.OpPutFieldRef, bytecode.OpPutFieldScalar:
			slot := int(code[frame.PC+1]) | int(code[frame.PC+2])<<8
			val, _ := frame.PopOperand()
			ref, _ := frame.PopOperand()
			obj := object.Object{Ref: heap.Ref(ref)}
			if op == bytecode.OpPutFieldRef {
				obj.SetRefField(m.Heap, slot, object.Object{Ref: heap.Ref(val)})
			} else {
				obj.Scalars(m.Heap)[slot] = byte(val)
			}
			frame.PC += 3
		case bytecode.OpGetField, bytecode.OpPutField:
			cpIndex := int(code[frame.PC+1])<<8 | int(code[frame.PC+2])
			field, err := frame.Klass.CP.ResolveFieldRef(m.Classes, m.Self, cpIndex, classIOUnavailable)
			if err != nil {
				return 0, err
			}
			res := bytecode.FieldResolution{IsReference: classloader.IsRefType(field.Type), Slot: field.Slot}
			if op == bytecode.OpGetField {
				method.Code.TranslateGetField(frame.PC, res)
			} else {
				method.Code.TranslatePutField(frame.PC, res)
			}
		case bytecode.OpNew:
			cpIndex := int(code[frame.PC+1])<<8 | int(code[frame.PC+2])
			klass, err := frame.Klass.CP.ResolveClassRef(m.Classes, m.Self, cpIndex, classIOUnavailable)
			if err != nil {
				return 0, err
			}
			method.Code.TranslateNew(frame.PC, bytecode.MethodResolution{ClassIndex: klass.Index})
		default:
			if err := m.handleException(frame, method, excnames.VirtualMachineError); err != nil {
				return 0, err
			}
		}
	}
	return 0, nil
}

func (m *Machine) rootsForGC() []heap.Ref {
	return nil // wired to thread.Registry.Roots in cmd/jelatine's bootstrap
}

// handleException walks method's exception table starting at
// frame.PC looking for a handler whose range covers the current PC
// and whose catch type matches excClassName (spec §4.5 "exception
// table-driven unwinding"): a catch type of 0 catches everything,
// otherwise the catch type's name must equal excClassName (a handler
// for a superclass of excClassName is not matched). If none matches,
// ErrNoHandler propagates so the caller's Invoke can continue
// unwinding to its own caller.
func (m *Machine) handleException(frame *frames.Frame, method *classloader.Method, excClassName string) error {
	for _, h := range method.ExceptionTable {
		if frame.PC < h.StartPC || frame.PC >= h.EndPC {
			continue
		}
		if h.CatchType != 0 && stringpool.GetString(h.CatchType) != excClassName {
			continue
		}
		frame.PC = h.HandlerPC
		return nil
	}
	return ErrNoHandler
}
