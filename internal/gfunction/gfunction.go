/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package gfunction is the Go-native method dispatch table: the
// bodies behind methods marked ACC_NATIVE that the core itself must
// supply rather than delegate to a KNI native library. Bodies that
// need math, time, or I/O are explicitly out of scope (spec Non-goals
// "native method library bodies") — what lives here is the small set
// the execution core cannot function without: object identity
// (hashCode, getClass), monitor primitives (wait/notify), and the
// class-loading entry points (Class.forName), organized as a
// MethodSignatures table of GMeth entries.
package gfunction

import (
	"jelatine/internal/classloader"
	"jelatine/internal/excnames"
	"jelatine/internal/globals"
	"jelatine/internal/heap"
	"jelatine/internal/javastring"
	"jelatine/internal/object"
	"jelatine/internal/thread"
)

// GFunction is the signature every native-method body implements:
// params are the already-unwrapped argument slots (object refs as
// heap.Ref, primitives as int64), and the return value is handed
// straight back to the caller's operand stack.
type GFunction func(m *Machine, params []int64) (int64, error)

// Machine is the subset of interp.Machine native bodies need; kept as
// a narrow local struct so this package does not import interp
// (which itself imports gfunction to dispatch native methods) and
// create an import cycle.
type Machine struct {
	Heap     *heap.Heap
	Classes  *classloader.Table
	Monitors *thread.MonitorTable
	Self     *thread.Thread
	Strings  *javastring.Manager
}

// GMeth is one dispatch-table entry: the function body plus its
// declared parameter count, used to validate the operand stack depth
// before calling in (spec §4.10 "narrow native calling convention").
type GMeth struct {
	ParamSlots int
	Function   GFunction
}

// MethodSignatures maps "owning/class.name(descriptor)" to its
// GMeth entry.
var MethodSignatures = map[string]GMeth{
	// ParamSlots counts the receiver for instance methods: it reads
	// params[0] as the ref, same as any native body below.
	"java/lang/Object.hashCode()I":                                 {1, objectHashCode},
	"java/lang/Object.getClass()Ljava/lang/Class;":                 {1, objectGetClass},
	"java/lang/Object.wait()V":                                     {1, objectWait},
	"java/lang/Object.notify()V":                                   {1, objectNotify},
	"java/lang/Object.notifyAll()V":                                {1, objectNotifyAll},
	"java/lang/Class.forName(Ljava/lang/String;)Ljava/lang/Class;": {1, classForName},
	"java/lang/String.intern()Ljava/lang/String;":                  {1, stringIntern},
}

// objectHashCode returns the object's heap handle as its identity
// hash, same source of identity the spec's header-word model already
// guarantees is stable for an object's lifetime (spec §3 invariant).
func objectHashCode(m *Machine, params []int64) (int64, error) {
	return params[0], nil
}

func objectGetClass(m *Machine, params []int64) (int64, error) {
	ref := heap.Ref(params[0])
	classIdx := m.Heap.ClassIdx(ref)
	return int64(classIdx), nil
}

func objectWait(m *Machine, params []int64) (int64, error) {
	ref := heap.Ref(params[0])
	return 0, m.Monitors.Wait(m.Self, ref)
}

func objectNotify(m *Machine, params []int64) (int64, error) {
	ref := heap.Ref(params[0])
	return 0, m.Monitors.Notify(m.Self, ref)
}

func objectNotifyAll(m *Machine, params []int64) (int64, error) {
	ref := heap.Ref(params[0])
	return 0, m.Monitors.NotifyAll(m.Self, ref)
}

// classForName resolves name (a java.lang.String instance's content,
// already decoded by the caller into nameRef's backing bytes) through
// the class table, downgrading a load failure to a thrown
// ClassNotFoundException rather than a fatal VM error (spec §7
// "Propagation policy": CLASS_NOT_FOUND only becomes fatal when no
// Java-level catch is reachable).
func classForName(m *Machine, params []int64) (int64, error) {
	nameRef := heap.Ref(params[0])
	name := object.GoStringFromJavaByteArray(
		object.JavaByteArrayFromStringObject(m.Heap, nameRef))

	k, err := m.Classes.Resolve(m.Self, name, loadPlaceholder)
	if err != nil {
		globals.GetGlobalRef().FuncThrowException(excnames.ClassNotFoundException, name)
		return 0, err
	}
	return int64(k.Index), nil
}

// stringIntern implements java.lang.String.intern() (spec §4.6): the
// receiver's content is looked up in the literal table first, then the
// intern table, inserting into the intern table only on the combined
// miss, so a string that's already a class-file literal interns to
// that same object rather than a second copy.
func stringIntern(m *Machine, params []int64) (int64, error) {
	ref := heap.Ref(params[0])
	content := object.GoStringFromJavaByteArray(
		object.JavaByteArrayFromStringObject(m.Heap, ref))
	return int64(m.Strings.Intern(content)), nil
}

// loadPlaceholder stands in for the class-file I/O adapter (spec
// Non-goals: "the class-file I/O adapter"), which supplies real bytes
// from the classpath; wiring it in is cmd/jelatine's job.
func loadPlaceholder(k *classloader.Klass) error {
	return nil
}
