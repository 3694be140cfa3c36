/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package bytecode is the prelink opcode translator (spec §4.4): on
// first execution of an instruction, it rewrites the generic class-file
// opcode in place into a type- or offset-specialized internal opcode
// (e.g. GETFIELD specialized to the resolved field's slot and its
// reference-vs-scalar kind), so every later execution skips
// resolution entirely. The rewrite happens under the method's own Code
// mutex and writes the new opcode byte last, so a reader that
// races the translator either sees the old generic opcode (safe,
// re-triggers translation) or the fully-specialized new one — never a
// half-written opcode plus stale operand bytes.
package bytecode

import "sync"

// Op is an internal, possibly specialized, opcode. Values below
// opSpecializedBase are ordinary (untranslated) class-file opcodes;
// values at or above it are specialized forms synthesized by Translate.
type Op byte

const opSpecializedBase Op = 0xCA // first opcode value classfiles never emit

const (
	// A representative slice of specialized forms (spec explicitly
	// excludes the full dispatch loop, Non-goals: "the concrete
	// bytecode-dispatch switch loop"); these exist so the translator
	// and its locking contract are exercised and testable.
	OpGetFieldRef    Op = opSpecializedBase + iota // specialized: reference-typed instance field
	OpGetFieldScalar                               // specialized: scalar-typed instance field
	OpPutFieldRef
	OpPutFieldScalar
	OpInvokeVirtualResolved // vtable slot folded into the operand
	OpInvokeSpecialResolved
	OpNewResolved // class-table index folded into the operand
)

// Generic opcodes this package knows how to specialize. Numeric values
// match the JVM spec's own opcode table.
const (
	OpGetField      Op = 0xB4
	OpPutField      Op = 0xB5
	OpInvokeVirtual Op = 0xB6
	OpInvokeSpecial Op = 0xB7
	OpInvokeSuper   Op = 0xB7 // same raw opcode as invokespecial; disambiguated by the verifier/translator, spec §4.4
	OpNew           Op = 0xBB
	OpNewFinalizer  Op = 0xC7 // marker for finalizable allocation; shares its value with the standard ifnonnull opcode and is not used by the translator or interpreter
)

// FieldResolution is what the constant-pool resolution step hands the
// translator for a field reference (spec §4.2 resolving into §4.4
// specializing).
type FieldResolution struct {
	IsReference bool
	Slot        int // reference slot index, or scalar byte offset
	Width       int // scalar byte width; unused when IsReference
}

// MethodResolution is the analogous handoff for a method reference.
type MethodResolution struct {
	VTableSlot   int
	ArgStackSize int
	ClassIndex   int32
	Finalizable  bool
}

// Code is one method's specializable instruction stream plus the
// mutex the translator must hold while rewriting it (spec §5 "global
// VM lock guards prelink rewrites").
type Code struct {
	mu    sync.Mutex
	Bytes []byte
}

// TranslateGetField rewrites a GETFIELD/PUTFIELD pair in place at pc,
// given the already-resolved field. The rewrite takes c's lock and
// rechecks the opcode byte first, in case a racing reader already
// translated this pc while this caller was resolving — without the
// recheck a second translation would stomp the first harmlessly, but
// would also do the resolution work twice for nothing. The two operand
// bytes (a 16-bit slot, here stored little-endian across bytes
// pc+1/pc+2) are written before the opcode byte itself, so a
// concurrent untranslated reader either re-reads the old opcode (and
// retranslates harmlessly) or the fully-specialized one with correct
// operands already in place — never a specialized opcode paired with
// half-written operands.
func (c *Code) TranslateGetField(pc int, res FieldResolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isTranslatedLocked(pc) {
		return
	}
	c.writeOperand16(pc+1, uint16(res.Slot))
	newOp := OpGetFieldScalar
	if res.IsReference {
		newOp = OpGetFieldRef
	}
	c.Bytes[pc] = byte(newOp)
}

func (c *Code) TranslatePutField(pc int, res FieldResolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isTranslatedLocked(pc) {
		return
	}
	c.writeOperand16(pc+1, uint16(res.Slot))
	newOp := OpPutFieldScalar
	if res.IsReference {
		newOp = OpPutFieldRef
	}
	c.Bytes[pc] = byte(newOp)
}

// TranslateInvoke rewrites an INVOKEVIRTUAL/INVOKESPECIAL at pc using
// the packed method index (spec §4.4 "Packed method index").
func (c *Code) TranslateInvoke(pc int, isSpecial bool, res MethodResolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isTranslatedLocked(pc) {
		return
	}
	packed := uint16(res.VTableSlot&0x0FFF)<<4 | uint16(res.ArgStackSize&0x0F)
	c.writeOperand16(pc+1, packed)
	newOp := OpInvokeVirtualResolved
	if isSpecial {
		newOp = OpInvokeSpecialResolved
	}
	c.Bytes[pc] = byte(newOp)
}

// TranslateNew rewrites a NEW/NEW_FINALIZER at pc with the resolved
// class index folded into the operand. res.Finalizable is not encoded
// in the rewritten instruction; the allocator reads finalization from
// the class's HasFinalizer flag instead.
func (c *Code) TranslateNew(pc int, res MethodResolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isTranslatedLocked(pc) {
		return
	}
	c.writeOperand16(pc+1, uint16(res.ClassIndex))
	c.Bytes[pc] = byte(OpNewResolved)
}

func (c *Code) isTranslatedLocked(pc int) bool {
	return Op(c.Bytes[pc]) >= opSpecializedBase
}

func (c *Code) writeOperand16(offset int, v uint16) {
	c.Bytes[offset] = byte(v)
	c.Bytes[offset+1] = byte(v >> 8)
}

// IsTranslated reports whether the opcode at pc has already been
// specialized, letting the interpreter's dispatch loop skip straight
// to the fast path without touching the constant pool.
func (c *Code) IsTranslated(pc int) bool {
	return Op(c.Bytes[pc]) >= opSpecializedBase
}
