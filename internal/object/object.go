/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package object is the Java-object-shaped view over a heap.Ref (spec
// §3 "Data Model"): it pairs a heap handle with the Klass that
// describes its field layout, and gives the interpreter and native
// methods named, typed field access instead of raw ref/byte-offset
// arithmetic.
package object

import (
	"jelatine/internal/classloader"
	"jelatine/internal/heap"
	"jelatine/internal/types"
)

// Object is a live Java object: a class plus the heap handle backing
// its fields. It is a value type deliberately — Klass is a pointer and
// Ref is a handle, so Objects are cheap to pass and compare by value.
type Object struct {
	Klass *classloader.Klass
	Ref   heap.Ref
}

// Null is the zero Object, equivalent to a Java null reference.
var Null = Object{}

// IsNull reports whether o is the null reference.
func (o Object) IsNull() bool {
	return o.Klass == nil && o.Ref == heap.NullRef
}

// New allocates a fresh instance of klass on h, using klass's resolved
// field layout (reference count and non-reference byte size) and
// registering it for finalization if klass declares a finalizer
// method (spec §4.2 "NEW_FINALIZER").
func New(vmLock heap.Locker, h *heap.Heap, klass *classloader.Klass, roots func() []heap.Ref) Object {
	ref := h.NewObject(vmLock, klass.Index, klass.InstanceRefCount, klass.InstanceNonRefBytes, klass.HasFinalizer, roots)
	return Object{Klass: klass, Ref: ref}
}

// GetRefField reads reference field slot i (as resolved by the class's
// field-layout pass, spec §4.2) from the heap.
func (o Object) GetRefField(h *heap.Heap, slot int) Object {
	child := h.RefSlot(o.Ref, slot)
	if child == heap.NullRef {
		return Null
	}
	klass := classloader.ClassByIndex(h.ClassIdx(child))
	return Object{Klass: klass, Ref: child}
}

// SetRefField writes reference field slot i.
func (o Object) SetRefField(h *heap.Heap, slot int, v Object) {
	h.SetRefSlot(o.Ref, slot, v.Ref)
}

// Scalars returns the non-reference byte area for slot-free primitive
// field access (ints, longs, floats, doubles).
func (o Object) Scalars(h *heap.Heap) []byte {
	return h.Scalars(o.Ref)
}

// IsInstanceOfString reports whether o's class is java.lang.String,
// the one class whose instances are given compact byte/array storage
// instead of going through ordinary field slots (spec §4.6).
func (o Object) IsInstanceOfString() bool {
	return o.Klass != nil && o.Klass.NameIndex == types.StringPoolStringIndex
}
