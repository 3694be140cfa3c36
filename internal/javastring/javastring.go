/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package javastring is the Java string manager (spec §4.6), distinct
// from internal/stringpool's UTF-8 name pool: it owns the literal
// table (one entry per distinct CONSTANT_String referenced by any
// loaded class) and the intern table (java.lang.String.intern()'s
// result set), both keyed by content rather than by identity, and
// both backed by heap-allocated java.lang.String objects rather than
// by Go strings.
package javastring

import (
	"sync"

	"jelatine/internal/heap"
)

// entry links a table bucket's collided strings, mirroring the
// spec's intern-table chaining via a "next" field on each string
// object (spec §4.6 "next-field-based linking") rather than Go's
// built-in map chaining, since the strings living here are heap
// objects the GC must also be able to walk as ordinary references.
type entry struct {
	ref  heap.Ref
	text string
	next *entry
}

// Table is a content-keyed hash table of heap-backed Java strings. It
// rehashes when the load factor crosses loadFactorLimit, same trigger
// the spec names for both the literal and intern tables.
type Table struct {
	mu          sync.Mutex
	buckets     []*entry
	count       int
	intrinsic   func(s string) heap.Ref // allocates a java.lang.String instance holding s
}

const loadFactorLimit = 0.75
const initialBuckets = 64

// New creates a table that allocates new string instances via
// makeString whenever content is seen for the first time.
func New(makeString func(s string) heap.Ref) *Table {
	return &Table{
		buckets:   make([]*entry, initialBuckets),
		intrinsic: makeString,
	}
}

func hashString(s string) uint32 {
	var h uint32 = 2166136261 // FNV-1a offset basis
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// Intern returns the canonical heap.Ref for s, allocating a new
// string instance only the first time s's content is seen (spec §4.6
// "content-equal strings intern to the same object").
func (t *Table) Intern(s string) heap.Ref {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := hashString(s) % uint32(len(t.buckets))
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.text == s {
			return e.ref
		}
	}

	ref := t.intrinsic(s)
	t.buckets[idx] = &entry{ref: ref, text: s, next: t.buckets[idx]}
	t.count++
	if float64(t.count)/float64(len(t.buckets)) > loadFactorLimit {
		t.rehash()
	}
	return ref
}

// Lookup reports whether s is already present without inserting it.
func (t *Table) Lookup(s string) (heap.Ref, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := hashString(s) % uint32(len(t.buckets))
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.text == s {
			return e.ref, true
		}
	}
	return heap.NullRef, false
}

// rehash doubles the bucket count and relinks every entry, called
// with mu already held.
func (t *Table) rehash() {
	bigger := make([]*entry, len(t.buckets)*2)
	for _, head := range t.buckets {
		for e := head; e != nil; {
			nextE := e.next
			idx := hashString(e.text) % uint32(len(bigger))
			e.next = bigger[idx]
			bigger[idx] = e
			e = nextE
		}
	}
	t.buckets = bigger
}

// Size returns the number of distinct strings held.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Literals is the per-VM literal table (one entry per distinct
// CONSTANT_String seen while loading any class, spec §4.6). Interns
// is the java.lang.String.intern() table. They are kept distinct
// because literals are populated purely by the class loader while
// Interns also receives runtime intern() calls from user code — spec
// §4.6 keeps their lifetimes and populations separate even though
// both dedupe on content.
type Manager struct {
	Literals *Table
	Interns  *Table
}

func NewManager(makeString func(s string) heap.Ref) *Manager {
	return &Manager{
		Literals: New(makeString),
		Interns:  New(makeString),
	}
}

// Intern implements java.lang.String.intern()'s combined lookup (spec
// §4.6): check the literal table first without inserting
// (a literal already loaded from some class file is the canonical
// instance), and only on that miss fall through to the intern table,
// inserting there if s has never been interned before either. Each
// table computes s's hash itself, so a literal-table miss hashes s
// twice.
func (m *Manager) Intern(s string) heap.Ref {
	if ref, ok := m.Literals.Lookup(s); ok {
		return ref
	}
	return m.Interns.Intern(s)
}
