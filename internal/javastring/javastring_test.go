/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package javastring

import (
	"testing"

	"jelatine/internal/heap"
)

func makeCountingString(next *heap.Ref) func(s string) heap.Ref {
	return func(s string) heap.Ref {
		*next++
		return *next
	}
}

func TestInternHitsLiteralTableFirst(t *testing.T) {
	var next heap.Ref
	m := NewManager(makeCountingString(&next))

	literalRef := m.Literals.Intern("hello")

	got := m.Intern("hello")
	if got != literalRef {
		t.Fatalf("Intern(%q) = %d, want the literal table's ref %d", "hello", got, literalRef)
	}
	if m.Interns.Size() != 0 {
		t.Fatalf("intern table should stay empty when the literal table already holds the string")
	}
}

func TestInternFallsThroughToInternTable(t *testing.T) {
	var next heap.Ref
	m := NewManager(makeCountingString(&next))

	first := m.Intern("world")
	second := m.Intern("world")
	if first != second {
		t.Fatalf("Intern should return the same ref for repeated calls with the same content")
	}
	if m.Interns.Size() != 1 {
		t.Fatalf("intern table size = %d, want 1", m.Interns.Size())
	}
	if _, ok := m.Literals.Lookup("world"); ok {
		t.Fatalf("Intern should never insert into the literal table")
	}
}

func TestTableInternDedupesByContent(t *testing.T) {
	var next heap.Ref
	tbl := New(makeCountingString(&next))

	a := tbl.Intern("same")
	b := tbl.Intern("same")
	if a != b {
		t.Fatalf("content-equal strings should intern to the same object")
	}
	if tbl.Size() != 1 {
		t.Fatalf("table size = %d, want 1", tbl.Size())
	}
}
