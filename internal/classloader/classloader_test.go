/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"sync"
	"testing"

	"jelatine/internal/types"
)

func TestLayoutFieldsInheritsSuperSlots(t *testing.T) {
	base := &Klass{}
	if err := LayoutFields(base, []Field{
		{NameIndex: 1, Type: types.Ref},
		{NameIndex: 2, Type: types.Int},
	}); err != nil {
		t.Fatal(err)
	}
	if base.InstanceRefCount != 1 {
		t.Fatalf("base ref count = %d, want 1", base.InstanceRefCount)
	}

	sub := &Klass{Super: base}
	if err := LayoutFields(sub, []Field{
		{NameIndex: 3, Type: types.Ref},
	}); err != nil {
		t.Fatal(err)
	}
	if sub.Fields[0].Slot != 1 {
		t.Fatalf("subclass field slot = %d, want 1 (after inherited slot 0)", sub.Fields[0].Slot)
	}
	if sub.InstanceRefCount != 2 {
		t.Fatalf("sub ref count = %d, want 2", sub.InstanceRefCount)
	}
}

func TestLayoutFieldsAlignsScalars(t *testing.T) {
	k := &Klass{}
	if err := LayoutFields(k, []Field{
		{NameIndex: 1, Type: types.Byte},
		{NameIndex: 2, Type: types.Long},
	}); err != nil {
		t.Fatal(err)
	}
	// banding places the long field (width 8) before the byte field
	// (width 1) regardless of declaration order, so the long field
	// lands at offset 0 and the byte field is pushed to the next
	// 8-byte-aligned slot.
	if k.Fields[0].Type != types.Long || k.Fields[0].Slot != 0 {
		t.Fatalf("long field = %+v, want slot 0", k.Fields[0])
	}
	if k.Fields[1].Type != types.Byte || k.Fields[1].Slot != 8 {
		t.Fatalf("byte field = %+v, want slot 8", k.Fields[1])
	}
}

func TestLayoutFieldsPacksBooleansEightPerByte(t *testing.T) {
	k := &Klass{}
	declared := make([]Field, 9)
	for i := range declared {
		declared[i] = Field{NameIndex: uint32(i + 1), Type: types.Boolean}
	}
	if err := LayoutFields(k, declared); err != nil {
		t.Fatal(err)
	}
	if k.InstanceNonRefBytes != 2 {
		t.Fatalf("9 packed booleans should need 2 bytes, got %d", k.InstanceNonRefBytes)
	}
	for i, f := range k.Fields {
		wantByte := i / 8
		wantBit := i % 8
		if f.Slot != wantByte || f.Bit != wantBit {
			t.Fatalf("boolean field %d = slot %d bit %d, want slot %d bit %d", i, f.Slot, f.Bit, wantByte, wantBit)
		}
	}
}

func TestBuildVTableInheritsSlots(t *testing.T) {
	base := &Klass{Methods: []Method{{NameIndex: 10}}}
	if err := BuildVTable(base); err != nil {
		t.Fatal(err)
	}
	if len(base.VTable) != 1 {
		t.Fatalf("base vtable len = %d, want 1", len(base.VTable))
	}

	sub := &Klass{Super: base, Methods: []Method{{NameIndex: 11}}}
	if err := BuildVTable(sub); err != nil {
		t.Fatal(err)
	}
	if len(sub.VTable) != 2 {
		t.Fatalf("sub vtable len = %d, want 2 (inherited + own)", len(sub.VTable))
	}
}

func TestResolveDedupesConcurrentLoads(t *testing.T) {
	tbl := &Table{byName: make(map[uint32]*Klass)}
	loadCount := 0
	loadFn := func(k *Klass) error {
		loadCount++
		return nil
	}

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			_, _ = tbl.Resolve(&sync.Mutex{}, "com/example/Thing", loadFn)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if loadCount != 1 {
		t.Fatalf("loadFn called %d times, want exactly 1", loadCount)
	}
}

func TestPackMethodIndexRoundTrips(t *testing.T) {
	entry := PackMethodIndex(200, 5)
	if entry.Index() != 200 || entry.ArgStackSize() != 5 {
		t.Fatalf("got index=%d argStackSize=%d, want 200,5", entry.Index(), entry.ArgStackSize())
	}
}
