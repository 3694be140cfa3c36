/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package object

import (
	"sync"
	"testing"

	"jelatine/internal/classloader"
	"jelatine/internal/heap"
	"jelatine/internal/types"
)

func TestNullObject(t *testing.T) {
	if !Null.IsNull() {
		t.Fatal("zero-value Object should report IsNull")
	}
}

func TestNewAllocatesBackedInstance(t *testing.T) {
	h, err := heap.New(1024, 1<<16)
	if err != nil {
		t.Fatal(err)
	}

	k := &classloader.Klass{InstanceRefCount: 1, InstanceNonRefBytes: 0}
	obj := New(&sync.Mutex{}, h, k, func() []heap.Ref { return nil })
	if obj.IsNull() {
		t.Fatal("New should not return a null object")
	}
	if !h.IsLive(obj.Ref) {
		t.Fatal("allocated object should be live")
	}
}

func TestJavaByteArrayRoundTrip(t *testing.T) {
	orig := "hello, jelatine"
	jb := JavaByteArrayFromGoString(orig)
	if GoStringFromJavaByteArray(jb) != orig {
		t.Fatalf("round trip mismatch")
	}
}

func TestJavaByteArrayEquals(t *testing.T) {
	a := []types.JavaByte{'a', 'B', 'c'}
	b := []types.JavaByte{'a', 'b', 'c'}
	if JavaByteArrayEquals(a, b) {
		t.Fatal("case-sensitive equals should not match")
	}
	if !JavaByteArrayEqualsIgnoreCase(a, b) {
		t.Fatal("case-insensitive equals should match")
	}
}
