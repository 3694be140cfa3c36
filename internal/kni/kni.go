/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package kni is the narrow native-method calling convention (spec
// §4.10): a native method never touches a raw heap.Ref directly, only
// handles obtained through a HandleScope, so the collector can always
// find every reference a native method is holding without that method
// cooperating beyond opening/closing its scope. This is explicitly the
// narrow KNI surface, not full JNI (Non-goals: "full JNI").
package kni

import "jelatine/internal/heap"

// Handle is an opaque index into its owning HandleScope's slot table.
type Handle int

// HandleScope is the temporary-root-stack sugar a native method uses
// for the duration of one call (spec §4.10 "StartHandles/
// DeclareHandle/EndHandles"): every handle declared within it is
// registered as a GC root for as long as the scope is open.
type HandleScope struct {
	push func(ref heap.Ref)
	pop  func()
	refs []heap.Ref
}

// StartHandles opens a new scope. push/pop register/unregister this
// scope's combined root set with the owning thread's temporary-root
// stack (internal/thread.Thread.PushTempRoot is the usual push).
func StartHandles(push func(ref heap.Ref), pop func()) *HandleScope {
	return &HandleScope{push: push, pop: pop}
}

// DeclareHandle registers ref as a root for the lifetime of the scope
// and returns a Handle identifying it.
func (s *HandleScope) DeclareHandle(ref heap.Ref) Handle {
	s.push(ref)
	s.refs = append(s.refs, ref)
	return Handle(len(s.refs) - 1)
}

// Get dereferences h back to its heap.Ref.
func (s *HandleScope) Get(h Handle) heap.Ref {
	return s.refs[h]
}

// EndHandles closes the scope, releasing every handle declared within
// it from the GC root set. Must be called exactly once, typically via
// defer immediately after StartHandles.
func (s *HandleScope) EndHandles() {
	for range s.refs {
		s.pop()
	}
	s.refs = nil
}
