/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package heap is the unified garbage-collected heap (spec §4.1): one
// arena hosting both Java objects and C book-keeping allocations, a
// bitmap recording every live header position, size-class bins for
// small allocations, a first-fit list for large ones, and a
// mark-sweep collector.
//
// Idiomatic-Go adaptation (recorded in DESIGN.md): the spec's C
// implementation addresses objects by a raw pointer into one
// contiguous byte arena and reads/writes fields through pointer
// arithmetic on that arena. Go's garbage collector cannot scan
// arbitrary mmap'd memory for live pointers, so Jelatine cannot
// literally store Go-managed references inside an mmap'd region — the
// runtime would silently collect or relocate referents underneath it.
// Instead, a Ref is a handle (an index) into a headers table of plain
// Go structs; the header table itself plays the role of the spec's
// "header word at a known offset", and the mmap'd region (via
// github.com/edsrzf/mmap-go) backs only the bitmap bit-vector, the one
// part of the model that is genuinely byte-addressed and contains no
// live Go pointers; non-reference byte payloads (scalar fields, C
// allocations) are ordinary Go byte slices per header. Reference slots
// (spec's "reference slab") are therefore modeled as a []Ref slice
// alongside each header rather than as negatively-offset words before
// it; the scanning, marking, and invariants described in the spec are
// preserved, only the physical layout trick (shared header position
// for positive and negative offsets) is not literally reproduced.
package heap

import (
	"errors"
	"fmt"
	"sync"

	mmap "github.com/edsrzf/mmap-go"

	"jelatine/internal/types"
)

// Ref is a heap handle: the header-table index of a live allocation.
// Zero is reserved as the null reference (spec §3 "Reference").
type Ref uint32

const NullRef Ref = 0

// Locker is the global VM lock contract (spec §5 "single recursive
// global VM lock mediating all shared-state mutation"): every
// allocation and collection entry point takes one and holds it for
// its whole duration. Defined locally, rather than importing
// internal/thread's VMLock directly, because internal/thread already
// imports internal/heap for Ref — importing back would cycle.
// *thread.Thread satisfies this interface structurally.
type Locker interface {
	Lock()
	Unlock()
}

// tag bits, mirrored from the spec's header word (spec §3 "Header
// word") even though they live in a Go struct field here rather than
// packed into one machine word.
type header struct {
	inUse       bool
	isJava      bool // is_java_object bit
	mark        bool // mark bit
	classIdx    int32  // packed class pointer, as a class-table index
	size        uint32 // words: nref bytes rounded up, for C allocs the byte size
	finalizable bool
	weak        bool // true if this is a java.lang.ref.Reference-family object
	refs        []Ref
	scalars     []byte
}

// Heap is one contiguous arena shared by Java and C allocations.
type Heap struct {
	mu sync.Mutex

	maxWords  int
	curWords  int // words currently reserved by in-use allocations (bookkeeping only)
	bitmap    mmap.MMap // backing store for the "is this header position live" bit-vector
	headers   []header
	freeSlots []Ref // recycled header-table slots below len(headers)

	bins     [types.MaxBinSize + 1][]Ref // per-size free-chunk bins, index 0 unused
	large    []Ref                       // first-fit list of large (>MaxBinSize) free chunks

	finalizables map[Ref]bool
	toFinalize   []Ref
	finalizeCond *sync.Cond

	weakRefs []Ref // registered java.lang.ref.Reference-family objects

	OnFatal func(format string, args ...any) // arena exhaustion after grow, etc; defaults to panic
}

// New creates a heap whose bitmap is pre-reserved for maxWords (spec
// §4.1 "bitmap is pre-reserved at init for max size"). initWords is
// only checked against maxWords; the header table starts with room for
// 1024 entries and grows on demand up to maxWords.
func New(initWords, maxWords int) (*Heap, error) {
	if maxWords <= 0 || initWords <= 0 || initWords > maxWords {
		return nil, errors.New("heap: invalid init/max size")
	}
	bm, err := mmap.MapRegion(nil, bitmapBytes(maxWords), mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("heap: mapping bitmap: %w", err)
	}
	h := &Heap{
		maxWords:     maxWords,
		bitmap:       bm,
		headers:      make([]header, 1, 1024), // index 0 reserved for NullRef
		finalizables: make(map[Ref]bool),
	}
	h.finalizeCond = sync.NewCond(&h.mu)
	h.OnFatal = func(format string, args ...any) { panic(fmt.Sprintf(format, args...)) }
	h.curWords = 0
	_ = initWords // not used beyond the validation above
	return h, nil
}

func bitmapBytes(maxWords int) int {
	bits := maxWords
	bytes := (bits + 7) / 8
	if bytes == 0 {
		bytes = 1
	}
	return bytes
}

func (h *Heap) setBit(ref Ref) {
	idx := int(ref)
	h.bitmap[idx/8] |= 1 << uint(idx%8)
}

func (h *Heap) clearBit(ref Ref) {
	idx := int(ref)
	h.bitmap[idx/8] &^= 1 << uint(idx%8)
}

func (h *Heap) bitSet(ref Ref) bool {
	idx := int(ref)
	return h.bitmap[idx/8]&(1<<uint(idx%8)) != 0
}

// --- allocation ---

// allocSlot returns a fresh or recycled header-table index.
func (h *Heap) allocSlot() (Ref, error) {
	if n := len(h.freeSlots); n > 0 {
		ref := h.freeSlots[n-1]
		h.freeSlots = h.freeSlots[:n-1]
		return ref, nil
	}
	if len(h.headers) >= h.maxWords {
		return NullRef, errors.New("heap: arena exhausted")
	}
	h.headers = append(h.headers, header{})
	return Ref(len(h.headers) - 1), nil
}

// NewObject allocates a Java object: refN reference slots and a non-reference
// area of nrefSize bytes, for the class identified by classIdx (spec
// §4.1 "Object allocator contract"). On allocation failure it runs a
// collection and, if still unsatisfied, grows the arena; a failure
// after both is fatal, matching the spec's "no recovery contract".
func (h *Heap) NewObject(vmLock Locker, classIdx int32, refN int, nrefSize int, finalizable bool, roots func() []Ref) Ref {
	vmLock.Lock()
	defer vmLock.Unlock()

	h.mu.Lock()
	ref, err := h.tryAllocObject(classIdx, refN, nrefSize, finalizable)
	if err == nil {
		h.mu.Unlock()
		return ref
	}
	h.mu.Unlock()

	h.Collect(vmLock, roots)

	h.mu.Lock()
	ref, err = h.tryAllocObject(classIdx, refN, nrefSize, finalizable)
	h.mu.Unlock()
	if err == nil {
		return ref
	}

	if h.Grow(vmLock, wordsFor(refN, nrefSize)) {
		h.mu.Lock()
		ref, err = h.tryAllocObject(classIdx, refN, nrefSize, finalizable)
		h.mu.Unlock()
		if err == nil {
			return ref
		}
	}
	h.OnFatal("heap: out of memory allocating %d-word object of class %d", wordsFor(refN, nrefSize), classIdx)
	return NullRef
}

func wordsFor(refN, nrefSize int) int {
	return refN + (nrefSize+types.WordSize-1)/types.WordSize + 1 // +1 for the header itself
}

func (h *Heap) tryAllocObject(classIdx int32, refN, nrefSize int, finalizable bool) (Ref, error) {
	words := wordsFor(refN, nrefSize)
	ref, err := h.reuseChunk(words)
	if err != nil {
		ref, err = h.allocSlot()
		if err != nil {
			return NullRef, err
		}
	}
	h.headers[ref] = header{
		inUse:       true,
		isJava:      true,
		classIdx:    classIdx,
		size:        uint32(words),
		finalizable: finalizable,
		refs:        make([]Ref, refN),
		scalars:     make([]byte, nrefSize),
	}
	h.setBit(ref)
	h.curWords += words
	if finalizable {
		h.finalizables[ref] = true
	}
	return ref, nil
}

// reuseChunk pulls a free chunk of at least the right size from the
// bins (exact-size first, else the large first-fit list).
func (h *Heap) reuseChunk(words int) (Ref, error) {
	if words <= types.MaxBinSize && len(h.bins[words]) > 0 {
		n := len(h.bins[words])
		ref := h.bins[words][n-1]
		h.bins[words] = h.bins[words][:n-1]
		return ref, nil
	}
	for i, ref := range h.large {
		if int(h.headers[ref].size) >= words {
			h.large = append(h.large[:i], h.large[i+1:]...)
			return ref, nil
		}
	}
	return NullRef, errors.New("heap: no free chunk available")
}

// NewC allocates a C book-keeping block of sizeBytes. C allocations
// carry mark=true so the sweep leaves them alone until FreeC is called
// explicitly (spec §4.1 "Error conditions": size 0 is an invariant
// violation).
func (h *Heap) NewC(vmLock Locker, sizeBytes int) Ref {
	if sizeBytes <= 0 {
		h.OnFatal("heap: NewC called with non-positive size %d", sizeBytes)
	}
	vmLock.Lock()
	defer vmLock.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	ref, err := h.allocSlot()
	if err != nil {
		h.OnFatal("heap: arena exhausted allocating C block of %d bytes", sizeBytes)
	}
	h.headers[ref] = header{
		inUse:   true,
		isJava:  false,
		mark:    true,
		size:    uint32(sizeBytes),
		scalars: make([]byte, sizeBytes),
	}
	h.setBit(ref)
	return ref
}

// FreeC explicitly releases a C allocation.
func (h *Heap) FreeC(vmLock Locker, ref Ref) {
	vmLock.Lock()
	defer vmLock.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	hd := &h.headers[ref]
	if !hd.inUse || hd.isJava {
		return
	}
	h.releaseSlot(ref)
}

func (h *Heap) releaseSlot(ref Ref) {
	h.clearBit(ref)
	h.headers[ref] = header{}
	h.freeSlots = append(h.freeSlots, ref)
}

// --- field access ---

// ClassIdx returns the class-table index recorded in ref's header.
func (h *Heap) ClassIdx(ref Ref) int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headers[ref].classIdx
}

// RefSlot reads reference slot i of ref's reference slab.
func (h *Heap) RefSlot(ref Ref, i int) Ref {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headers[ref].refs[i]
}

// SetRefSlot writes reference slot i.
func (h *Heap) SetRefSlot(ref Ref, i int, v Ref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.headers[ref].refs[i] = v
}

// Scalars returns the non-reference byte area for direct read/write by
// the field-access opcodes (spec §3 "non-reference fields").
func (h *Heap) Scalars(ref Ref) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headers[ref].scalars
}

// MarkWeak flags ref as a java.lang.ref.Reference-family object and
// registers it on the weak-reference list (spec §4.1 "Weak
// references"). The collector treats reference slot 0 of ref as the
// referent field.
func (h *Heap) MarkWeak(ref Ref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.headers[ref].weak = true
	h.weakRefs = append(h.weakRefs, ref)
}

// IsLive reports whether ref currently denotes a recorded, in-use
// header position — the ground truth the sweep maintains (spec §3
// invariant iii).
func (h *Heap) IsLive(ref Ref) bool {
	if ref == NullRef {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return ref < Ref(len(h.headers)) && h.bitSet(ref) && h.headers[ref].inUse
}

// Stats reports coarse occupancy for GC-policy decisions and tests.
type Stats struct {
	TotalWords int
	UsedWords  int
	FreeWords  int
}

func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{TotalWords: h.maxWords, UsedWords: h.curWords, FreeWords: h.maxWords - h.curWords}
}
