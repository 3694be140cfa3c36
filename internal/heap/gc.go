/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package heap

import "jelatine/internal/types"

// Mark phase, sweep phase, and grow policy (spec §4.1). Marking here
// uses an explicit work-list rather than pointer reversal: Design
// Notes §9 recommends the work-list for any target that isn't
// itself memory-constrained ("clearer, same asymptotics, no header
// reshuffling"), which is the right call for a Go runtime with an
// ordinary growable stack. MarkPointerReversal is kept alongside it
// for spec fidelity (§4.1 "mark (pointer-reversal optional)") but is
// not the path Collect uses.

// Collect runs one full mark-sweep cycle. roots is called once, after
// the caller has already stopped the world (spec §5): it must return
// every potential root — class table, string literal table, and every
// registered thread's Java stack and temporary-root stack.
func (h *Heap) Collect(vmLock Locker, roots func() []Ref) {
	vmLock.Lock()
	defer vmLock.Unlock()

	h.mu.Lock()
	rootRefs := roots()
	h.mark(rootRefs)
	h.markFinalizables()
	h.markWeakReferents()
	reclaimed := h.sweep()
	h.mu.Unlock()

	h.maybeGrowAfterSweep(vmLock, reclaimed)

	if len(h.toFinalize) > 0 {
		h.finalizeCond.Broadcast()
	}
}

// mark walks from rootRefs using an explicit work-list, visiting each
// reachable Java object exactly once.
func (h *Heap) mark(rootRefs []Ref) {
	stack := make([]Ref, 0, len(rootRefs))
	for _, r := range rootRefs {
		if h.admitRoot(r) {
			stack = append(stack, r)
		}
	}
	for len(stack) > 0 {
		n := len(stack) - 1
		ref := stack[n]
		stack = stack[:n]

		hd := &h.headers[ref]
		if !hd.inUse || !hd.isJava || hd.mark {
			continue
		}
		hd.mark = true
		for _, child := range hd.refs {
			if h.admitRoot(child) && !h.headers[child].mark {
				stack = append(stack, child)
			}
		}
	}
}

// admitRoot is the conservative-scan admission rule (spec §4.1 "Mark
// phase", Design Notes §9 "Conservative stack scanning"): a candidate
// root is accepted only if it is in range and names a recorded,
// in-use header position. Jelatine's Refs are handles rather than raw
// addresses, so the "word-aligned, inside the arena" half of the rule
// is automatically satisfied by the type system; what remains, and
// what callers scanning a conservative Java stack still need, is the
// bitmap check.
func (h *Heap) admitRoot(ref Ref) bool {
	return ref != NullRef && ref < Ref(len(h.headers)) && h.bitSet(ref) && h.headers[ref].inUse
}

// markFrame is one stack entry for MarkPointerReversal: the object
// being visited and the index of the next child ref to try.
type markFrame struct {
	ref  Ref
	next int
}

// MarkPointerReversal is an alternate, depth-first mark implementation
// modeled on Deutsch-Schorr-Waite pointer reversal, kept for parity
// with the spec's "optional"
// alternate encoding (§3 "Header word", §4.1 "Mark phase"). The
// spec's C version threads the resume index through the header word
// itself to get O(1) extra space; a Ref header here is a Go struct
// rather than an address, so there is no spare word to thread through
// and this walks a small explicit frame stack instead. It is kept as
// a documented alternative, not the path Collect uses — see mark.
func (h *Heap) MarkPointerReversal(rootRefs []Ref) {
	var stack []markFrame
	for _, root := range rootRefs {
		if !h.admitRoot(root) || h.headers[root].mark {
			continue
		}
		stack = append(stack, markFrame{ref: root})
		h.headers[root].mark = true

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			hd := &h.headers[top.ref]
			advanced := false
			for top.next < len(hd.refs) {
				child := hd.refs[top.next]
				top.next++
				if h.admitRoot(child) && !h.headers[child].mark {
					h.headers[child].mark = true
					stack = append(stack, markFrame{ref: child})
					advanced = true
					break
				}
			}
			if !advanced && top.next >= len(hd.refs) {
				stack = stack[:len(stack)-1]
			}
		}
	}
}

// markFinalizables implements spec §4.1 "Finalization": anything
// still unmarked after the normal mark phase that's registered as
// finalizable is queued for the finalizer thread and kept alive by a
// re-mark.
func (h *Heap) markFinalizables() {
	for ref := range h.finalizables {
		hd := &h.headers[ref]
		if !hd.inUse {
			delete(h.finalizables, ref)
			continue
		}
		if !hd.mark {
			h.toFinalize = append(h.toFinalize, ref)
			hd.mark = true // keep alive for the finalizer
			delete(h.finalizables, ref)
		}
	}
}

// markWeakReferents implements spec §4.1 "Weak references": live weak
// references whose referent is now unreachable have that field nulled;
// weak references that are themselves unreachable are dropped.
func (h *Heap) markWeakReferents() {
	kept := h.weakRefs[:0]
	for _, ref := range h.weakRefs {
		hd := &h.headers[ref]
		if !hd.inUse || !hd.mark {
			continue // the weak-reference object itself died; drop it
		}
		if len(hd.refs) > 0 {
			referent := hd.refs[0] // referent is read from slot 0; classloader.LayoutFields has no special case for it, so it sits there only as the class's first reference field with no inherited reference slots
			if referent != NullRef && !h.headers[referent].mark {
				hd.refs[0] = NullRef
			}
		}
		kept = append(kept, ref)
	}
	h.weakRefs = kept
}

// DrainFinalizable blocks until at least one object is queued for
// finalization, then returns and removes it. Used by the dedicated
// finalizer thread (spec §4.8 "Finalizer thread").
func (h *Heap) DrainFinalizable() Ref {
	h.mu.Lock()
	defer h.mu.Unlock()
	for len(h.toFinalize) == 0 {
		h.finalizeCond.Wait()
	}
	n := len(h.toFinalize) - 1
	ref := h.toFinalize[n]
	h.toFinalize = h.toFinalize[:n]
	return ref
}

// sweep walks every recorded header. Live Java objects have their
// mark cleared; live C objects are left untouched; everything else is
// reclaimed and its words are returned to the bins or the large list.
// Returns the number of words reclaimed.
func (h *Heap) sweep() int {
	reclaimed := 0
	for ref := 1; ref < len(h.headers); ref++ {
		r := Ref(ref)
		hd := &h.headers[r]
		if !hd.inUse {
			continue
		}
		if hd.isJava {
			if hd.mark {
				hd.mark = false
				continue
			}
			reclaimed += int(hd.size)
			h.curWords -= int(hd.size)
			h.routeToFreeList(r, int(hd.size))
			continue
		}
		// C allocation: survives unless explicitly freed, regardless of
		// mark (spec §4.1 "if C and marked, skip").
	}
	return reclaimed
}

// routeToFreeList turns a just-reclaimed header into a free chunk,
// demoting the old header to a fake dead-C-object and filing it under
// its exact size (or the large list). Adjacent free chunks are not
// coalesced.
func (h *Heap) routeToFreeList(ref Ref, words int) {
	h.headers[ref] = header{inUse: true, isJava: false, mark: true, size: uint32(words)}
	h.clearBit(ref) // no longer a live Java header position
	if words <= types.MaxBinSize {
		h.bins[words] = append(h.bins[words], ref)
	} else {
		h.large = append(h.large, ref)
	}
}

// maybeGrowAfterSweep applies the grow policy (spec §4.1 "Grow
// policy"): if reclaimed words are less than half of in-use words,
// grow by the difference, capped at maxWords.
func (h *Heap) maybeGrowAfterSweep(vmLock Locker, reclaimedWords int) {
	h.mu.Lock()
	inUse := h.curWords
	h.mu.Unlock()
	if reclaimedWords*2 < inUse {
		h.Grow(vmLock, inUse-reclaimedWords)
	}
}

// Grow extends the arena's usable header-table capacity by at least
// extraWords, capped at maxWords. Returns false if already at the cap.
func (h *Heap) Grow(vmLock Locker, extraWords int) bool {
	vmLock.Lock()
	defer vmLock.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.headers) >= h.maxWords {
		return false
	}
	target := len(h.headers) + extraWords
	if target > h.maxWords {
		target = h.maxWords
	}
	if target <= len(h.headers) {
		return false
	}
	grown := make([]header, len(h.headers), target)
	copy(grown, h.headers)
	h.headers = grown
	return true
}
