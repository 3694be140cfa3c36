/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package thread

import (
	"sync"

	"jelatine/internal/excnames"
	"jelatine/internal/heap"
)

// monitor is one object's lock state: owner, recursive entry count,
// and the condition variable wait()/notify() block on (spec §5
// "hashed monitor table (owner/count/condvar)").
type monitor struct {
	mu    sync.Mutex
	owner *Thread
	count int
	cond  *sync.Cond
}

func newMonitor() *monitor {
	m := &monitor{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// MonitorTable maps object references to their monitor, created
// lazily on first contended/synchronized access (spec §5 "monitors are
// not part of the object header; a separate hashed table is consulted
// only when an object is actually locked").
type MonitorTable struct {
	mu       sync.Mutex
	monitors map[heap.Ref]*monitor
}

func NewMonitorTable() *MonitorTable {
	return &MonitorTable{monitors: make(map[heap.Ref]*monitor)}
}

func (mt *MonitorTable) get(ref heap.Ref) *monitor {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	m, ok := mt.monitors[ref]
	if !ok {
		m = newMonitor()
		mt.monitors[ref] = m
	}
	return m
}

// acquireMonitor blocks t until it owns m, adding count to m's
// recursion depth once acquired. The global VM lock is held only while
// checking/taking ownership, never while actually parked waiting for
// another thread to release m — that park is a safepoint, exactly
// like Wait's — so a thread contending for a monitor can never hold
// the VM lock indefinitely and deadlock the owner's Exit.
func acquireMonitor(t *Thread, m *monitor, count int) {
	for {
		t.Lock()
		m.mu.Lock()
		if m.owner == nil || m.owner == t {
			m.owner = t
			m.count += count
			m.mu.Unlock()
			t.Unlock()
			return
		}
		m.mu.Unlock()
		t.Unlock()

		t.EnterSafe()
		m.mu.Lock()
		for m.owner != nil && m.owner != t {
			m.cond.Wait()
		}
		m.mu.Unlock()
		t.ExitSafe()
	}
}

// Enter acquires ref's monitor on behalf of t, blocking if another
// thread holds it, and recursing if t already does (spec §4.4
// "synchronized-method monitor entry/exit").
func (mt *MonitorTable) Enter(t *Thread, ref heap.Ref) {
	acquireMonitor(t, mt.get(ref), 1)
}

// Exit releases one level of recursive ownership of ref's monitor.
// Returns an IllegalMonitorStateException-flavored error if t does not
// currently hold it.
func (mt *MonitorTable) Exit(t *Thread, ref heap.Ref) error {
	m := mt.get(ref)
	t.Lock()
	defer t.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != t {
		return errIllegalMonitorState
	}
	m.count--
	if m.count == 0 {
		m.owner = nil
		m.cond.Signal()
	}
	return nil
}

var errIllegalMonitorState = monitorStateError{}

type monitorStateError struct{}

func (monitorStateError) Error() string { return excnames.IllegalMonitorStateException }

// Wait releases ref's monitor (remembering the recursion depth) and
// blocks until Notify/NotifyAll/Interrupt is observed on it, then
// reacquires it at the same depth (java.lang.Object.wait semantics).
// Returns an IllegalMonitorStateException-flavored error if t does not
// hold the monitor, or an InterruptedException-flavored error if t was
// interrupted while parked (spec §4.8) — the flag is checked and
// cleared on wake, but the error is returned only after the monitor has
// been reacquired, matching wait()'s "monitor regained before the
// exception propagates" contract.
func (mt *MonitorTable) Wait(t *Thread, ref heap.Ref) error {
	m := mt.get(ref)
	m.mu.Lock()
	if m.owner != t {
		m.mu.Unlock()
		return errIllegalMonitorState
	}
	savedCount := m.count
	m.count = 0
	m.owner = nil
	m.cond.Signal() // let another waiter in while this thread blocks
	m.mu.Unlock()

	t.mu.Lock()
	t.waitingOn = m
	t.mu.Unlock()

	t.EnterSafe()
	m.mu.Lock()
	m.cond.Wait() // woken by any Signal/Broadcast on m.cond: Notify, NotifyAll, Interrupt, or a monitor release
	m.mu.Unlock()
	t.ExitSafe()

	t.mu.Lock()
	t.waitingOn = nil
	interrupted := t.interrupted
	t.interrupted = false
	t.mu.Unlock()

	acquireMonitor(t, m, savedCount)

	if interrupted {
		return errInterrupted
	}
	return nil
}

// Notify wakes one thread blocked in Wait on ref's monitor.
func (mt *MonitorTable) Notify(t *Thread, ref heap.Ref) error {
	m := mt.get(ref)
	t.Lock()
	defer t.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != t {
		return errIllegalMonitorState
	}
	m.cond.Signal()
	return nil
}

// NotifyAll wakes every thread blocked in Wait on ref's monitor.
func (mt *MonitorTable) NotifyAll(t *Thread, ref heap.Ref) error {
	m := mt.get(ref)
	t.Lock()
	defer t.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != t {
		return errIllegalMonitorState
	}
	m.cond.Broadcast()
	return nil
}

var errInterrupted = interruptedStateError{}

type interruptedStateError struct{}

func (interruptedStateError) Error() string { return excnames.InterruptedException }

// Interrupt marks target interrupted and wakes it from whichever
// condition variable it may currently be parked on: its own (Join) and,
// if it is inside Object.wait(), the monitor it recorded via
// waitingOn — the two are different condvars, so both broadcasts are
// needed for interrupting a waiter to actually be observed (spec §4.8
// "InterruptedException").
func Interrupt(target *Thread) {
	target.mu.Lock()
	target.interrupted = true
	waiting := target.waitingOn
	target.mu.Unlock()

	target.cond.Broadcast()
	if waiting != nil {
		waiting.mu.Lock()
		waiting.cond.Broadcast()
		waiting.mu.Unlock()
	}
}

// Interrupted reports and clears t's interrupted flag, matching
// Thread.interrupted()'s clear-on-read semantics.
func Interrupted(t *Thread) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.interrupted
	t.interrupted = false
	return v
}

// Join blocks the calling thread until target exits, implemented as a
// wait on target's own exit condition rather than its object monitor.
func Join(target *Thread) {
	target.mu.Lock()
	defer target.mu.Unlock()
	for !target.exited {
		target.cond.Wait()
	}
}

// MarkExited records that t has finished running and wakes any joiners.
func (t *Thread) MarkExited() {
	t.mu.Lock()
	t.exited = true
	t.mu.Unlock()
	t.cond.Broadcast()
}
