/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package classloader is the class table, constant pool, and linker
// (spec §4.2 "Class loader/linker"). It owns the state machine every
// class moves through (dummy -> preloaded -> linking -> linked ->
// initializing -> initialized, with erroneous as a terminal sink from
// any state), the constant-pool tagged-variant model and its in-place
// resolution rewrites, and the field/method layout algorithms that
// hand the interpreter a ready-to-run Klass.
//
// The linked runtime-class representation (Klass) stores instance
// layout as slot counts and byte offsets rather than a Go-native field
// map, since instance data itself lives in internal/heap.
package classloader

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"jelatine/internal/bytecode"
	"jelatine/internal/excnames"
	"jelatine/internal/stringpool"
	"jelatine/internal/trace"
	"jelatine/internal/types"
)

// State is a class's position in the loading state machine (spec §4.2
// "Class state machine"). Erroneous is terminal and reachable from
// every other state.
type State byte

const (
	StateDummy State = iota
	StatePreloaded
	StateLinking
	StateLinked
	StateInitializing
	StateInitialized
	StateErroneous
)

func (s State) String() string {
	switch s {
	case StateDummy:
		return "dummy"
	case StatePreloaded:
		return "preloaded"
	case StateLinking:
		return "linking"
	case StateLinked:
		return "linked"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateErroneous:
		return "erroneous"
	default:
		return "unknown"
	}
}

// cfe constructs a ClassFormatError-flavored error. CFE is the
// exported form used by callers outside the package.
func cfe(msg string) error { return fmt.Errorf("%s: %s", excnames.ClassFormatError, msg) }
func CFE(msg string) error { return cfe(msg) }

// Locker is the global VM lock contract (spec §5): Resolve holds one
// for the full load/link critical section. Defined locally, rather
// than importing internal/thread's VMLock directly, to keep this
// package's import graph one-directional; *thread.Thread satisfies it
// structurally.
type Locker interface {
	Lock()
	Unlock()
}

// Field is one resolved instance or static field.
type Field struct {
	NameIndex uint32
	Type      string // descriptor char, see internal/types
	IsStatic  bool
	Slot      int // reference slot index, or byte offset into scalars, per Type
	Bit       int // for boolean fields: 0-7 bit index within the byte at Slot (spec §4.2 "bit packing")
	StaticRef types.JavaByte
}

// MethodVTableEntry is one packed dispatch-table slot (spec §4.4
// "Packed method index"): a 12-bit vtable/itable index paired with a
// 4-bit argument-stack size, packed into a single uint16 the way the
// bytecode translator expects to find it.
type MethodVTableEntry uint16

func PackMethodIndex(index int, argStackSize int) MethodVTableEntry {
	return MethodVTableEntry((index&0x0FFF)<<4 | (argStackSize & 0x0F))
}

func (m MethodVTableEntry) Index() int        { return int(m >> 4) }
func (m MethodVTableEntry) ArgStackSize() int { return int(m & 0x0F) }

// Method is a resolved, executable method.
type Method struct {
	NameIndex       uint32
	DescriptorIndex uint32
	AccessFlags     int
	IsStatic        bool
	IsPrivate       bool
	IsFinal         bool
	IsSynchronized  bool
	IsNative        bool
	MaxStack        int
	MaxLocals       int
	Code            *bytecode.Code
	ExceptionTable  []ExceptionHandler
	VTableSlot      MethodVTableEntry
}

// ExceptionHandler is one entry of a method's exception table (spec
// §4.5 "Exception tables").
type ExceptionHandler struct {
	StartPC   int
	EndPC     int
	HandlerPC int
	CatchType uint32 // string-pool index of the caught class name, 0 = catch-all
}

// Klass is the fully linked, ready-to-execute representation of a
// class (spec §4.2's end state of "Field layout" and "Method tables").
// Instance layout is recorded as counts/slots rather than a Go field
// map, since the interpreter allocates instances through internal/
// heap.
type Klass struct {
	NameIndex      uint32
	SuperIndex     uint32
	Super          *Klass
	Interfaces     []*Klass
	AccessFlags    int
	IsInterface    bool
	IsAbstract     bool
	Index          int32 // this class's slot in the global class table

	Fields  []Field
	Methods []Method
	VTable  []MethodVTableEntry
	CP      *ConstantPool // this class's own constant pool, for runtime resolution of not-yet-translated opcodes

	InstanceRefCount    int // reference-field slots a new instance needs
	InstanceNonRefBytes int // scalar-field byte area a new instance needs
	HasFinalizer        bool

	StaticRefs    []types.JavaByte // placeholder storage for static reference fields
	StaticScalars []byte

	State State
	Err   error // recorded cause if State == StateErroneous

	mu sync.Mutex
}

// Table is the class table: every class known to the VM, indexed both
// by name and by a dense integer index used as the heap's classIdx
// (spec §4.2 "Class table").
type Table struct {
	mu      sync.RWMutex
	byName  map[uint32]*Klass // keyed by stringpool index of the internal class name
	byIndex []*Klass

	loadGroup singleflight.Group // dedupes concurrent resolves of the same class name
}

var global = &Table{byName: make(map[uint32]*Klass)}

// Global returns the process-wide class table.
func Global() *Table { return global }

// ClassByIndex looks up a linked class by its table index, used by
// internal/heap and internal/object to go from a header's classIdx
// back to a Klass. Returns nil if index is out of range.
func ClassByIndex(index int32) *Klass {
	global.mu.RLock()
	defer global.mu.RUnlock()
	if index < 0 || int(index) >= len(global.byIndex) {
		return nil
	}
	return global.byIndex[index]
}

// Lookup returns the Klass for name if it is already in the table,
// without triggering a load.
func (t *Table) Lookup(name string) (*Klass, bool) {
	idx := stringpool.Intern(name)
	t.mu.RLock()
	defer t.mu.RUnlock()
	k, ok := t.byName[idx]
	return k, ok
}

// insertDummy installs a placeholder Klass in StateDummy for name,
// reserving its table index (spec §4.2 "dummy" state: reserved before
// any bytes have been read, so concurrent resolvers agree on an
// index).
func (t *Table) insertDummy(name string) *Klass {
	idx := stringpool.Intern(name)

	t.mu.Lock()
	defer t.mu.Unlock()
	if k, ok := t.byName[idx]; ok {
		return k
	}
	k := &Klass{NameIndex: idx, State: StateDummy, Index: int32(len(t.byIndex))}
	t.byIndex = append(t.byIndex, k)
	t.byName[idx] = k
	return k
}

// Resolve returns the linked Klass for name, loading and linking it
// (via loadFn) exactly once even under concurrent callers. It holds
// the global VM lock (spec §5) for the entire load/link critical
// section, including loadFn itself, since class loading mutates the
// shared class table; golang.org/x/sync/singleflight on top of that
// still dedupes concurrent resolvers of the same name onto a single
// loadFn call (spec §4.2 "Loading is triggered lazily... concurrent
// resolvers of the same name must observe a single load").
func (t *Table) Resolve(vmLock Locker, name string, loadFn func(*Klass) error) (*Klass, error) {
	if k, ok := t.Lookup(name); ok && (k.State == StateLinked || k.State == StateInitialized) {
		return k, nil
	}

	vmLock.Lock()
	defer vmLock.Unlock()

	v, err, _ := t.loadGroup.Do(name, func() (any, error) {
		k := t.insertDummy(name)
		k.mu.Lock()
		defer k.mu.Unlock()
		if k.State == StateInitialized || k.State == StateLinked {
			return k, nil
		}
		if k.State == StateErroneous {
			return nil, k.Err
		}
		k.State = StatePreloaded
		if e := loadFn(k); e != nil {
			k.State = StateErroneous
			k.Err = e
			trace.Error(fmt.Sprintf("classloader: %s: %v", name, e))
			return nil, e
		}
		k.State = StateLinked
		return k, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Klass), nil
}

// LayoutFields runs the field-layout algorithm (spec §4.2 "Field
// layout"): reference fields get sequential slots inherited from the
// superclass's layout (so a subclass's extra fields never shift a
// superclass field's slot — required for safe upcasting). Scalar
// fields are bucketed by width and placed into packed bands in
// strictly decreasing alignment — long/double, then int/float, then
// short/char, then byte — so no field ever needs padding to reach its
// own natural alignment; booleans are packed eight per byte in a final
// bit-indexed band rather than given a full byte each. Returns a
// ClassFormatError if the packed layout would need a bit offset beyond
// types.MaxBitOffset.
func LayoutFields(k *Klass, declared []Field) error {
	refSlots := 0
	scalarBytes := 0
	if k.Super != nil {
		refSlots = k.Super.InstanceRefCount
		scalarBytes = k.Super.InstanceNonRefBytes
	}

	var refs, wide, ints, shorts, narrow, bools []Field
	for _, f := range declared {
		if f.IsStatic {
			continue
		}
		switch {
		case isRefType(f.Type):
			refs = append(refs, f)
		case f.Type == types.Long || f.Type == types.Double:
			wide = append(wide, f)
		case f.Type == types.Int || f.Type == types.Float:
			ints = append(ints, f)
		case f.Type == types.Short || f.Type == types.Char:
			shorts = append(shorts, f)
		case f.Type == types.Boolean:
			bools = append(bools, f)
		default: // types.Byte
			narrow = append(narrow, f)
		}
	}

	out := make([]Field, 0, len(declared))
	for _, f := range refs {
		f.Slot = refSlots
		refSlots++
		out = append(out, f)
	}

	bands := []struct {
		fields []Field
		width  int
	}{
		{wide, 8},
		{ints, 4},
		{shorts, 2},
		{narrow, 1},
	}
	for _, band := range bands {
		if len(band.fields) == 0 {
			continue
		}
		scalarBytes = align(scalarBytes, band.width)
		for _, f := range band.fields {
			f.Slot = scalarBytes
			scalarBytes += band.width
			out = append(out, f)
		}
	}

	bitIndex := 0
	for _, f := range bools {
		f.Slot = scalarBytes
		f.Bit = bitIndex
		bitIndex++
		if bitIndex == 8 {
			bitIndex = 0
			scalarBytes++
		}
		out = append(out, f)
	}
	if bitIndex > 0 {
		scalarBytes++ // the last partially-filled boolean byte still occupies space
	}

	if scalarBytes*8 > types.MaxBitOffset {
		return cfe(fmt.Sprintf("class %s exceeds max field bit offset", stringpool.GetString(k.NameIndex)))
	}

	k.Fields = out
	k.InstanceRefCount = refSlots
	k.InstanceNonRefBytes = scalarBytes
	return nil
}

// IsRefType reports whether a field descriptor denotes a reference
// type (object, array, or array-of-references).
func IsRefType(t string) bool { return isRefType(t) }

func isRefType(t string) bool {
	return t == types.Ref || t == types.Array || t == types.RefArray
}

func align(offset, size int) int {
	if size <= 1 {
		return offset
	}
	rem := offset % size
	if rem == 0 {
		return offset
	}
	return offset + (size - rem)
}

// BuildVTable assigns a packed dispatch index (spec §4.4 "Packed
// method index") to every non-private, non-static instance method,
// inheriting slots from the superclass so an override (same name and
// descriptor as a non-private, non-static, non-final ancestor method)
// keeps its ancestor's index.
func BuildVTable(k *Klass) error {
	var inherited []MethodVTableEntry
	if k.Super != nil {
		inherited = append(inherited, k.Super.VTable...)
	}
	if len(inherited) > types.MaxNonPrivateInstanceMethods {
		return cfe(fmt.Sprintf("class %s exceeds max non-private instance method count", stringpool.GetString(k.NameIndex)))
	}
	k.VTable = inherited
	for i := range k.Methods {
		m := &k.Methods[i]
		if m.IsStatic || m.IsPrivate {
			continue
		}
		argSize := m.MaxLocals
		if argSize > types.MaxArgStackSize {
			argSize = types.MaxArgStackSize
		}
		slot := len(k.VTable)
		if p := findMethodInHierarchy(k.Super, m.NameIndex, m.DescriptorIndex); p != nil && !p.IsStatic && !p.IsPrivate && !p.IsFinal {
			slot = p.VTableSlot.Index()
		}
		entry := PackMethodIndex(slot, argSize)
		m.VTableSlot = entry
		if slot < len(k.VTable) {
			k.VTable[slot] = entry
		} else {
			k.VTable = append(k.VTable, entry)
		}
	}
	return nil
}
