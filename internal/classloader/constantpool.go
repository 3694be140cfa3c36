/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import "jelatine/internal/stringpool"

// CPTag identifies the variant stored at a constant-pool index (spec
// §4.2 "Constant pool"). Tags are package-local values, not the
// class-file format's constant_pool_tag numbers; each resolvable kind
// has a distinct CPUnresolved* and CPResolved* tag, and resolution
// rewrites the former into the latter in place (spec §4.2 "resolved in
// place").
type CPTag byte

const (
	CPUnresolvedClass CPTag = iota
	CPResolvedClass
	CPUnresolvedFieldRef
	CPResolvedFieldRef
	CPUnresolvedMethodRef
	CPResolvedMethodRef
	CPUnresolvedInterfaceMethodRef
	CPResolvedInterfaceMethodRef
	CPString
	CPInteger
	CPFloat
	CPLong
	CPDouble
	CPNameAndType
	CPUtf8
)

// CPEntry is one constant-pool slot. Resolution is a one-way,
// in-place rewrite (spec §4.2 invariant: "once resolved, a constant
// pool entry never reverts to unresolved") — Resolve mutates Tag and
// the relevant field(s) rather than returning a new entry, so every
// holder of the containing Klass observes the same resolved value.
type CPEntry struct {
	Tag CPTag

	// unresolved forms: string-pool indices naming what to resolve
	ClassNameIndex  uint32
	NameIndex       uint32
	DescriptorIndex uint32
	OwnerNameIndex  uint32 // for field/method refs: the declaring class's name

	// resolved forms
	ResolvedClass  *Klass
	ResolvedField  *Field
	ResolvedMethod *Method

	// direct-value forms
	IntValue    int32
	LongValue   int64
	FloatValue  float32
	DoubleValue float64
	Utf8Index   uint32 // string-pool index holding the decoded text
}

// ConstantPool is a class's resolved/unresolved entry table, index 0
// unused (matching the class-file format's reserved slot 0).
type ConstantPool struct {
	Entries []CPEntry
}

// ResolveClassRef resolves CP slot i from a class reference to the
// Klass it names, triggering a load through the table's Resolve (spec
// §4.2 "Resolution triggers loading"). Safe to call more than once:
// an already-resolved slot returns its cached Klass without re-running
// the load.
func (cp *ConstantPool) ResolveClassRef(t *Table, th Locker, i int, loadFn func(*Klass) error) (*Klass, error) {
	e := &cp.Entries[i]
	if e.Tag == CPResolvedClass {
		return e.ResolvedClass, nil
	}
	name := stringpool.GetString(e.ClassNameIndex)
	k, err := t.Resolve(th, name, loadFn)
	if err != nil {
		return nil, err
	}
	e.Tag = CPResolvedClass
	e.ResolvedClass = k
	return k, nil
}

// ResolveFieldRef resolves a field reference against its owner's
// already-linked field table (spec §4.2 "Field references resolve
// against the declaring class's laid-out fields, inherited fields
// included"), falling back to a depth-first walk of implemented
// interfaces (and their own superinterfaces) once the superclass chain
// is exhausted — required for a static field declared only on an
// interface the owner implements (spec §4.3).
func (cp *ConstantPool) ResolveFieldRef(t *Table, th Locker, i int, loadFn func(*Klass) error) (*Field, error) {
	e := &cp.Entries[i]
	if e.Tag == CPResolvedFieldRef {
		return e.ResolvedField, nil
	}
	owner, err := t.Resolve(th, stringpool.GetString(e.OwnerNameIndex), loadFn)
	if err != nil {
		return nil, err
	}
	f := findFieldInHierarchy(owner, e.NameIndex)
	if f == nil {
		f = findFieldInInterfaces(owner, e.NameIndex)
	}
	if f == nil {
		return nil, cfe("field not found during resolution: " + stringpool.GetString(e.NameIndex))
	}
	e.Tag = CPResolvedFieldRef
	e.ResolvedField = f
	return f, nil
}

func findFieldInHierarchy(k *Klass, nameIdx uint32) *Field {
	for ; k != nil; k = k.Super {
		for idx := range k.Fields {
			if k.Fields[idx].NameIndex == nameIdx {
				return &k.Fields[idx]
			}
		}
	}
	return nil
}

func findFieldInInterfaces(k *Klass, nameIdx uint32) *Field {
	for c := k; c != nil; c = c.Super {
		for _, iface := range c.Interfaces {
			if f := findFieldInHierarchy(iface, nameIdx); f != nil {
				return f
			}
			if f := findFieldInInterfaces(iface, nameIdx); f != nil {
				return f
			}
		}
	}
	return nil
}

// ResolveMethodRef resolves a method reference against the owning
// class's declared methods, walking the superclass chain first and then, if
// nothing matched, a depth-first walk of implemented interfaces (spec
// §4.3) — an interface default/static method declared only there would
// otherwise spuriously fail resolution. INVOKESPECIAL/INVOKESUPER
// disambiguation (spec §4.4) is the caller's responsibility: this
// always returns the method as declared on the named owner, never a
// dynamically-dispatched override, matching the class-file reference's
// own semantics.
func (cp *ConstantPool) ResolveMethodRef(t *Table, th Locker, i int, loadFn func(*Klass) error) (*Method, error) {
	e := &cp.Entries[i]
	if e.Tag == CPResolvedMethodRef {
		return e.ResolvedMethod, nil
	}
	owner, err := t.Resolve(th, stringpool.GetString(e.OwnerNameIndex), loadFn)
	if err != nil {
		return nil, err
	}
	m := findMethodInHierarchy(owner, e.NameIndex, e.DescriptorIndex)
	if m == nil {
		m = findMethodInInterfaces(owner, e.NameIndex, e.DescriptorIndex)
	}
	if m == nil {
		return nil, cfe("method not found during resolution: " + stringpool.GetString(e.NameIndex))
	}
	e.Tag = CPResolvedMethodRef
	e.ResolvedMethod = m
	return m, nil
}

func findMethodInHierarchy(k *Klass, nameIdx, descIdx uint32) *Method {
	for ; k != nil; k = k.Super {
		for idx := range k.Methods {
			m := &k.Methods[idx]
			if m.NameIndex == nameIdx && m.DescriptorIndex == descIdx {
				return m
			}
		}
	}
	return nil
}

func findMethodInInterfaces(k *Klass, nameIdx, descIdx uint32) *Method {
	for c := k; c != nil; c = c.Super {
		for _, iface := range c.Interfaces {
			if m := findMethodInHierarchy(iface, nameIdx, descIdx); m != nil {
				return m
			}
			if m := findMethodInInterfaces(iface, nameIdx, descIdx); m != nil {
				return m
			}
		}
	}
	return nil
}
