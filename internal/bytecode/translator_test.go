/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package bytecode

import (
	"sync"
	"testing"
)

func TestTranslateGetFieldSpecializesReferenceField(t *testing.T) {
	c := &Code{Bytes: []byte{byte(OpGetField), 0, 0, 0xB1}}
	c.TranslateGetField(0, FieldResolution{IsReference: true, Slot: 3})
	if Op(c.Bytes[0]) != OpGetFieldRef {
		t.Fatalf("opcode = %#x, want OpGetFieldRef", c.Bytes[0])
	}
	if slot := int(c.Bytes[1]) | int(c.Bytes[2])<<8; slot != 3 {
		t.Fatalf("slot operand = %d, want 3", slot)
	}
}

func TestTranslatePutFieldSpecializesScalarField(t *testing.T) {
	c := &Code{Bytes: []byte{byte(OpPutField), 0, 0, 0xB1}}
	c.TranslatePutField(0, FieldResolution{IsReference: false, Slot: 9})
	if Op(c.Bytes[0]) != OpPutFieldScalar {
		t.Fatalf("opcode = %#x, want OpPutFieldScalar", c.Bytes[0])
	}
	if slot := int(c.Bytes[1]) | int(c.Bytes[2])<<8; slot != 9 {
		t.Fatalf("slot operand = %d, want 9", slot)
	}
}

func TestTranslateInvokeDistinguishesSpecialFromVirtual(t *testing.T) {
	c := &Code{Bytes: []byte{byte(OpInvokeVirtual), 0, 0, 0xB1}}
	c.TranslateInvoke(0, false, MethodResolution{VTableSlot: 5, ArgStackSize: 2})
	if Op(c.Bytes[0]) != OpInvokeVirtualResolved {
		t.Fatalf("opcode = %#x, want OpInvokeVirtualResolved", c.Bytes[0])
	}

	c2 := &Code{Bytes: []byte{byte(OpInvokeSpecial), 0, 0, 0xB1}}
	c2.TranslateInvoke(0, true, MethodResolution{VTableSlot: 5, ArgStackSize: 2})
	if Op(c2.Bytes[0]) != OpInvokeSpecialResolved {
		t.Fatalf("opcode = %#x, want OpInvokeSpecialResolved", c2.Bytes[0])
	}
}

func TestTranslateNewFoldsClassIndex(t *testing.T) {
	c := &Code{Bytes: []byte{byte(OpNew), 0, 0, 0xB1}}
	c.TranslateNew(0, MethodResolution{ClassIndex: 42})
	if Op(c.Bytes[0]) != OpNewResolved {
		t.Fatalf("opcode = %#x, want OpNewResolved", c.Bytes[0])
	}
	if idx := int32(c.Bytes[1]) | int32(c.Bytes[2])<<8; idx != 42 {
		t.Fatalf("class index operand = %d, want 42", idx)
	}
}

func TestIsTranslatedReflectsCurrentOpcode(t *testing.T) {
	c := &Code{Bytes: []byte{byte(OpGetField), 0, 0}}
	if c.IsTranslated(0) {
		t.Fatal("generic opcode should not report translated")
	}
	c.TranslateGetField(0, FieldResolution{Slot: 1})
	if !c.IsTranslated(0) {
		t.Fatal("specialized opcode should report translated")
	}
}

// TestTranslateGetFieldRecheckSkipsAlreadySpecialized exercises the
// re-entrancy contract directly: a second translator racing in after
// another already specialized the opcode must not stomp the already
// -written operands with a different resolution.
func TestTranslateGetFieldRecheckSkipsAlreadySpecialized(t *testing.T) {
	c := &Code{Bytes: []byte{byte(OpGetField), 0, 0}}
	c.TranslateGetField(0, FieldResolution{IsReference: true, Slot: 7})
	c.TranslateGetField(0, FieldResolution{IsReference: false, Slot: 99}) // stale resolution, should be a no-op
	if Op(c.Bytes[0]) != OpGetFieldRef {
		t.Fatalf("opcode changed on second translate, want it to stay OpGetFieldRef")
	}
	if slot := int(c.Bytes[1]) | int(c.Bytes[2])<<8; slot != 7 {
		t.Fatalf("slot operand = %d, want the first translation's 7", slot)
	}
}

func TestTranslateGetFieldConcurrentCallsAgreeOnOneResolution(t *testing.T) {
	c := &Code{Bytes: []byte{byte(OpGetField), 0, 0}}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			c.TranslateGetField(0, FieldResolution{IsReference: true, Slot: slot})
		}(i)
	}
	wg.Wait()
	if !c.IsTranslated(0) {
		t.Fatal("opcode should be specialized after concurrent translations")
	}
}
