/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package object

import (
	"strings"
	"unicode"

	"jelatine/internal/heap"
	"jelatine/internal/types"
)

// GoStringFromJavaByteArray and its inverse let native methods
// (internal/gfunction) cross between Go's string type and the Java
// byte-array representation used by compact strings (spec §4.6)
// without going through the UTF-16 path when the content is already
// known to be Latin-1/ASCII-safe.
func GoStringFromJavaByteArray(jbarr []types.JavaByte) string {
	var sb strings.Builder
	sb.Grow(len(jbarr))
	for _, b := range jbarr {
		sb.WriteByte(byte(b))
	}
	return sb.String()
}

func JavaByteArrayFromGoString(s string) []types.JavaByte {
	jbarr := make([]types.JavaByte, len(s))
	for i := 0; i < len(s); i++ {
		jbarr[i] = types.JavaByte(s[i])
	}
	return jbarr
}

func JavaByteArrayFromGoByteArray(b []byte) []types.JavaByte {
	jbarr := make([]types.JavaByte, len(b))
	for i, v := range b {
		jbarr[i] = types.JavaByte(v)
	}
	return jbarr
}

func GoByteArrayFromJavaByteArray(jbarr []types.JavaByte) []byte {
	b := make([]byte, len(jbarr))
	for i, v := range jbarr {
		b[i] = byte(v)
	}
	return b
}

// JavaByteArrayFromStringObject reads a compact java.lang.String
// instance's backing bytes directly out of its scalar area (spec
// §4.6 "compact string storage"), for native methods (internal/
// gfunction) that need the raw content without going through the
// UTF-16 conversion path.
func JavaByteArrayFromStringObject(h *heap.Heap, ref heap.Ref) []types.JavaByte {
	return JavaByteArrayFromGoByteArray(h.Scalars(ref))
}

// JavaByteArrayEquals compares two Java byte arrays by content. nil
// compares equal only to nil.
func JavaByteArrayEquals(a, b []types.JavaByte) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// JavaByteArrayEqualsIgnoreCase is JavaByteArrayEquals with a
// case-insensitive comparison per byte, for String.equalsIgnoreCase.
func JavaByteArrayEqualsIgnoreCase(a, b []types.JavaByte) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if unicode.ToLower(rune(a[i])) != unicode.ToLower(rune(b[i])) {
			return false
		}
	}
	return true
}
