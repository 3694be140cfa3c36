/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package types holds the small, dependency-free vocabulary shared by
// every other package: descriptor-character constants, the JavaByte
// wire type, and the sentinel indices used by the string pool and the
// class-initialization state machine.
package types

// JavaByte is a signed 8-bit Java byte, kept distinct from Go's byte
// (which is unsigned) so that byte-array fields round-trip the sign.
type JavaByte int8

// Field/descriptor first-character constants (JVMS §4.3.2).
const (
	Boolean   = "Z"
	Byte      = "B"
	Char      = "C"
	Short     = "S"
	Int       = "I"
	Long      = "J"
	Float     = "F"
	Double    = "D"
	Ref       = "L"
	Array     = "["
	RefArray  = "[L"
	ByteArray = "[B"
	Void      = "V"
)

// String-pool index sentinels.
const (
	InvalidStringIndex      uint32 = 0xFFFFFFFF
	StringPoolStringIndex   uint32 = 0 // index of "java/lang/String" itself
	ObjectPoolStringIndex   uint32 = 1 // index of "java/lang/Object" itself
	EmptyStringIndex        uint32 = 2
)

// <clinit> run-state, tracked per class per spec §4.2 Initialization.
const (
	NoClinit byte = iota
	ClInitNotRun
	ClInitInProgress
	ClInitRun
)

// MaxBinSize is the largest object size (in words) the heap serves
// from a size-class bin before falling back to the large-chunk
// first-fit list (spec §4.1).
const MaxBinSize = 17

// WordSize is the machine word size this VM is built for. Jelatine's
// references and header words are one word wide (spec §3).
const WordSize = 8

// MaxNonPrivateInstanceMethods bounds the packed method index's
// dispatch-table field (spec §4.4, 12 bits).
const MaxNonPrivateInstanceMethods = 4096

// MaxArgStackSize bounds the packed method index's argument-size field
// (spec §4.4, 4 bits).
const MaxArgStackSize = 16

// MaxBitOffset is the largest legal bit_offset for a bit-packed field
// (spec §8 boundary behaviours).
const MaxBitOffset = 32767
