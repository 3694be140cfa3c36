/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package util holds small, stateless helpers shared across the core
// that don't belong to any one subsystem.
package util

import (
	"os"
	"strings"
)

// ConvertToPlatformPathSeparators converts a class name in internal
// form (slash-separated, e.g. "java/lang/String") to one using the
// host's path separator, so it can be joined onto a classpath
// directory and suffixed with ".class".
func ConvertToPlatformPathSeparators(name string) string {
	if os.PathSeparator == '/' {
		return name
	}
	return strings.ReplaceAll(name, "/", string(os.PathSeparator))
}

// ConvertInternalClassNameToUserFormat converts "java/lang/String" to
// "java.lang.String", the form the Java spec calls "binary name" when
// surfaced to the user (error messages, Class.getName()).
func ConvertInternalClassNameToUserFormat(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

// ConvertClassFilenameToInternalFormat strips a ".class" suffix and
// normalizes path separators to "/", the reverse of
// ConvertToPlatformPathSeparators, used when the loader recovers a
// class name from a resolved file path.
func ConvertClassFilenameToInternalFormat(filename string) string {
	name := strings.TrimSuffix(filename, ".class")
	name = strings.ReplaceAll(name, string(os.PathSeparator), "/")
	return strings.TrimPrefix(name, "/")
}

// PackageOf returns the package portion of an internal-form class
// name: the longest prefix before the last "/" (spec §4.2 "Access
// checks"). Top-level classes (no "/") are in the unnamed package,
// represented here as "".
func PackageOf(internalName string) string {
	idx := strings.LastIndex(internalName, "/")
	if idx < 0 {
		return ""
	}
	return internalName[:idx]
}

// IsArrayClassName reports whether name denotes an array class
// (starts with "[", spec §3 "Class").
func IsArrayClassName(name string) bool {
	return strings.HasPrefix(name, "[")
}
