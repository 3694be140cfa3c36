/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package trace is the globals-gated tracing facade the class loader
// and linker report through (see classloader.go's trace.Trace/
// trace.Error calls). Unlike internal/log, which is a flat leveled
// sink, trace fans a single stream of lines out to however many
// listeners are currently registered — stdout in normal operation,
// plus an in-memory buffer in tests that want to assert on what was
// traced without capturing the whole process's stderr.
package trace

import (
	"fmt"
	"io"
	"os"

	"github.com/stephens2424/writerset"
)

var sinks = writerset.New()

func init() {
	sinks.Add(os.Stdout)
}

// AddSink registers w as an additional trace destination. Returns a
// function that removes it again; callers (chiefly tests) should defer
// that function.
func AddSink(w io.Writer) func() {
	sinks.Add(w)
	return func() { sinks.Remove(w) }
}

// Trace emits an informational line. Call sites gate this themselves
// on the relevant globals toggle (globals.TraceClass, TraceCloadi,
// etc.) per spec §4.2 — trace.Trace itself does not filter.
func Trace(msg string) {
	fmt.Fprintln(sinks, "[trace] "+msg)
}

// Error emits an error line. Distinct from Trace only in prefix: both
// land on the same sink set: trace.Error is used for class-format and
// resolution failures that are about to become pseudo-exceptions.
func Error(msg string) {
	fmt.Fprintln(sinks, "[error] "+msg)
}
