/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package shutdown centralizes the VM's process-exit codes (spec §6,
// §7) so that every fatal path — bootstrap, class loading, arena
// exhaustion — exits with the same convention instead of each caller
// picking its own os.Exit code.
package shutdown

import "os"

// Exit codes, per spec §6 "CLI surface": 0 on normal termination, 1 on
// abnormal VM failure, otherwise the integer passed to Runtime.exit.
const (
	OK          = 0
	JVM_EXCEPTION = 1
)

// exitFunc is swapped out in tests so a fatal path can be observed
// without killing the test binary.
var exitFunc = os.Exit

// Exit terminates the process with the given code. Pseudo-exceptions
// raised during class loading/linking are fatal (spec §7) and funnel
// through here.
func Exit(code int) {
	exitFunc(code)
}

// SetExitFuncForTest overrides the exit hook; it returns a restore
// function. Used by tests that must exercise a fatal path.
func SetExitFuncForTest(f func(int)) (restore func()) {
	prev := exitFunc
	exitFunc = f
	return func() { exitFunc = prev }
}
