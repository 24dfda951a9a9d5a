// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

// Command grci compiles a GRCI HDL source file, elaborates a named
// module, and steps it: for N cycles in one shot, or one half-cycle
// per keypress in an interactive terminal. Modeled on emul/main.go's
// flag-driven front end.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/pdxjjb/grci"
	"github.com/pdxjjb/grci/sim"
)

var (
	moduleName  = flag.String("module", "", "Module to elaborate and run (required)")
	checkOnly   = flag.Bool("check", false, "Compile only; report errors and exit, do not elaborate")
	cycles      = flag.Uint64("cycles", 0, "Run this many half-cycle steps, then exit")
	dumpName    = flag.String("dump", "", "Dump this named submodule's state after running")
	interactive = flag.Bool("step", false, "Advance one half-cycle per keypress instead of -cycles")
	traceFile   = flag.String("trace", "", "Write a per-step trace to this file")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

const version = "1.0.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: grci [flags] source.hdl\n\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("GRCI v%s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}

	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading source file: %v\n", err)
		os.Exit(1)
	}

	ctx := grci.New()
	defer ctx.Close()
	if err := ctx.Compile(src); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *checkOnly {
		fmt.Fprintf(os.Stderr, "OK\n")
		return
	}

	if *moduleName == "" {
		fmt.Fprintf(os.Stderr, "Error: -module is required unless -check is given\n")
		os.Exit(1)
	}
	mod, err := ctx.InitModule(*moduleName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer mod.Destroy()

	if *traceFile != "" {
		f, err := os.Create(*traceFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating trace file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		mod.SetTracer(sim.NewTracer(f))
	}

	if *interactive {
		runInteractive(mod)
	} else {
		runCycles(mod, *cycles)
	}

	if *dumpName != "" {
		dumpSubmodule(mod, *dumpName)
	}
}

func runCycles(mod *grci.Module, n uint64) {
	for i := uint64(0); i < n; i++ {
		mod.Step()
	}
	fmt.Fprintf(os.Stderr, "ran %d half-cycle step(s); outputs=%s\n", n, bitString(mod.Outputs()))
}

// runInteractive puts the terminal in raw mode, when stdin is one, so
// a single keypress advances one half-cycle without waiting on Enter;
// grounded on emul/main.go's setupTerminal/restoreTerminal.
func runInteractive(mod *grci.Module) {
	var saved *term.State
	isTTY := term.IsTerminal(int(os.Stdin.Fd()))
	if isTTY {
		s, err := term.GetState(int(os.Stdin.Fd()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting terminal state: %v\n", err)
			os.Exit(1)
		}
		saved = s
		if _, err := term.MakeRaw(int(os.Stdin.Fd())); err != nil {
			fmt.Fprintf(os.Stderr, "Error setting raw mode: %v\n", err)
			os.Exit(1)
		}
	}
	restore := func() {
		if saved != nil {
			term.Restore(int(os.Stdin.Fd()), saved)
		}
	}
	defer restore()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		restore()
		os.Exit(130)
	}()

	fmt.Fprintf(os.Stderr, "Interactive stepping: press any key to advance one half-cycle, 'q' to quit.\n")
	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return
		}
		if buf[0] == 'q' || buf[0] == 'Q' {
			return
		}
		clock := mod.Step()
		fmt.Fprintf(os.Stderr, "clock=%d outputs=%s\r\n", clock, bitString(mod.Outputs()))
	}
}

func dumpSubmodule(mod *grci.Module, name string) {
	sm, err := mod.Submodule(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%s (%d bit(s)):", name, sm.Len())
	for i := 0; i < sm.Len(); i++ {
		if i%8 == 0 {
			fmt.Fprintf(os.Stderr, "\n  ")
		}
		v, _ := sm.Get(i)
		fmt.Fprintf(os.Stderr, "%d", v)
	}
	fmt.Fprintf(os.Stderr, "\n")
}

func bitString(bits []int) string {
	b := make([]byte, len(bits))
	for i, v := range bits {
		if v != 0 {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	if len(b) == 0 {
		return "-"
	}
	return string(b)
}
