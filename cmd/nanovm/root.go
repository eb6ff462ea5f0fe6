// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/LSUVM/nanovm/internal/config"
	"github.com/LSUVM/nanovm/internal/vmerr"
)

// vmFlags holds the cobra-parsed form of internal/config.Flags, the way
// cmd/viewcore/main.go assembles a gocore.Flags bitmask from parsed
// command-line flags before calling into gocore.Core.
type vmFlags struct {
	heapSize              int
	codeSize              int
	disableArrays         bool
	disableSwitch         bool
	disableInheritance    bool
	disableStdio          bool
	disableStackReturnChk bool
	disableAllocZeroing   bool
}

func (v *vmFlags) register(flags pflagSet) {
	flags.IntVar(&v.heapSize, "heap-size", config.Default().HeapSize, "heap size in bytes")
	flags.IntVar(&v.codeSize, "code-size", config.Default().CodeSize, "maximum image size in bytes")
	flags.BoolVar(&v.disableArrays, "disable-arrays", false, "disable the array opcode family")
	flags.BoolVar(&v.disableSwitch, "disable-switch", false, "disable tableswitch")
	flags.BoolVar(&v.disableInheritance, "disable-inheritance", false, "disable virtual dispatch's super-chain walk")
	flags.BoolVar(&v.disableStdio, "disable-stdio", false, "disable the stdio native class")
	flags.BoolVar(&v.disableStackReturnChk, "disable-stack-return-check", false, "has no effect: method return does not check the operand stack")
	flags.BoolVar(&v.disableAllocZeroing, "disable-alloc-zeroing", false, "don't zero-fill freshly allocated heap chunks")
}

func (v *vmFlags) toConfig() config.Flags {
	return config.Flags{
		EnableArrays:           !v.disableArrays,
		EnableSwitch:           !v.disableSwitch,
		EnableInheritance:      !v.disableInheritance,
		EnableStdioNative:      !v.disableStdio,
		EnableStackReturnCheck: !v.disableStackReturnChk,
		EnableAllocZeroing:     !v.disableAllocZeroing,
		HeapSize:               v.heapSize,
		CodeSize:               v.codeSize,
	}
}

// pflagSet is the subset of *pflag.FlagSet (via cobra.Command.Flags())
// this file uses, named so vmFlags.register doesn't need to import pflag
// directly.
type pflagSet interface {
	IntVar(p *int, name string, value int, usage string)
	BoolVar(p *bool, name string, value bool, usage string)
}

var logger *slog.Logger

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "nanovm",
		Short:         "Run, upload, disassemble and trace NanoVM class-file images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newUploadCmd())
	root.AddCommand(newDisasmCmd())
	root.AddCommand(newTraceCmd())
	return root
}

// Execute runs the command tree and returns the process exit code,
// matching error.c's single fatal-error-to-exit-code mapping: any
// *vmerr.Error is mapped through its Code, everything else (bad flags,
// I/O failures) exits 2.
func Execute() int {
	root := newRootCmd()
	err := root.Execute()
	if err == nil {
		return 0
	}
	if ve, ok := vmerr.As(err); ok {
		fmt.Fprintf(os.Stderr, "nanovm: %v\n", ve)
		return int(ve.Code) + 1
	}
	fmt.Fprintf(os.Stderr, "nanovm: %v\n", err)
	return 2
}
