// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import (
	"github.com/LSUVM/nanovm/internal/classfile"
	"github.com/LSUVM/nanovm/internal/native"
	"github.com/LSUVM/nanovm/internal/vmstack"
)

type invokeKind int

const (
	invokeStaticKind invokeKind = iota
	invokeVirtualKind
	invokeNativeKind
)

// execInvoke implements invokestatic/invokevirtual/invokenative, all of
// which share the <u8 class, u16 method id> operand encoding.
func (in *Interp) execInvoke(kind invokeKind) error {
	class := in.fetch8()
	id := in.fetch16()

	switch kind {
	case invokeNativeKind:
		return in.invokeNative(class, id)
	case invokeVirtualKind:
		return in.invokeVirtual(id)
	default:
		return in.invokeStatic(class, id)
	}
}

func (in *Interp) invokeStatic(class uint8, id uint16) error {
	m, err := in.disp.ResolveStatic(class, id)
	if err != nil {
		return err
	}
	hdr, err := in.cf.MethodHeader(m)
	if err != nil {
		return err
	}
	args, err := in.popArgs(hdr.Args)
	if err != nil {
		return err
	}
	return in.enterMethod(m, hdr, args)
}

// invokeVirtual resolves against the runtime class of `this`. Unlike
// invokestatic/invokenative, whose declared arg count is known the
// instant (class, id) resolves, a virtual call's target — and therefore
// its arg count — isn't known until `this`'s runtime class is read. This
// port's calling convention therefore pushes the explicit arguments
// first and `this` last, so it's always the top of stack at invokevirtual
// and can be read before the (as yet unknown) number of argument slots
// beneath it needs popping. `this` always lands in locals[0], so a virtual
// method's declared max_locals must count it even when Args is 0 — the
// same convention a real JVM-style compiler follows.

func (in *Interp) invokeVirtual(id uint16) error {
	thisRef, err := in.st.PopRef()
	if err != nil {
		return err
	}
	objID, err := in.disp.RequireObject(thisRef)
	if err != nil {
		return err
	}
	class, err := in.disp.ClassOf(objID)
	if err != nil {
		return err
	}
	m, err := in.disp.ResolveVirtual(class, id)
	if err != nil {
		return err
	}
	hdr, err := in.cf.MethodHeader(m)
	if err != nil {
		return err
	}
	args := make([]vmstack.Value, 0, hdr.Args+1)
	args = append(args, vmstack.RefVal(thisRef))
	rest, err := in.popArgs(hdr.Args)
	if err != nil {
		return err
	}
	args = append(args, rest...)
	return in.enterMethod(m, hdr, args)
}

// invokeNative still resolves through the method table (native methods
// get a row like any other, marked informationally by flags) purely to
// learn the declared argument count before popping; the opcode itself,
// not the flags bit, is what routes the call to native.Hook rather than
// entering a frame.
func (in *Interp) invokeNative(class uint8, id uint16) error {
	m, err := in.disp.ResolveStatic(class, id)
	if err != nil {
		return err
	}
	hdr, err := in.cf.MethodHeader(m)
	if err != nil {
		return err
	}
	args, err := in.popArgs(hdr.Args)
	if err != nil {
		return err
	}
	ret, hasReturn, err := in.disp.InvokeNative(native.Call{Class: class, Method: hdr.Method, Args: args})
	if err != nil {
		return err
	}
	if hasReturn {
		return in.st.Push(ret)
	}
	return nil
}

// popArgs pops n values off the operand stack and returns them in call
// (left-to-right) order; they were pushed in that order, so the last one
// pushed — the first popped — goes at the end of the slice.
func (in *Interp) popArgs(n uint8) ([]vmstack.Value, error) {
	vals := make([]vmstack.Value, n)
	for i := int(n) - 1; i >= 0; i-- {
		v, err := in.st.Pop()
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (in *Interp) enterMethod(m classfile.MethodID, hdr classfile.MethodHeader, args []vmstack.Value) error {
	if err := in.st.Enter(args, hdr.MaxLocals, in.pc, uint16(in.curMethod)); err != nil {
		return err
	}
	in.curMethod = m
	in.pc = in.cf.CodeLocation(hdr).Offset
	return nil
}

func (in *Interp) execReturn(hasReturn bool) error {
	returnPC, callerMethod, ret, err := in.st.Leave(hasReturn)
	if err != nil {
		return err
	}
	in.pc = returnPC
	in.curMethod = classfile.MethodID(callerMethod)
	if hasReturn && in.st.FrameDepth() > 0 {
		return in.st.Push(ret)
	}
	if hasReturn {
		// Returning from the outermost frame: nothing left to push onto,
		// the value is simply discarded (main doesn't return one anyway).
		_ = ret
	}
	return nil
}
