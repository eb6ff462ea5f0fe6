// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package native is the call-out boundary for invokenative: the
// interpreter pops arguments and builds a Call, and the Dispatcher passes
// it to Hook.Invoke and blocks until it returns, matching spec §5's "native methods run to completion
// on the same thread" rule. This is grounded on golang-debug's RPC
// request/response pairing in program/proxyrpc, adapted from a wire call
// to an in-process one.
package native

import (
	"fmt"

	"github.com/LSUVM/nanovm/internal/vmerr"
	"github.com/LSUVM/nanovm/internal/vmstack"
)

// Call is one invokenative request: which class/method was addressed, and
// the popped argument values in call order.
type Call struct {
	Class, Method uint8
	Args          []vmstack.Value
}

// Hook resolves and executes a native call. Invoke returns the value to
// push (if hasReturn), or a *vmerr.Error (NativeUnknownClass or
// NativeUnknownMethod) if Call doesn't name anything this Hook serves.
type Hook interface {
	Invoke(Call) (ret vmstack.Value, hasReturn bool, err error)
}

// NativeClass is implemented by one native class's method table; Registry
// dispatches to whichever NativeClass matches Call.Class.
type NativeClass interface {
	ClassID() uint8
	Invoke(methodID uint8, args []vmstack.Value) (vmstack.Value, bool, error)
}

// Registry is a Hook composed from a fixed set of native classes, resolved
// by class id — this port's realization of the original's "distinguished
// class id range" dispatch.
type Registry struct {
	classes map[uint8]NativeClass
}

func NewRegistry(classes ...NativeClass) *Registry {
	r := &Registry{classes: make(map[uint8]NativeClass, len(classes))}
	for _, c := range classes {
		r.classes[c.ClassID()] = c
	}
	return r
}

func (r *Registry) Invoke(c Call) (vmstack.Value, bool, error) {
	nc, ok := r.classes[c.Class]
	if !ok {
		return vmstack.Value{}, false, vmerr.NativeUnknownClassErr(fmt.Sprintf("class %d", c.Class))
	}
	return nc.Invoke(c.Method, c.Args)
}
