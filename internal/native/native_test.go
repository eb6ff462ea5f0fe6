// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package native

import (
	"bytes"
	"strings"
	"testing"

	"github.com/LSUVM/nanovm/internal/heap"
	"github.com/LSUVM/nanovm/internal/vmerr"
	"github.com/LSUVM/nanovm/internal/vmref"
	"github.com/LSUVM/nanovm/internal/vmstack"
)

type fakeRoots map[uint16]bool

func (r fakeRoots) HeapIDInUse(id uint16) bool { return r[id] }

func TestRegistryUnknownClass(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Invoke(Call{Class: 9, Method: 0})
	e, ok := err.(*vmerr.Error)
	if !ok || e.Code != vmerr.NativeUnknownClass {
		t.Errorf("Invoke unknown class: got %v, want NativeUnknownClass", err)
	}
}

func TestStdioPrintIntAndChar(t *testing.T) {
	var out bytes.Buffer
	s := NewStdioClass(nil, nil, &out, strings.NewReader(""))
	if _, _, err := s.Invoke(stdioPrintInt, []vmstack.Value{vmstack.Int(42)}); err != nil {
		t.Fatalf("print_int: %v", err)
	}
	if _, _, err := s.Invoke(stdioPrintChar, []vmstack.Value{vmstack.Int('!')}); err != nil {
		t.Fatalf("print_char: %v", err)
	}
	if got := out.String(); got != "42!" {
		t.Errorf("output = %q, want %q", got, "42!")
	}
}

func TestStdioPrintStringFromHeap(t *testing.T) {
	h := heap.New(128)
	h.SetRoots(fakeRoots{})
	id, err := h.Alloc(false, 5)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	addr, _ := h.Addr(id)
	copy(addr, []byte("hello"))

	var out bytes.Buffer
	s := NewStdioClass(nil, h, &out, strings.NewReader(""))
	_, _, err = s.Invoke(stdioPrintString, []vmstack.Value{vmstack.RefVal(vmref.HeapRef(uint16(id)))})
	if err != nil {
		t.Fatalf("print_string: %v", err)
	}
	if got := out.String(); got != "hello" {
		t.Errorf("output = %q, want %q", got, "hello")
	}
}

func TestStdioReadInt(t *testing.T) {
	s := NewStdioClass(nil, nil, &bytes.Buffer{}, strings.NewReader("123\n"))
	v, hasReturn, err := s.Invoke(stdioReadInt, nil)
	if err != nil || !hasReturn {
		t.Fatalf("read_int: %v, hasReturn=%v", err, hasReturn)
	}
	if v.Int() != 123 {
		t.Errorf("read_int = %d, want 123", v.Int())
	}
}

func TestStdioUnknownMethod(t *testing.T) {
	s := NewStdioClass(nil, nil, &bytes.Buffer{}, strings.NewReader(""))
	_, _, err := s.Invoke(99, nil)
	e, ok := err.(*vmerr.Error)
	if !ok || e.Code != vmerr.NativeUnknownMethod {
		t.Errorf("unknown method: got %v, want NativeUnknownMethod", err)
	}
}
