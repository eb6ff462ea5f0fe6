// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vmstack

import (
	"testing"

	"github.com/LSUVM/nanovm/internal/heap"
	"github.com/LSUVM/nanovm/internal/vmref"
)

func newTestStack(t *testing.T, heapSize int) (*heap.Heap, *Stack) {
	t.Helper()
	h := heap.New(heapSize)
	s := New(h)
	h.SetRoots(s)
	return h, s
}

func TestPushPopInt(t *testing.T) {
	_, s := newTestStack(t, 256)
	if err := s.PushInt(42); err != nil {
		t.Fatalf("PushInt: %v", err)
	}
	if err := s.PushInt(-7); err != nil {
		t.Fatalf("PushInt: %v", err)
	}
	v, err := s.PopInt()
	if err != nil || v != -7 {
		t.Fatalf("PopInt = %d, %v, want -7, nil", v, err)
	}
	v, err = s.PopInt()
	if err != nil || v != 42 {
		t.Fatalf("PopInt = %d, %v, want 42, nil", v, err)
	}
	if _, err := s.PopInt(); err == nil {
		t.Error("expected StackUnderrun popping empty stack")
	}
}

func TestPushPopRef(t *testing.T) {
	_, s := newTestStack(t, 256)
	r := vmref.HeapRef(3)
	if err := s.PushRef(r); err != nil {
		t.Fatalf("PushRef: %v", err)
	}
	got, err := s.PopRef()
	if err != nil || got != r {
		t.Fatalf("PopRef = %v, %v, want %v, nil", got, err, r)
	}
}

func TestPopWrongTagIsCorrupted(t *testing.T) {
	_, s := newTestStack(t, 256)
	s.PushInt(1)
	if _, err := s.PopRef(); err == nil {
		t.Error("PopRef on an int slot should fail")
	}
}

func TestDupSwap(t *testing.T) {
	_, s := newTestStack(t, 256)
	s.PushInt(1)
	s.PushInt(2)
	if err := s.Swap(); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	a, _ := s.PopInt()
	b, _ := s.PopInt()
	if a != 1 || b != 2 {
		t.Errorf("after swap, popped %d,%d, want 1,2", a, b)
	}

	s.PushInt(9)
	if err := s.Dup(); err != nil {
		t.Fatalf("Dup: %v", err)
	}
	x, _ := s.PopInt()
	y, _ := s.PopInt()
	if x != 9 || y != 9 {
		t.Errorf("after dup, popped %d,%d, want 9,9", x, y)
	}
}

func TestHeapIDInUseScansLiveRefs(t *testing.T) {
	_, s := newTestStack(t, 256)
	s.PushInt(1)
	s.PushRef(vmref.HeapRef(5))
	if !s.HeapIDInUse(5) {
		t.Error("HeapIDInUse(5) = false, want true")
	}
	if s.HeapIDInUse(6) {
		t.Error("HeapIDInUse(6) = true, want false")
	}
}

func TestEnterLeaveLocalsAndReturn(t *testing.T) {
	_, s := newTestStack(t, 256)
	if err := s.Enter([]Value{Int(10), Int(20)}, 4, 0x1234, 7); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	v, err := s.Local(0)
	if err != nil || v.Int() != 10 {
		t.Fatalf("Local(0) = %v, %v, want 10", v, err)
	}
	v, err = s.Local(3)
	if err != nil || v.Int() != 0 {
		t.Fatalf("Local(3) = %v, %v, want 0 (zero-filled)", v, err)
	}
	if err := s.SetLocal(2, Int(99)); err != nil {
		t.Fatalf("SetLocal: %v", err)
	}
	v, _ = s.Local(2)
	if v.Int() != 99 {
		t.Errorf("Local(2) after SetLocal = %d, want 99", v.Int())
	}

	s.PushInt(55)
	pc, methodID, ret, err := s.Leave(true)
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if pc != 0x1234 || methodID != 7 {
		t.Errorf("Leave returned pc=%d methodID=%d, want 0x1234,7", pc, methodID)
	}
	if ret.Int() != 55 {
		t.Errorf("Leave return value = %d, want 55", ret.Int())
	}
	if s.FrameDepth() != 0 {
		t.Errorf("FrameDepth after Leave = %d, want 0", s.FrameDepth())
	}
}

func TestNestedFramesIsolateOperandStacks(t *testing.T) {
	_, s := newTestStack(t, 256)
	s.Enter(nil, 0, 0, 1)
	s.PushInt(111)
	s.Enter(nil, 0, 10, 2)
	// A pop here must not see the caller's 111.
	if _, err := s.PopInt(); err == nil {
		t.Error("expected StackUnderrun: callee must not see caller's operands")
	}
	s.PushInt(222)
	_, _, ret, err := s.Leave(true)
	if err != nil || ret.Int() != 222 {
		t.Fatalf("Leave callee: %v, %v", ret, err)
	}
	top, err := s.PopInt()
	if err != nil || top != 111 {
		t.Fatalf("caller's operand stack not restored: %d, %v", top, err)
	}
}

func TestLeaveWithNoFrameIsCorrupted(t *testing.T) {
	_, s := newTestStack(t, 256)
	if _, _, _, err := s.Leave(false); err == nil {
		t.Error("Leave with no active frame should fail")
	}
}

func TestStackGrowsIntoHeapViaSteal(t *testing.T) {
	h, s := newTestStack(t, 64)
	before := h.Base()
	for i := 0; i < 10; i++ {
		if err := s.PushInt(int32(i)); err != nil {
			t.Fatalf("PushInt(%d): %v", i, err)
		}
	}
	if h.Base() <= before {
		t.Errorf("Heap base did not grow after pushing past initial stolen room: base=%d, before=%d", h.Base(), before)
	}
}
