// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package heap implements NanoVM's bump-allocated, compacting-GC heap.
//
// The heap is a single fixed-size byte buffer. It is carved into chunks
// from a moving base offset up to the end of the buffer; the low end
// (addresses below base) is "stolen" territory reserved for the operand
// stack (see internal/vmstack), which the heap never writes to. Allocation
// is a strict bump from the one free chunk that always sits at base;
// reclamation is a compacting sweep, not a free list, matching heap.c.
package heap

import (
	"encoding/binary"
	"fmt"

	"github.com/LSUVM/nanovm/internal/vmerr"
	"github.com/LSUVM/nanovm/internal/vmref"
)

// ID identifies a live chunk. 0 is reserved for the free chunk; idTombstone
// marks a chunk removed by Realloc and awaiting the next GC sweep.
type ID uint16

const idFree ID = 0
const idTombstone ID = 0xFFFF

// headerSize is sizeof(heap_t) generalized to a 16-bit id: 2 bytes of id
// plus 2 bytes packing the fieldref bit and the 15-bit length, exactly as
// described in spec §3 ("id", "fieldref: 1 bit", "len: 15 bits").
const headerSize = 4

const fieldrefBit = uint16(1) << 15
const lenMask = uint16(0x7FFF)

// LiveRoots answers whether a chunk id is currently referenced by the
// operand stack. The Heap depends only on this interface, not on
// internal/vmstack directly, so the Stack can in turn depend on the Heap
// (it steals/unsteals heap bytes) without an import cycle.
type LiveRoots interface {
	HeapIDInUse(id uint16) bool
}

// Heap is a fixed-size, typed chunk allocator with a compacting GC. It is
// not safe for concurrent use; see spec §5.
type Heap struct {
	buf     []byte
	base    uint16
	zeroNew bool
	roots   LiveRoots
	pinned  map[ID]bool
}

// Option configures a Heap at construction.
type Option func(*Heap)

// WithAllocZeroing enables the NVM_INITIALIZE_ALLOCATED policy: newly
// allocated payloads are zero-filled rather than left with whatever
// garbage was in the buffer.
func WithAllocZeroing(on bool) Option {
	return func(h *Heap) { h.zeroNew = on }
}

// New creates a heap of the given size with a single free chunk spanning
// it, matching heap_init().
func New(size int, opts ...Option) *Heap {
	h := &Heap{buf: make([]byte, size)}
	for _, opt := range opts {
		opt(h)
	}
	h.putHeader(0, idFree, false, uint16(size)-headerSize)
	return h
}

// SetRoots wires the stack (or any other root source) into the GC's
// liveness test. Must be called before the first GC.
func (h *Heap) SetRoots(r LiveRoots) { h.roots = r }

// PinRoot marks id as permanently live, regardless of whether the stack or
// any fieldref chunk currently references it. The statics chunk needs this:
// getstatic/putstatic address it directly by id and never push a ref to it
// on the stack, so without a pin it has no path through live() and a GC
// under allocation pressure would sweep it out from under the program,
// matching spec §3/§4.5's requirement that statics live for the whole run.
func (h *Heap) PinRoot(id ID) {
	if h.pinned == nil {
		h.pinned = make(map[ID]bool)
	}
	h.pinned[id] = true
}

func (h *Heap) header(off uint16) (id ID, fieldref bool, length uint16) {
	idv := binary.LittleEndian.Uint16(h.buf[off:])
	packed := binary.LittleEndian.Uint16(h.buf[off+2:])
	return ID(idv), packed&fieldrefBit != 0, packed & lenMask
}

func (h *Heap) putHeader(off uint16, id ID, fieldref bool, length uint16) {
	binary.LittleEndian.PutUint16(h.buf[off:], uint16(id))
	packed := length & lenMask
	if fieldref {
		packed |= fieldrefBit
	}
	binary.LittleEndian.PutUint16(h.buf[off+2:], packed)
}

// Alloc carves a new chunk of size bytes out of the free chunk at base,
// running GC once and retrying if there isn't room. fieldref marks the
// payload as an array of vmref.Ref the GC must scan.
func (h *Heap) Alloc(fieldref bool, size uint16) (ID, error) {
	id := h.newID()
	if id == idFree || id == idTombstone {
		return 0, vmerr.OutOfMemoryErr("no free chunk id")
	}
	if h.allocInternal(id, fieldref, size) {
		return id, nil
	}
	h.GC()
	if h.allocInternal(id, fieldref, size) {
		return id, nil
	}
	return 0, vmerr.OutOfMemoryErr(fmt.Sprintf("requested %d bytes", size))
}

func (h *Heap) allocInternal(id ID, fieldref bool, size uint16) bool {
	req := uint32(size) + headerSize
	_, _, freeLen := h.header(h.base)
	if uint32(freeLen) < req {
		return false
	}
	freeLen -= uint16(req)
	h.putHeader(h.base, idFree, false, freeLen)
	off := h.base + headerSize + freeLen
	h.putHeader(off, id, fieldref, size)
	if h.zeroNew {
		start := off + headerSize
		clear(h.buf[start : start+size])
	}
	return true
}

// newID scans ids 1, 2, ... and returns the first one not currently live,
// matching heap_new_id()'s linear search.
func (h *Heap) newID() ID {
	for id := ID(1); id != idTombstone; id++ {
		if _, ok := h.find(id); !ok {
			return id
		}
	}
	return idTombstone
}

// find returns the header offset of the chunk with the given id.
func (h *Heap) find(id ID) (uint16, bool) {
	current := h.base
	for int(current) < len(h.buf) {
		cid, _, length := h.header(current)
		if cid == id {
			return current, true
		}
		current += headerSize + length
	}
	return 0, false
}

// Realloc moves id's payload to a freshly allocated chunk of the new size,
// preserving id. The old chunk is tombstoned for the next GC to remove.
// realloc never grows a chunk in place; the bump layout forbids it.
func (h *Heap) Realloc(id ID, size uint16) error {
	off, ok := h.find(id)
	if !ok {
		return vmerr.ChunkDoesNotExistErr(fmt.Sprintf("id=%d", id))
	}
	_, oldFieldref, oldLen := h.header(off)
	// GC first when the free chunk is too small for the request, to
	// maximise the odds allocInternal succeeds without a second pass.
	if _, _, freeLen := h.header(h.base); uint32(freeLen) < uint32(size)+headerSize {
		h.GC()
		off, ok = h.find(id)
		if !ok {
			return vmerr.ChunkDoesNotExistErr(fmt.Sprintf("id=%d", id))
		}
	}
	if !h.allocInternal(id, oldFieldref, size) {
		return vmerr.OutOfMemoryErr(fmt.Sprintf("realloc id=%d to %d bytes", id, size))
	}
	newOff, ok := h.findOtherThan(id, off)
	if !ok {
		return vmerr.HeapCorruptedErr("realloc: new chunk vanished")
	}
	copyLen := oldLen
	if size < copyLen {
		copyLen = size
	}
	copy(h.buf[newOff+headerSize:], h.buf[off+headerSize:off+headerSize+copyLen])
	h.putHeader(off, idTombstone, oldFieldref, oldLen)
	return nil
}

// findOtherThan finds the (second) chunk carrying id, used by Realloc right
// after allocInternal creates a fresh chunk under the same id as the
// about-to-be-tombstoned original.
func (h *Heap) findOtherThan(id ID, exclude uint16) (uint16, bool) {
	current := h.base
	for int(current) < len(h.buf) {
		cid, _, length := h.header(current)
		if cid == id && current != exclude {
			return current, true
		}
		current += headerSize + length
	}
	return 0, false
}

// Len returns the payload length of a live chunk.
func (h *Heap) Len(id ID) (uint16, error) {
	off, ok := h.find(id)
	if !ok {
		return 0, vmerr.ChunkDoesNotExistErr(fmt.Sprintf("id=%d", id))
	}
	_, _, length := h.header(off)
	return length, nil
}

// Addr returns the payload of a live chunk as a slice into the heap's
// backing buffer. The slice is only valid until the next call that can
// move memory (Alloc, Realloc, Steal, Unsteal, GC) — callers must always
// re-resolve through Addr rather than cache the returned slice.
func (h *Heap) Addr(id ID) ([]byte, error) {
	off, ok := h.find(id)
	if !ok {
		return nil, vmerr.ChunkDoesNotExistErr(fmt.Sprintf("id=%d", id))
	}
	_, _, length := h.header(off)
	start := off + headerSize
	return h.buf[start : start+length], nil
}

// IsFieldref reports whether the chunk's payload is scanned as an array of
// vmref.Ref during GC.
func (h *Heap) IsFieldref(id ID) (bool, error) {
	off, ok := h.find(id)
	if !ok {
		return false, vmerr.ChunkDoesNotExistErr(fmt.Sprintf("id=%d", id))
	}
	_, fieldref, _ := h.header(off)
	return fieldref, nil
}

// Steal shrinks the free chunk by n bytes and raises base by n, running GC
// first if there isn't enough free space. Used by the Stack to grow into
// the heap's low end.
func (h *Heap) Steal(n uint16) error {
	_, _, freeLen := h.header(h.base)
	if freeLen < n {
		h.GC()
		_, _, freeLen = h.header(h.base)
	}
	if freeLen < n {
		return vmerr.OutOfStackMemoryErr(fmt.Sprintf("requested %d bytes", n))
	}
	h.base += n
	h.putHeader(h.base, idFree, false, freeLen-n)
	return nil
}

// Unsteal gives n bytes back from the stolen region to the free chunk.
func (h *Heap) Unsteal(n uint16) error {
	if h.base < n {
		return vmerr.StackUnderrunErr(fmt.Sprintf("underrun by %d bytes", n-h.base))
	}
	_, _, freeLen := h.header(h.base)
	h.base -= n
	h.putHeader(h.base, idFree, false, freeLen+n)
	return nil
}

// Base returns the current stolen/heap boundary, for the Stack to compute
// its available room.
func (h *Heap) Base() uint16 { return h.base }

// StolenBytes returns the low region of the shared buffer the Stack has
// claimed via Steal, for it to read and write tagged slots directly. The
// slice is only valid until the next Steal/Unsteal call, since both can
// move data or simply change what region the returned slice should cover.
func (h *Heap) StolenBytes() []byte { return h.buf[:h.base] }

// Size returns the total size of the backing buffer (H in the spec).
func (h *Heap) Size() int { return len(h.buf) }

// GC performs a compacting mark-and-sweep pass: a chunk survives if the
// stack references its id, or if any fieldref chunk contains a Ref to it.
// Dead chunks are removed by sliding everything below them up in address,
// which is why traversal always advances by len+header regardless of
// whether a chunk was just removed (see object.go's equivalent "current
// stays put, what used to be above becomes current" invariant in
// gocore's ForEachObject/markObjects sweep).
func (h *Heap) GC() {
	current := h.base
	for int(current) < len(h.buf) {
		id, _, length := h.header(current)
		total := headerSize + length
		// A tombstone is always dead; a live chunk is dead when neither
		// the stack nor any fieldref chunk still references its id.
		if id == idTombstone || (id != idFree && !h.live(id)) {
			h.memmoveUp(current, total)
			_, _, freeLen := h.header(h.base)
			h.putHeader(h.base, idFree, false, freeLen+total)
		}
		current += total
	}
}

func (h *Heap) live(id ID) bool {
	if h.pinned[id] {
		return true
	}
	if h.roots != nil && h.roots.HeapIDInUse(uint16(id)) {
		return true
	}
	return h.fieldref(id)
}

// fieldref reports whether any fieldref chunk in the heap contains a Ref
// pointing at id, matching heap_fieldref().
func (h *Heap) fieldref(id ID) bool {
	want := vmref.HeapRef(uint16(id))
	current := h.base
	for int(current) < len(h.buf) {
		cid, fieldref, length := h.header(current)
		if fieldref && cid != idFree && cid != idTombstone {
			start := current + headerSize
			for i := uint16(0); i+2 <= length; i += 2 {
				r := vmref.Ref(binary.LittleEndian.Uint16(h.buf[start+i:]))
				if r == want {
					return true
				}
			}
		}
		current += headerSize + length
	}
	return false
}

// memmoveUp slides the total bytes before off up by total bytes, an
// overlap-safe high-to-low copy matching heap_memcpy_up. After this call
// the bytes in [base, base+total) still hold their previous contents,
// including the free chunk header at base, which the caller then grows to
// cover the vacated range.
func (h *Heap) memmoveUp(off uint16, total uint16) {
	copy(h.buf[h.base+total:off+total], h.buf[h.base:off])
}

// Check walks the heap validating the invariants in spec §8 property 1. It
// is diagnostic only, never called from the allocation hot path, mirroring
// heap.c's DEBUG_JVM-gated heap_check().
func (h *Heap) Check() error {
	current := h.base
	seen := map[ID]bool{}
	sawFree := false
	for int(current) < len(h.buf) {
		id, _, length := h.header(current)
		if uint32(length) > uint32(len(h.buf)) {
			return vmerr.IllegalChunkSizeErr(fmt.Sprintf("chunk at %d has len %d", current, length))
		}
		if id == idFree {
			if sawFree {
				return vmerr.HeapCorruptedErr("more than one free chunk")
			}
			sawFree = true
		} else if id != idTombstone {
			if seen[id] {
				return vmerr.HeapCorruptedErr(fmt.Sprintf("duplicate chunk id %d", id))
			}
			seen[id] = true
		}
		if uint32(length)+headerSize > uint32(len(h.buf))-uint32(current) {
			return vmerr.HeapCorruptedErr("total size error")
		}
		current += headerSize + length
	}
	if int(current) != len(h.buf) {
		return vmerr.HeapCorruptedErr("heap sum mismatch")
	}
	if !sawFree {
		return vmerr.HeapCorruptedErr("no free chunk found")
	}
	return nil
}

// String renders the heap's chunk layout for diagnostics, matching
// heap_show()'s shape (one line per chunk, free or live).
func (h *Heap) String() string {
	s := fmt.Sprintf("heap: %d bytes stolen\n", h.base)
	current := h.base
	for int(current) < len(h.buf) {
		id, fieldref, length := h.header(current)
		if id == idFree {
			s += fmt.Sprintf("- %d free bytes\n", length)
		} else {
			s += fmt.Sprintf("- chunk id %#x (fieldref=%v) with %d bytes\n", id, fieldref, length)
		}
		current += headerSize + length
	}
	return s
}
