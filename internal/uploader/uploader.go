// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package uploader implements the collaborator spec §6 describes only as an
// interface: nvmfile_store/nvmfile_init/nvmfile_call_main's streaming image
// upload, realized here as a UNIX file loader and a serial uploader sharing
// one frame-based assembly protocol.
package uploader

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/LSUVM/nanovm/internal/vmerr"
)

// Frame is one nvmfile_store(index, buffer, size) call: size bytes of image
// content to be placed at index. A Frame with empty Data terminates a
// stream, matching the original's "store completes, then call
// nvmfile_init" handoff — the zero-length frame is this port's concrete
// signal for that handoff over a serial link, where there is no separate
// EOF.
type Frame struct {
	Index uint16
	Data  []byte
}

// Builder assembles Frames into one contiguous image, the Go-side
// equivalent of the original's NVMFILE_SIZE-bounded static buffer that
// nvmfile_store writes into directly.
type Builder struct {
	buf []byte
	max int
}

// NewBuilder creates a Builder whose image never grows past max bytes,
// matching code_size's role as NVMFILE_SIZE.
func NewBuilder(max int) *Builder {
	return &Builder{max: max}
}

// Store places f's payload at f.Index, growing the backing buffer as
// needed up to max.
func (b *Builder) Store(f Frame) error {
	end := int(f.Index) + len(f.Data)
	if end > b.max {
		return vmerr.NvmfileUnsupportedErr(fmt.Sprintf("image offset %d exceeds code_size %d", end, b.max))
	}
	if end > len(b.buf) {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[f.Index:], f.Data)
	return nil
}

// Bytes returns the assembled image so far.
func (b *Builder) Bytes() []byte { return b.buf }

// frameHeaderSize is <u16 index, u16 length>, the wire encoding ReadFrames
// and WriteFrame share — this port's own minimal line protocol for the
// serial uploader, since the original's serial upload protocol wasn't part
// of the retrieved source.
const frameHeaderSize = 4

// ReadFrames reads a sequence of length-prefixed Frames from r until a
// zero-length terminator frame, the shape both the serial uploader and the
// UNIX file loader's internal test harness speak.
func ReadFrames(r io.Reader) ([]Frame, error) {
	var frames []Frame
	hdr := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(r, hdr); err != nil {
			return nil, fmt.Errorf("reading frame header: %w", err)
		}
		index := binary.LittleEndian.Uint16(hdr[0:2])
		size := binary.LittleEndian.Uint16(hdr[2:4])
		if size == 0 {
			return frames, nil
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("reading frame payload: %w", err)
		}
		frames = append(frames, Frame{Index: index, Data: data})
	}
}

// WriteFrame writes one frame in ReadFrames' wire format, followed by
// nothing — callers write a zero-length Frame{} last to terminate a
// stream.
func WriteFrame(w io.Writer, f Frame) error {
	hdr := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint16(hdr[0:2], f.Index)
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(f.Data)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if len(f.Data) == 0 {
		return nil
	}
	_, err := w.Write(f.Data)
	return err
}

// LoadFile is the UNIX profile's nvmfile_load: read an entire class-file
// image from disk in one shot, the way NanoVM.c's UNIX branch calls
// nvmfile_load(argv[i], quiet) instead of streaming over the wire loader_receive()
// uses on the embedded profile.
func LoadFile(path string, maxSize int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > maxSize {
		return nil, vmerr.NvmfileUnsupportedErr(fmt.Sprintf("file %s is %d bytes, exceeds code_size %d", path, len(data), maxSize))
	}
	return data, nil
}

// LoadFrames drains a Frame stream into a freshly assembled image, the
// streaming counterpart to LoadFile — used by the serial uploader and
// exercised directly in tests against an in-memory reader, independent of
// any real serial device.
func LoadFrames(r io.Reader, maxSize int) ([]byte, error) {
	frames, err := ReadFrames(r)
	if err != nil {
		return nil, err
	}
	b := NewBuilder(maxSize)
	for _, f := range frames {
		if err := b.Store(f); err != nil {
			return nil, err
		}
	}
	return b.Bytes(), nil
}
