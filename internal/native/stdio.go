// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package native

import (
	"bufio"
	"fmt"
	"io"

	"github.com/LSUVM/nanovm/internal/classfile"
	"github.com/LSUVM/nanovm/internal/heap"
	"github.com/LSUVM/nanovm/internal/vmerr"
	"github.com/LSUVM/nanovm/internal/vmref"
	"github.com/LSUVM/nanovm/internal/vmstack"
)

// StdioClassID is the class id this port's enable_stdio_native reserves
// for console I/O. Native classes live at the top of the class id space
// (255 downward) precisely so they never collide with a compiled
// program's own class ids, which start at 0 — this is the "distinguished
// class id range" spec §4.4 offers as an alternative to a per-method
// native flag.
const StdioClassID = 255

const (
	stdioPrintInt = iota
	stdioPrintChar
	stdioPrintString
	stdioPrintln
	stdioReadInt
)

// StdioClass implements native printing/reading against the classfile's
// string pool and the heap's byte-array objects, the enable_stdio_native
// toggle's concrete collaborator (spec §6).
type StdioClass struct {
	cf  *classfile.File
	h   *heap.Heap
	out *bufio.Writer
	in  *bufio.Reader
}

func NewStdioClass(cf *classfile.File, h *heap.Heap, w io.Writer, r io.Reader) *StdioClass {
	return &StdioClass{cf: cf, h: h, out: bufio.NewWriter(w), in: bufio.NewReader(r)}
}

func (s *StdioClass) ClassID() uint8 { return StdioClassID }

func (s *StdioClass) Invoke(methodID uint8, args []vmstack.Value) (vmstack.Value, bool, error) {
	switch methodID {
	case stdioPrintInt:
		if len(args) != 1 {
			return vmstack.Value{}, false, vmerr.NativeUnknownMethodErr("print_int: wrong argument count")
		}
		fmt.Fprintf(s.out, "%d", args[0].Int())
		s.out.Flush()
		return vmstack.Value{}, false, nil

	case stdioPrintChar:
		if len(args) != 1 {
			return vmstack.Value{}, false, vmerr.NativeUnknownMethodErr("print_char: wrong argument count")
		}
		s.out.WriteByte(byte(args[0].Int()))
		s.out.Flush()
		return vmstack.Value{}, false, nil

	case stdioPrintString:
		if len(args) != 1 {
			return vmstack.Value{}, false, vmerr.NativeUnknownMethodErr("print_string: wrong argument count")
		}
		str, err := s.resolveString(args[0].Ref())
		if err != nil {
			return vmstack.Value{}, false, err
		}
		s.out.WriteString(str)
		s.out.Flush()
		return vmstack.Value{}, false, nil

	case stdioPrintln:
		s.out.WriteByte('\n')
		s.out.Flush()
		return vmstack.Value{}, false, nil

	case stdioReadInt:
		var v int32
		if _, err := fmt.Fscan(s.in, &v); err != nil {
			v = 0
		}
		return vmstack.Int(v), true, nil

	default:
		return vmstack.Value{}, false, vmerr.NativeUnknownMethodErr(fmt.Sprintf("stdio method %d", methodID))
	}
}

// resolveString reads a NUL-terminated string out of either the
// classfile's string pool (a compiled-in literal) or a heap byte array
// object (built at runtime by the interpreter's array ops), depending on
// the Ref's tag.
func (s *StdioClass) resolveString(r vmref.Ref) (string, error) {
	switch r.Tag() {
	case vmref.TagString:
		loc, err := s.cf.Addr(r)
		if err != nil {
			return "", err
		}
		var b []byte
		for i := 0; ; i++ {
			c := s.cf.Read8(classfile.Location{Offset: loc.Offset + uint16(i)})
			if c == 0 {
				break
			}
			b = append(b, c)
		}
		return string(b), nil
	case vmref.TagHeap:
		id, _ := r.Heap()
		addr, err := s.h.Addr(heap.ID(id))
		if err != nil {
			return "", err
		}
		return string(addr), nil
	default:
		return "", vmerr.IllegalReferenceErr("print_string: ref is neither a string literal nor a heap object")
	}
}
