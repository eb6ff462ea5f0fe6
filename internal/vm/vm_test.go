// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/LSUVM/nanovm/internal/config"
	"github.com/LSUVM/nanovm/internal/native"
	"github.com/LSUVM/nanovm/internal/opcode"
)

// Layout constants mirroring internal/classfile's unexported ones (see
// classfile.go and DESIGN.md for the derivation from nvmfile.h).
const (
	testHeaderSize    = 17
	testClassHdrSize  = 2
	testMethodHdrSize = 8
)

type codeBuilder struct{ b []byte }

func (c *codeBuilder) op(op opcode.Op) *codeBuilder { c.b = append(c.b, byte(op)); return c }
func (c *codeBuilder) u8(v uint8) *codeBuilder       { c.b = append(c.b, v); return c }
func (c *codeBuilder) u16(v uint16) *codeBuilder {
	c.b = binary.LittleEndian.AppendUint16(c.b, v)
	return c
}
func (c *codeBuilder) i32(v int32) *codeBuilder {
	c.b = binary.LittleEndian.AppendUint32(c.b, uint32(v))
	return c
}

type testMethod struct {
	class, method, flags, args, maxLocals, maxStack uint8
	code                                             []byte
}

func buildTestImage(t *testing.T, methods []testMethod, mainIndex uint16) []byte {
	t.Helper()
	var code []byte
	for _, m := range methods {
		code = append(code, m.code...)
	}
	// Layout matches classfile.Open's classCount derivation: the one class
	// header runs directly up to constantOffset, with code bytes placed
	// last (after the method table), exactly as the image format documents.
	headerAndClasses := testHeaderSize + testClassHdrSize // one class: {super:0, fields:0}
	constantOffset := headerAndClasses
	stringOffset := constantOffset
	methodOffset := stringOffset
	codeOff := methodOffset + len(methods)*testMethodHdrSize
	total := codeOff + len(code)

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(0xCA))
	buf[4] = ImageVersion
	buf[5] = uint8(len(methods))
	binary.LittleEndian.PutUint16(buf[6:8], mainIndex)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(constantOffset))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(stringOffset))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(methodOffset))
	buf[14] = 0

	// one class, 0 super, 0 fields
	buf[testHeaderSize] = 0
	buf[testHeaderSize+1] = 0

	copy(buf[codeOff:], code)

	for i, m := range methods {
		off := methodOffset + i*testMethodHdrSize
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(codeOff)+uint16(sumCodeBefore(methods, i)))
		binary.LittleEndian.PutUint16(buf[off+2:off+4], uint16(m.class)<<8|uint16(m.method))
		buf[off+4] = m.flags
		buf[off+5] = m.args
		buf[off+6] = m.maxLocals
		buf[off+7] = m.maxStack
	}
	return buf
}

func sumCodeBefore(methods []testMethod, upto int) int {
	n := 0
	for i := 0; i < upto; i++ {
		n += len(methods[i].code)
	}
	return n
}

func TestRunMainAddsAndPrints(t *testing.T) {
	mainCode := (&codeBuilder{}).
		op(opcode.Iconst).i32(2).
		op(opcode.Iconst).i32(3).
		op(opcode.Iadd).
		op(opcode.InvokeNative).u8(native.StdioClassID).u16(0). // print_int
		op(opcode.Return).b

	methods := []testMethod{
		{class: 0, method: 1, args: 0, maxLocals: 0, maxStack: 4, code: mainCode},
		{class: native.StdioClassID, method: 0, args: 1, maxLocals: 0, maxStack: 0, code: nil},
	}
	image := buildTestImage(t, methods, 0)

	var out bytes.Buffer
	flags := config.Default()
	flags.HeapSize = 256
	ctx, err := New(image, flags, &out, strings.NewReader(""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ctx.RunMain(); err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if got := out.String(); got != "5" {
		t.Errorf("output = %q, want %q", got, "5")
	}
}

func TestRunMainDivisionByZero(t *testing.T) {
	mainCode := (&codeBuilder{}).
		op(opcode.Iconst).i32(1).
		op(opcode.Iconst).i32(0).
		op(opcode.Idiv).
		op(opcode.Return).b

	methods := []testMethod{{class: 0, method: 1, args: 0, maxLocals: 0, maxStack: 4, code: mainCode}}
	image := buildTestImage(t, methods, 0)

	flags := config.Default()
	flags.HeapSize = 128
	ctx, err := New(image, flags, &bytes.Buffer{}, strings.NewReader(""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ctx.RunMain(); err == nil {
		t.Fatal("expected division by zero error")
	}
}

func TestRunMainClinitRunsBeforeMain(t *testing.T) {
	// clinit (class 0, method 0, flagged CLINIT) stores 7 into static 0;
	// main reads it back and prints it, proving clinit ran first.
	clinitCode := (&codeBuilder{}).
		op(opcode.Iconst).i32(7).
		op(opcode.PutStatic).u8(0).
		op(opcode.Return).b
	mainCode := (&codeBuilder{}).
		op(opcode.GetStatic).u8(0).
		op(opcode.InvokeNative).u8(native.StdioClassID).u16(0).
		op(opcode.Return).b

	const flagClinit = 1
	methods := []testMethod{
		{class: 0, method: 0, flags: flagClinit, args: 0, maxLocals: 0, maxStack: 2, code: clinitCode},
		{class: 0, method: 1, args: 0, maxLocals: 0, maxStack: 2, code: mainCode},
		{class: native.StdioClassID, method: 0, args: 1, maxLocals: 0, maxStack: 0, code: nil},
	}
	image := buildTestImage(t, methods, 1)
	// static_fields = 1
	image[14] = 1

	var out bytes.Buffer
	flags := config.Default()
	flags.HeapSize = 256
	ctx, err := New(image, flags, &out, strings.NewReader(""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ctx.RunMain(); err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if got := out.String(); got != "7" {
		t.Errorf("output = %q, want %q", got, "7")
	}
}
