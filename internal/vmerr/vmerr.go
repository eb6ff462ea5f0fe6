// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vmerr defines NanoVM's fatal-error taxonomy.
//
// Every error the core can raise is fatal: the taxonomy is closed, the codes
// are in a stable order, and an embedding is expected to switch on Code
// rather than match on strings. This mirrors the original runtime's single
// error() call site in error.c, which maps each code to a one-letter status
// report over the serial port.
package vmerr

// Code identifies one entry in the fatal-error taxonomy. The numeric values
// match the order in which error.c lists them, so Letter() reproduces the
// original's 'A'+code status report.
type Code int

const (
	IllegalChunkSize Code = iota
	HeapCorrupted
	OutOfMemory
	ChunkDoesNotExist
	OutOfStackMemory
	StackUnderrun
	IllegalArrayType
	NativeUnknownMethod
	NativeUnknownClass
	NvmfileUnsupported
	NvmfileWrongVersion
	IllegalReference
	UnsupportedOpcode
	DivisionByZero
	StackCorrupted
)

var messages = [...]string{
	IllegalChunkSize:    "heap: illegal chunk size",
	HeapCorrupted:       "heap: corrupted",
	OutOfMemory:         "heap: out of memory",
	ChunkDoesNotExist:   "heap: chunk does not exist",
	OutOfStackMemory:    "heap: out of stack memory",
	StackUnderrun:       "heap: stack underrun",
	IllegalArrayType:    "array: illegal type",
	NativeUnknownMethod: "native: unknown method",
	NativeUnknownClass:  "native: unknown class",
	NvmfileUnsupported:  "nvmfile: unsupported features or not a valid nvm file",
	NvmfileWrongVersion: "nvmfile: wrong nvm file version",
	IllegalReference:    "vm: illegal reference",
	UnsupportedOpcode:   "vm: unsupported opcode",
	DivisionByZero:      "vm: division by zero",
	StackCorrupted:      "vm: stack corrupted",
}

// String returns the taxonomy's name for the code, or "unknown error" if the
// code falls outside the closed set above.
func (c Code) String() string {
	if int(c) < 0 || int(c) >= len(messages) {
		return "unknown error"
	}
	return messages[c]
}

// Letter returns the single-character status report error.c would send over
// the serial port for this code ('A' for the first entry, and so on).
func (c Code) Letter() byte {
	return 'A' + byte(c)
}

// Error is a fatal NanoVM error. It always carries one of the Code values
// above; Detail adds call-site context (an id, an offset, ...) without
// turning the error into a free-form string the embedding would have to
// parse back apart.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Detail
}

func newf(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

func IllegalChunkSizeErr(detail string) *Error  { return newf(IllegalChunkSize, detail) }
func HeapCorruptedErr(detail string) *Error     { return newf(HeapCorrupted, detail) }
func OutOfMemoryErr(detail string) *Error       { return newf(OutOfMemory, detail) }
func ChunkDoesNotExistErr(detail string) *Error { return newf(ChunkDoesNotExist, detail) }
func OutOfStackMemoryErr(detail string) *Error  { return newf(OutOfStackMemory, detail) }
func StackUnderrunErr(detail string) *Error     { return newf(StackUnderrun, detail) }
func IllegalArrayTypeErr(detail string) *Error  { return newf(IllegalArrayType, detail) }
func NativeUnknownMethodErr(detail string) *Error {
	return newf(NativeUnknownMethod, detail)
}
func NativeUnknownClassErr(detail string) *Error { return newf(NativeUnknownClass, detail) }
func NvmfileUnsupportedErr(detail string) *Error { return newf(NvmfileUnsupported, detail) }
func NvmfileWrongVersionErr(detail string) *Error {
	return newf(NvmfileWrongVersion, detail)
}
func IllegalReferenceErr(detail string) *Error { return newf(IllegalReference, detail) }
func UnsupportedOpcodeErr(detail string) *Error { return newf(UnsupportedOpcode, detail) }
func DivisionByZeroErr() *Error                 { return newf(DivisionByZero, "") }
func StackCorruptedErr(detail string) *Error    { return newf(StackCorrupted, detail) }

// As reports whether err is a *Error, returning it if so. It exists so
// cmd/nanovm can recover the taxonomy code from an error chain without every
// caller needing to import errors.As boilerplate.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
