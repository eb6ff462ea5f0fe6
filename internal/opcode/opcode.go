// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package opcode defines the bytecode this port's interpreter executes.
//
// The original NanoVM leaves opcode numbering to the external compiler
// that produces class-file images — it is part of the compiler/runtime
// interface, not the core. This table is this port's own, supplied as the
// concrete interface a companion compiler would target, and kept in its
// own package so it can be swapped without touching internal/interp's
// dispatch logic.
package opcode

type Op byte

const (
	Nop         Op = 0x00
	AconstNull  Op = 0x01
	Iconst      Op = 0x02 // <i32 operand, 4 bytes>
	Ldc         Op = 0x03 // <u8 constant-pool index>
	LdcString   Op = 0x04 // <u8 string-pool index>

	// Local-variable family, 0x10..0x1f, each followed by a <u8 local index>.
	Iload  Op = 0x10
	Istore Op = 0x11
	Aload  Op = 0x12
	Astore Op = 0x13

	// Arithmetic/bitwise family, 0x20..0x2f.
	Iadd  Op = 0x20
	Isub  Op = 0x21
	Imul  Op = 0x22
	Idiv  Op = 0x23
	Irem  Op = 0x24
	Iand  Op = 0x25
	Ior   Op = 0x26
	Ixor  Op = 0x27
	Ishl  Op = 0x28
	Ishr  Op = 0x29
	Iushr Op = 0x2a

	// Comparison/branch family, 0x30..0x3f, each followed by an <i16 offset>
	// relative to the opcode's own address; the unary comparisons test the
	// top of stack against zero, the binary ones compare the top two values.
	Ifeq      Op = 0x30
	Ifne      Op = 0x31
	Iflt      Op = 0x32
	Ifge      Op = 0x33
	Ifgt      Op = 0x34
	Ifle      Op = 0x35
	IfIcmpeq  Op = 0x36
	IfIcmpne  Op = 0x37
	IfIcmplt  Op = 0x38
	IfIcmpge  Op = 0x39
	IfIcmpgt  Op = 0x3a
	IfIcmple  Op = 0x3b
	IfAcmpeq  Op = 0x3c
	IfAcmpne  Op = 0x3d
	Goto      Op = 0x3e

	// Object family.
	New       Op = 0x40 // <u8 class index>
	GetField  Op = 0x41 // <u8 field index>
	PutField  Op = 0x42 // <u8 field index>
	GetStatic Op = 0x43 // <u8 field index>
	PutStatic Op = 0x44 // <u8 field index>

	// Array family, enable_arrays only.
	NewArray   Op = 0x50 // <u8 elem type>
	ArrayLength Op = 0x51
	Baload     Op = 0x52
	Saload     Op = 0x53
	Iaload     Op = 0x54
	Raload     Op = 0x55
	Bastore    Op = 0x56
	Sastore    Op = 0x57
	Iastore    Op = 0x58
	Rastore    Op = 0x59

	// Switch family, enable_switch only.
	TableSwitch Op = 0x60 // <i16 default, i32 low, i32 high, (high-low+1)*i16 offsets>

	// Invocation family.
	InvokeStatic  Op = 0x70 // <u8 class, u16 method id>
	InvokeVirtual Op = 0x71 // <u8 class, u16 method id>
	InvokeNative  Op = 0x72 // <u8 class, u16 method id>

	Return  Op = 0x7e
	IReturn Op = 0x7f // also doubles as areturn: tag travels with the stack value
)

// ArrayType selects the element type operand of NewArray.
type ArrayType uint8

const (
	ArrayByte ArrayType = iota
	ArrayShort
	ArrayInt
	ArrayRef
)

// Mnemonic returns the assembly-style name used by the disassembler and
// trace console for op, or "unknown" if op isn't one of the opcodes above.
func (op Op) Mnemonic() string {
	if m, ok := mnemonics[op]; ok {
		return m
	}
	return "unknown"
}

var mnemonics = map[Op]string{
	Nop:           "nop",
	AconstNull:    "aconst_null",
	Iconst:        "iconst",
	Ldc:           "ldc",
	LdcString:     "ldc_string",
	Iload:         "iload",
	Istore:        "istore",
	Aload:         "aload",
	Astore:        "astore",
	Iadd:          "iadd",
	Isub:          "isub",
	Imul:          "imul",
	Idiv:          "idiv",
	Irem:          "irem",
	Iand:          "iand",
	Ior:           "ior",
	Ixor:          "ixor",
	Ishl:          "ishl",
	Ishr:          "ishr",
	Iushr:         "iushr",
	Ifeq:          "ifeq",
	Ifne:          "ifne",
	Iflt:          "iflt",
	Ifge:          "ifge",
	Ifgt:          "ifgt",
	Ifle:          "ifle",
	IfIcmpeq:      "if_icmpeq",
	IfIcmpne:      "if_icmpne",
	IfIcmplt:      "if_icmplt",
	IfIcmpge:      "if_icmpge",
	IfIcmpgt:      "if_icmpgt",
	IfIcmple:      "if_icmple",
	IfAcmpeq:      "if_acmpeq",
	IfAcmpne:      "if_acmpne",
	Goto:          "goto",
	New:           "new",
	GetField:      "getfield",
	PutField:      "putfield",
	GetStatic:     "getstatic",
	PutStatic:     "putstatic",
	NewArray:      "newarray",
	ArrayLength:   "arraylength",
	Baload:        "baload",
	Saload:        "saload",
	Iaload:        "iaload",
	Raload:        "raload",
	Bastore:       "bastore",
	Sastore:       "sastore",
	Iastore:       "iastore",
	Rastore:       "rastore",
	TableSwitch:   "tableswitch",
	InvokeStatic:  "invokestatic",
	InvokeVirtual: "invokevirtual",
	InvokeNative:  "invokenative",
	Return:        "return",
	IReturn:       "ireturn",
}

// OperandSize returns the number of operand bytes following op's opcode
// byte, for the disassembler (§10) to advance over an instruction without
// executing it. TableSwitch is variable-length — its own low/high operands
// determine the jump table's size — so OperandSize returns -1 for it and
// the disassembler reads the header itself.
func (op Op) OperandSize() int {
	switch op {
	case Ldc, LdcString, Iload, Istore, Aload, Astore,
		New, GetField, PutField, GetStatic, PutStatic, NewArray:
		return 1
	case Ifeq, Ifne, Iflt, Ifge, Ifgt, Ifle,
		IfIcmpeq, IfIcmpne, IfIcmplt, IfIcmpge, IfIcmpgt, IfIcmple,
		IfAcmpeq, IfAcmpne, Goto:
		return 2
	case InvokeStatic, InvokeVirtual, InvokeNative:
		return 3
	case Iconst:
		return 4
	case TableSwitch:
		return -1
	default:
		return 0
	}
}
