// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LSUVM/nanovm/internal/classfile"
	"github.com/LSUVM/nanovm/internal/opcode"
	"github.com/LSUVM/nanovm/internal/uploader"
	"github.com/LSUVM/nanovm/internal/vm"
)

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <image>",
		Short: "Disassemble every method in a class-file image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return disasmImage(args[0])
		},
	}
}

func disasmImage(path string) error {
	image, err := uploader.LoadFile(path, 1<<20)
	if err != nil {
		return err
	}
	cf, err := classfile.Open(image, vm.ImageVersion, vm.SupportedFeatures)
	if err != nil {
		return err
	}

	for m := classfile.MethodID(0); uint16(m) < uint16(cf.MethodCount()); m++ {
		hdr, err := cf.MethodHeader(m)
		if err != nil {
			return err
		}
		clinit := ""
		if hdr.IsClinit() {
			clinit = " [clinit]"
		}
		fmt.Printf("method %d: class=%d id=%d args=%d max_locals=%d max_stack=%d%s\n",
			m, hdr.Class, hdr.Method, hdr.Args, hdr.MaxLocals, hdr.MaxStack, clinit)
		disasmMethod(cf, hdr, nextCodeStart(cf, m))
	}
	return nil
}

// nextCodeStart bounds the current method's code by the next method's
// start (or CodeEnd for the last one), since the image format records
// only where each method's code begins, not its length.
func nextCodeStart(cf *classfile.File, m classfile.MethodID) uint16 {
	if uint16(m)+1 >= uint16(cf.MethodCount()) {
		return cf.CodeEnd()
	}
	next, err := cf.MethodHeader(m + 1)
	if err != nil {
		return cf.CodeEnd()
	}
	return next.CodeIndex
}

func disasmMethod(cf *classfile.File, hdr classfile.MethodHeader, end uint16) {
	pc := hdr.CodeIndex
	for pc < end {
		start := pc
		op := opcode.Op(cf.Read8(classfile.Location{Offset: pc}))
		pc++

		if op == opcode.TableSwitch {
			def := int16(cf.Read16(classfile.Location{Offset: pc}))
			low := int32(cf.Read32(classfile.Location{Offset: pc + 2}))
			high := int32(cf.Read32(classfile.Location{Offset: pc + 6}))
			n := int(high-low) + 1
			fmt.Printf("  %4d: tableswitch default=%+d low=%d high=%d\n", start, def, low, high)
			pc += 10
			for i := 0; i < n; i++ {
				off := int16(cf.Read16(classfile.Location{Offset: pc}))
				fmt.Printf("          [%d] %+d\n", low+int32(i), off)
				pc += 2
			}
			continue
		}

		size := op.OperandSize()
		operand := cf.ReadBytes(classfile.Location{Offset: pc}, size)
		fmt.Printf("  %4d: %-13s %s\n", start, op.Mnemonic(), formatOperand(op, operand))
		pc += uint16(size)
	}
}

func formatOperand(op opcode.Op, b []byte) string {
	switch len(b) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%d", b[0])
	case 2:
		return fmt.Sprintf("%+d", int16(binary.LittleEndian.Uint16(b)))
	case 3:
		return fmt.Sprintf("class=%d method=%d", b[0], binary.LittleEndian.Uint16(b[1:3]))
	case 4:
		return fmt.Sprintf("%d", int32(binary.LittleEndian.Uint32(b)))
	default:
		return fmt.Sprintf("% x", b)
	}
}
