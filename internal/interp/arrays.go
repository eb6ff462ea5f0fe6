// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import (
	"encoding/binary"
	"fmt"

	"github.com/LSUVM/nanovm/internal/opcode"
	"github.com/LSUVM/nanovm/internal/vmerr"
	"github.com/LSUVM/nanovm/internal/vmref"
)

func (in *Interp) execNewArray() error {
	elemType := opcode.ArrayType(in.fetch8())
	if elemType > opcode.ArrayRef {
		return vmerr.IllegalArrayTypeErr(fmt.Sprintf("unknown element type %d", elemType))
	}
	count, err := in.st.PopInt()
	if err != nil {
		return err
	}
	if count < 0 {
		return vmerr.IllegalReferenceErr("newarray with negative count")
	}
	fieldref := elemType == opcode.ArrayRef
	id, err := in.h.Alloc(fieldref, uint16(count)*arrayCellSize)
	if err != nil {
		return err
	}
	return in.st.PushRef(vmref.HeapRef(uint16(id)))
}

func (in *Interp) execNonRefLoad(op opcode.Op) error {
	index, err := in.st.PopInt()
	if err != nil {
		return err
	}
	id, isRef, err := in.popArrayRef()
	if err != nil {
		return err
	}
	if isRef {
		return vmerr.IllegalArrayTypeErr("byte/short/int load on a reference array")
	}
	cell, err := in.arrayAddr(id, index)
	if err != nil {
		return err
	}
	var v int32
	switch op {
	case opcode.Baload:
		v = int32(int8(cell[0]))
	case opcode.Saload:
		v = int32(binary.LittleEndian.Uint16(cell))
	case opcode.Iaload:
		v = int32(int16(binary.LittleEndian.Uint16(cell)))
	}
	return in.st.PushInt(v)
}

func (in *Interp) execRefLoad() error {
	index, err := in.st.PopInt()
	if err != nil {
		return err
	}
	id, isRef, err := in.popArrayRef()
	if err != nil {
		return err
	}
	if !isRef {
		return vmerr.IllegalArrayTypeErr("raload on a non-reference array")
	}
	cell, err := in.arrayAddr(id, index)
	if err != nil {
		return err
	}
	return in.st.PushRef(vmref.Ref(binary.LittleEndian.Uint16(cell)))
}

func (in *Interp) execNonRefStore(op opcode.Op) error {
	v, err := in.st.PopInt()
	if err != nil {
		return err
	}
	index, err := in.st.PopInt()
	if err != nil {
		return err
	}
	id, isRef, err := in.popArrayRef()
	if err != nil {
		return err
	}
	if isRef {
		return vmerr.IllegalArrayTypeErr("byte/short/int store on a reference array")
	}
	cell, err := in.arrayAddr(id, index)
	if err != nil {
		return err
	}
	switch op {
	case opcode.Bastore:
		cell[0] = byte(int8(v))
		cell[1] = 0
	case opcode.Sastore, opcode.Iastore:
		binary.LittleEndian.PutUint16(cell, uint16(int16(v)))
	}
	return nil
}

func (in *Interp) execRefStore() error {
	v, err := in.st.PopRef()
	if err != nil {
		return err
	}
	index, err := in.st.PopInt()
	if err != nil {
		return err
	}
	id, isRef, err := in.popArrayRef()
	if err != nil {
		return err
	}
	if !isRef {
		return vmerr.IllegalArrayTypeErr("rastore on a non-reference array")
	}
	cell, err := in.arrayAddr(id, index)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(cell, uint16(v))
	return nil
}
