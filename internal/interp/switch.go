// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

// execTableSwitch implements 0x60 tableswitch: <i16 default, i32 low,
// i32 high, (high-low+1)*i16 offsets>, all offsets relative to
// instrStart, the tableswitch opcode's own address.
func (in *Interp) execTableSwitch(instrStart uint16) error {
	defaultOff := int16(in.fetch16())
	low := int32(in.fetch32())
	high := int32(in.fetch32())

	index, err := in.st.PopInt()
	if err != nil {
		return err
	}

	if index < low || index > high {
		in.pc = uint16(int32(instrStart) + int32(defaultOff))
		return nil
	}

	// Each table entry is 2 bytes, indexed by index-low; read that one
	// entry directly rather than materializing the whole table.
	entryOff := in.pc + uint16(index-low)*2
	off := int16(in.fetch16At(entryOff))
	in.pc = uint16(int32(instrStart) + int32(off))
	return nil
}
