// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uploader

import "golang.org/x/sys/unix"

// Linux's termios ioctl numbers and the Termios.Ispeed/Ospeed encoding
// both differ across kernels/libcs; x/sys/unix already carries the
// right values per GOOS/GOARCH, so this file only chooses among them.
const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)

var baudRates = map[uint32]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}
