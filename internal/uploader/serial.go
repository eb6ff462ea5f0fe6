// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uploader

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/LSUVM/nanovm/internal/vmerr"
)

// SerialPort is a device path put into raw 8N1 mode, the Go-side
// equivalent of the embedded profile's UART already being configured by
// the bootloader before loader_receive() ever runs — a desktop serial
// adapter has no such bootloader, so this port configures the line
// itself before streaming frames over it.
type SerialPort struct {
	f        *os.File
	restore  unix.Termios
	hadState bool
}

// OpenSerialPort opens path and switches it to raw mode at baud, clearing
// canonical/echo/signal processing so every byte written by the far end
// reaches ReadFrames unmolested.
func OpenSerialPort(path string, baud uint32) (*SerialPort, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_NOCTTY, 0)
	if err != nil {
		return nil, err
	}
	fd := int(f.Fd())

	orig, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("getting termios for %s: %w", path, err)
	}

	raw := *orig
	raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	raw.Oflag &^= unix.OPOST
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if rate, ok := baudRates[baud]; ok {
		raw.Ispeed = rate
		raw.Ospeed = rate
	} else {
		f.Close()
		return nil, vmerr.NvmfileUnsupportedErr(fmt.Sprintf("unsupported baud rate %d", baud))
	}

	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, &raw); err != nil {
		f.Close()
		return nil, fmt.Errorf("setting raw mode on %s: %w", path, err)
	}

	return &SerialPort{f: f, restore: *orig, hadState: true}, nil
}

// Read implements io.Reader over the underlying file descriptor.
func (s *SerialPort) Read(p []byte) (int, error) { return s.f.Read(p) }

// Write implements io.Writer over the underlying file descriptor.
func (s *SerialPort) Write(p []byte) (int, error) { return s.f.Write(p) }

// Close restores the port's original termios settings before closing the
// file, so a later non-raw user of the same device isn't left in raw
// mode.
func (s *SerialPort) Close() error {
	if s.hadState {
		_ = unix.IoctlSetTermios(int(s.f.Fd()), ioctlSetTermios, &s.restore)
	}
	return s.f.Close()
}
