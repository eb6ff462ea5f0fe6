// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LSUVM/nanovm/internal/uploader"
)

// uploadChunkSize caps each nvmfile_store frame, the way the original
// streams the image over the serial link a bounded buffer at a time
// rather than in one enormous write.
const uploadChunkSize = 64

func newUploadCmd() *cobra.Command {
	var baud uint32
	cmd := &cobra.Command{
		Use:   "upload <image> <device>",
		Short: "Stream a class-file image to a board over a serial port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return uploadImage(args[0], args[1], baud)
		},
	}
	cmd.Flags().Uint32Var(&baud, "baud", 9600, "serial line baud rate")
	return cmd
}

// uploadImage realizes nvmfile_store/nvmfile_init/nvmfile_call_main's
// handoff over the wire: frame the image in uploadChunkSize pieces, send
// a zero-length terminator frame, then read back one status line
// (StatusLine's wire format) reporting whether nvmfile_init/
// nvmfile_call_main succeeded on the other end.
func uploadImage(imagePath, device string, baud uint32) error {
	image, err := uploader.LoadFile(imagePath, 1<<20)
	if err != nil {
		return err
	}

	port, err := uploader.OpenSerialPort(device, baud)
	if err != nil {
		return err
	}
	defer port.Close()

	for off := 0; off < len(image); off += uploadChunkSize {
		end := off + uploadChunkSize
		if end > len(image) {
			end = len(image)
		}
		f := uploader.Frame{Index: uint16(off), Data: image[off:end]}
		if err := uploader.WriteFrame(port, f); err != nil {
			return fmt.Errorf("writing frame at offset %d: %w", off, err)
		}
		logger.Debug("uploaded frame", "offset", off, "size", end-off)
	}
	if err := uploader.WriteFrame(port, uploader.Frame{}); err != nil {
		return fmt.Errorf("writing terminator frame: %w", err)
	}

	status := make([]byte, 64)
	n, err := port.Read(status)
	if err != nil {
		return fmt.Errorf("reading status line: %w", err)
	}
	fmt.Printf("%s\n", status[:n])
	return nil
}
