// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uploader

import (
	"fmt"

	"github.com/LSUVM/nanovm/internal/vmerr"
)

// StatusLine renders err the way error.c reports a fatal error over the
// serial port: a single letter identifying the taxonomy entry. This port
// widens it with the code's name for a human reading the upload log, but
// the letter — via vmerr.Code.Letter — stays the wire-compatible part,
// for tooling that only cares about the one byte.
func StatusLine(err *vmerr.Error) string {
	return fmt.Sprintf("%c %s", err.Code.Letter(), err.Code.String())
}

// OK is the status line written after a successful upload and
// nvmfile_init/nvmfile_call_main handoff, with no corresponding error.c
// code of its own.
const OK = "."
