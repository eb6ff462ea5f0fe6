// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The nanovm tool runs, uploads, disassembles and traces NanoVM class-file
// images. Run "nanovm help" for a list of commands.
package main

import "os"

func main() {
	os.Exit(Execute())
}
