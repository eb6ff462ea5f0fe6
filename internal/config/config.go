// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds NanoVM's compile/init-time toggles as plain Go
// values, the way cmd/viewcore's gocore.Flags bitmask is assembled from
// parsed command-line flags and threaded down into internal/gocore — here
// as a small struct instead of a bitmask, since there are few enough
// toggles that a bitmask buys nothing but bit-twiddling.
package config

// Flags mirrors the original's compile-time #ifdef toggles as runtime
// values, so a single cmd/nanovm binary can serve every target profile
// instead of needing a recompile per combination.
type Flags struct {
	EnableArrays           bool
	EnableSwitch           bool
	EnableInheritance      bool
	EnableStdioNative      bool
	EnableStackReturnCheck bool
	EnableAllocZeroing     bool
	HeapSize               int
	CodeSize               int
}

// Default returns the toggles this port enables out of the box: every
// optional language feature on, allocation zeroing on (trading a little
// speed for reproducible behavior on the desktop/UNIX profile), and the
// default heap and code sizes below.
func Default() Flags {
	return Flags{
		EnableArrays:           true,
		EnableSwitch:           true,
		EnableInheritance:      true,
		EnableStdioNative:      true,
		EnableStackReturnCheck: true,
		EnableAllocZeroing:     true,
		HeapSize:               4096,
		CodeSize:               8192,
	}
}
