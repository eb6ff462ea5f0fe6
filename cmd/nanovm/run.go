// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/LSUVM/nanovm/internal/config"
	"github.com/LSUVM/nanovm/internal/uploader"
	"github.com/LSUVM/nanovm/internal/vm"
)

func newRunCmd() *cobra.Command {
	var flags vmFlags
	cmd := &cobra.Command{
		Use:   "run <image>",
		Short: "Load a class-file image and run it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImage(args[0], flags.toConfig())
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// runImage mirrors NanoVM.c's UNIX main(): load the image in one shot,
// then run every clinit before main, matching vm.Context.RunMain's own
// documented sequencing.
func runImage(path string, cfg config.Flags) error {
	image, err := uploader.LoadFile(path, cfg.CodeSize)
	if err != nil {
		return err
	}
	ctx, err := vm.New(image, cfg, os.Stdout, os.Stdin)
	if err != nil {
		return err
	}
	logger.Debug("image loaded", "path", path, "bytes", len(image))
	return ctx.RunMain()
}
