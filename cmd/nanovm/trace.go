// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/LSUVM/nanovm/internal/classfile"
	"github.com/LSUVM/nanovm/internal/config"
	"github.com/LSUVM/nanovm/internal/opcode"
	"github.com/LSUVM/nanovm/internal/uploader"
	"github.com/LSUVM/nanovm/internal/vm"
)

func newTraceCmd() *cobra.Command {
	var flags vmFlags
	cmd := &cobra.Command{
		Use:   "trace <image>",
		Short: "Step through a class-file image's main method interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return traceImage(args[0], flags.toConfig())
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// completer offers the opcode mnemonics as tab completions for the
// "break <mnemonic>" console command.
func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, 8)
	for _, m := range []string{"step", "continue", "print", "quit", "help"} {
		items = append(items, readline.PcItem(m))
	}
	var mnemonics []readline.PrefixCompleterInterface
	for i := 0; i < 256; i++ {
		if m := opcode.Op(i).Mnemonic(); m != "unknown" {
			mnemonics = append(mnemonics, readline.PcItem(m))
		}
	}
	items = append(items, readline.PcItem("break", mnemonics...))
	return readline.NewPrefixCompleter(items...)
}

// traceImage drives the interpreter one instruction at a time from a
// readline console, the debug-tracing-sink collaborator SPEC_FULL.md §5
// describes as an external, out-of-core observer of VM state — it only
// ever reads Steps/PC/CurMethod and calls Step, never reaching into
// heap/vmstack internals directly.
func traceImage(path string, cfg config.Flags) error {
	image, err := uploader.LoadFile(path, cfg.CodeSize)
	if err != nil {
		return err
	}
	ctx, err := vm.New(image, cfg, os.Stdout, os.Stdin)
	if err != nil {
		return err
	}
	if err := ctx.RunClinits(); err != nil {
		return err
	}
	if err := ctx.Interp.Enter(ctx.CF.Main()); err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:       "(nanovm) ",
		AutoComplete: completer(),
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	var breakAt string
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "help":
			fmt.Fprintln(rl.Stderr(), "commands: step, continue, print, break <mnemonic>, quit")
		case "quit":
			return nil
		case "print":
			fmt.Fprintf(rl.Stderr(), "pc=%d method=%d steps=%d\n", ctx.Interp.PC(), ctx.Interp.CurMethod(), ctx.Interp.Steps)
		case "break":
			if len(fields) == 2 {
				breakAt = fields[1]
				fmt.Fprintf(rl.Stderr(), "breakpoint set on %s\n", breakAt)
			}
		case "step":
			if done, err := stepOnce(ctx); err != nil {
				return err
			} else if done {
				fmt.Fprintln(rl.Stderr(), "program returned")
				return nil
			}
		case "continue":
			for {
				op, done, err := currentOp(ctx)
				if err != nil {
					return err
				}
				if done {
					fmt.Fprintln(rl.Stderr(), "program returned")
					return nil
				}
				if breakAt != "" && op.Mnemonic() == breakAt {
					fmt.Fprintf(rl.Stderr(), "stopped at %s, pc=%d\n", breakAt, ctx.Interp.PC())
					break
				}
				if _, err := stepOnce(ctx); err != nil {
					return err
				}
			}
		default:
			fmt.Fprintf(rl.Stderr(), "unknown command %q, try 'help'\n", fields[0])
		}
	}
}

func stepOnce(ctx *vm.Context) (bool, error) {
	return ctx.Interp.Step()
}

func currentOp(ctx *vm.Context) (opcode.Op, bool, error) {
	if ctx.Interp.FrameDepth() == 0 {
		return 0, true, nil
	}
	return opcode.Op(ctx.CF.Read8(classfile.Location{Offset: ctx.Interp.PC()})), false, nil
}
