// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/qmm/internal/qvm"
	"github.com/holomush/qmm/pkg/qmmapi"
)

// Inspection describes a QVM image.
type Inspection struct {
	File     string       `json:"file"`
	Header   qvm.Header   `json:"header"`
	Segments qvm.Segments `json:"segments"`
	Swapped  bool         `json:"swapped"`
}

func newInspectCmd(flags *globalFlags) *cobra.Command {
	var stackSize int

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Validate a QVM image and dump its header",
		Long: `Parse the QVM header, decode every instruction and lay out the
memory arena the host would run the image in.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := inspect(args[0], stackSize)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				return writeJSON(out, info)
			}
			tw := newTable(out)
			h, s := info.Header, info.Segments
			fmt.Fprintf(tw, "file\t%s\n", info.File)
			fmt.Fprintf(tw, "instructions\t%d\n", h.InstructionCount)
			fmt.Fprintf(tw, "code\t%d bytes at %d\n", h.CodeLength, h.CodeOffset)
			fmt.Fprintf(tw, "data\t%d bytes at %d\n", h.DataLength, h.DataOffset)
			fmt.Fprintf(tw, "lit\t%d bytes\n", h.LitLength)
			fmt.Fprintf(tw, "bss\t%d bytes\n", h.BSSLength)
			fmt.Fprintf(tw, "stack\t%d bytes\n", s.Stack)
			fmt.Fprintf(tw, "arena\t%d bytes\n", s.Arena)
			fmt.Fprintf(tw, "byte swapped\t%t\n", info.Swapped)
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&stackSize, "stack-size", qvm.DefaultStackSize, "QVM stack size in bytes")
	return cmd
}

func inspect(file string, stackSize int) (*Inspection, error) {
	image, err := os.ReadFile(file)
	if err != nil {
		return nil, oops.Code("FILE_UNREADABLE").With("file", file).Wrap(err)
	}
	vm, err := qvm.New(image, func(int, qmmapi.SyscallArgs) int { return 0 }, qvm.WithStackSize(stackSize))
	if err != nil {
		return nil, oops.With("file", file).Wrap(err)
	}
	defer vm.Close()

	return &Inspection{
		File:     file,
		Header:   vm.Header(),
		Segments: vm.Segments(),
		Swapped:  vm.Swapped(),
	}, nil
}
