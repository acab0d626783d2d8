// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/qmm/internal/mod"
)

// Classification is the result of classifying one file.
type Classification struct {
	File string `json:"file"`
	Kind string `json:"kind"`
}

func newClassifyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "classify FILE...",
		Short: "Report whether files are native or QVM mods",
		Long: `Classify each file by its leading magic bytes, falling back to its
extension, exactly as the mod loader does.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]Classification, 0, len(args))
			for _, file := range args {
				header, err := readHeader(file, mod.HeaderSize)
				if err != nil {
					return err
				}
				results = append(results, Classification{File: file, Kind: mod.Classify(header, file).String()})
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				return writeJSON(out, results)
			}
			tw := newTable(out)
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%s\n", r.File, r.Kind)
			}
			return tw.Flush()
		},
	}
}

// readHeader returns up to n bytes from the start of file.
func readHeader(file string, n int) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, oops.Code("FILE_UNREADABLE").With("file", file).Wrap(err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, oops.Code("FILE_UNREADABLE").With("file", file).Wrap(err)
	}
	return buf[:read], nil
}
