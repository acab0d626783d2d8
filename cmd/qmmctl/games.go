// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/holomush/qmm/internal/engine"
)

// GameSummary describes one supported game.
type GameSummary struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Module   string `json:"module"`
	Fallback string `json:"fallback"`
	QVM      string `json:"qvm,omitempty"`
}

func newGamesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "List supported games",
		Long: `List the games the host can front, with the module names it uses
on this platform.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			games, err := engine.Games()
			if err != nil {
				return err
			}
			summaries := make([]GameSummary, 0, len(games))
			for _, g := range games {
				summaries = append(summaries, GameSummary{
					Name:     g.Name,
					Title:    g.Title,
					Module:   g.ModuleName(),
					Fallback: g.FallbackModuleName(),
					QVM:      g.QVM,
				})
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				return writeJSON(out, summaries)
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "NAME\tTITLE\tMODULE\tQVM")
			for _, s := range summaries {
				qvm := s.QVM
				if qvm == "" {
					qvm = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Title, s.Module, qvm)
			}
			return tw.Flush()
		},
	}
}
