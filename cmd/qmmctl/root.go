// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/qmm/internal/dl"
)

// Deps are the injectable dependencies of the commands.
type Deps struct {
	// Opener opens plugin libraries. Nil uses the platform loader.
	Opener dl.Opener
}

// globalFlags are available to all subcommands.
type globalFlags struct {
	configFile string
	jsonOutput bool
}

// NewRootCmd creates the root command for the qmmctl CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&Deps{})
}

func newRootCmd(deps *Deps) *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "qmmctl",
		Short: "qmmctl - inspect qmm mods, plugins and configuration",
		Long: `qmmctl inspects the pieces of a qmm installation without starting
a game engine: it classifies mod files, dumps QVM headers, queries plugins
against the host interface version and prints the effective configuration.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "qmm.yaml", "config file path")
	cmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "output as JSON")

	cmd.AddCommand(newClassifyCmd(flags))
	cmd.AddCommand(newInspectCmd(flags))
	cmd.AddCommand(newQueryCmd(flags, deps))
	cmd.AddCommand(newConfigCmd(flags))
	cmd.AddCommand(newSchemaCmd())
	cmd.AddCommand(newGamesCmd(flags))

	return cmd
}
