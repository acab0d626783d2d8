// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/holomush/qmm/internal/logging"
	"github.com/holomush/qmm/internal/plugin"
)

// QueryResult describes a queried plugin.
type QueryResult struct {
	File        string `json:"file"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	URL         string `json:"url,omitempty"`
	Interface   string `json:"interface"`
	Host        string `json:"host_interface"`
	Verdict     string `json:"verdict"`
}

func newQueryCmd(flags *globalFlags, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "query PLUGIN",
		Short: "Load a plugin, query it and check its interface version",
		Long: `Load a plugin library, call QMM_Query and compare the interface
version it reports with this host's. The plugin is never attached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.Setup("qmmctl", version, "text", cmd.ErrOrStderr())

			p, err := plugin.LoadQuery(deps.Opener, "", args[0], logger)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			info := p.Info()
			res := QueryResult{
				File:        p.Path(),
				Name:        info.Name,
				Version:     info.Version,
				Description: info.Description,
				Author:      info.Author,
				URL:         info.URL,
				Interface:   info.Interface.String(),
				Host:        plugin.HostInterface.String(),
				Verdict:     plugin.CheckVersion(info.Interface).String(),
			}

			out := cmd.OutOrStdout()
			if flags.jsonOutput {
				return writeJSON(out, res)
			}
			tw := newTable(out)
			fmt.Fprintf(tw, "file\t%s\n", res.File)
			fmt.Fprintf(tw, "name\t%s\n", res.Name)
			fmt.Fprintf(tw, "version\t%s\n", res.Version)
			fmt.Fprintf(tw, "description\t%s\n", res.Description)
			fmt.Fprintf(tw, "author\t%s\n", res.Author)
			fmt.Fprintf(tw, "url\t%s\n", res.URL)
			fmt.Fprintf(tw, "interface\t%s (host %s, %s)\n", res.Interface, res.Host, res.Verdict)
			return tw.Flush()
		},
	}
}
