// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the qmm.yaml JSON Schema, or with --check
// verifies that the committed copy is current.
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/holomush/qmm/internal/config"
)

const defaultOut = "schemas/qmm.schema.json"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gen-schema: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("gen-schema", pflag.ContinueOnError)
	check := flags.Bool("check", false, "fail if the schema file is missing or stale")
	if err := flags.Parse(args); err != nil {
		return err
	}

	outPath := filepath.FromSlash(defaultOut)
	if flags.NArg() > 0 {
		outPath = flags.Arg(0)
	}

	schema, err := config.GenerateSchema()
	if err != nil {
		return fmt.Errorf("generating schema: %w", err)
	}

	if *check {
		current, err := os.ReadFile(outPath)
		if err != nil {
			return fmt.Errorf("reading %s: %w", outPath, err)
		}
		if !bytes.Equal(current, schema) {
			return fmt.Errorf("%s is stale, run gen-schema", outPath)
		}
		fmt.Printf("%s is up to date\n", outPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(outPath, schema, 0o600); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	fmt.Printf("Generated %s\n", outPath)
	return nil
}
