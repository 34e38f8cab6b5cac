// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/adreel/internal/config"
	"github.com/ManuGH/adreel/internal/version"
)

func runConfigCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return 0
	}
	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  adreel config validate [-config config.yaml]")
	_, _ = fmt.Fprintln(w, "  adreel config dump [-config config.yaml] [-format yaml|json]")
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("adreel config validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := configPathFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	l := config.NewLoader(*configPath, version.Version)
	if _, err := l.Load(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Configuration error:\n  %v\n", err)
		return 1
	}
	for _, k := range l.UnknownEnvKeys() {
		_, _ = fmt.Fprintf(stderr, "warning: unknown environment variable %s\n", k)
	}
	src := *configPath
	if src == "" {
		src = "defaults+environment"
	}
	_, _ = fmt.Fprintf(stdout, "%s is valid\n", src)
	return 0
}

func runConfigDump(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("adreel config dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := configPathFlag(fs)
	format := fs.String("format", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.NewLoader(*configPath, version.Version).Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Configuration error:\n  %v\n", err)
		return 1
	}
	switch *format {
	case "yaml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		err = enc.Encode(cfg)
		if err == nil {
			err = enc.Close()
		}
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(cfg)
	default:
		_, _ = fmt.Fprintf(stderr, "unsupported format %q\n", *format)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "encode config: %v\n", err)
		return 1
	}
	return 0
}
