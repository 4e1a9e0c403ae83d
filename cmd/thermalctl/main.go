// thermalctl is the operator tool for the thermal ledger.
//
// Commands:
//
//	thermalctl hash-phone <number>      print the phone hash used at registration
//	thermalctl replay --file <scenario> run a YAML scenario against a fresh ledger
//	thermalctl version                  print the version
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/xraph/thermal/identity"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errors.New("missing command")
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "hash-phone":
		return runHashPhone(rest, stdout)
	case "replay":
		return runReplay(ctx, rest, stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "thermalctl %s\n", version)
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runHashPhone(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: thermalctl hash-phone <number>")
	}
	if identity.NormalizePhone(args[0]) == "" {
		return fmt.Errorf("no digits in %q", args[0])
	}
	fmt.Fprintln(stdout, identity.HashPhone(args[0]))
	return nil
}

func runReplay(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		file    string
		verbose bool
	)
	flagSet := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&file, "file", "f", "", "path to the YAML scenario (required)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log every ledger event to stderr")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if file == "" {
		return errors.New("replay: --file is required")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return fmt.Errorf("replay: %s: %w", file, err)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	report, err := sc.Run(ctx, logger)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `thermalctl: operator tool for the thermal ledger.

Usage:
  thermalctl hash-phone <number>
  thermalctl replay --file scenario.yaml [--verbose]
  thermalctl version
`)
}
