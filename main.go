// Package main provides the entry point for the tamperdetect CLI.
//
// tamperdetect compares an uploaded image against a trusted original and
// marks the regions that differ.
//
// Usage:
//
//	tamperdetect serve
//	tamperdetect compare original.png suspect.png --out ./out
//	tamperdetect reference set original.png
//
// See --help for all available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tamperdetect/config"
	"tamperdetect/logging"
)

// app carries the resolved configuration to the subcommands.
type app struct {
	cfg *config.Config
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "tamperdetect",
		Short: "Detect tampering by comparing an image with its original",
		Long: `tamperdetect compares a candidate image with a trusted original using the
structural similarity index, and outlines every region that differs.

Configuration is read from --config, ./.tamperdetect.yaml or the XDG config
directory, then from .env and TAMPERDETECT_* environment variables.`,
		Version:           getVersion(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
		PersistentPostRun: func(*cobra.Command, []string) { logging.CloseLogger() },
	}

	cmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentFlags().String("logfile", "", "Also write JSON logs to this file")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newCompareCmd(a))
	cmd.AddCommand(newReferenceCmd(a))
	cmd.AddCommand(newHistoryCmd(a))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// load resolves the configuration, applies the global flags and starts logging.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.LoadOptions{ConfigPath: path})
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("debug") {
		cfg.Debug, _ = cmd.Flags().GetBool("debug")
	}
	if cmd.Flags().Changed("logfile") {
		cfg.LogFile, _ = cmd.Flags().GetString("logfile")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.SetupLogger(cfg.LogFile, cfg.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to setup logging: %v\n", err)
	}

	a.cfg = cfg
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
