// Package main implements the vaultlang CLI: a minimal four-command
// contract over the compiler/analyzer/sandbox core.
//
// This file is the entry point and command registration hub; each
// subcommand's logic lives in its own cmd_*.go file.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"vaultlang/internal/obslog"
	"vaultlang/internal/vconfig"
)

var (
	verbose    bool
	configPath string
	workspace  string
	timeout    time.Duration

	cfg      *vconfig.Config
	colorOut bool
)

var rootCmd = &cobra.Command{
	Use:   "vaultlang",
	Short: "vaultlang - security-first SL-to-HTL transpiler",
	Long: `vaultlang compiles SL source to HTL under a capability-based sandbox.

Every Member read is gated through the Safe-Attribute Registry, every host
facility call is checked against a whitelist, and every sandboxed run is
bounded by declared resource limits and capability grants.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}

		loaded, err := vconfig.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if configPath == "" {
			if wsLoaded, werr := vconfig.LoadFromWorkspace(ws); werr == nil {
				loaded = wsLoaded
			}
		}
		cfg = loaded

		level := obslog.LevelInfo
		if verbose {
			level = obslog.LevelDebug
		}
		if err := obslog.Initialize(ws, cfg.Debug || verbose, level, false); err != nil {
			fmt.Fprintf(os.Stderr, "warning: obslog init failed: %v\n", err)
		}

		colorOut = isatty.IsTerminal(os.Stdout.Fd())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		obslog.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: <workspace>/.vaultlang/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "override the sandbox timeout for this invocation")

	rootCmd.AddCommand(compileCmd, runCmd, analyzeCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
