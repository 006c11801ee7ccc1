package main

import (
	"context"

	"github.com/spf13/cobra"

	"vaultlang/internal/stdlib"
	"vaultlang/internal/verrors"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "run the security analyzer over an SL source file and report violations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unit, mod, err := parseFile(args[0])
		if err != nil {
			return classifyErr(err, exitCompileError)
		}

		reg := stdlib.Default()
		if err := resolveImports(mod, args[0], reg); err != nil {
			return classifyErr(err, exitCompileError)
		}

		harness := buildHarness(reg)
		violations, err := harness.Analyze(context.Background(), unit, mod)
		if err != nil {
			return classifyErr(&verrors.InternalError{Message: "analysis harness failed", Wrapped: err}, exitIOError)
		}

		printViolations(cmd.OutOrStdout(), violations)
		if hasBlockingViolation(violations) {
			return cliError{err: errAnalysisBlocked, code: exitAnalysisError}
		}
		return nil
	},
}
