package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vaultlang/internal/analyzer"
	"vaultlang/internal/ast"
	"vaultlang/internal/codegen"
	"vaultlang/internal/obslog"
	"vaultlang/internal/stdlib"
	"vaultlang/internal/verrors"
)

var compileOut string

var compileCmd = &cobra.Command{
	Use:   "compile FILE",
	Short: "compile an SL source file to HTL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, _, violations, err := runCompile(args[0])
		if err != nil {
			return classifyErr(err, exitCompileError)
		}
		if result == nil {
			printViolations(cmd.ErrOrStderr(), violations)
			os.Exit(exitAnalysisError)
		}

		if compileOut != "" {
			if err := os.WriteFile(compileOut, []byte(result.Code), 0o644); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(exitIOError)
			}
		} else {
			fmt.Fprint(cmd.OutOrStdout(), result.Code)
		}
		return nil
	},
}

func init() {
	compileCmd.Flags().StringVarP(&compileOut, "out", "o", "", "write generated HTL to this file instead of stdout")
}

// runCompile parses path, resolves its imports, runs the analysis harness,
// and - unless strict mode is blocked by a violation - lowers the module to
// HTL. A nil *codegen.Result with a nil error means strict mode blocked
// codegen; the caller inspects violations to report why. The parsed Module
// is always returned alongside, so callers needing it (e.g. `run`, for its
// capability grants) don't have to parse path a second time.
func runCompile(path string) (*codegen.Result, *ast.Module, []analyzer.Violation, error) {
	unit, mod, err := parseFile(path)
	if err != nil {
		return nil, nil, nil, err
	}

	reg := stdlib.Default()
	if err := resolveImports(mod, path, reg); err != nil {
		return nil, mod, nil, err
	}

	harness := buildHarness(reg)
	violations, err := harness.Analyze(context.Background(), unit, mod)
	if err != nil {
		return nil, mod, nil, &verrors.InternalError{Message: "analysis harness failed", Wrapped: err}
	}

	if cfg.StrictSecurity && hasBlockingViolation(violations) {
		return nil, mod, violations, nil
	}

	gen := codegen.New(codegen.Options{StrictMode: cfg.StrictSecurity})
	result, err := gen.Generate(unit.Name, mod)
	if err != nil {
		return nil, mod, violations, err
	}
	obslog.Get(obslog.CategoryCLI).Info("compiled %s: %d bytes HTL, %d violations", path, len(result.Code), len(violations))
	return result, mod, violations, nil
}
