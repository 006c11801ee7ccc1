package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check FILE",
	Short: "parse an SL source file and run the pattern detector only, without codegen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unit, _, err := parseFile(args[0])
		if err != nil {
			return classifyErr(err, exitCompileError)
		}

		violations := patternsOnly(unit)
		printViolations(cmd.OutOrStdout(), violations)
		if hasBlockingViolation(violations) {
			return cliError{err: errAnalysisBlocked, code: exitAnalysisError}
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "ok")
		return nil
	},
}
