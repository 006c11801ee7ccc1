package main

import (
	"vaultlang/internal/parser"
	"vaultlang/internal/verrors"
)

// Exit codes: 0 success, 1 analysis violation at or above error severity,
// 2 compile error, 3 runtime/sandbox failure, 4 I/O error.
const (
	exitSuccess          = 0
	exitAnalysisError    = 1
	exitCompileError     = 2
	exitRuntimeOrSandbox = 3
	exitIOError          = 4
)

// exitCodeFor classifies a terminal error into the exit code space above,
// for cmd.Execute's own error return path (a command that exits directly
// via os.Exit inside its RunE has already chosen a more specific code;
// this only covers errors that bubble up to main unclassified).
func exitCodeFor(err error) int {
	if ce, ok := err.(cliError); ok {
		return ce.code
	}
	switch err.(type) {
	case *verrors.ParseError, *verrors.CodegenError, *parser.ParseError:
		return exitCompileError
	case *verrors.ResolverError:
		return exitCompileError
	case *verrors.SandboxError, *verrors.CapabilityError:
		return exitRuntimeOrSandbox
	default:
		return exitIOError
	}
}
