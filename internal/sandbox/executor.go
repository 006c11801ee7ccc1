package sandbox

import (
	"context"
	"fmt"

	"vaultlang/internal/verrors"
)

// Executor runs one Program to completion and returns its Result. Both
// DirectExecutor and the Docker-backed executor satisfy this interface
// (grounded on tactile/executor_interface.go's Executor contract).
type Executor interface {
	Execute(ctx context.Context, prog Program) (*Result, error)
}

// AuditedExecutor is satisfied by an Executor that also emits an audit
// event stream.
type AuditedExecutor interface {
	Executor
	SetAuditCallback(func(AuditEvent))
}

// transition validates one state-machine edge against the explicit
// transition table, returning a SandboxError if the edge is illegal - this
// should never fire from well-behaved callers, but guards against a coding
// error silently skipping a state.
func transition(from, to State) error {
	allowed := map[State][]State{
		StateInitialized: {StateSpawning},
		StateSpawning:    {StateRunning, StateTerminated},
		StateRunning:     {StateTerminating},
		StateTerminating: {StateTerminated},
	}
	for _, ok := range allowed[from] {
		if ok == to {
			return nil
		}
	}
	return &verrors.SandboxError{Kind: verrors.SandboxIPCFailure, Message: fmt.Sprintf("illegal state transition %s -> %s", from, to)}
}
