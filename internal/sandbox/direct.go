package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"vaultlang/internal/obslog"
	"vaultlang/internal/verrors"
)

// ipcRequest is serialized to the child's stdin: the generated module, its
// capability grants (tokens only, never process-local handles), and any
// program arguments.
type ipcRequest struct {
	Name   string            `json:"name"`
	Code   string            `json:"code"`
	Grants []CapabilityGrant `json:"grants"`
	Args   []string          `json:"args"`
}

// ipcResponse is the child's completion message on stdout's final line.
type ipcResponse struct {
	OK          bool     `json:"ok"`
	ReturnValue string   `json:"return_value"`
	Error       string   `json:"error"`
	Violations  []string `json:"violations"`
}

// gracePeriod is how long a child gets to exit after a graceful terminate
// signal before DirectExecutor force-kills it.
const gracePeriod = 2 * time.Second

// monitorInterval is how often the monitor thread samples child resource
// usage.
const monitorInterval = 50 * time.Millisecond

// DirectExecutor runs the generated module in a freshly spawned host
// runtime process on the same machine, with no container isolation.
type DirectExecutor struct {
	mu            sync.RWMutex
	auditCallback func(AuditEvent)
}

// NewDirectExecutor constructs a DirectExecutor.
func NewDirectExecutor() *DirectExecutor { return &DirectExecutor{} }

// SetAuditCallback registers the audit event sink.
func (e *DirectExecutor) SetAuditCallback(cb func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = cb
}

func (e *DirectExecutor) emit(ev AuditEvent) {
	e.mu.RLock()
	cb := e.auditCallback
	e.mu.RUnlock()
	if cb != nil {
		cb(ev)
	}
}

// Execute spawns prog.HostRuntime as a subprocess, passes prog over an IPC
// request on stdin, enforces prog.Limits via a monitor goroutine and a
// context timeout, and returns the completion Result. Every exit path
// (success, error, timeout, breach) reaches Terminated with OS resources
// released and no leaked processes.
func (e *DirectExecutor) Execute(ctx context.Context, prog Program) (*Result, error) {
	stopTracking := TrackActive()
	defer stopTracking()

	state := StateInitialized
	limits := prog.Limits
	if limits.TimeoutMs == 0 {
		limits = DefaultResourceLimits()
		limits.NetworkAllowed = prog.Limits.NetworkAllowed
	}

	result := &Result{StartedAt: time.Now()}
	defer func() { RecordResult(prog.Name, result) }()
	e.emit(AuditEvent{Type: AuditStart, Timestamp: time.Now(), SessionID: prog.SessionID, Program: prog.Name})

	if err := transition(state, StateSpawning); err != nil {
		return nil, err
	}
	state = StateSpawning

	timeout := time.Duration(limits.TimeoutMs) * time.Millisecond
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := ipcRequest{Name: prog.Name, Code: prog.Code, Grants: prog.Grants, Args: prog.Args}
	payload, err := json.Marshal(req)
	if err != nil {
		if trErr := transition(state, StateTerminated); trErr != nil {
			obslog.Get(obslog.CategorySandbox).Warn("state transition failed after encode failure: %v", trErr)
		}
		return e.fail(result, StatusError, fmt.Sprintf("encoding IPC request: %v", err)), nil
	}

	cmd := exec.CommandContext(execCtx, prog.HostRuntime, prog.Args...)
	cmd.Stdin = bytes.NewReader(payload)

	maxOutput := limits.MaxOutputBytes
	if maxOutput == 0 {
		maxOutput = DefaultResourceLimits().MaxOutputBytes
	}
	stdout := &limitedBuffer{max: maxOutput}
	stderr := &limitedBuffer{max: maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		if trErr := transition(state, StateTerminated); trErr != nil {
			obslog.Get(obslog.CategorySandbox).Warn("state transition failed after spawn failure: %v", trErr)
		}
		return e.fail(result, StatusError, fmt.Sprintf("spawn failure: %v", err)), &verrors.SandboxError{Kind: verrors.SandboxSpawnFailure, Wrapped: err}
	}

	if err := transition(state, StateRunning); err != nil {
		return nil, err
	}
	state = StateRunning
	e.emit(AuditEvent{Type: AuditSandboxed, Timestamp: time.Now(), SessionID: prog.SessionID, Program: prog.Name})

	monitorDone := make(chan struct{})
	breach := make(chan string, 1)
	var peakMem int64
	go e.monitor(cmd, limits, monitorDone, breach, &peakMem)

	waitErr := cmd.Wait()
	close(monitorDone)

	result.FinishedAt = time.Now()
	result.Usage.WallMs = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
	result.Usage.PeakMemoryBytes = atomic.LoadInt64(&peakMem)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err := transition(state, StateTerminating); err != nil {
		obslog.Get(obslog.CategorySandbox).Warn("state transition failed after wait: %v", err)
	}
	state = StateTerminating
	defer func() {
		if err := transition(state, StateTerminated); err != nil {
			obslog.Get(obslog.CategorySandbox).Warn("state transition failed at terminate: %v", err)
		}
	}()

	select {
	case reason := <-breach:
		result.Status = StatusMemory
		result.Error = reason
		e.emit(AuditEvent{Type: AuditKilled, Timestamp: time.Now(), SessionID: prog.SessionID, Program: prog.Name, Result: result})
		return result, nil
	default:
	}

	if execCtx.Err() == context.DeadlineExceeded {
		result.Status = StatusTimeout
		result.Error = fmt.Sprintf("timed out after %s", timeout)
		e.emit(AuditEvent{Type: AuditKilled, Timestamp: time.Now(), SessionID: prog.SessionID, Program: prog.Name, Result: result})
		return result, nil
	}

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			result.Status = StatusError
			result.Error = strings.TrimSpace(result.Stderr)
			e.emit(AuditEvent{Type: AuditError, Timestamp: time.Now(), SessionID: prog.SessionID, Program: prog.Name, Result: result})
			return result, nil
		}
		return e.fail(result, StatusError, waitErr.Error()), nil
	}

	var resp ipcResponse
	if err := json.Unmarshal(lastLine(stdout.String()), &resp); err == nil {
		if resp.OK {
			result.Status = StatusOK
			result.ReturnValue = resp.ReturnValue
		} else {
			result.Status = StatusError
			result.Error = resp.Error
		}
		result.Violations = resp.Violations
	} else {
		result.Status = StatusOK
	}
	result.ExitCode = 0
	e.emit(AuditEvent{Type: AuditComplete, Timestamp: time.Now(), SessionID: prog.SessionID, Program: prog.Name, Result: result})
	return result, nil
}

// monitor samples the child's memory usage at monitorInterval via
// gopsutil's process package (replacing manual /proc parsing, per
// SPEC_FULL.md Part C) and, on a memory-limit breach, sends SIGTERM then
// escalates to SIGKILL after gracePeriod.
func (e *DirectExecutor) monitor(cmd *exec.Cmd, limits ResourceLimits, done chan struct{}, breach chan<- string, peakMem *int64) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	var termSentAt time.Time

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if cmd.Process == nil {
				continue
			}
			proc, err := process.NewProcess(int32(cmd.Process.Pid))
			if err != nil {
				continue
			}
			mem, err := proc.MemoryInfo()
			if err != nil || mem == nil {
				continue
			}
			for {
				cur := atomic.LoadInt64(peakMem)
				if int64(mem.RSS) <= cur || atomic.CompareAndSwapInt64(peakMem, cur, int64(mem.RSS)) {
					break
				}
			}
			if limits.MaxMemoryBytes > 0 && int64(mem.RSS) > limits.MaxMemoryBytes {
				if termSentAt.IsZero() {
					termSentAt = time.Now()
					_ = cmd.Process.Signal(syscall.SIGTERM)
					breach <- fmt.Sprintf("memory limit exceeded: %d > %d bytes", mem.RSS, limits.MaxMemoryBytes)
				} else if time.Since(termSentAt) > gracePeriod {
					_ = cmd.Process.Kill()
				}
			}
		}
	}
}

func (e *DirectExecutor) fail(result *Result, status Status, msg string) *Result {
	result.FinishedAt = time.Now()
	result.Status = status
	result.Error = msg
	return result
}

// limitedBuffer caps captured output to max bytes, discarding the rest
// (mirrors tactile/direct.go's limitedWriter).
type limitedBuffer struct {
	buf bytes.Buffer
	max int64
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	remaining := l.max - int64(l.buf.Len())
	if remaining <= 0 {
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		l.buf.Write(p[:remaining])
		return len(p), nil
	}
	l.buf.Write(p)
	return len(p), nil
}

func (l *limitedBuffer) String() string { return l.buf.String() }

// lastLine returns the final non-empty line of s, for extracting the
// child's one-line completion message from a stdout stream that may also
// carry the program's own printed output.
func lastLine(s string) []byte {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) == 0 {
		return nil
	}
	return []byte(lines[len(lines)-1])
}
