package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"vaultlang/internal/obslog"
	"vaultlang/internal/verrors"
)

// DockerConfig selects the image and mount layout a DockerExecutor runs
// programs under. Grounded on tactile/types.go's SandboxConfig, narrowed to
// the fields this executor actually uses.
type DockerConfig struct {
	Image          string
	NetworkAllowed bool
	ReadOnlyRoot   bool
}

// DefaultDockerConfig returns the vaultlang-runtime:latest image with a
// read-only root filesystem.
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{Image: "vaultlang-runtime:latest", ReadOnlyRoot: true}
}

// DockerExecutor runs a Program inside a disposable container via the real
// Docker engine API, replacing tactile/docker.go's `exec.LookPath("docker")`
// CLI-wrapper approach with github.com/docker/docker/client, grounded on
// the connection/transport pattern in
// mdzesseis-log_capturer_go/internal/docker/http_client.go.
type DockerExecutor struct {
	mu            sync.RWMutex
	cli           *client.Client
	config        DockerConfig
	auditCallback func(AuditEvent)
}

// NewDockerExecutor negotiates an API version against the daemon at
// dockerHost (empty string uses the default /var/run/docker.sock) the same
// way http_client.go's NewClientWithOpts does.
func NewDockerExecutor(dockerHost string, cfg DockerConfig) (*DockerExecutor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if dockerHost != "" {
		opts = append(opts, client.WithHost(dockerHost))
	} else {
		opts = append(opts, client.FromEnv)
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, &verrors.SandboxError{Kind: verrors.SandboxSpawnFailure, Message: "docker client init", Wrapped: err}
	}
	return &DockerExecutor{cli: cli, config: cfg}, nil
}

// SetAuditCallback registers the audit event sink.
func (e *DockerExecutor) SetAuditCallback(cb func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = cb
}

func (e *DockerExecutor) emit(ev AuditEvent) {
	e.mu.RLock()
	cb := e.auditCallback
	e.mu.RUnlock()
	if cb != nil {
		cb(ev)
	}
}

// HealthCheck pings the daemon, mirroring http_client.go's HealthCheck.
func (e *DockerExecutor) HealthCheck(ctx context.Context) error {
	_, err := e.cli.Ping(ctx)
	return err
}

// Execute creates, starts, awaits, and removes a container running
// prog.HostRuntime with prog serialized over the container's stdin, under
// the resource limits translated to container.Resources.
func (e *DockerExecutor) Execute(ctx context.Context, prog Program) (*Result, error) {
	stopTracking := TrackActive()
	defer stopTracking()

	result := &Result{StartedAt: time.Now()}
	defer func() { RecordResult(prog.Name, result) }()
	e.emit(AuditEvent{Type: AuditStart, Timestamp: time.Now(), SessionID: prog.SessionID, Program: prog.Name})

	limits := prog.Limits
	if limits.TimeoutMs == 0 {
		limits = DefaultResourceLimits()
	}

	req := ipcRequest{Name: prog.Name, Code: prog.Code, Grants: prog.Grants, Args: prog.Args}
	payload, err := json.Marshal(req)
	if err != nil {
		return e.fail(result, fmt.Sprintf("encoding IPC request: %v", err)), nil
	}

	networkMode := "none"
	if limits.NetworkAllowed {
		networkMode = "bridge"
	}

	containerCfg := &container.Config{
		Image:        e.config.Image,
		Cmd:          append([]string{prog.HostRuntime}, prog.Args...),
		OpenStdin:    true,
		StdinOnce:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	}
	hostCfg := &container.HostConfig{
		NetworkMode:    container.NetworkMode(networkMode),
		ReadonlyRootfs: e.config.ReadOnlyRoot,
		Resources: container.Resources{
			Memory: limits.MaxMemoryBytes,
		},
	}

	created, err := e.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		e.emit(AuditEvent{Type: AuditError, Timestamp: time.Now(), SessionID: prog.SessionID, Program: prog.Name})
		return e.fail(result, fmt.Sprintf("container create: %v", err)), &verrors.SandboxError{Kind: verrors.SandboxSpawnFailure, Wrapped: err}
	}
	containerID := created.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.cli.ContainerRemove(removeCtx, containerID, types.ContainerRemoveOptions{Force: true})
	}()

	attach, err := e.cli.ContainerAttach(ctx, containerID, types.ContainerAttachOptions{
		Stream: true, Stdin: true, Stdout: true, Stderr: true,
	})
	if err != nil {
		return e.fail(result, fmt.Sprintf("container attach: %v", err)), &verrors.SandboxError{Kind: verrors.SandboxIPCFailure, Wrapped: err}
	}
	defer attach.Close()

	timeout := time.Duration(limits.TimeoutMs) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := e.cli.ContainerStart(runCtx, containerID, types.ContainerStartOptions{}); err != nil {
		return e.fail(result, fmt.Sprintf("container start: %v", err)), &verrors.SandboxError{Kind: verrors.SandboxSpawnFailure, Wrapped: err}
	}
	e.emit(AuditEvent{Type: AuditSandboxed, Timestamp: time.Now(), SessionID: prog.SessionID, Program: prog.Name})

	if _, err := attach.Conn.Write(payload); err != nil {
		obslog.Get(obslog.CategorySandbox).Warn("writing IPC payload to container stdin: %v", err)
	}
	attach.CloseWrite()

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, cErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- cErr
	}()

	waitCh, errCh := e.cli.ContainerWait(runCtx, containerID, container.WaitConditionNotRunning)

	defer func() {
		result.FinishedAt = time.Now()
		result.Usage.WallMs = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
	}()

	select {
	case <-runCtx.Done():
		result.Status = StatusTimeout
		result.Error = fmt.Sprintf("timed out after %s", timeout)
		e.emit(AuditEvent{Type: AuditKilled, Timestamp: time.Now(), SessionID: prog.SessionID, Program: prog.Name, Result: result})
	case waitErr := <-errCh:
		return e.fail(result, fmt.Sprintf("container wait: %v", waitErr)), nil
	case body := <-waitCh:
		<-copyDone
		result.Stdout = stdout.String()
		result.Stderr = stderr.String()
		result.ExitCode = int(body.StatusCode)
		if body.StatusCode == 0 {
			result.Status = StatusOK
			var resp ipcResponse
			if err := json.Unmarshal(lastLine(result.Stdout), &resp); err == nil {
				result.ReturnValue = resp.ReturnValue
				result.Violations = resp.Violations
				if !resp.OK {
					result.Status = StatusError
					result.Error = resp.Error
				}
			}
		} else {
			result.Status = StatusError
			result.Error = result.Stderr
		}
		result.Usage.PeakMemoryBytes = e.readPeakMemory(ctx, containerID)
		e.emit(AuditEvent{Type: AuditComplete, Timestamp: time.Now(), SessionID: prog.SessionID, Program: prog.Name, Result: result})
	}

	return result, nil
}

// readPeakMemory takes a single non-streaming stats snapshot of the
// (still-present, pre-removal) container and returns its reported peak
// memory usage, or 0 if stats are unavailable.
func (e *DockerExecutor) readPeakMemory(ctx context.Context, containerID string) int64 {
	stats, err := e.cli.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return 0
	}
	defer stats.Body.Close()

	var v types.StatsJSON
	if err := json.NewDecoder(stats.Body).Decode(&v); err != nil {
		return 0
	}
	if v.MemoryStats.MaxUsage > 0 {
		return int64(v.MemoryStats.MaxUsage)
	}
	return int64(v.MemoryStats.Usage)
}

func (e *DockerExecutor) fail(result *Result, msg string) *Result {
	result.FinishedAt = time.Now()
	result.Status = StatusError
	result.Error = msg
	return result
}
