package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vaultlang/internal/sandbox"
	"vaultlang/internal/vconfig"
)

var (
	runRuntime        string
	runDockerImage    string
	runNetworkAllowed bool
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "compile an SL source file and execute it under the sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		genResult, mod, violations, err := runCompile(args[0])
		if err != nil {
			return classifyErr(err, exitCompileError)
		}
		if genResult == nil {
			printViolations(cmd.ErrOrStderr(), violations)
			os.Exit(exitAnalysisError)
		}

		tmpFile, err := os.CreateTemp("", "vaultlang-*.htl.js")
		if err != nil {
			return classifyErr(err, exitIOError)
		}
		defer os.Remove(tmpFile.Name())
		if _, err := tmpFile.WriteString(genResult.Code); err != nil {
			tmpFile.Close()
			return classifyErr(err, exitIOError)
		}
		tmpFile.Close()

		limits := sandbox.ResourceLimits{
			TimeoutMs:      cfg.SandboxTimeoutMs,
			MaxMemoryBytes: cfg.SandboxMemoryBytes,
			MaxOutputBytes: sandbox.DefaultResourceLimits().MaxOutputBytes,
			NetworkAllowed: runNetworkAllowed,
		}
		if timeout > 0 {
			limits.TimeoutMs = timeout.Milliseconds()
		}

		prog := sandbox.Program{
			Name:        args[0],
			Code:        genResult.Code,
			Grants:      grantsFromModule(mod),
			Limits:      limits,
			SessionID:   uuid.NewString(),
			Args:        []string{tmpFile.Name()},
			HostRuntime: runRuntime,
		}

		executor, err := buildExecutor()
		if err != nil {
			return classifyErr(err, exitRuntimeOrSandbox)
		}
		if audited, ok := executor.(sandbox.AuditedExecutor); ok {
			audited.SetAuditCallback(func(ev sandbox.AuditEvent) {
				if verbose {
					fmt.Fprintf(cmd.ErrOrStderr(), "[sandbox] %s %s\n", ev.Type, ev.Program)
				}
			})
		}

		result, err := executor.Execute(context.Background(), prog)
		if err != nil {
			return classifyErr(err, exitRuntimeOrSandbox)
		}

		fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
		fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)

		switch result.Status {
		case sandbox.StatusOK:
			return nil
		default:
			fmt.Fprintf(cmd.ErrOrStderr(), "sandbox run ended with status %s: %s\n", result.Status, result.Error)
			return cliError{err: fmt.Errorf("sandbox status %s", result.Status), code: exitRuntimeOrSandbox}
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&runRuntime, "runtime", "node", "path to the host-language runtime interpreter binary")
	runCmd.Flags().StringVar(&runDockerImage, "docker-image", "", "override the docker image used when sandbox_mode is docker")
	runCmd.Flags().BoolVar(&runNetworkAllowed, "allow-network", false, "permit network access for this run")
}

// buildExecutor selects the sandbox backend named by cfg.SandboxMode.
func buildExecutor() (sandbox.Executor, error) {
	switch cfg.SandboxMode {
	case vconfig.SandboxModeDocker:
		dockerCfg := sandbox.DefaultDockerConfig()
		dockerCfg.NetworkAllowed = runNetworkAllowed
		if runDockerImage != "" {
			dockerCfg.Image = runDockerImage
		}
		return sandbox.NewDockerExecutor("", dockerCfg)
	default:
		return sandbox.NewDirectExecutor(), nil
	}
}
