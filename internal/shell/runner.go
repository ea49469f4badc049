// Package shell runs host commands for diagnostics. Commands come from
// the operator's own command line, so there is no sandboxing here.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
)

// DefaultTimeout bounds a passthrough command.
const DefaultTimeout = 5 * time.Minute

// Runner handles host command execution.
type Runner struct {
	config RunnerConfig
}

// NewRunner creates a new Runner with the given configuration.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Runner{config: cfg}
}

// Run executes a command and returns stdout.
// A non-zero exit surfaces as an *Error carrying the exit code.
func (r *Runner) Run(ctx context.Context, command string) ([]byte, error) {
	result, err := r.RunFull(ctx, command, "")
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, &Error{ExitCode: result.ExitCode}
	}
	return result.Stdout, nil
}

// RunFull executes a command and returns stdout, stderr and exit code.
// The workDir parameter overrides the default working directory if non-empty.
func (r *Runner) RunFull(ctx context.Context, command, workDir string) (*Result, error) {
	if workDir == "" {
		workDir = r.config.WorkingDir
	}

	cmdPreview := preview(command)
	L_debug("shell: running", "cmd", cmdPreview, "workDir", workDir)

	execCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", "-c", command)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startTime := time.Now()
	err := cmd.Run()
	elapsed := time.Since(startTime)

	exitCode := 0
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			L_warn("shell: timed out", "cmd", cmdPreview, "timeout", r.config.Timeout)
			return nil, fmt.Errorf("command timed out after %v", r.config.Timeout)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("exec failed: %w", err)
		}
		L_debug("shell: non-zero exit", "cmd", cmdPreview, "exitCode", exitCode, "elapsed", elapsed)
	} else {
		L_debug("shell: completed", "cmd", cmdPreview, "elapsed", elapsed, "stdoutLen", stdout.Len(), "stderrLen", stderr.Len())
	}

	return &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}

// preview flattens a command to a single short line for log output.
func preview(command string) string {
	p := strings.NewReplacer("\n", " ", "\r", "").Replace(command)
	if len(p) > 50 {
		return p[:50] + "..."
	}
	return p
}
