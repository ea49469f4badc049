// Package gateway speaks to the OpenClaw gateway's command-line surface:
// config provisioning, health probes, pairing and RPC calls. It never
// holds the subprocess itself; that belongs to the supervisor.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CLI describes how to reach the gateway command-line interface.
// The zero override launches through npx so no global install is needed.
type CLI struct {
	Path string   // executable
	Base []string // leading args before the gateway subcommand
}

// DefaultCLI returns the npx launcher.
func DefaultCLI() CLI {
	return CLI{Path: "npx", Base: []string{"openclaw"}}
}

// ResolveCLI honors a prefs override like "openclaw" or
// "node /opt/openclaw/cli.js". An empty override yields the default.
func ResolveCLI(override string) CLI {
	fields := strings.Fields(override)
	if len(fields) == 0 {
		return DefaultCLI()
	}
	return CLI{Path: fields[0], Base: fields[1:]}
}

// Argv builds the full command line for one invocation.
func (c CLI) Argv(args ...string) (string, []string) {
	argv := make([]string, 0, len(c.Base)+len(args))
	argv = append(argv, c.Base...)
	argv = append(argv, args...)
	return c.Path, argv
}

func (c CLI) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Base, " "))
}

// execResult carries the separated output streams of one CLI call.
type execResult struct {
	stdout string
	stderr string
	err    error
}

// runCLI executes one gateway CLI call with a bounded timeout.
// Package variable so tests can substitute a fake gateway.
var runCLI = func(ctx context.Context, cli CLI, args []string, timeout time.Duration) execResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	name, argv := cli.Argv(args...)
	cmd := exec.CommandContext(ctx, name, argv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("gateway call timed out after %s", timeout)
	}
	return execResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}
