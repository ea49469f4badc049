package gateway

import (
	"context"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds a single health call. npx may need to
// resolve the package on first use, so this is generous.
const DefaultProbeTimeout = 10 * time.Second

// readyMarker is the affirmative substring looked for in health output.
const readyMarker = "ok"

// HealthProbe reports whether a gateway is reachable and serving.
// The supervisor's state machine only depends on this interface, so the
// text-matching CLI probe below can be swapped for something structured
// without touching the supervisor.
type HealthProbe interface {
	Healthy(ctx context.Context) bool
}

// CLIProbe checks health by running the gateway's health subcommand and
// scanning each output stream for the marker, case-insensitively.
// The exit code is ignored; only the marker text is trusted.
type CLIProbe struct {
	CLI     CLI
	Timeout time.Duration
}

// NewProbe returns a CLIProbe with the default timeout.
func NewProbe(cli CLI) CLIProbe {
	return CLIProbe{CLI: cli, Timeout: DefaultProbeTimeout}
}

// Healthy runs one bounded health call.
func (p CLIProbe) Healthy(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	res := runCLI(ctx, p.CLI, []string{"gateway", "health"}, timeout)
	return hasMarker(res.stdout) || hasMarker(res.stderr)
}

func hasMarker(s string) bool {
	return strings.Contains(strings.ToLower(s), readyMarker)
}
