package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
	. "github.com/roelfdiedericks/clawkeeper/internal/metrics"
)

const (
	// CallTimeout covers a full model round trip, passed to the gateway
	// as its own --timeout and used (with grace) as the outer bound.
	CallTimeout = 130 * time.Second

	// fixedSessionKey is the session identity the gateway expects on
	// every agent call. The caller-supplied session key only feeds the
	// idempotency key.
	fixedSessionKey = "main"

	// agentMethod is the RPC method that feeds a message to the agent.
	agentMethod = "agent"
)

var (
	// ErrEmptyResponse marks a call that completed with no output at all.
	ErrEmptyResponse = errors.New("empty response from gateway")

	// ErrRemote marks a call that produced only error output.
	ErrRemote = errors.New("gateway error")
)

// Client issues RPC calls against a provisioned gateway. Every call
// requires the auth token from openclaw.json; a missing or unreadable
// token fails the call before anything is dispatched.
type Client struct {
	cli     CLI
	timeout time.Duration
}

// NewClient returns a client with the default call timeout.
func NewClient(cli CLI) *Client {
	return &Client{cli: cli, timeout: CallTimeout}
}

// invokeParams is the envelope for the agent method.
type invokeParams struct {
	Message        string `json:"message"`
	SessionKey     string `json:"sessionKey"`
	IdempotencyKey string `json:"idempotencyKey"`
	Deliver        bool   `json:"deliver"`
}

// Invoke sends one message to the agent and returns its reply text.
// sessionKey distinguishes callers in the idempotency key so a
// transport retry cannot double-process the message.
func (c *Client) Invoke(ctx context.Context, agentID, message, sessionKey string) (string, error) {
	if sessionKey == "" {
		sessionKey = fixedSessionKey
	}
	params := invokeParams{
		Message:        message,
		SessionKey:     fixedSessionKey,
		IdempotencyKey: fmt.Sprintf("%s-%d", sessionKey, time.Now().UnixMilli()),
		Deliver:        false,
	}
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to build request envelope: %w", err)
	}

	L_debug("gateway: invoking agent", "agent", agentID, "ikey", params.IdempotencyKey)
	return c.call(ctx, agentMethod, string(body))
}

// Call invokes an arbitrary gateway method. params must be a JSON
// object; arrays, scalars and null are rejected before dispatch.
func (c *Client) Call(ctx context.Context, method, params string) (string, error) {
	if strings.TrimSpace(method) == "" {
		return "", errors.New("method name is required")
	}
	trimmed := strings.TrimSpace(params)
	if trimmed == "" {
		trimmed = "{}"
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil || trimmed == "null" {
		return "", fmt.Errorf("params must be a JSON object, got %q", truncate(trimmed, 80))
	}
	return c.call(ctx, method, trimmed)
}

// call reads the token, runs the CLI and classifies the response.
func (c *Client) call(ctx context.Context, method, paramsJSON string) (string, error) {
	token, err := ReadToken()
	if err != nil {
		return "", err
	}

	args := []string{
		"gateway", "call", method,
		"--json",
		"--expect-final",
		"--timeout", strconv.FormatInt(c.timeout.Milliseconds(), 10),
		"--params", paramsJSON,
		"--token", token,
	}

	start := time.Now()
	res := runCLI(ctx, c.cli, args, c.timeout+10*time.Second)
	MetricDuration("gateway", "call", time.Since(start))
	L_debug("gateway: call finished", "method", method, "elapsed", time.Since(start).Round(time.Millisecond))

	// A CLI that couldn't run at all (npx missing, timeout) is a
	// transport failure, not a gateway response
	var exitErr *exec.ExitError
	if res.err != nil && !errors.As(res.err, &exitErr) {
		MetricFailWithReason("gateway", "call", "transport")
		return "", fmt.Errorf("failed to run gateway CLI: %w", res.err)
	}

	stdout := strings.TrimSpace(res.stdout)
	stderr := strings.TrimSpace(res.stderr)

	switch {
	case stdout != "":
		MetricSuccess("gateway", "call")
		return stdout, nil
	case stderr != "":
		MetricFailWithReason("gateway", "call", "remote")
		return "", fmt.Errorf("%w: %s", ErrRemote, stderr)
	default:
		MetricFailWithReason("gateway", "call", "empty")
		return "", ErrEmptyResponse
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
