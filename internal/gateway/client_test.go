package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
)

// stubCLI replaces the CLI runner for the duration of a test and
// records every invocation's args.
func stubCLI(t *testing.T, result execResult) *[][]string {
	t.Helper()
	var calls [][]string
	orig := runCLI
	runCLI = func(ctx context.Context, cli CLI, args []string, timeout time.Duration) execResult {
		calls = append(calls, args)
		return result
	}
	t.Cleanup(func() { runCLI = orig })
	return &calls
}

func provisionFor(t *testing.T) string {
	t.Helper()
	pointHome(t)
	token, err := EnsureConfig(18789, "loopback")
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func argValue(args []string, flag string) (string, bool) {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func TestInvokeEnvelope(t *testing.T) {
	token := provisionFor(t)
	calls := stubCLI(t, execResult{stdout: "hello back"})

	client := NewClient(DefaultCLI())
	before := time.Now().UnixMilli()
	reply, err := client.Invoke(context.Background(), "bot7", "hello", "sess1")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply != "hello back" {
		t.Errorf("reply = %q", reply)
	}

	if len(*calls) != 1 {
		t.Fatalf("CLI calls = %d, want 1", len(*calls))
	}
	args := (*calls)[0]

	if args[0] != "gateway" || args[1] != "call" || args[2] != "agent" {
		t.Errorf("command = %v", args[:3])
	}
	if got, ok := argValue(args, "--token"); !ok || got != token {
		t.Errorf("--token = %q, want %q", got, token)
	}
	if got, _ := argValue(args, "--timeout"); got != "130000" {
		t.Errorf("--timeout = %q", got)
	}

	rawParams, ok := argValue(args, "--params")
	if !ok {
		t.Fatal("--params missing")
	}
	var params struct {
		Message        string `json:"message"`
		SessionKey     string `json:"sessionKey"`
		IdempotencyKey string `json:"idempotencyKey"`
		Deliver        bool   `json:"deliver"`
	}
	if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
		t.Fatalf("params not JSON: %v", err)
	}
	if params.Message != "hello" {
		t.Errorf("message = %q", params.Message)
	}
	if params.SessionKey != "main" {
		t.Errorf("sessionKey = %q, want main", params.SessionKey)
	}
	if params.Deliver {
		t.Error("deliver = true, want false")
	}
	if !strings.HasPrefix(params.IdempotencyKey, "sess1-") {
		t.Errorf("idempotencyKey = %q, want sess1- prefix", params.IdempotencyKey)
	}
	millis, err := strconv.ParseInt(strings.TrimPrefix(params.IdempotencyKey, "sess1-"), 10, 64)
	if err != nil {
		t.Errorf("idempotencyKey suffix not numeric: %q", params.IdempotencyKey)
	} else if millis < before || millis > time.Now().UnixMilli() {
		t.Errorf("idempotencyKey timestamp out of range: %d", millis)
	}
}

func TestInvokeWithoutConfigNeverDispatches(t *testing.T) {
	pointHome(t)
	calls := stubCLI(t, execResult{stdout: "should not run"})

	client := NewClient(DefaultCLI())
	_, err := client.Invoke(context.Background(), "bot", "hi", "s")
	if err == nil {
		t.Fatal("expected error with no gateway config")
	}
	if len(*calls) != 0 {
		t.Errorf("CLI was invoked %d times before token check", len(*calls))
	}
}

func TestResponseClassification(t *testing.T) {
	provisionFor(t)

	tests := []struct {
		name    string
		result  execResult
		want    string
		wantErr error
	}{
		{"stdout verbatim", execResult{stdout: "  reply text \n"}, "reply text", nil},
		{"stderr only", execResult{stderr: "boom\n"}, "", ErrRemote},
		{"both empty", execResult{}, "", ErrEmptyResponse},
		{"stdout wins over stderr", execResult{stdout: "answer", stderr: "warning"}, "answer", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubCLI(t, tt.result)
			client := NewClient(DefaultCLI())
			got, err := client.Invoke(context.Background(), "a", "m", "s")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoteErrorCarriesText(t *testing.T) {
	provisionFor(t)
	stubCLI(t, execResult{stderr: "agent exploded: reason 42"})

	client := NewClient(DefaultCLI())
	_, err := client.Invoke(context.Background(), "a", "m", "s")
	if err == nil || !strings.Contains(err.Error(), "agent exploded: reason 42") {
		t.Errorf("err = %v, want stderr text carried", err)
	}
}

func TestCallRejectsNonObjectParams(t *testing.T) {
	provisionFor(t)
	calls := stubCLI(t, execResult{stdout: "x"})

	client := NewClient(DefaultCLI())
	for _, params := range []string{`[1,2]`, `"scalar"`, `42`, `null`, `{broken`} {
		if _, err := client.Call(context.Background(), "sessions.list", params); err == nil {
			t.Errorf("Call accepted params %q", params)
		}
	}
	if len(*calls) != 0 {
		t.Errorf("CLI invoked for invalid params")
	}
}

func TestCallDefaultsEmptyParams(t *testing.T) {
	provisionFor(t)
	calls := stubCLI(t, execResult{stdout: "ok"})

	client := NewClient(DefaultCLI())
	if _, err := client.Call(context.Background(), "sessions.list", "  "); err != nil {
		t.Fatalf("Call: %v", err)
	}
	got, _ := argValue((*calls)[0], "--params")
	if got != "{}" {
		t.Errorf("--params = %q, want {}", got)
	}
	if (*calls)[0][2] != "sessions.list" {
		t.Errorf("method = %q", (*calls)[0][2])
	}
}

func TestCallRequiresMethod(t *testing.T) {
	provisionFor(t)
	stubCLI(t, execResult{stdout: "x"})

	client := NewClient(DefaultCLI())
	if _, err := client.Call(context.Background(), "  ", "{}"); err == nil {
		t.Error("Call accepted blank method")
	}
}

func TestProbeMarkerMatching(t *testing.T) {
	tests := []struct {
		name   string
		result execResult
		want   bool
	}{
		{"ok in stdout", execResult{stdout: "status: OK"}, true},
		{"ok in stderr", execResult{stderr: "gateway oK and serving"}, true},
		{"case insensitive", execResult{stdout: "Ok"}, true},
		{"no marker", execResult{stdout: "offline", stderr: "down"}, false},
		{"empty output with error", execResult{err: errors.New("exec failed")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubCLI(t, tt.result)
			probe := NewProbe(DefaultCLI())
			if got := probe.Healthy(context.Background()); got != tt.want {
				t.Errorf("Healthy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveCLI(t *testing.T) {
	tests := []struct {
		override string
		path     string
		base     []string
	}{
		{"", "npx", []string{"openclaw"}},
		{"openclaw", "openclaw", nil},
		{"node /opt/openclaw/cli.js", "node", []string{"/opt/openclaw/cli.js"}},
	}
	for _, tt := range tests {
		cli := ResolveCLI(tt.override)
		if cli.Path != tt.path {
			t.Errorf("ResolveCLI(%q).Path = %q, want %q", tt.override, cli.Path, tt.path)
		}
		if len(cli.Base) != len(tt.base) {
			t.Errorf("ResolveCLI(%q).Base = %v, want %v", tt.override, cli.Base, tt.base)
			continue
		}
		for i := range tt.base {
			if cli.Base[i] != tt.base[i] {
				t.Errorf("ResolveCLI(%q).Base = %v, want %v", tt.override, cli.Base, tt.base)
			}
		}
	}
}
