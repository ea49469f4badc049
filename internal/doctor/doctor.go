// Package doctor runs environment diagnostics: settings, gateway
// config, agent credentials, the Node.js runtime and the live gateway.
// Each check reports independently so one failure never hides another.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/roelfdiedericks/clawkeeper/internal/agents"
	"github.com/roelfdiedericks/clawkeeper/internal/config"
	"github.com/roelfdiedericks/clawkeeper/internal/gateway"
	"github.com/roelfdiedericks/clawkeeper/internal/paths"
	"github.com/roelfdiedericks/clawkeeper/internal/supervisor"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Failed counts checks that failed outright. Warnings don't count.
func (d Diagnosis) Failed() int {
	n := 0
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			n++
		}
	}
	return n
}

// Options selects what to diagnose against.
type Options struct {
	CLI     gateway.CLI
	Probe   gateway.HealthProbe // nil means probe through CLI
	Version string
}

// anthropicModelsURL is the endpoint used to validate a stored API key.
// Package variable so tests can point it at a local server.
var anthropicModelsURL = "https://api.anthropic.com/v1/models"

// Run executes all diagnostic checks.
func Run(ctx context.Context, opts Options) Diagnosis {
	if opts.Probe == nil {
		opts.Probe = gateway.NewProbe(opts.CLI)
	}

	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: opts.Version,
		},
	}

	checks := []func(context.Context, Options) CheckResult{
		checkDataDir,
		checkSettings,
		checkRuntime,
		checkGatewayConfig,
		checkAgentCredentials,
		checkBackups,
		checkNetwork,
		checkAPIKey,
		checkGateway,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, opts))
	}

	return d
}

func checkDataDir(_ context.Context, _ Options) CheckResult {
	dir := paths.BaseDir()
	if err := paths.EnsureDir(dir); err != nil {
		return CheckResult{Name: "Data Dir", Status: "FAIL", Message: fmt.Sprintf("cannot create %s: %v", dir, err)}
	}

	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Data Dir", Status: "FAIL", Message: fmt.Sprintf("%s not writable: %v", dir, err)}
	}
	os.Remove(probe)

	return CheckResult{Name: "Data Dir", Status: "PASS", Message: dir}
}

func checkSettings(_ context.Context, _ Options) CheckResult {
	key, err := config.LoadAPIKey()
	if err != nil {
		return CheckResult{
			Name:    "Settings",
			Status:  "FAIL",
			Message: fmt.Sprintf("settings unreadable: %v", err),
			Detail:  "fix or remove " + paths.SettingsPath(),
		}
	}
	if key == "" {
		return CheckResult{
			Name:    "Settings",
			Status:  "WARN",
			Message: "no API key saved",
			Detail:  "run: clawkeeper auth set-key",
		}
	}
	return CheckResult{Name: "Settings", Status: "PASS", Message: "API key saved"}
}

func checkRuntime(_ context.Context, opts Options) CheckResult {
	cli := opts.CLI
	if cli.Path == "" {
		cli = gateway.DefaultCLI()
	}

	var details []string
	status := "PASS"

	if path, err := exec.LookPath(cli.Path); err != nil {
		details = append(details, cli.Path+": missing")
		status = "FAIL"
	} else {
		details = append(details, cli.Path+": "+path)
	}

	// The default launcher rides on npx, which needs node underneath.
	if cli.Path == "npx" {
		if path, err := exec.LookPath("node"); err != nil {
			details = append(details, "node: missing")
			status = "FAIL"
		} else {
			details = append(details, "node: "+path)
		}
	}

	result := CheckResult{
		Name:    "Runtime",
		Status:  status,
		Message: fmt.Sprintf("launcher: %s", cli.String()),
		Detail:  fmt.Sprintf("%v", details),
	}
	if status == "FAIL" {
		result.Detail += "; install Node.js and try: npm install -g openclaw"
	}
	return result
}

func checkGatewayConfig(_ context.Context, _ Options) CheckResult {
	_, err := gateway.ReadToken()
	switch {
	case err == nil:
		return CheckResult{Name: "Gateway Config", Status: "PASS", Message: "auth token present"}
	case errors.Is(err, config.ErrUnconfigured):
		return CheckResult{
			Name:    "Gateway Config",
			Status:  "WARN",
			Message: "not provisioned yet",
			Detail:  "created automatically by: clawkeeper start",
		}
	case errors.Is(err, config.ErrCorrupt):
		return CheckResult{
			Name:    "Gateway Config",
			Status:  "FAIL",
			Message: err.Error(),
			Detail:  "restore a backup with: clawkeeper auth restore",
		}
	default:
		return CheckResult{Name: "Gateway Config", Status: "FAIL", Message: err.Error()}
	}
}

func checkAgentCredentials(_ context.Context, _ Options) CheckResult {
	entries, err := os.ReadDir(paths.AgentsRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{
				Name:    "Agent Credentials",
				Status:  "WARN",
				Message: "no agents directory yet",
				Detail:  "created automatically by: clawkeeper start",
			}
		}
		return CheckResult{Name: "Agent Credentials", Status: "FAIL", Message: err.Error()}
	}

	var details []string
	mainUsable := false
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, found, err := agents.ReadCredentialRecord(entry.Name())
		switch {
		case err != nil:
			details = append(details, entry.Name()+": unreadable")
		case !found:
			details = append(details, entry.Name()+": no record")
		case rec.Usable():
			details = append(details, entry.Name()+": usable")
			if entry.Name() == agents.MainAgentID {
				mainUsable = true
			}
		default:
			details = append(details, entry.Name()+": no usable key")
		}
	}

	if !mainUsable {
		return CheckResult{
			Name:    "Agent Credentials",
			Status:  "WARN",
			Message: "main agent has no usable credential",
			Detail:  "run: clawkeeper agent sync",
		}
	}
	return CheckResult{
		Name:    "Agent Credentials",
		Status:  "PASS",
		Message: fmt.Sprintf("%d agents checked", len(details)),
		Detail:  fmt.Sprintf("%v", details),
	}
}

func checkBackups(_ context.Context, _ Options) CheckResult {
	backups := config.ListBackups(paths.OpenClawConfigPath())
	if len(backups) == 0 {
		return CheckResult{Name: "Backups", Status: "PASS", Message: "no gateway config backups yet"}
	}
	newest := backups[0]
	return CheckResult{
		Name:    "Backups",
		Status:  "PASS",
		Message: fmt.Sprintf("%d gateway config backups", len(backups)),
		Detail:  fmt.Sprintf("newest: %s (%s)", newest.Path, newest.ModTime.Format(time.RFC3339)),
	}
}

func checkNetwork(ctx context.Context, _ Options) CheckResult {
	host := "api.anthropic.com"

	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	addrs, err := net.DefaultResolver.LookupHost(lookupCtx, host)
	latency := time.Since(start)

	if err != nil {
		return CheckResult{
			Name:    "Network",
			Status:  "FAIL",
			Message: fmt.Sprintf("DNS lookup failed for %s: %v", host, err),
			Detail:  fmt.Sprintf("latency=%dms", latency.Milliseconds()),
		}
	}

	return CheckResult{
		Name:    "Network",
		Status:  "PASS",
		Message: fmt.Sprintf("DNS resolved %s (%d addresses, %dms)", host, len(addrs), latency.Milliseconds()),
	}
}

func checkAPIKey(ctx context.Context, _ Options) CheckResult {
	key, err := config.LoadAPIKey()
	if err != nil || key == "" {
		return CheckResult{Name: "API Key", Status: "SKIP", Message: "no API key to validate"}
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", anthropicModelsURL, nil)
	if err != nil {
		return CheckResult{Name: "API Key", Status: "FAIL", Message: err.Error()}
	}
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return CheckResult{
			Name:    "API Key",
			Status:  "WARN",
			Message: fmt.Sprintf("could not reach Anthropic API: %v", err),
			Detail:  "key not validated; check network",
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == 401:
		return CheckResult{
			Name:    "API Key",
			Status:  "FAIL",
			Message: "Anthropic API rejected the stored key",
			Detail:  "save a fresh key with: clawkeeper auth set-key",
		}
	case resp.StatusCode != 200:
		return CheckResult{
			Name:    "API Key",
			Status:  "WARN",
			Message: fmt.Sprintf("unexpected API response (%d)", resp.StatusCode),
		}
	}

	return CheckResult{Name: "API Key", Status: "PASS", Message: "Anthropic API accepted the stored key"}
}

func checkGateway(ctx context.Context, opts Options) CheckResult {
	if opts.Probe.Healthy(ctx) {
		result := CheckResult{Name: "Gateway", Status: "PASS", Message: "gateway responding"}
		if state, err := supervisor.LoadState(); err == nil && state.GatewayPID != 0 && supervisor.PidAlive(state.GatewayPID) {
			result.Detail = fmt.Sprintf("supervised process pid %d", state.GatewayPID)
		}
		return result
	}
	return CheckResult{
		Name:    "Gateway",
		Status:  "WARN",
		Message: "gateway not responding",
		Detail:  "start it with: clawkeeper start",
	}
}
