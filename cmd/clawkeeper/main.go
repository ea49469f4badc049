// Command clawkeeper keeps one local OpenClaw gateway configured,
// credentialed and running on this host.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/clawkeeper/internal/config"
	"github.com/roelfdiedericks/clawkeeper/internal/gateway"
	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
	"github.com/roelfdiedericks/clawkeeper/internal/metrics"
	"github.com/roelfdiedericks/clawkeeper/internal/supervisor"
)

const version = "0.1.0"

// CLI is the top-level command tree.
type CLI struct {
	Debug bool `help:"Log at debug level." short:"d"`
	Trace bool `help:"Log at trace level." hidden:""`

	Start   StartCmd   `cmd:"" help:"Ensure a healthy gateway is running, reusing one when possible."`
	Stop    StopCmd    `cmd:"" help:"Stop the supervised gateway and any detached watcher."`
	Status  StatusCmd  `cmd:"" help:"Report gateway health and supervision state."`
	Watch   WatchCmd   `cmd:"" help:"Probe the gateway on a schedule and restart it when unhealthy."`
	Auth    AuthCmd    `cmd:"" help:"Manage the stored Anthropic API key and config backups."`
	Agent   AgentCmd   `cmd:"" help:"Sync and reconcile agent credential records."`
	Send    SendCmd    `cmd:"" help:"Send a message to an agent and print the reply."`
	Call    CallCmd    `cmd:"" help:"Call a gateway method with raw JSON params."`
	Doctor  DoctorCmd  `cmd:"" help:"Run environment diagnostics."`
	Metrics MetricsCmd `cmd:"" help:"Show collected operation metrics."`
	Exec    ExecCmd    `cmd:"" help:"Run a host command through bash (diagnostics passthrough)."`
	Version VersionCmd `cmd:"" help:"Print the version."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("clawkeeper"),
		kong.Description("Supervisor for a local OpenClaw gateway: config, credentials, lifecycle."),
		kong.UsageOnError(),
	)

	prefs, prefsErr := config.LoadPrefs()
	initLogging(&cli, prefs)
	if prefsErr != nil {
		L_warn("preferences not loaded, using defaults", "error", prefsErr)
	}

	err := kctx.Run(&runContext{
		prefs: prefs,
		cli:   gateway.ResolveCLI(prefs.Gateway.Command),
	})
	metrics.GetInstance().Close()
	kctx.FatalIfErrorf(err)
}

// runContext provides shared dependencies to commands.
type runContext struct {
	prefs config.Prefs
	cli   gateway.CLI
}

// openMetrics attaches the sqlite store so this run's samples persist.
// Commands that never record or read metrics skip it.
func (rc *runContext) openMetrics() {
	metrics.InitPersistence()
}

func (rc *runContext) newSupervisor(port int, bind string) *supervisor.Supervisor {
	if port == 0 {
		port = rc.prefs.Gateway.Port
	}
	if bind == "" {
		bind = rc.prefs.Gateway.Bind
	}
	return supervisor.New(supervisor.Options{CLI: rc.cli, Port: port, Bind: bind})
}

// initLogging resolves the level: prefs, then CLAWKEEPER_LOG, then flags.
func initLogging(cli *CLI, prefs config.Prefs) {
	cfg := DefaultConfig()
	if prefs.Logging.Level != "" && os.Getenv("CLAWKEEPER_LOG") == "" {
		cfg.Level = ParseLevel(prefs.Logging.Level)
	}
	if cli.Debug {
		cfg.Level = LevelDebug
	}
	if cli.Trace {
		cfg.Level = LevelTrace
	}
	Init(cfg)
}

// interruptContext cancels on SIGINT/SIGTERM so poll loops and gateway
// calls can be abandoned from the keyboard.
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case <-sigCh:
			L_info("received shutdown signal")
			SetShuttingDown()
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type VersionCmd struct{}

func (c *VersionCmd) Run(rc *runContext) error {
	fmt.Printf("clawkeeper %s\n", version)
	return nil
}
