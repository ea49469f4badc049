package main

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/roelfdiedericks/clawkeeper/internal/bus"
	"github.com/roelfdiedericks/clawkeeper/internal/config"
	"github.com/roelfdiedericks/clawkeeper/internal/gateway"
	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
	"github.com/roelfdiedericks/clawkeeper/internal/metrics"
	"github.com/roelfdiedericks/clawkeeper/internal/paths"
	"github.com/roelfdiedericks/clawkeeper/internal/supervisor"
)

// StartCmd ensures a gateway is running, then returns. The gateway child
// owns its own session, so it stays up after this process exits.
type StartCmd struct {
	Port int    `help:"Gateway port (default from prefs)."`
	Bind string `help:"Bind mode, loopback or lan (default from prefs)."`
}

func (c *StartCmd) Run(rc *runContext) error {
	rc.openMetrics()
	sup := rc.newSupervisor(c.Port, c.Bind)

	ctx, cancel := interruptContext()
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("gateway %s\n", sup.State())
	return nil
}

type StopCmd struct{}

func (c *StopCmd) Run(rc *runContext) error {
	rc.openMetrics()

	// Stop the watcher first or its next tick respawns the gateway.
	if proc := supervisor.FindWatchDaemon(); proc != nil {
		if err := proc.Signal(syscall.SIGTERM); err == nil {
			fmt.Printf("watch daemon stopped (pid %d)\n", proc.Pid)
		}
	}

	state, err := supervisor.LoadState()
	if err != nil || state.GatewayPID == 0 || !supervisor.PidAlive(state.GatewayPID) {
		fmt.Println("no supervised gateway running")

		ctx, cancel := context.WithTimeout(context.Background(), gateway.DefaultProbeTimeout)
		defer cancel()
		if gateway.NewProbe(rc.cli).Healthy(ctx) {
			fmt.Println("a gateway is still responding; it was not started here")
		}
		return nil
	}

	if err := supervisor.TerminatePid(state.GatewayPID); err != nil {
		return err
	}
	metrics.MetricInc("supervisor", "stop")
	fmt.Printf("gateway stopped (pid %d)\n", state.GatewayPID)
	return nil
}

type StatusCmd struct {
	JSON bool `help:"Emit the report as JSON."`
}

func (c *StatusCmd) Run(rc *runContext) error {
	sup := rc.newSupervisor(0, "")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	report := sup.Status(ctx)
	if c.JSON {
		return printJSON(report)
	}

	if report.Healthy {
		fmt.Println("gateway: healthy")
	} else {
		fmt.Println("gateway: not responding")
	}
	if report.Supervised {
		fmt.Printf("supervised: yes (pid %d)\n", report.GatewayPID)
	} else {
		fmt.Println("supervised: no")
	}
	if proc := supervisor.FindWatchDaemon(); proc != nil {
		fmt.Printf("watcher: running (pid %d)\n", proc.Pid)
	}
	if state, err := supervisor.LoadState(); err == nil {
		fmt.Printf("last state: %s (%s)\n", state.State, state.UpdatedAt.Format(time.RFC3339))
		if state.CrashCount > 0 && state.LastCrashAt != nil {
			fmt.Printf("crashes: %d, last at %s\n", state.CrashCount, state.LastCrashAt.Format(time.RFC3339))
		}
	}
	return nil
}

type WatchCmd struct {
	Schedule string `help:"Cron spec or @every interval (default from prefs)."`
	Detach   bool   `help:"Run the watcher in the background."`
}

func (c *WatchCmd) Run(rc *runContext) error {
	schedule := c.Schedule
	if schedule == "" {
		schedule = rc.prefs.Watch.Schedule
	}
	// Validate before forking so a bad schedule fails in the foreground.
	if _, err := supervisor.ParseSchedule(schedule); err != nil {
		return err
	}

	if c.Detach {
		child, release, err := supervisor.Daemonize()
		if err != nil {
			return err
		}
		if child != nil {
			fmt.Printf("watch daemon started (pid %d)\n", child.Pid)
			return nil
		}
		defer release()
	}

	rc.openMetrics()

	ctx, cancel := interruptContext()
	defer cancel()

	sub := bus.Subscribe(bus.TopicConfigChanged, func(ev bus.Event) {
		if notice, ok := ev.Data.(config.ChangeNotice); ok {
			L_info("config changed on disk", "path", notice.Path, "op", notice.Op)
		}
	})
	defer bus.Unsubscribe(sub)

	for _, p := range []string{paths.OpenClawConfigPath(), paths.SettingsPath()} {
		w := config.NewWatcher(p)
		if err := w.Start(); err != nil {
			L_warn("config watch unavailable", "path", p, "error", err)
			continue
		}
		defer w.Stop()
	}

	sup := rc.newSupervisor(0, "")
	return sup.Watch(ctx, schedule)
}
