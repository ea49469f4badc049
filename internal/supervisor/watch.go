package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	cronlib "github.com/robfig/cron/v3"
	daemon "github.com/sevlyar/go-daemon"

	"github.com/roelfdiedericks/clawkeeper/internal/bus"
	"github.com/roelfdiedericks/clawkeeper/internal/config"
	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
	. "github.com/roelfdiedericks/clawkeeper/internal/metrics"
	"github.com/roelfdiedericks/clawkeeper/internal/paths"
)

// ParseSchedule accepts standard 5-field cron expressions plus descriptors
// like "@every 1m" or "@hourly".
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	parser := cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid watch schedule %q: %w", expr, err)
	}
	return sched, nil
}

// HealthNotice is the payload published on bus.TopicGatewayHealth.
type HealthNotice struct {
	Healthy bool      `json:"healthy"`
	At      time.Time `json:"at"`
}

// Watch keeps the gateway alive: an initial Start, then a scheduled probe
// that restarts the gateway whenever it stops answering. Runs until the
// context is canceled or Stop is called.
func (s *Supervisor) Watch(ctx context.Context, scheduleExpr string) error {
	sched, err := ParseSchedule(scheduleExpr)
	if err != nil {
		return err
	}

	if err := s.Start(ctx); err != nil {
		if errors.Is(err, config.ErrUnconfigured) || errors.Is(err, ErrStopped) {
			return err
		}
		L_error("initial gateway start failed, watch will retry", "error", err)
	}

	L_info("watching gateway", "schedule", scheduleExpr)

	for {
		next := sched.Next(time.Now())
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-time.After(time.Until(next)):
		}

		healthy := s.probe.Healthy(ctx)
		bus.PublishWithSource(bus.TopicGatewayHealth, HealthNotice{Healthy: healthy, At: time.Now()}, "watch")
		MetricInc("supervisor", "health_check")

		if healthy {
			L_debug("gateway healthy")
			continue
		}

		L_warn("gateway unhealthy, restarting")
		MetricInc("supervisor", "restart")
		if err := s.Start(ctx); err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			L_error("gateway restart failed", "error", err)
		}
	}
}

// Daemonize forks the current process into the background for detached
// watch mode. The parent receives the child process and should exit; the
// child receives a release func to run when the loop ends.
func Daemonize() (*os.Process, func(), error) {
	if err := paths.EnsureDir(paths.BaseDir()); err != nil {
		return nil, nil, fmt.Errorf("cannot prepare daemon directory: %w", err)
	}

	dctx := &daemon.Context{
		PidFileName: paths.DataPath("watch.pid"),
		PidFilePerm: 0644,
		LogFileName: paths.DataPath("watch.log"),
		LogFilePerm: 0640,
		Umask:       027,
	}

	child, err := dctx.Reborn()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot detach watcher: %w", err)
	}
	if child != nil {
		return child, nil, nil
	}

	release := func() {
		if err := dctx.Release(); err != nil {
			L_warn("cannot release daemon context", "error", err)
		}
	}
	return nil, release, nil
}

// FindWatchDaemon returns the detached watcher recorded in the pid file,
// or nil when none is running.
func FindWatchDaemon() *os.Process {
	dctx := &daemon.Context{PidFileName: paths.DataPath("watch.pid")}
	proc, err := dctx.Search()
	if err != nil || proc == nil || !PidAlive(proc.Pid) {
		return nil
	}
	return proc
}
