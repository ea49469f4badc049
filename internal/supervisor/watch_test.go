package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roelfdiedericks/clawkeeper/internal/bus"
	"github.com/roelfdiedericks/clawkeeper/internal/config"
)

func TestParseSchedule(t *testing.T) {
	valid := []string{"@every 1m", "@every 30s", "@hourly", "*/5 * * * *", "0 3 * * 1"}
	for _, expr := range valid {
		sched, err := ParseSchedule(expr)
		if err != nil {
			t.Errorf("ParseSchedule(%q): %v", expr, err)
			continue
		}
		if next := sched.Next(time.Now()); !next.After(time.Now().Add(-time.Second)) {
			t.Errorf("ParseSchedule(%q): next run %v not in the future", expr, next)
		}
	}

	invalid := []string{"", "banana", "61 * * * *", "@every"}
	for _, expr := range invalid {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) accepted", expr)
		}
	}
}

func TestParseScheduleEveryInterval(t *testing.T) {
	sched, err := ParseSchedule("@every 1s")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	now := time.Now()
	gap := sched.Next(now).Sub(now)
	if gap < 500*time.Millisecond || gap > 2*time.Second {
		t.Errorf("next run in %v, want about 1s", gap)
	}
}

func TestWatchRejectsBadSchedule(t *testing.T) {
	s := newTestSupervisor(alwaysHealthy(), 5)
	if err := s.Watch(context.Background(), "garbage"); err == nil {
		t.Error("bad schedule accepted")
	}
}

func TestWatchFailsUnconfigured(t *testing.T) {
	pointHome(t)
	s := newTestSupervisor(alwaysHealthy(), 5)

	err := s.Watch(context.Background(), "@every 1s")
	if !errors.Is(err, config.ErrUnconfigured) {
		t.Errorf("err = %v, want ErrUnconfigured", err)
	}
}

func TestWatchRestartsUnhealthyGateway(t *testing.T) {
	setupConfigured(t)
	stub := stubLauncher(t, "exec sleep 30")

	// Healthy at first, one failed check, healthy again after the restart.
	probe := &probeStub{plan: func(n int) bool { return n != 2 }}
	s := newTestSupervisor(probe, 5)

	events := make(chan bus.Event, 8)
	subID := bus.Subscribe(bus.TopicGatewayHealth, func(e bus.Event) { events <- e })
	defer bus.Unsubscribe(subID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone := make(chan error, 1)
	go func() { watchDone <- s.Watch(ctx, "@every 1s") }()

	select {
	case e := <-events:
		notice, ok := e.Data.(HealthNotice)
		if !ok {
			t.Fatalf("health event data is %T", e.Data)
		}
		if notice.Healthy {
			t.Error("first scheduled check should have been unhealthy")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no health notice published")
	}

	waitFor(t, "recovery probe", func() bool { return probe.calls() >= 3 })
	waitFor(t, "running again", func() bool { return s.State() == StateRunning })

	if got := stub.spawns(); got != 0 {
		t.Errorf("watch spawned %d processes, reuse expected", got)
	}

	cancel()
	select {
	case <-watchDone:
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestWatchEndsWhenStopped(t *testing.T) {
	setupConfigured(t)
	stubLauncher(t, "exec sleep 30")
	s := newTestSupervisor(alwaysHealthy(), 5)

	done := make(chan error, 1)
	go func() { done <- s.Watch(context.Background(), "@every 1s") }()

	waitFor(t, "running", func() bool { return s.State() == StateRunning })
	s.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
}
