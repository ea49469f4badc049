// Package supervisor owns the OpenClaw gateway subprocess: starting it,
// probing it, relaying its output and tearing it down. A healthy gateway
// left behind by an earlier run is reused instead of respawned.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/roelfdiedericks/clawkeeper/internal/agents"
	"github.com/roelfdiedericks/clawkeeper/internal/bus"
	"github.com/roelfdiedericks/clawkeeper/internal/config"
	"github.com/roelfdiedericks/clawkeeper/internal/gateway"
	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
	. "github.com/roelfdiedericks/clawkeeper/internal/metrics"
)

// GatewayState is the supervisor's view of the gateway lifecycle.
type GatewayState string

const (
	StateIdle     GatewayState = "idle"
	StateProbing  GatewayState = "probing"
	StateStarting GatewayState = "starting"
	StateRunning  GatewayState = "running"
	StateFailed   GatewayState = "failed"
	StateStopped  GatewayState = "stopped"
)

const (
	// DefaultPollInterval is the fixed delay between readiness probes.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultPollBudget bounds how many readiness probes one start attempt gets.
	DefaultPollBudget = 20

	stopGrace   = 5 * time.Second
	outputLines = 50 // lines kept for crash reports
)

var (
	ErrReadinessTimeout = errors.New("gateway did not become ready")
	ErrStopped          = errors.New("supervisor is stopped")
)

// StateChange is the payload published on bus.TopicGatewayState.
type StateChange struct {
	From GatewayState `json:"from"`
	To   GatewayState `json:"to"`
}

// Options configures a Supervisor.
type Options struct {
	CLI          gateway.CLI
	Port         int
	Bind         string
	Probe        gateway.HealthProbe // nil selects the CLI health probe
	PollInterval time.Duration
	PollBudget   int
}

// Supervisor manages at most one gateway subprocess at a time.
type Supervisor struct {
	cli          gateway.CLI
	port         int
	bind         string
	probe        gateway.HealthProbe
	pollInterval time.Duration
	pollBudget   int

	startMu sync.Mutex // serializes Start attempts

	mu      sync.Mutex // guards everything below
	state   GatewayState
	cmd     *exec.Cmd
	done    chan struct{} // closed when the tracked process has been reaped
	stopped bool

	stopCh     chan struct{}
	startedAt  time.Time
	crashCount int
	lastCrash  *time.Time

	output *OutputRing
}

// New creates a supervisor in the Idle state.
func New(opts Options) *Supervisor {
	probe := opts.Probe
	if probe == nil {
		probe = gateway.NewProbe(opts.CLI)
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	budget := opts.PollBudget
	if budget <= 0 {
		budget = DefaultPollBudget
	}

	return &Supervisor{
		cli:          opts.CLI,
		port:         opts.Port,
		bind:         opts.Bind,
		probe:        probe,
		pollInterval: interval,
		pollBudget:   budget,
		state:        StateIdle,
		stopCh:       make(chan struct{}),
		startedAt:    time.Now(),
		output:       NewOutputRing(outputLines),
	}
}

// newGatewayCommand builds the launch command. Package variable so tests
// can substitute a local process for npx.
var newGatewayCommand = func(cli gateway.CLI, port int, bind, apiKey string) *exec.Cmd {
	name, argv := cli.Argv("gateway", "run", "--port", strconv.Itoa(port), "--bind", bind)
	cmd := exec.Command(name, argv...)
	cmd.Env = append(os.Environ(),
		"ANTHROPIC_API_KEY="+apiKey,
		"OPENAI_API_KEY="+apiKey,
	)
	// Own session, so the gateway survives this process.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}

var pairGateway = gateway.Pair

// Start brings the gateway to Running. The sequence: check the API key,
// provision the gateway config, reconcile agent credentials, probe for an
// existing gateway (reuse it when healthy), otherwise spawn one and poll
// until it answers. A start that fails after spawning never leaves the
// child behind.
func (s *Supervisor) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.isStopped() {
		return ErrStopped
	}

	startTime := time.Now()

	apiKey, err := config.LoadAPIKey()
	if err != nil {
		return fmt.Errorf("cannot read settings: %w", err)
	}
	if apiKey == "" {
		return fmt.Errorf("%w: no API key saved, run: clawkeeper auth set-key", config.ErrUnconfigured)
	}

	token, err := gateway.EnsureConfig(s.port, s.bind)
	if err != nil {
		return fmt.Errorf("cannot provision gateway config: %w", err)
	}

	if err := agents.EnsureCredential(agents.MainAgentID); err != nil {
		return fmt.Errorf("cannot reconcile agent credentials: %w", err)
	}

	s.setState(StateProbing)
	if s.probe.Healthy(ctx) {
		L_info("gateway already running, reusing it", "port", s.port)
		MetricInc("gateway", "reuse")
		s.setState(StateRunning)
		return nil
	}

	if err := s.spawn(apiKey); err != nil {
		s.setState(StateFailed)
		MetricFailWithReason("gateway", "start", "spawn")
		return err
	}
	s.setState(StateStarting)

	if err := s.awaitReady(ctx); err != nil {
		s.killCurrent()
		s.setState(StateFailed)
		MetricFailWithReason("gateway", "start", failReason(err))
		return err
	}

	s.setState(StateRunning)
	MetricSuccess("gateway", "start")
	MetricDuration("gateway", "start", time.Since(startTime))
	L_info("gateway ready", "port", s.port, "elapsed", time.Since(startTime).Round(time.Millisecond))

	if err := pairGateway(ctx, s.cli, token); err != nil {
		L_warn("gateway pairing failed, continuing anyway", "error", err)
	}
	return nil
}

// Stop terminates the tracked gateway, if any, and retires the supervisor.
// Stopped is terminal: later Start calls return ErrStopped.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.killCurrent()
	s.setState(StateStopped)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() GatewayState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StatusReport is a fresh snapshot of gateway liveness. Healthy comes
// from a probe run right now, never from remembered state.
type StatusReport struct {
	Healthy    bool         `json:"healthy"`
	State      GatewayState `json:"state"`
	GatewayPID int          `json:"gateway_pid,omitempty"`
	Supervised bool         `json:"supervised"`
}

// Status probes the gateway and reports what this supervisor knows about it.
func (s *Supervisor) Status(ctx context.Context) StatusReport {
	healthy := s.probe.Healthy(ctx)

	s.mu.Lock()
	report := StatusReport{
		Healthy: healthy,
		State:   s.state,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		report.Supervised = true
		report.GatewayPID = s.cmd.Process.Pid
	}
	s.mu.Unlock()

	if report.GatewayPID == 0 {
		if st, err := LoadState(); err == nil && PidAlive(st.GatewayPID) {
			report.GatewayPID = st.GatewayPID
		}
	}
	return report
}

func (s *Supervisor) spawn(apiKey string) error {
	s.output.Reset()

	cmd := newGatewayCommand(s.cli, s.port, s.bind, apiKey)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("cannot open gateway stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("cannot open gateway stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch %s: %w", s.cli.String(), err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.done = done
	s.mu.Unlock()

	L_info("gateway starting", "pid", cmd.Process.Pid, "port", s.port)
	s.saveState()

	var relayWg sync.WaitGroup
	relayWg.Add(2)
	go s.relay(stdout, "[GW] ", &relayWg)
	go s.relay(stderr, "[GW ERR] ", &relayWg)
	go s.reap(cmd, &relayWg, done)

	return nil
}

// relay copies one output stream into the log and the crash ring, line by
// line. It runs until the stream closes, outliving the Start call that
// created it.
func (s *Supervisor) relay(r io.Reader, prefix string, wg *sync.WaitGroup) {
	defer wg.Done()

	warn := strings.Contains(prefix, "ERR")
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		s.output.Append(prefix + line)
		if warn {
			L_warn("%s%s", prefix, line)
		} else {
			L_info("%s%s", prefix, line)
		}
	}
}

// reap waits for the relays to drain, then collects the exit status. The
// relays must finish first or the last output lines get lost.
func (s *Supervisor) reap(cmd *exec.Cmd, relayWg *sync.WaitGroup, done chan struct{}) {
	relayWg.Wait()
	waitErr := cmd.Wait()

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	s.mu.Lock()
	current := s.cmd == cmd
	if current {
		s.cmd = nil
	}
	state := s.state
	stopped := s.stopped
	s.mu.Unlock()

	close(done)

	if !current || stopped {
		return
	}

	s.mu.Lock()
	s.crashCount++
	now := time.Now()
	s.lastCrash = &now
	crashCount := s.crashCount
	s.mu.Unlock()

	s.logCrash(exitCode, waitErr, crashCount)
	MetricInc("gateway", "exit")

	if state == StateRunning {
		L_error("gateway exited unexpectedly", "exit_code", exitCode, "exit_count", crashCount)
		s.setState(StateFailed)
	}
	s.saveState()
}

// awaitReady polls the health probe at a fixed interval until the gateway
// answers, the budget runs out, or the attempt is interrupted. The sleep
// comes before each probe; a freshly spawned gateway is never ready
// instantly.
func (s *Supervisor) awaitReady(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	for attempt := 1; attempt <= s.pollBudget; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("gateway start canceled: %w", ctx.Err())
		case <-s.stopCh:
			return ErrStopped
		case <-done:
			// The spawned process is gone. One last probe decides whether
			// an external gateway took the port in the meantime.
			if s.probe.Healthy(ctx) {
				return nil
			}
			return fmt.Errorf("gateway exited during startup; last output:\n%s",
				strings.Join(s.output.Tail(), "\n"))
		case <-time.After(s.pollInterval):
		}

		if s.probe.Healthy(ctx) {
			L_debug("gateway answered", "attempt", attempt)
			return nil
		}
	}

	return fmt.Errorf("%w after %d checks; verify Node.js is available and try: npm install -g openclaw",
		ErrReadinessTimeout, s.pollBudget)
}

// killCurrent tears down the tracked process: SIGTERM, a grace wait, then
// SIGKILL. No-op when nothing is tracked.
func (s *Supervisor) killCurrent() {
	s.mu.Lock()
	cmd := s.cmd
	done := s.done
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	pid := cmd.Process.Pid
	L_debug("terminating gateway", "pid", pid)
	signalPid(pid, syscall.SIGTERM)

	select {
	case <-done:
		return
	case <-time.After(stopGrace):
	}

	L_warn("gateway ignored SIGTERM, killing", "pid", pid)
	signalPid(pid, syscall.SIGKILL)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		L_error("gateway did not exit after SIGKILL", "pid", pid)
	}
}

// setState records a transition and announces it. Stopped is terminal.
func (s *Supervisor) setState(to GatewayState) {
	s.mu.Lock()
	from := s.state
	if from == to || (from == StateStopped && to != StateStopped) {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.mu.Unlock()

	L_debug("gateway state", "from", from, "to", to)
	bus.PublishWithSource(bus.TopicGatewayState, StateChange{From: from, To: to}, "supervisor")
	s.saveState()
}

func (s *Supervisor) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func failReason(err error) string {
	switch {
	case errors.Is(err, ErrReadinessTimeout):
		return "timeout"
	case errors.Is(err, ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "interrupted"
	default:
		return "exited"
	}
}
