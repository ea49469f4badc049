package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
	"github.com/roelfdiedericks/clawkeeper/internal/paths"
)

// State is the snapshot persisted to supervisor.json so later clawkeeper
// invocations can find the gateway this one launched. It is advisory:
// liveness always comes from the health probe or a PID check, never from
// the file alone.
type State struct {
	PID         int          `json:"pid"`
	GatewayPID  int          `json:"gateway_pid,omitempty"`
	State       GatewayState `json:"state"`
	StartedAt   time.Time    `json:"started_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CrashCount  int          `json:"crash_count,omitempty"`
	LastCrashAt *time.Time   `json:"last_crash_at,omitempty"`
}

func stateFilePath() string {
	return paths.DataPath("supervisor.json")
}

func crashLogPath() string {
	return paths.DataPath("crash.log")
}

// saveState persists the current snapshot. Best effort.
func (s *Supervisor) saveState() {
	s.mu.Lock()
	st := State{
		PID:         os.Getpid(),
		State:       s.state,
		StartedAt:   s.startedAt,
		UpdatedAt:   time.Now(),
		CrashCount:  s.crashCount,
		LastCrashAt: s.lastCrash,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		st.GatewayPID = s.cmd.Process.Pid
	}
	s.mu.Unlock()

	path := stateFilePath()
	if err := paths.EnsureParentDir(path); err != nil {
		L_warn("cannot create state directory", "error", err)
		return
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		L_error("cannot marshal supervisor state", "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		L_warn("cannot write supervisor state", "error", err)
	}
}

// LoadState reads the last persisted snapshot.
func LoadState() (*State, error) {
	data, err := os.ReadFile(stateFilePath())
	if err != nil {
		return nil, err
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unreadable supervisor state: %w", err)
	}
	return &st, nil
}

// PidAlive reports whether a process with this PID exists.
func PidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// TerminatePid stops a gateway recorded by an earlier run: SIGTERM, a
// grace wait, then SIGKILL. The signal goes to the process group when the
// target leads one, so npx and its node child go down together.
func TerminatePid(pid int) error {
	if !PidAlive(pid) {
		return fmt.Errorf("no running process with pid %d", pid)
	}

	signalPid(pid, syscall.SIGTERM)
	if waitPidGone(pid, stopGrace) {
		L_info("gateway stopped", "pid", pid)
		return nil
	}

	L_warn("gateway ignored SIGTERM, killing", "pid", pid)
	signalPid(pid, syscall.SIGKILL)
	if waitPidGone(pid, 2*time.Second) {
		return nil
	}
	return fmt.Errorf("process %d did not exit after SIGKILL", pid)
}

func signalPid(pid int, sig syscall.Signal) {
	if err := syscall.Kill(-pid, sig); err != nil {
		syscall.Kill(pid, sig) //nolint:errcheck
	}
}

func waitPidGone(pid int, limit time.Duration) bool {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		if !PidAlive(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !PidAlive(pid)
}

// logCrash appends one entry to crash.log with the tail of gateway output.
func (s *Supervisor) logCrash(exitCode int, waitErr error, crashCount int) {
	path := crashLogPath()
	if err := paths.EnsureParentDir(path); err != nil {
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		L_error("cannot open crash log", "error", err)
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "\n=== gateway exit %s ===\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(f, "exit code:  %d\n", exitCode)
	fmt.Fprintf(f, "exit count: %d (this run)\n", crashCount)
	if waitErr != nil {
		fmt.Fprintf(f, "error:      %v\n", waitErr)
	}
	fmt.Fprintln(f, "last output:")
	for _, line := range s.output.Tail() {
		fmt.Fprintln(f, "  "+line)
	}

	L_debug("gateway exit recorded", "path", path)
}
