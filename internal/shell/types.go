package shell

import (
	"fmt"
	"time"
)

// RunnerConfig controls command execution.
type RunnerConfig struct {
	WorkingDir string
	Timeout    time.Duration
}

// Error represents a command execution error with exit code
type Error struct {
	ExitCode int
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command exited with code %d: %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("command exited with code %d", e.ExitCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result holds the full outcome of a command execution
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}
