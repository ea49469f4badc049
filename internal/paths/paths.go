// Package paths centralizes filesystem locations: clawkeeper's own
// configuration directory and the ~/.openclaw tree it supervises.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// AppDirName is the directory under the user config dir holding
	// clawkeeper's own files.
	AppDirName = "clawkeeper"

	// OpenClawDirName is the gateway's dot directory in $HOME.
	OpenClawDirName = ".openclaw"
)

// BaseDir returns clawkeeper's configuration directory, normally
// ~/.config/clawkeeper on Linux. Falls back to a dot directory in $HOME
// when the platform config dir cannot be resolved.
func BaseDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, AppDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppDirName
	}
	return filepath.Join(home, "."+AppDirName)
}

// SettingsPath returns the path of clawkeeper's settings document.
func SettingsPath() string {
	return filepath.Join(BaseDir(), "config.json")
}

// PrefsPath returns the path of the optional TOML preferences file.
func PrefsPath() string {
	return filepath.Join(BaseDir(), "clawkeeper.toml")
}

// DataPath returns a path inside clawkeeper's base directory, e.g.
// DataPath("metrics.db") or DataPath("watch", "watch.log").
func DataPath(parts ...string) string {
	return filepath.Join(append([]string{BaseDir()}, parts...)...)
}

// OpenClawBaseDir returns the gateway's home directory (~/.openclaw).
func OpenClawBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return OpenClawDirName
	}
	return filepath.Join(home, OpenClawDirName)
}

// OpenClawConfigPath returns the gateway's main config document.
func OpenClawConfigPath() string {
	return filepath.Join(OpenClawBaseDir(), "openclaw.json")
}

// AgentsRoot returns the directory holding per-agent records.
func AgentsRoot() string {
	return filepath.Join(OpenClawBaseDir(), "agents")
}

// AgentDir returns the record directory for one agent identity. Both of
// the agent's documents live under an "agent" subdirectory.
func AgentDir(agentID string) string {
	return filepath.Join(AgentsRoot(), agentID, "agent")
}

// AgentAuthProfilesPath returns the credential record for an agent.
func AgentAuthProfilesPath(agentID string) string {
	return filepath.Join(AgentDir(agentID), "auth-profiles.json")
}

// AgentConfigPath returns the identity record for an agent.
func AgentConfigPath(agentID string) string {
	return filepath.Join(AgentDir(agentID), "agent.json")
}

// EnsureDir creates a directory (and parents) if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0750)
}

// EnsureParentDir creates the parent directory of the given file path
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// ExpandTilde expands a leading ~/ in a path to the user home directory.
func ExpandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
