package config

import (
	"errors"
	"fmt"
	"io/fs"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"

	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
	"github.com/roelfdiedericks/clawkeeper/internal/paths"
)

// Prefs are optional operator preferences from clawkeeper.toml.
// Anything not set in the file keeps its default, so the file can be a
// single line.
type Prefs struct {
	Gateway GatewayPrefs `toml:"gateway"`
	Watch   WatchPrefs   `toml:"watch"`
	Logging LoggingPrefs `toml:"logging"`
}

// GatewayPrefs tune how the gateway subprocess is launched and bound.
type GatewayPrefs struct {
	// Command overrides the launcher, e.g. "openclaw" for a global
	// install instead of the default npx invocation.
	Command string `toml:"command"`
	Port    int    `toml:"port"`
	Bind    string `toml:"bind"`
}

// WatchPrefs control the periodic health-check loop.
type WatchPrefs struct {
	// Schedule is a cron spec or an @every interval.
	Schedule string `toml:"schedule"`
}

// LoggingPrefs set the default log level.
type LoggingPrefs struct {
	Level string `toml:"level"`
}

// DefaultPrefs returns the built-in preference values.
func DefaultPrefs() Prefs {
	return Prefs{
		Gateway: GatewayPrefs{Port: 18789, Bind: "loopback"},
		Watch:   WatchPrefs{Schedule: "@every 1m"},
		Logging: LoggingPrefs{Level: "info"},
	}
}

// LoadPrefs reads clawkeeper.toml and fills unset fields from the
// defaults. A missing file yields the defaults.
func LoadPrefs() (Prefs, error) {
	var prefs Prefs
	path := paths.PrefsPath()

	if _, err := toml.DecodeFile(path, &prefs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultPrefs(), nil
		}
		return DefaultPrefs(), fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	if err := mergo.Merge(&prefs, DefaultPrefs()); err != nil {
		return DefaultPrefs(), fmt.Errorf("failed to apply preference defaults: %w", err)
	}

	L_trace("config: prefs loaded", "path", path)
	return prefs, nil
}
