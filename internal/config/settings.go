package config

import (
	"fmt"
	"strings"

	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
	"github.com/roelfdiedericks/clawkeeper/internal/paths"
)

// Settings is clawkeeper's own settings document. It deliberately stays
// tiny: the one thing the supervisor must remember is the API key used
// to credential the gateway and its agents.
type Settings struct {
	APIKey string `json:"api_key"`
}

// LoadSettings reads the settings document. A missing file yields empty
// settings, not an error.
func LoadSettings() (*Settings, error) {
	var s Settings
	if _, err := ReadDocument(paths.SettingsPath(), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveAPIKey validates and persists the API key. Blank keys are rejected
// and nothing is written.
func SaveAPIKey(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return fmt.Errorf("%w: API key cannot be empty", ErrUnconfigured)
	}

	if err := WriteDocumentWithBackup(paths.SettingsPath(), &Settings{APIKey: trimmed}); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	L_info("config: API key saved", "path", paths.SettingsPath())
	return nil
}

// LoadAPIKey returns the stored API key, or "" when none has been saved.
func LoadAPIKey() (string, error) {
	s, err := LoadSettings()
	if err != nil {
		return "", err
	}
	return s.APIKey, nil
}
