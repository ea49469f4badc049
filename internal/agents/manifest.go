package agents

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roelfdiedericks/clawkeeper/internal/config"
	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
)

// Manifest declares a set of agent identities to provision in one shot,
// loaded from a YAML file:
//
//	agents:
//	  - id: support
//	    name: Support Bot
//	    instructions: Answer politely.
type Manifest struct {
	Agents []ManifestAgent `yaml:"agents"`
}

// ManifestAgent is one identity entry in a Manifest.
type ManifestAgent struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
}

// LoadManifest reads and validates a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", config.ErrCorrupt, path, err)
	}
	if len(m.Agents) == 0 {
		return nil, fmt.Errorf("manifest %s declares no agents", path)
	}
	for i, a := range m.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return nil, fmt.Errorf("manifest %s: agent %d has no id", path, i)
		}
	}
	return &m, nil
}

// Apply provisions every agent in the manifest with the stored API key.
// Returns the number of agents written.
func (m *Manifest) Apply() (int, error) {
	key, err := config.LoadAPIKey()
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(key) == "" {
		return 0, fmt.Errorf("%w: save an API key before importing agents", config.ErrUnconfigured)
	}

	count := 0
	for _, a := range m.Agents {
		if err := SyncAuth(a.ID, key, a.Name, a.Instructions); err != nil {
			return count, fmt.Errorf("manifest agent %s: %w", a.ID, err)
		}
		count++
	}
	L_info("agents: manifest applied", "agents", count)
	return count, nil
}
