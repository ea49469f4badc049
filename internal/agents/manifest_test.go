package agents

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roelfdiedericks/clawkeeper/internal/config"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `
agents:
  - id: support
    name: Support Bot
    instructions: Answer politely.
  - id: ops
    name: Ops Bot
`)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(m.Agents) != 2 {
		t.Fatalf("agents = %d, want 2", len(m.Agents))
	}
	if m.Agents[0].ID != "support" || m.Agents[0].Name != "Support Bot" {
		t.Errorf("first agent = %+v", m.Agents[0])
	}
	if m.Agents[1].Instructions != "" {
		t.Errorf("instructions = %q, want empty", m.Agents[1].Instructions)
	}
}

func TestLoadManifestRejectsBadYAML(t *testing.T) {
	path := writeManifest(t, "agents: [")
	if _, err := LoadManifest(path); !errors.Is(err, config.ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestLoadManifestRejectsMissingID(t *testing.T) {
	path := writeManifest(t, "agents:\n  - name: NoID\n")
	if _, err := LoadManifest(path); err == nil {
		t.Error("expected error for agent without id")
	}
}

func TestLoadManifestRejectsEmpty(t *testing.T) {
	path := writeManifest(t, "agents: []\n")
	if _, err := LoadManifest(path); err == nil {
		t.Error("expected error for empty manifest")
	}
}

func TestManifestApply(t *testing.T) {
	setupHome(t)
	if err := config.SaveAPIKey("sk-manifest"); err != nil {
		t.Fatal(err)
	}

	m := &Manifest{Agents: []ManifestAgent{
		{ID: "support", Name: "Support", Instructions: "help"},
		{ID: "ops", Name: "Ops"},
	}}
	n, err := m.Apply()
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if n != 2 {
		t.Errorf("applied = %d, want 2", n)
	}

	for _, agentID := range []string{"support", "ops", MainAgentID} {
		rec, found, err := ReadCredentialRecord(agentID)
		if err != nil || !found {
			t.Fatalf("agent %s: found=%v err=%v", agentID, found, err)
		}
		if rec.Profiles["anthropic:default"].Key != "sk-manifest" {
			t.Errorf("agent %s key = %q", agentID, rec.Profiles["anthropic:default"].Key)
		}
	}
}

func TestManifestApplyWithoutStoredKey(t *testing.T) {
	setupHome(t)

	m := &Manifest{Agents: []ManifestAgent{{ID: "x"}}}
	if _, err := m.Apply(); !errors.Is(err, config.ErrUnconfigured) {
		t.Errorf("err = %v, want ErrUnconfigured", err)
	}
}
