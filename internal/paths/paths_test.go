package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBaseDirUsesConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	got := BaseDir()
	want := filepath.Join("/tmp/xdg-test", AppDirName)
	if got != want {
		t.Errorf("BaseDir() = %q, want %q", got, want)
	}
}

func TestSettingsAndPrefsLiveInBaseDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	base := BaseDir()
	if got := SettingsPath(); got != filepath.Join(base, "config.json") {
		t.Errorf("SettingsPath() = %q", got)
	}
	if got := PrefsPath(); got != filepath.Join(base, "clawkeeper.toml") {
		t.Errorf("PrefsPath() = %q", got)
	}
}

func TestOpenClawTree(t *testing.T) {
	t.Setenv("HOME", "/home/claw")
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"base", OpenClawBaseDir(), "/home/claw/.openclaw"},
		{"config", OpenClawConfigPath(), "/home/claw/.openclaw/openclaw.json"},
		{"agents root", AgentsRoot(), "/home/claw/.openclaw/agents"},
		{"agent dir", AgentDir("main"), "/home/claw/.openclaw/agents/main/agent"},
		{"auth profiles", AgentAuthProfilesPath("bot7"), "/home/claw/.openclaw/agents/bot7/agent/auth-profiles.json"},
		{"agent config", AgentConfigPath("bot7"), "/home/claw/.openclaw/agents/bot7/agent/agent.json"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestExpandTilde(t *testing.T) {
	t.Setenv("HOME", "/home/claw")
	tests := []struct {
		in   string
		want string
	}{
		{"~/x/y", "/home/claw/x/y"},
		{"~", "/home/claw"},
		{"/abs/path", "/abs/path"},
		{"rel/path", "rel/path"},
		{"~user/x", "~user/x"},
	}
	for _, tt := range tests {
		if got := ExpandTilde(tt.in); got != tt.want {
			t.Errorf("ExpandTilde(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnsureParentDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a", "b", "c.json")
	if err := EnsureParentDir(file); err != nil {
		t.Fatalf("EnsureParentDir: %v", err)
	}
	info, err := os.Stat(filepath.Dir(file))
	if err != nil {
		t.Fatalf("stat parent: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("parent is not a directory")
	}
}
