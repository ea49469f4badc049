package main

import (
	"testing"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/clawkeeper/internal/metrics"
)

func newParser(t *testing.T) (*CLI, *kong.Kong) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("clawkeeper"))
	if err != nil {
		t.Fatalf("command grammar: %v", err)
	}
	return cli, parser
}

func TestCommandRouting(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"start"}, "start"},
		{[]string{"start", "--port", "18790", "--bind", "lan"}, "start"},
		{[]string{"stop"}, "stop"},
		{[]string{"status", "--json"}, "status"},
		{[]string{"watch", "--schedule", "@every 30s"}, "watch"},
		{[]string{"watch", "--detach"}, "watch"},
		{[]string{"auth", "set-key", "--key", "sk-ant-x"}, "auth set-key"},
		{[]string{"auth", "show"}, "auth show"},
		{[]string{"auth", "restore", "--list"}, "auth restore"},
		{[]string{"auth", "restore", "--index", "2"}, "auth restore"},
		{[]string{"agent", "sync", "--id", "helper", "--key", "sk-ant-x"}, "agent sync"},
		{[]string{"agent", "sync", "--manifest", "agents.yaml"}, "agent sync"},
		{[]string{"agent", "ensure"}, "agent ensure"},
		{[]string{"send", "hello there"}, "send <message>"},
		{[]string{"send", "hi", "--agent", "helper", "--session-key", "s1", "--system-prompt", "be brief"}, "send <message>"},
		{[]string{"call", "agent", "--params", "{}"}, "call <method>"},
		{[]string{"call", "agent", "--jq", ".result", "--raw"}, "call <method>"},
		{[]string{"doctor", "--json"}, "doctor"},
		{[]string{"metrics"}, "metrics"},
		{[]string{"exec", "--", "ls", "-la"}, "exec <command>"},
		{[]string{"version"}, "version"},
		{[]string{"--debug", "status"}, "status"},
	}

	for _, tt := range tests {
		_, parser := newParser(t)
		kctx, err := parser.Parse(tt.args)
		if err != nil {
			t.Errorf("Parse(%v): %v", tt.args, err)
			continue
		}
		if got := kctx.Command(); got != tt.want {
			t.Errorf("Parse(%v) routed to %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestCommandDefaults(t *testing.T) {
	cli, parser := newParser(t)
	if _, err := parser.Parse([]string{"agent", "sync", "--key", "sk-ant-x"}); err != nil {
		t.Fatal(err)
	}
	if cli.Agent.Sync.ID != "main" {
		t.Errorf("agent sync default id = %q, want main", cli.Agent.Sync.ID)
	}

	cli, parser = newParser(t)
	if _, err := parser.Parse([]string{"send", "hello"}); err != nil {
		t.Fatal(err)
	}
	if cli.Send.Agent != "main" {
		t.Errorf("send default agent = %q, want main", cli.Send.Agent)
	}
	if cli.Send.Message != "hello" {
		t.Errorf("send message = %q, want hello", cli.Send.Message)
	}

	cli, parser = newParser(t)
	if _, err := parser.Parse([]string{"exec", "--", "echo", "x"}); err != nil {
		t.Fatal(err)
	}
	if len(cli.Exec.Command) != 2 || cli.Exec.Command[0] != "echo" {
		t.Errorf("exec command = %v, want [echo x]", cli.Exec.Command)
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "****"},
		{"short", "****"},
		{"sk-ant-api03-abcdefgh1234", "sk-ant-...1234"},
	}
	for _, tt := range tests {
		if got := maskKey(tt.key); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestStatusIcon(t *testing.T) {
	if statusIcon("PASS") == statusIcon("FAIL") {
		t.Error("pass and fail should render differently")
	}
	if statusIcon("unknown") != statusIcon("PASS") {
		t.Error("unknown statuses should render as pass")
	}
}

func TestHealthMark(t *testing.T) {
	if healthMark(metrics.HealthGood) != "  " {
		t.Errorf("good mark = %q", healthMark(metrics.HealthGood))
	}
	if healthMark(metrics.HealthWarning) == healthMark(metrics.HealthCritical) {
		t.Error("warning and critical should render differently")
	}
}
