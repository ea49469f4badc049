package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roelfdiedericks/clawkeeper/internal/agents"
	"github.com/roelfdiedericks/clawkeeper/internal/gateway"
	"github.com/roelfdiedericks/clawkeeper/internal/shell"
)

type SendCmd struct {
	Message      string `arg:"" help:"Message text to deliver."`
	Agent        string `help:"Agent identity to address." default:"main"`
	SessionKey   string `name:"session-key" help:"Session key for the idempotency envelope."`
	SystemPrompt string `name:"system-prompt" help:"Update the agent's instructions before sending."`
	Name         string `help:"Update the agent's display name before sending."`
}

func (c *SendCmd) Run(rc *runContext) error {
	rc.openMetrics()

	if c.SystemPrompt != "" || c.Name != "" {
		rec, _, err := agents.ReadIdentityRecord(c.Agent)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &agents.IdentityRecord{}
		}
		if c.Name != "" {
			rec.Name = c.Name
		}
		if c.SystemPrompt != "" {
			rec.Instructions = c.SystemPrompt
		}
		if err := agents.WriteIdentityRecord(c.Agent, rec); err != nil {
			return err
		}
	}

	ctx, cancel := interruptContext()
	defer cancel()

	reply, err := gateway.NewClient(rc.cli).Invoke(ctx, c.Agent, c.Message, c.SessionKey)
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

type CallCmd struct {
	Method  string `arg:"" help:"Gateway method, e.g. agent."`
	Params  string `help:"JSON object of method parameters." default:"{}"`
	JQ      string `name:"jq" help:"Filter the JSON response through a jq expression."`
	Raw     bool   `help:"With --jq, print string results without quotes."`
	Compact bool   `help:"With --jq, print compact JSON."`
}

func (c *CallCmd) Run(rc *runContext) error {
	rc.openMetrics()

	ctx, cancel := interruptContext()
	defer cancel()

	out, err := gateway.NewClient(rc.cli).Call(ctx, c.Method, c.Params)
	if err != nil {
		return err
	}
	if c.JQ != "" {
		out, err = gateway.ApplyFilter(c.JQ, out, c.Raw, c.Compact)
		if err != nil {
			return err
		}
	}
	fmt.Println(out)
	return nil
}

// ExecCmd prints stdout when the command produced any, stderr otherwise.
type ExecCmd struct {
	Command []string      `arg:"" help:"Command line; put it after -- to pass flags through."`
	Timeout time.Duration `help:"Abort after this long." default:"5m"`
}

func (c *ExecCmd) Run(rc *runContext) error {
	runner := shell.NewRunner(shell.RunnerConfig{Timeout: c.Timeout})

	ctx, cancel := interruptContext()
	defer cancel()

	result, err := runner.RunFull(ctx, strings.Join(c.Command, " "), "")
	if err != nil {
		return err
	}
	if len(result.Stdout) > 0 {
		os.Stdout.Write(result.Stdout)
	} else if len(result.Stderr) > 0 {
		os.Stderr.Write(result.Stderr)
	}
	if result.ExitCode != 0 {
		return &shell.Error{ExitCode: result.ExitCode}
	}
	return nil
}
