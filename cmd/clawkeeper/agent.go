package main

import (
	"fmt"

	"github.com/roelfdiedericks/clawkeeper/internal/agents"
	"github.com/roelfdiedericks/clawkeeper/internal/config"
)

type AgentCmd struct {
	Sync   AgentSyncCmd   `cmd:"" help:"Write an agent's credential and identity records."`
	Ensure AgentEnsureCmd `cmd:"" help:"Fill an agent's missing credential from any usable source."`
}

type AgentSyncCmd struct {
	ID           string `help:"Agent identity." default:"main"`
	Key          string `help:"API key; defaults to the stored one."`
	Name         string `help:"Display name to record."`
	Instructions string `help:"System instructions to record."`
	Manifest     string `help:"YAML manifest of agents to sync in bulk." type:"path"`
}

func (c *AgentSyncCmd) Run(rc *runContext) error {
	if c.Manifest != "" {
		m, err := agents.LoadManifest(c.Manifest)
		if err != nil {
			return err
		}
		n, err := m.Apply()
		if err != nil {
			return err
		}
		fmt.Printf("synced %d agents\n", n)
		return nil
	}

	key := c.Key
	if key == "" {
		stored, err := config.LoadAPIKey()
		if err != nil {
			return err
		}
		if stored == "" {
			return fmt.Errorf("%w: no API key saved and none given; run: clawkeeper auth set-key", config.ErrUnconfigured)
		}
		key = stored
	}

	if err := agents.SyncAuth(c.ID, key, c.Name, c.Instructions); err != nil {
		return err
	}
	fmt.Printf("agent %s synced\n", c.ID)
	return nil
}

type AgentEnsureCmd struct {
	ID string `help:"Agent identity." default:"main"`
}

func (c *AgentEnsureCmd) Run(rc *runContext) error {
	if err := agents.EnsureCredential(c.ID); err != nil {
		return err
	}

	rec, found, err := agents.ReadCredentialRecord(c.ID)
	if err != nil {
		return err
	}
	if found && rec.Usable() {
		fmt.Printf("agent %s has a usable credential\n", c.ID)
	} else {
		fmt.Printf("agent %s has no credential source yet\n", c.ID)
	}
	return nil
}
