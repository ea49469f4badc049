package agents

import (
	"fmt"
	"os"
	"strings"

	"github.com/roelfdiedericks/clawkeeper/internal/bus"
	"github.com/roelfdiedericks/clawkeeper/internal/config"
	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
	"github.com/roelfdiedericks/clawkeeper/internal/paths"
)

// SyncAuth writes a fresh credential record and identity record for
// agentID and mirrors both to the main identity. The gateway treats
// main as the implicit session owner, so the mirror is unconditional.
// A blank key is rejected before anything is written.
func SyncAuth(agentID, apiKey, name, instructions string) error {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return fmt.Errorf("%w: API key cannot be empty", config.ErrUnconfigured)
	}
	if agentID == "" {
		agentID = MainAgentID
	}

	if err := writeAgent(agentID, key, name, instructions); err != nil {
		return err
	}
	if agentID != MainAgentID {
		if err := writeAgent(MainAgentID, key, name, instructions); err != nil {
			return err
		}
	}

	bus.PublishWithSource(bus.TopicAuthSynced, agentID, "cli")
	return nil
}

func writeAgent(agentID, key, name, instructions string) error {
	if err := WriteCredentialRecord(agentID, NewCredentialRecord(key)); err != nil {
		return err
	}
	if err := WriteIdentityRecord(agentID, &IdentityRecord{Name: name, Instructions: instructions}); err != nil {
		return err
	}
	L_info("agents: auth synced", "agent", agentID)
	return nil
}

// EnsureCredential guarantees agentID has a usable credential record.
// Policy, in order: keep an existing usable record, synthesize from the
// stored supervisor key, or copy the first usable record found among the
// other identities. Finding no source at all is not an error; the agent
// simply stays uncredentialed.
func EnsureCredential(agentID string) error {
	rec, found, err := ReadCredentialRecord(agentID)
	if err == nil && found && rec.Usable() {
		L_trace("agents: credential already usable", "agent", agentID)
		return nil
	}
	if err != nil {
		// Unreadable record: treat as absent and rebuild below
		L_warn("agents: ignoring unreadable credential record", "agent", agentID, "error", err)
	}

	key, err := config.LoadAPIKey()
	if err != nil {
		L_warn("agents: cannot read stored API key", "error", err)
		key = ""
	}
	if key != "" {
		if err := WriteCredentialRecord(agentID, NewCredentialRecord(key)); err != nil {
			return err
		}
		L_info("agents: credential synthesized from stored key", "agent", agentID)
		return nil
	}

	donor, ok, err := findDonor(agentID)
	if err != nil {
		return err
	}
	if !ok {
		L_debug("agents: no credential source available", "agent", agentID)
		return nil
	}
	if err := copyCredentialRecord(donor, agentID); err != nil {
		return err
	}
	L_info("agents: credential copied", "agent", agentID, "from", donor)
	return nil
}

// findDonor scans the other identities under the agents root, in sorted
// directory order, for the first usable credential record.
func findDonor(agentID string) (string, bool, error) {
	entries, err := os.ReadDir(paths.AgentsRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to list agents root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == agentID {
			continue
		}
		rec, found, err := ReadCredentialRecord(entry.Name())
		if err != nil || !found || !rec.Usable() {
			continue
		}
		return entry.Name(), true, nil
	}
	return "", false, nil
}

// copyCredentialRecord copies the donor's record file verbatim, byte for
// byte, so profiles beyond the canonical one survive the copy.
func copyCredentialRecord(fromID, toID string) error {
	data, err := os.ReadFile(paths.AgentAuthProfilesPath(fromID))
	if err != nil {
		return fmt.Errorf("failed to read donor record %s: %w", fromID, err)
	}
	if err := config.AtomicWrite(paths.AgentAuthProfilesPath(toID), data, 0600); err != nil {
		return fmt.Errorf("failed to copy credential record to %s: %w", toID, err)
	}
	return nil
}
