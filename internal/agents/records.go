// Package agents manages the per-agent documents under the gateway's
// agents root: credential records (auth-profiles.json) and identity
// records (agent.json).
package agents

import (
	"fmt"
	"strings"

	"github.com/roelfdiedericks/clawkeeper/internal/config"
	"github.com/roelfdiedericks/clawkeeper/internal/paths"
)

// MainAgentID is the reserved default identity. The gateway falls back
// to it for connections that don't name an agent, so credential writes
// for any other identity are mirrored here.
const MainAgentID = "main"

const (
	defaultProfileID  = "anthropic:default"
	providerAnthropic = "anthropic"
)

// Profile is a single credential entry inside a CredentialRecord.
type Profile struct {
	Type     string `json:"type"`
	Provider string `json:"provider"`
	Key      string `json:"key"`
}

// CredentialRecord mirrors the gateway's auth-profiles.json layout.
type CredentialRecord struct {
	Version    int                `json:"version"`
	Profiles   map[string]Profile `json:"profiles"`
	LastGood   map[string]string  `json:"lastGood"`
	UsageStats map[string]any     `json:"usageStats"`
}

// IdentityRecord mirrors the gateway's agent.json layout.
type IdentityRecord struct {
	Name         string `json:"name"`
	Instructions string `json:"instructions"`
}

// NewCredentialRecord builds the canonical single-profile record for key.
func NewCredentialRecord(key string) *CredentialRecord {
	return &CredentialRecord{
		Version: 1,
		Profiles: map[string]Profile{
			defaultProfileID: {
				Type:     "api_key",
				Provider: providerAnthropic,
				Key:      key,
			},
		},
		LastGood:   map[string]string{providerAnthropic: defaultProfileID},
		UsageStats: map[string]any{},
	}
}

// Usable reports whether the record carries at least one profile with a
// non-empty key.
func (r *CredentialRecord) Usable() bool {
	if r == nil {
		return false
	}
	for _, p := range r.Profiles {
		if strings.TrimSpace(p.Key) != "" {
			return true
		}
	}
	return false
}

// ReadCredentialRecord loads an agent's credential record.
// found is false when the agent has no record yet.
func ReadCredentialRecord(agentID string) (*CredentialRecord, bool, error) {
	var rec CredentialRecord
	found, err := config.ReadDocument(paths.AgentAuthProfilesPath(agentID), &rec)
	if err != nil {
		return nil, found, fmt.Errorf("agent %s: %w", agentID, err)
	}
	if !found {
		return nil, false, nil
	}
	return &rec, true, nil
}

// WriteCredentialRecord persists an agent's credential record.
func WriteCredentialRecord(agentID string, rec *CredentialRecord) error {
	if err := config.WriteDocument(paths.AgentAuthProfilesPath(agentID), rec); err != nil {
		return fmt.Errorf("agent %s: failed to write credential record: %w", agentID, err)
	}
	return nil
}

// ReadIdentityRecord loads an agent's identity record.
func ReadIdentityRecord(agentID string) (*IdentityRecord, bool, error) {
	var rec IdentityRecord
	found, err := config.ReadDocument(paths.AgentConfigPath(agentID), &rec)
	if err != nil {
		return nil, found, fmt.Errorf("agent %s: %w", agentID, err)
	}
	if !found {
		return nil, false, nil
	}
	return &rec, true, nil
}

// WriteIdentityRecord persists an agent's identity record.
func WriteIdentityRecord(agentID string, rec *IdentityRecord) error {
	if err := config.WriteDocument(paths.AgentConfigPath(agentID), rec); err != nil {
		return fmt.Errorf("agent %s: failed to write identity record: %w", agentID, err)
	}
	return nil
}
