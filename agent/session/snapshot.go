package session

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/definition"
)

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// snapshot is the persisted form of a Registry.
type snapshot struct {
	Version      int                        `json:"version"`
	SessionID    string                     `json:"session_id"`
	CreatedAt    time.Time                  `json:"created_at"`
	SavedAt      time.Time                  `json:"saved_at"`
	ActiveAgent  string                     `json:"active_agent,omitempty"`
	ExperimentID string                     `json:"experiment_id,omitempty"`
	Variant      string                     `json:"variant,omitempty"`
	HandoffMap   map[string]string          `json:"handoff_map"`
	Records      map[string]*OverrideRecord `json:"records,omitempty"`
	CustomAgents []*definition.Definition   `json:"custom_agents,omitempty"`
}

// MarshalSnapshot encodes the session state. The result shares no memory
// with the registry, so it may be written from another goroutine.
func (r *Registry) MarshalSnapshot() ([]byte, error) {
	snap := snapshot{
		Version:      SnapshotVersion,
		SessionID:    r.sessionID,
		CreatedAt:    r.createdAt,
		SavedAt:      r.now(),
		ActiveAgent:  r.activeAgent,
		ExperimentID: r.experimentID,
		Variant:      r.variant,
		HandoffMap:   r.handoffMap,
		Records:      r.records,
	}
	for _, name := range r.customOrder {
		snap.CustomAgents = append(snap.CustomAgents, r.customAgents[name])
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode session snapshot: %w", err)
	}
	return data, nil
}

// RestoreSnapshot replaces the registry state with a decoded snapshot.
// Entries that no longer resolve against the current agent set are dropped
// and logged. The change hook is not called.
func (r *Registry) RestoreSnapshot(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode session snapshot: %w", err)
	}
	if snap.Version > SnapshotVersion {
		return fmt.Errorf("session snapshot version %d is newer than supported %d", snap.Version, SnapshotVersion)
	}
	if snap.SessionID != "" && snap.SessionID != r.sessionID {
		r.logger.Warn("snapshot belongs to another session", zap.String("snapshot_session", snap.SessionID))
	}

	r.customAgents = make(map[string]*definition.Definition, len(snap.CustomAgents))
	r.customOrder = r.customOrder[:0]
	for _, def := range snap.CustomAgents {
		if def == nil {
			continue
		}
		if err := def.Validate(); err != nil {
			r.logger.Warn("dropping invalid custom agent from snapshot", zap.Error(err))
			continue
		}
		if r.base.Has(def.Name) || r.customAgents[def.Name] != nil {
			r.logger.Warn("dropping custom agent shadowing an existing agent", zap.String("agent", def.Name))
			continue
		}
		r.customAgents[def.Name] = def
		r.customOrder = append(r.customOrder, def.Name)
	}

	r.records = make(map[string]*OverrideRecord, len(snap.Records))
	for name, rec := range snap.Records {
		if rec == nil {
			continue
		}
		if !r.Has(name) {
			r.logger.Warn("dropping overrides for unknown agent", zap.String("agent", name))
			continue
		}
		rec.BaseAgentName = name
		r.records[name] = rec
	}

	if snap.HandoffMap != nil {
		r.handoffMap = make(map[string]string, len(snap.HandoffMap))
		for token, target := range snap.HandoffMap {
			if !r.Has(target) {
				r.logger.Warn("dropping dangling handoff mapping",
					zap.String("token", token),
					zap.String("agent", target),
				)
				continue
			}
			r.handoffMap[token] = target
		}
	}

	r.activeAgent = ""
	if snap.ActiveAgent != "" {
		if r.Has(snap.ActiveAgent) {
			r.activeAgent = snap.ActiveAgent
		} else {
			r.logger.Warn("dropping unknown active agent", zap.String("agent", snap.ActiveAgent))
		}
	}
	r.experimentID = snap.ExperimentID
	r.variant = snap.Variant
	if !snap.CreatedAt.IsZero() {
		r.createdAt = snap.CreatedAt
	}
	return nil
}
