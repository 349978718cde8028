package service

import (
	"time"

	"besiktning-sync-server/internal/domain"
)

// Resolution is the outcome of running a strategy over a conflict.
// Either Resolved is true and State holds the winning document, or
// the conflict comes back for manual handling.
type Resolution struct {
	Resolved bool                `json:"resolved"`
	Winner   string              `json:"winner,omitempty"`
	State    map[string]any      `json:"state,omitempty"`
	Conflict *UnresolvedConflict `json:"conflict,omitempty"`
}

type UnresolvedConflict struct {
	ServerState    map[string]any `json:"server_state"`
	ClientChanges  map[string]any `json:"client_changes"`
	RequiresManual bool           `json:"requires_manual_resolution"`
}

// ConflictResolver applies resolution policies to conflicting states.
// It is deliberately decoupled from push, which always rejects and
// reports instead of resolving on the server's own authority.
type ConflictResolver struct{}

func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{}
}

// Resolve runs the given strategy. Unknown strategies fall back to
// last-write-wins, the advertised default.
func (r *ConflictResolver) Resolve(serverState, clientChanges map[string]any, strategy domain.ResolutionStrategy) *Resolution {
	switch strategy {
	case domain.StrategyManual:
		return r.manual(serverState, clientChanges)
	default:
		return r.lastWriteWins(serverState, clientChanges)
	}
}

// lastWriteWins compares updated_at timestamps. The server wins ties
// and any case where a timestamp is missing or unreadable; only a
// strictly newer client change takes the document.
func (r *ConflictResolver) lastWriteWins(serverState, clientChanges map[string]any) *Resolution {
	serverTime, serverOK := stateTime(serverState)
	clientTime, clientOK := stateTime(clientChanges)

	if serverOK && clientOK && clientTime.After(serverTime) {
		return &Resolution{Resolved: true, Winner: domain.WinnerClient, State: clientChanges}
	}
	return &Resolution{Resolved: true, Winner: domain.WinnerServer, State: serverState}
}

func (r *ConflictResolver) manual(serverState, clientChanges map[string]any) *Resolution {
	return &Resolution{
		Resolved: false,
		Conflict: &UnresolvedConflict{
			ServerState:    serverState,
			ClientChanges:  clientChanges,
			RequiresManual: true,
		},
	}
}

// MergeFields builds a merged document starting from the server state
// and folding in client changes field by field. Fields without an
// explicit strategy default to taking the client's value.
func (r *ConflictResolver) MergeFields(serverState, clientChanges map[string]any, fieldStrategies map[string]domain.FieldStrategy) map[string]any {
	merged := make(map[string]any, len(serverState))
	for k, v := range serverState {
		merged[k] = v
	}

	for field, value := range clientChanges {
		switch fieldStrategies[field] {
		case domain.FieldServerWins:
			merged[field] = serverState[field]
		default:
			merged[field] = value
		}
	}
	return merged
}

func stateTime(state map[string]any) (time.Time, bool) {
	raw, ok := state["updated_at"].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, raw); err != nil {
			return time.Time{}, false
		}
	}
	return t, true
}
