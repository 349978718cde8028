package domain

import (
	"encoding/json"
	"time"
)

// RejectReason categorizes a per-op failure so clients can tell
// "fix the payload and retry" apart from "reconcile state first".
type RejectReason string

const (
	RejectReasonValidation RejectReason = "validation_error"
	RejectReasonNotFound   RejectReason = "not_found"
	RejectReasonConflict   RejectReason = "conflict"
	RejectReasonInternal   RejectReason = "internal_error"
)

const (
	ConflictActionMerge  = "merge"
	ConflictActionReview = "review"
)

// SyncOperation is one client-side mutation inside a push batch.
// EntityType and Action are plain strings here: unknown values must
// reject the single op, not fail the whole request at the schema
// layer.
type SyncOperation struct {
	OpID         string          `json:"op_id" validate:"required"`
	EntityType   string          `json:"entity_type" validate:"required"`
	Action       string          `json:"action" validate:"required"`
	ClientID     *string         `json:"client_id"`
	ServerID     *int64          `json:"server_id"`
	BaseRevision int64           `json:"base_revision" validate:"gte=0"`
	Payload      json.RawMessage `json:"payload"`
}

type PushRequest struct {
	DeviceID string          `json:"device_id" validate:"required"`
	Ops      []SyncOperation `json:"ops" validate:"dive"`
}

type IDMapping struct {
	EntityType EntityType `json:"entity_type"`
	ClientID   string     `json:"client_id"`
	ServerID   int64      `json:"server_id"`
	Revision   int64      `json:"revision"`
}

type RejectedOp struct {
	OpID     string       `json:"op_id"`
	Reason   RejectReason `json:"reason"`
	Message  string       `json:"message"`
	Conflict *Conflict    `json:"conflict,omitempty"`
}

// Conflict is returned to the client and never stored. ServerState is
// the authoritative snapshot the client must reconcile against.
type Conflict struct {
	EntityType        EntityType      `json:"entity_type"`
	ServerID          int64           `json:"server_id"`
	CurrentRevision   int64           `json:"current_revision"`
	BaseRevision      int64           `json:"base_revision"`
	ServerState       json.RawMessage `json:"server_state"`
	RecommendedAction string          `json:"recommended_action"`
}

type PushResult struct {
	AckedOpIDs   []string     `json:"acked_op_ids"`
	RejectedOps  []RejectedOp `json:"rejected_ops"`
	IDMap        []IDMapping  `json:"id_map"`
	ServerCursor string       `json:"server_cursor"`
}

// Change is one pull row: a ledger entry re-encoded for the wire,
// with the string cursor as its id and the stored snapshot replayed
// untouched.
type Change struct {
	ChangeID   string          `json:"change_id"`
	EntityType EntityType      `json:"entity_type"`
	ServerID   int64           `json:"server_id"`
	Action     ChangeAction    `json:"action"`
	Revision   int64           `json:"revision"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Payload    json.RawMessage `json:"payload"`
}

type PullResult struct {
	Changes    []Change `json:"changes"`
	NextCursor string   `json:"next_cursor"`
	HasMore    bool     `json:"has_more"`
}

type HandshakeResult struct {
	ServerTime            time.Time `json:"server_time"`
	MinClientVersion      string    `json:"min_client_version"`
	ConflictPolicyDefault string    `json:"conflict_policy_default"`
	MaxOpsPerPush         int       `json:"max_ops_per_push"`
}
