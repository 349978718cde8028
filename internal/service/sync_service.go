package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"besiktning-sync-server/internal/domain"
	"besiktning-sync-server/internal/repository"
)

// SyncOptions carries the tunables of the push/pull engine.
type SyncOptions struct {
	MaxOpsPerPush    int
	DefaultPullLimit int
	MaxPullLimit     int
	IdempotencyTTL   time.Duration
	MinClientVersion string
}

// SyncService implements the push/pull protocol: batched client
// mutations in, ledger-ordered changes out. One push batch runs in
// one transaction; per-op failures roll back to a savepoint and are
// reported as rejections without aborting their siblings.
type SyncService struct {
	db         *repository.DB
	registry   *Registry
	entities   repository.EntityRepository
	changeLogs repository.ChangeLogRepository
	syncLogs   repository.SyncLogRepository
	opts       SyncOptions
}

func NewSyncService(
	db *repository.DB,
	registry *Registry,
	entities repository.EntityRepository,
	changeLogs repository.ChangeLogRepository,
	syncLogs repository.SyncLogRepository,
	opts SyncOptions,
) *SyncService {
	return &SyncService{
		db:         db,
		registry:   registry,
		entities:   entities,
		changeLogs: changeLogs,
		syncLogs:   syncLogs,
		opts:       opts,
	}
}

func (s *SyncService) MaxOpsPerPush() int { return s.opts.MaxOpsPerPush }

// ProcessPush applies a batch of client operations and returns the
// response body that was (or already had been) cached under the
// idempotency key. Retries therefore receive byte-identical bodies.
func (s *SyncService) ProcessPush(ctx context.Context, userID int64, req *domain.PushRequest, idempotencyKey string) (json.RawMessage, error) {
	now := time.Now().UTC()

	if rec, err := s.syncLogs.Find(ctx, s.db, idempotencyKey, now); err == nil {
		return rec.ResponseBody, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin push transaction: %w", err)
	}
	defer tx.Rollback()

	result := &domain.PushResult{
		AckedOpIDs:  []string{},
		RejectedOps: []domain.RejectedOp{},
		IDMap:       []domain.IDMapping{},
	}

	var maxLedgerID int64
	for i := range req.Ops {
		op := &req.Ops[i]

		sp := fmt.Sprintf("op_%d", i)
		if err := repository.Savepoint(ctx, tx, sp); err != nil {
			return nil, fmt.Errorf("failed to create savepoint: %w", err)
		}

		out := s.applyOperation(ctx, tx, userID, op)
		if out.reject != nil {
			if err := repository.RollbackToSavepoint(ctx, tx, sp); err != nil {
				return nil, fmt.Errorf("failed to roll back op %s: %w", op.OpID, err)
			}
			result.RejectedOps = append(result.RejectedOps, *out.reject)
		} else {
			result.AckedOpIDs = append(result.AckedOpIDs, op.OpID)
			if out.idMap != nil {
				result.IDMap = append(result.IDMap, *out.idMap)
			}
			if out.ledgerID > maxLedgerID {
				maxLedgerID = out.ledgerID
			}
		}
		if err := repository.ReleaseSavepoint(ctx, tx, sp); err != nil {
			return nil, fmt.Errorf("failed to release savepoint: %w", err)
		}
	}

	cursorID := maxLedgerID
	if cursorID == 0 {
		if cursorID, err = s.changeLogs.TailID(ctx, tx); err != nil {
			return nil, err
		}
	}
	result.ServerCursor = domain.EncodeCursor(cursorID)

	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode push result: %w", err)
	}

	rec := &domain.SyncLogRecord{
		IdempotencyKey: idempotencyKey,
		DeviceID:       req.DeviceID,
		UserID:         userID,
		ResponseBody:   body,
		StatusCode:     200,
		ProcessedAt:    now,
		ExpiresAt:      now.Add(s.opts.IdempotencyTTL),
	}
	if err := s.syncLogs.Save(ctx, tx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// A concurrent retry committed first. Drop our work and
			// serve the winner's cached response.
			tx.Rollback()
			winner, ferr := s.syncLogs.Find(ctx, s.db, idempotencyKey, now)
			if ferr != nil {
				return nil, fmt.Errorf("lost idempotency race but found no cached response: %w", ferr)
			}
			return winner.ResponseBody, nil
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit push transaction: %w", err)
	}
	return body, nil
}

type opOutcome struct {
	reject   *domain.RejectedOp
	idMap    *domain.IDMapping
	ledgerID int64
}

// applyOperation never lets a single op take the batch down: panics
// and unexpected errors come back as internal_error rejections.
func (s *SyncService) applyOperation(ctx context.Context, tx *sql.Tx, userID int64, op *domain.SyncOperation) (out opOutcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("panic processing op %s: %v", op.OpID, p)
			out = opOutcome{reject: rejectOp(op, domain.RejectReasonInternal, "internal error")}
		}
	}()

	t := domain.EntityType(op.EntityType)
	if !s.registry.Supports(t) {
		return opOutcome{reject: rejectOp(op, domain.RejectReasonValidation,
			fmt.Sprintf("unknown entity type %q", op.EntityType))}
	}

	switch domain.ChangeAction(op.Action) {
	case domain.ChangeActionCreate:
		return s.applyCreate(ctx, tx, userID, t, op)
	case domain.ChangeActionUpdate:
		return s.applyUpdate(ctx, tx, userID, t, op)
	case domain.ChangeActionDelete:
		return s.applyDelete(ctx, tx, userID, t, op)
	default:
		return opOutcome{reject: rejectOp(op, domain.RejectReasonValidation,
			fmt.Sprintf("unknown action %q", op.Action))}
	}
}

func (s *SyncService) applyCreate(ctx context.Context, tx *sql.Tx, userID int64, t domain.EntityType, op *domain.SyncOperation) opOutcome {
	// A create that already happened (previous batch, or an earlier op
	// of this one) acks again with the existing mapping instead of
	// duplicating the entity.
	if op.ClientID != nil {
		existing, err := s.entities.FindByClientID(ctx, tx, t, *op.ClientID)
		if err == nil {
			m := existing.Meta()
			return opOutcome{idMap: &domain.IDMapping{
				EntityType: t, ClientID: *op.ClientID, ServerID: m.ID, Revision: m.Revision,
			}}
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return s.internalReject(op, err)
		}
	}

	entity, err := s.registry.Build(ctx, tx, t, op.ClientID, op.Payload, userID)
	if err != nil {
		return s.rejectFromError(op, err)
	}
	if err := s.entities.Insert(ctx, tx, entity); err != nil {
		return s.internalReject(op, err)
	}

	ledgerID, err := appendChange(ctx, tx, s.changeLogs, entity, domain.ChangeActionCreate, userID)
	if err != nil {
		return s.internalReject(op, err)
	}

	out := opOutcome{ledgerID: ledgerID}
	if op.ClientID != nil {
		m := entity.Meta()
		out.idMap = &domain.IDMapping{
			EntityType: t, ClientID: *op.ClientID, ServerID: m.ID, Revision: m.Revision,
		}
	}
	return out
}

func (s *SyncService) applyUpdate(ctx context.Context, tx *sql.Tx, userID int64, t domain.EntityType, op *domain.SyncOperation) opOutcome {
	entity, err := s.registry.Locate(ctx, tx, t, op.ServerID, op.ClientID)
	if errors.Is(err, ErrNotFound) {
		return opOutcome{reject: rejectOp(op, domain.RejectReasonNotFound, "entity not found")}
	}
	if err != nil {
		return s.internalReject(op, err)
	}

	if entity.Meta().Revision != op.BaseRevision {
		return s.conflictReject(op, t, entity, domain.ConflictActionMerge)
	}

	if err := s.registry.ApplyPatch(entity, op.Payload); err != nil {
		return s.rejectFromError(op, err)
	}

	ok, err := s.entities.UpdateRevisioned(ctx, tx, entity, op.BaseRevision)
	if err != nil {
		return s.internalReject(op, err)
	}
	if !ok {
		current, lerr := s.registry.Locate(ctx, tx, t, op.ServerID, op.ClientID)
		if lerr != nil {
			return s.internalReject(op, lerr)
		}
		return s.conflictReject(op, t, current, domain.ConflictActionMerge)
	}

	ledgerID, err := appendChange(ctx, tx, s.changeLogs, entity, domain.ChangeActionUpdate, userID)
	if err != nil {
		return s.internalReject(op, err)
	}
	return opOutcome{ledgerID: ledgerID}
}

func (s *SyncService) applyDelete(ctx context.Context, tx *sql.Tx, userID int64, t domain.EntityType, op *domain.SyncOperation) opOutcome {
	entity, err := s.registry.Locate(ctx, tx, t, op.ServerID, op.ClientID)
	if errors.Is(err, ErrNotFound) {
		// Missing or already soft-deleted: deleting twice is fine and
		// appends nothing to the ledger.
		return opOutcome{}
	}
	if err != nil {
		return s.internalReject(op, err)
	}

	m := entity.Meta()
	if op.BaseRevision > 0 && m.Revision != op.BaseRevision {
		return s.conflictReject(op, t, entity, domain.ConflictActionReview)
	}

	now := time.Now().UTC()
	m.DeletedAt = &now

	ok, err := s.entities.UpdateRevisioned(ctx, tx, entity, m.Revision)
	if err != nil {
		return s.internalReject(op, err)
	}
	if !ok {
		current, lerr := s.registry.Locate(ctx, tx, t, op.ServerID, op.ClientID)
		if lerr != nil {
			return s.internalReject(op, lerr)
		}
		return s.conflictReject(op, t, current, domain.ConflictActionReview)
	}

	ledgerID, err := appendChange(ctx, tx, s.changeLogs, entity, domain.ChangeActionDelete, userID)
	if err != nil {
		return s.internalReject(op, err)
	}
	return opOutcome{ledgerID: ledgerID}
}

// appendChange writes the ledger row for a just-applied mutation.
// Delete rows carry no payload; everything else stores the full
// post-mutation snapshot.
func appendChange(ctx context.Context, q repository.Querier, changeLogs repository.ChangeLogRepository, e domain.Entity, action domain.ChangeAction, userID int64) (int64, error) {
	var payload json.RawMessage
	if action != domain.ChangeActionDelete {
		var err error
		if payload, err = Snapshot(e); err != nil {
			return 0, err
		}
	}

	m := e.Meta()
	entry := &domain.ChangeLogEntry{
		EntityType:      e.EntityType(),
		ServerID:        m.ID,
		Action:          action,
		Revision:        m.Revision,
		Payload:         payload,
		ChangedByUserID: userID,
	}
	if err := changeLogs.Append(ctx, q, entry); err != nil {
		return 0, err
	}
	return entry.ID, nil
}

func rejectOp(op *domain.SyncOperation, reason domain.RejectReason, message string) *domain.RejectedOp {
	return &domain.RejectedOp{OpID: op.OpID, Reason: reason, Message: message}
}

func (s *SyncService) rejectFromError(op *domain.SyncOperation, err error) opOutcome {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return opOutcome{reject: rejectOp(op, domain.RejectReasonValidation, verr.Message)}
	}
	return s.internalReject(op, err)
}

func (s *SyncService) internalReject(op *domain.SyncOperation, err error) opOutcome {
	log.Printf("op %s failed: %v", op.OpID, err)
	return opOutcome{reject: rejectOp(op, domain.RejectReasonInternal, "internal error")}
}

func (s *SyncService) conflictReject(op *domain.SyncOperation, t domain.EntityType, entity domain.Entity, action string) opOutcome {
	snapshot, err := Snapshot(entity)
	if err != nil {
		return s.internalReject(op, err)
	}

	m := entity.Meta()
	reject := rejectOp(op, domain.RejectReasonConflict, "revision mismatch")
	reject.Conflict = &domain.Conflict{
		EntityType:        t,
		ServerID:          m.ID,
		CurrentRevision:   m.Revision,
		BaseRevision:      op.BaseRevision,
		ServerState:       snapshot,
		RecommendedAction: action,
	}
	return opOutcome{reject: reject}
}

// ProcessPull walks the ledger forward from the client's cursor. It
// reads one row past the limit to learn has_more without a count
// query, and never moves the cursor backwards: an empty page returns
// the caller's own position re-encoded.
func (s *SyncService) ProcessPull(ctx context.Context, since string, limit int) (*domain.PullResult, error) {
	sinceID := domain.DecodeCursor(since)

	if limit <= 0 {
		limit = s.opts.DefaultPullLimit
	}
	if limit > s.opts.MaxPullLimit {
		limit = s.opts.MaxPullLimit
	}

	entries, err := s.changeLogs.ListAfter(ctx, s.db, sinceID, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	changes := make([]domain.Change, 0, len(entries))
	for _, e := range entries {
		changes = append(changes, domain.Change{
			ChangeID:   domain.EncodeCursor(e.ID),
			EntityType: e.EntityType,
			ServerID:   e.ServerID,
			Action:     e.Action,
			Revision:   e.Revision,
			UpdatedAt:  e.CreatedAt,
			Payload:    json.RawMessage(e.Payload),
		})
	}

	nextCursor := domain.EncodeCursor(sinceID)
	if len(entries) > 0 {
		nextCursor = domain.EncodeCursor(entries[len(entries)-1].ID)
	}

	return &domain.PullResult{
		Changes:    changes,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// Handshake tells a connecting client what this server expects of it.
func (s *SyncService) Handshake() *domain.HandshakeResult {
	return &domain.HandshakeResult{
		ServerTime:            time.Now().UTC(),
		MinClientVersion:      s.opts.MinClientVersion,
		ConflictPolicyDefault: string(domain.StrategyLWW),
		MaxOpsPerPush:         s.opts.MaxOpsPerPush,
	}
}
