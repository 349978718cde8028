package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"besiktning-sync-server/internal/domain"
	"besiktning-sync-server/internal/repository"
)

// EntityService is the REST-facing CRUD path. It shares the registry
// and ledger with the sync engine, so an edit made through the web
// API reaches offline clients on their next pull exactly like a
// pushed one would.
type EntityService struct {
	db         *repository.DB
	registry   *Registry
	entities   repository.EntityRepository
	changeLogs repository.ChangeLogRepository
}

func NewEntityService(
	db *repository.DB,
	registry *Registry,
	entities repository.EntityRepository,
	changeLogs repository.ChangeLogRepository,
) *EntityService {
	return &EntityService{
		db:         db,
		registry:   registry,
		entities:   entities,
		changeLogs: changeLogs,
	}
}

func (s *EntityService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *EntityService) Create(ctx context.Context, userID int64, t domain.EntityType, clientID *string, payload json.RawMessage) (domain.Entity, error) {
	var entity domain.Entity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if clientID != nil {
			existing, err := s.entities.FindByClientID(ctx, tx, t, *clientID)
			if err == nil {
				return s.conflictError(existing, 0, domain.ConflictActionReview)
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}

		var err error
		if entity, err = s.registry.Build(ctx, tx, t, clientID, payload, userID); err != nil {
			return err
		}
		if err := s.entities.Insert(ctx, tx, entity); err != nil {
			return err
		}
		_, err = appendChange(ctx, tx, s.changeLogs, entity, domain.ChangeActionCreate, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (s *EntityService) Get(ctx context.Context, t domain.EntityType, id int64) (domain.Entity, error) {
	return s.entities.FindByID(ctx, s.db, t, id)
}

func (s *EntityService) List(ctx context.Context, t domain.EntityType, f repository.ListFilter) ([]domain.Entity, error) {
	return s.entities.List(ctx, s.db, t, f)
}

func (s *EntityService) Update(ctx context.Context, userID int64, t domain.EntityType, id, baseRevision int64, payload json.RawMessage) (domain.Entity, error) {
	var entity domain.Entity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if entity, err = s.entities.FindByID(ctx, tx, t, id); err != nil {
			return err
		}

		if entity.Meta().Revision != baseRevision {
			return s.conflictError(entity, baseRevision, domain.ConflictActionMerge)
		}
		if err := s.registry.ApplyPatch(entity, payload); err != nil {
			return err
		}

		ok, err := s.entities.UpdateRevisioned(ctx, tx, entity, baseRevision)
		if err != nil {
			return err
		}
		if !ok {
			current, lerr := s.entities.FindByID(ctx, tx, t, id)
			if lerr != nil {
				return lerr
			}
			return s.conflictError(current, baseRevision, domain.ConflictActionMerge)
		}

		_, err = appendChange(ctx, tx, s.changeLogs, entity, domain.ChangeActionUpdate, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// Delete soft-deletes and reports whether this call did the deleting,
// so repeating it is harmless.
func (s *EntityService) Delete(ctx context.Context, userID int64, t domain.EntityType, id, baseRevision int64) (bool, error) {
	deleted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		entity, err := s.entities.FindByID(ctx, tx, t, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		m := entity.Meta()
		if baseRevision > 0 && m.Revision != baseRevision {
			return s.conflictError(entity, baseRevision, domain.ConflictActionReview)
		}

		now := time.Now().UTC()
		m.DeletedAt = &now
		ok, err := s.entities.UpdateRevisioned(ctx, tx, entity, m.Revision)
		if err != nil {
			return err
		}
		if !ok {
			current, lerr := s.entities.FindByID(ctx, tx, t, id)
			if lerr != nil {
				return lerr
			}
			return s.conflictError(current, baseRevision, domain.ConflictActionReview)
		}

		if _, err := appendChange(ctx, tx, s.changeLogs, entity, domain.ChangeActionDelete, userID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// Restore undoes a soft delete. The resulting ledger row is an update
// carrying the full snapshot, which is what resurrects the entity on
// clients that already applied the delete.
func (s *EntityService) Restore(ctx context.Context, userID int64, t domain.EntityType, id int64) (domain.Entity, error) {
	var entity domain.Entity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if entity, err = s.entities.FindByIDWithDeleted(ctx, tx, t, id); err != nil {
			return err
		}

		m := entity.Meta()
		if m.DeletedAt == nil {
			return &ValidationError{Message: fmt.Sprintf("%s is not deleted", t)}
		}

		m.DeletedAt = nil
		ok, err := s.entities.UpdateRevisioned(ctx, tx, entity, m.Revision)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("failed to restore %s %d: revision moved", t, id)
		}

		_, err = appendChange(ctx, tx, s.changeLogs, entity, domain.ChangeActionUpdate, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (s *EntityService) conflictError(entity domain.Entity, baseRevision int64, action string) error {
	snapshot, err := Snapshot(entity)
	if err != nil {
		return err
	}
	m := entity.Meta()
	return &ConflictError{Conflict: &domain.Conflict{
		EntityType:        entity.EntityType(),
		ServerID:          m.ID,
		CurrentRevision:   m.Revision,
		BaseRevision:      baseRevision,
		ServerState:       snapshot,
		RecommendedAction: action,
	}}
}
