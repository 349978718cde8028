package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"besiktning-sync-server/internal/domain"
)

// ListFilter narrows entity listings. ParentID filters on the type's
// parent foreign key (ignored for properties, which have none).
type ListFilter struct {
	ParentID *int64
	Limit    int
	Offset   int
}

// EntityRepository persists all syncable types through one set of
// generic operations driven by per-type table specs. Mutations go
// through UpdateRevisioned, a conditional update keyed on the current
// revision: RowsAffected 0 means the caller lost the race.
type EntityRepository interface {
	Insert(ctx context.Context, q Querier, e domain.Entity) error
	FindByID(ctx context.Context, q Querier, t domain.EntityType, id int64) (domain.Entity, error)
	FindByIDWithDeleted(ctx context.Context, q Querier, t domain.EntityType, id int64) (domain.Entity, error)
	FindByClientID(ctx context.Context, q Querier, t domain.EntityType, clientID string) (domain.Entity, error)
	List(ctx context.Context, q Querier, t domain.EntityType, f ListFilter) ([]domain.Entity, error)
	UpdateRevisioned(ctx context.Context, q Querier, e domain.Entity, baseRevision int64) (bool, error)
}

type entityRepository struct {
	specs map[domain.EntityType]*tableSpec
}

func NewEntityRepository() EntityRepository {
	return &entityRepository{specs: tableSpecs()}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// tableSpec describes how one entity type maps onto its table. The
// five shared meta columns always come first; columns lists only the
// type-specific ones, in the order values and scan expect them.
type tableSpec struct {
	table        string
	parentColumn string
	columns      []string
	values       func(domain.Entity) ([]any, error)
	scan         func(rowScanner) (domain.Entity, error)

	insertSQL string
	updateSQL string
	selectSQL string
}

func (s *tableSpec) build() {
	all := append([]string{"client_id", "revision", "created_at", "updated_at", "deleted_at"}, s.columns...)

	s.insertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table, strings.Join(all, ", "), placeholders(len(all)))

	sets := make([]string, 0, len(s.columns)+3)
	for _, c := range append([]string{"revision", "updated_at", "deleted_at"}, s.columns...) {
		sets = append(sets, c+" = ?")
	}
	s.updateSQL = fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND revision = ?",
		s.table, strings.Join(sets, ", "))

	s.selectSQL = fmt.Sprintf("SELECT id, %s FROM %s", strings.Join(all, ", "), s.table)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (r *entityRepository) spec(t domain.EntityType) (*tableSpec, error) {
	s, ok := r.specs[t]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", t)
	}
	return s, nil
}

func (r *entityRepository) Insert(ctx context.Context, q Querier, e domain.Entity) error {
	s, err := r.spec(e.EntityType())
	if err != nil {
		return err
	}

	m := e.Meta()
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Revision == 0 {
		m.Revision = 1
	}

	vals, err := s.values(e)
	if err != nil {
		return err
	}
	args := append([]any{m.ClientID, m.Revision, formatTime(m.CreatedAt),
		formatTime(m.UpdatedAt), formatNullTime(m.DeletedAt)}, vals...)

	res, err := q.ExecContext(ctx, s.insertSQL, args...)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", s.table, err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read %s id: %w", s.table, err)
	}
	return nil
}

func (r *entityRepository) FindByID(ctx context.Context, q Querier, t domain.EntityType, id int64) (domain.Entity, error) {
	return r.findOne(ctx, q, t, "id = ? AND deleted_at IS NULL", id)
}

func (r *entityRepository) FindByIDWithDeleted(ctx context.Context, q Querier, t domain.EntityType, id int64) (domain.Entity, error) {
	return r.findOne(ctx, q, t, "id = ?", id)
}

func (r *entityRepository) FindByClientID(ctx context.Context, q Querier, t domain.EntityType, clientID string) (domain.Entity, error) {
	return r.findOne(ctx, q, t, "client_id = ? AND deleted_at IS NULL", clientID)
}

func (r *entityRepository) findOne(ctx context.Context, q Querier, t domain.EntityType, where string, arg any) (domain.Entity, error) {
	s, err := r.spec(t)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, s.selectSQL+" WHERE "+where+" LIMIT 1", arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
		}
		return nil, ErrNotFound
	}
	return s.scan(rows)
}

func (r *entityRepository) List(ctx context.Context, q Querier, t domain.EntityType, f ListFilter) ([]domain.Entity, error) {
	s, err := r.spec(t)
	if err != nil {
		return nil, err
	}

	query := s.selectSQL + " WHERE deleted_at IS NULL"
	args := []any{}
	if f.ParentID != nil && s.parentColumn != "" {
		query += " AND " + s.parentColumn + " = ?"
		args = append(args, *f.ParentID)
	}
	query += " ORDER BY id ASC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.table, err)
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		e, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", s.table, err)
	}
	return entities, nil
}

func (r *entityRepository) UpdateRevisioned(ctx context.Context, q Querier, e domain.Entity, baseRevision int64) (bool, error) {
	s, err := r.spec(e.EntityType())
	if err != nil {
		return false, err
	}

	m := e.Meta()
	newRevision := baseRevision + 1
	now := time.Now().UTC()

	vals, err := s.values(e)
	if err != nil {
		return false, err
	}
	args := append([]any{newRevision, formatTime(now), formatNullTime(m.DeletedAt)}, vals...)
	args = append(args, m.ID, baseRevision)

	res, err := q.ExecContext(ctx, s.updateSQL, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", s.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read %s result: %w", s.table, err)
	}
	if n == 0 {
		return false, nil
	}

	m.Revision = newRevision
	m.UpdatedAt = now
	return true, nil
}
