package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"besiktning-sync-server/internal/domain"
	"besiktning-sync-server/internal/repository"

	"github.com/go-playground/validator/v10"
)

// typeHandler is what a type must provide to participate in sync:
// build a new entity from a client payload and patch an existing one.
// Patches only ever touch the fields of the type's update payload, so
// id, revision and the other system columns stay out of reach.
type typeHandler interface {
	build(ctx context.Context, reg *Registry, q repository.Querier, clientID *string, payload json.RawMessage, userID int64) (domain.Entity, error)
	applyPatch(reg *Registry, e domain.Entity, payload json.RawMessage) error
}

// Registry dispatches per-entity-type behavior behind one interface,
// replacing what would otherwise grow into a type switch per call
// site. Locate and ResolveRef are shared across all types.
type Registry struct {
	entities repository.EntityRepository
	validate *validator.Validate
	handlers map[domain.EntityType]typeHandler
}

func NewRegistry(entities repository.EntityRepository) *Registry {
	return &Registry{
		entities: entities,
		validate: validator.New(),
		handlers: map[domain.EntityType]typeHandler{
			domain.EntityTypeProperty:    propertyHandler{},
			domain.EntityTypeInspection:  inspectionHandler{},
			domain.EntityTypeApartment:   apartmentHandler{},
			domain.EntityTypeDefect:      defectHandler{},
			domain.EntityTypeMeasurement: measurementHandler{},
		},
	}
}

func (r *Registry) Supports(t domain.EntityType) bool {
	_, ok := r.handlers[t]
	return ok
}

func (r *Registry) Build(ctx context.Context, q repository.Querier, t domain.EntityType, clientID *string, payload json.RawMessage, userID int64) (domain.Entity, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown entity type %q", t)}
	}
	return h.build(ctx, r, q, clientID, payload, userID)
}

func (r *Registry) ApplyPatch(e domain.Entity, payload json.RawMessage) error {
	h, ok := r.handlers[e.EntityType()]
	if !ok {
		return &ValidationError{Message: fmt.Sprintf("unknown entity type %q", e.EntityType())}
	}
	return h.applyPatch(r, e, payload)
}

// Locate prefers server_id and falls back to client_id. Soft-deleted
// rows are invisible here: to the sync engine a deleted entity does
// not exist anymore.
func (r *Registry) Locate(ctx context.Context, q repository.Querier, t domain.EntityType, serverID *int64, clientID *string) (domain.Entity, error) {
	if serverID != nil {
		e, err := r.entities.FindByID(ctx, q, t, *serverID)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	if clientID != nil {
		e, err := r.entities.FindByClientID(ctx, q, t, *clientID)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// ResolveRef turns a parent reference from a payload into a server
// id. Creates arriving in the same batch as their parent carry only
// the parent's client_id; by the time a child op runs, the parent row
// already exists inside the transaction.
func (r *Registry) ResolveRef(ctx context.Context, q repository.Querier, t domain.EntityType, serverID *int64, clientID *string, field string) (int64, error) {
	e, err := r.Locate(ctx, q, t, serverID, clientID)
	if errors.Is(err, ErrNotFound) {
		if serverID == nil && clientID == nil {
			return 0, &ValidationError{Message: fmt.Sprintf("%s_id or %s_client_id is required", field, field)}
		}
		return 0, &ValidationError{Message: fmt.Sprintf("referenced %s not found", field)}
	}
	if err != nil {
		return 0, err
	}
	return e.Meta().ID, nil
}

// decode unmarshals a payload into a typed create/update struct and
// runs its validation tags. Unknown keys are ignored, which is what
// keeps clients free to echo full snapshots back.
func (r *Registry) decode(payload json.RawMessage, dst any) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return &ValidationError{Message: fmt.Sprintf("invalid payload: %v", err)}
	}
	if err := r.validate.Struct(dst); err != nil {
		return &ValidationError{Message: validationMessage(err)}
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Sprintf("field %s failed validation (%s)", e.Field(), e.Tag())
	}
	return err.Error()
}

// Snapshot serializes an entity exactly as it is stored in the change
// log and returned inside conflicts.
func Snapshot(e domain.Entity) (json.RawMessage, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot %s: %w", e.EntityType(), err)
	}
	return b, nil
}
