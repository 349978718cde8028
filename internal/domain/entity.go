package domain

import "time"

type EntityType string

const (
	EntityTypeProperty    EntityType = "property"
	EntityTypeInspection  EntityType = "inspection"
	EntityTypeApartment   EntityType = "apartment"
	EntityTypeDefect      EntityType = "defect"
	EntityTypeMeasurement EntityType = "measurement"
)

// EntityTypes lists every syncable type in dependency order: parents
// before children, so a single batch can create a property and the
// inspections that reference it.
var EntityTypes = []EntityType{
	EntityTypeProperty,
	EntityTypeInspection,
	EntityTypeApartment,
	EntityTypeDefect,
	EntityTypeMeasurement,
}

func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeProperty, EntityTypeInspection, EntityTypeApartment,
		EntityTypeDefect, EntityTypeMeasurement:
		return true
	}
	return false
}

// EntityMeta carries the columns every syncable table shares. Entity
// structs embed it; the sync engine only ever touches entities through
// these fields plus the Entity interface.
type EntityMeta struct {
	ID        int64      `json:"id"`
	ClientID  *string    `json:"client_id"`
	Revision  int64      `json:"revision"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at"`
}

func (m *EntityMeta) Meta() *EntityMeta { return m }

type Entity interface {
	Meta() *EntityMeta
	EntityType() EntityType
}
