package domain

type InspectionStatus string

const (
	InspectionStatusDraft    InspectionStatus = "draft"
	InspectionStatusFinal    InspectionStatus = "final"
	InspectionStatusArchived InspectionStatus = "archived"
)

type Inspection struct {
	EntityMeta
	PropertyID        int64            `json:"property_id"`
	InspectorID       *int64           `json:"inspector_id"`
	Date              string           `json:"date"`
	Status            InspectionStatus `json:"status"`
	ActiveTimeSeconds int64            `json:"active_time_seconds"`
	Notes             *string          `json:"notes"`
}

func (i *Inspection) EntityType() EntityType { return EntityTypeInspection }

// Creates reference the parent property either by server id or, for
// batches that create the property in the same push, by client id.
type CreateInspectionPayload struct {
	PropertyID        *int64  `json:"property_id"`
	PropertyClientID  *string `json:"property_client_id"`
	InspectorID       *int64  `json:"inspector_id"`
	Date              string  `json:"date" validate:"required,datetime=2006-01-02"`
	Status            *string `json:"status" validate:"omitempty,oneof=draft final archived"`
	ActiveTimeSeconds *int64  `json:"active_time_seconds" validate:"omitempty,gte=0"`
	Notes             *string `json:"notes"`
}

type UpdateInspectionPayload struct {
	InspectorID       *int64  `json:"inspector_id"`
	Date              *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Status            *string `json:"status" validate:"omitempty,oneof=draft final archived"`
	ActiveTimeSeconds *int64  `json:"active_time_seconds" validate:"omitempty,gte=0"`
	Notes             *string `json:"notes"`
}
