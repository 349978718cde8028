package domain

type DefectSeverity string

const (
	DefectSeverityLow    DefectSeverity = "low"
	DefectSeverityMedium DefectSeverity = "medium"
	DefectSeverityHigh   DefectSeverity = "high"
)

type Defect struct {
	EntityMeta
	ApartmentID int64          `json:"apartment_id"`
	RoomIndex   int64          `json:"room_index"`
	Description string         `json:"description"`
	Code        *string        `json:"code"`
	Title       *string        `json:"title"`
	Remedy      *string        `json:"remedy"`
	Severity    DefectSeverity `json:"severity"`
}

func (d *Defect) EntityType() EntityType { return EntityTypeDefect }

type CreateDefectPayload struct {
	ApartmentID       *int64  `json:"apartment_id"`
	ApartmentClientID *string `json:"apartment_client_id"`
	RoomIndex         *int64  `json:"room_index" validate:"required,gte=0"`
	Description       string  `json:"description" validate:"required"`
	Code              *string `json:"code"`
	Title             *string `json:"title"`
	Remedy            *string `json:"remedy"`
	Severity          *string `json:"severity" validate:"omitempty,oneof=low medium high"`
}

type UpdateDefectPayload struct {
	RoomIndex   *int64  `json:"room_index" validate:"omitempty,gte=0"`
	Description *string `json:"description"`
	Code        *string `json:"code"`
	Title       *string `json:"title"`
	Remedy      *string `json:"remedy"`
	Severity    *string `json:"severity" validate:"omitempty,oneof=low medium high"`
}
