package domain

type MeasurementType string

const (
	MeasurementTypeFlow        MeasurementType = "flode"
	MeasurementTypePressure    MeasurementType = "tryck"
	MeasurementTypeTemperature MeasurementType = "temp"
	MeasurementTypeCO2         MeasurementType = "co2"
	MeasurementTypeHumidity    MeasurementType = "fukt"
	MeasurementTypeSound       MeasurementType = "ljud"
	MeasurementTypeUnknown     MeasurementType = "okand"
)

type Measurement struct {
	EntityMeta
	InspectionID    int64           `json:"inspection_id"`
	Type            MeasurementType `json:"type"`
	Value           float64         `json:"value"`
	Unit            string          `json:"unit"`
	ApartmentNumber *string         `json:"apartment_number"`
	SortKey         *int64          `json:"sort_key"`
	Notes           *string         `json:"notes"`
}

func (m *Measurement) EntityType() EntityType { return EntityTypeMeasurement }

type CreateMeasurementPayload struct {
	InspectionID       *int64   `json:"inspection_id"`
	InspectionClientID *string  `json:"inspection_client_id"`
	Type               string   `json:"type" validate:"required,oneof=flode tryck temp co2 fukt ljud okand"`
	Value              *float64 `json:"value" validate:"required"`
	Unit               string   `json:"unit" validate:"required"`
	ApartmentNumber    *string  `json:"apartment_number"`
	SortKey            *int64   `json:"sort_key"`
	Notes              *string  `json:"notes"`
}

type UpdateMeasurementPayload struct {
	Type            *string  `json:"type" validate:"omitempty,oneof=flode tryck temp co2 fukt ljud okand"`
	Value           *float64 `json:"value"`
	Unit            *string  `json:"unit"`
	ApartmentNumber *string  `json:"apartment_number"`
	SortKey         *int64   `json:"sort_key"`
	Notes           *string  `json:"notes"`
}
