package domain

// Room is one entry of an apartment's room list, stored as a JSON
// array in a single column. Index is referenced by defects.
type Room struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
}

type Apartment struct {
	EntityMeta
	InspectionID    int64   `json:"inspection_id"`
	ApartmentNumber string  `json:"apartment_number"`
	Rooms           []Room  `json:"rooms"`
	Notes           *string `json:"notes"`
}

func (a *Apartment) EntityType() EntityType { return EntityTypeApartment }

type CreateApartmentPayload struct {
	InspectionID       *int64  `json:"inspection_id"`
	InspectionClientID *string `json:"inspection_client_id"`
	ApartmentNumber    string  `json:"apartment_number" validate:"required"`
	Rooms              []Room  `json:"rooms" validate:"omitempty,dive"`
	Notes              *string `json:"notes"`
}

type UpdateApartmentPayload struct {
	ApartmentNumber *string `json:"apartment_number"`
	Rooms           *[]Room `json:"rooms" validate:"omitempty,dive"`
	Notes           *string `json:"notes"`
}
