package domain

type Property struct {
	EntityMeta
	PropertyType  string  `json:"property_type"`
	Designation   string  `json:"designation"`
	Address       string  `json:"address"`
	Owner         *string `json:"owner"`
	PostalCode    *string `json:"postal_code"`
	City          *string `json:"city"`
	NumApartments *int64  `json:"num_apartments"`
	NumPremises   *int64  `json:"num_premises"`
	Notes         *string `json:"notes"`
}

func (p *Property) EntityType() EntityType { return EntityTypeProperty }

type CreatePropertyPayload struct {
	PropertyType  string  `json:"property_type" validate:"required"`
	Designation   string  `json:"designation" validate:"required"`
	Address       string  `json:"address" validate:"required"`
	Owner         *string `json:"owner"`
	PostalCode    *string `json:"postal_code"`
	City          *string `json:"city"`
	NumApartments *int64  `json:"num_apartments" validate:"omitempty,gte=0"`
	NumPremises   *int64  `json:"num_premises" validate:"omitempty,gte=0"`
	Notes         *string `json:"notes"`
}

// UpdatePropertyPayload doubles as the patch allow-list: a field
// missing here can never be changed through sync or CRUD.
type UpdatePropertyPayload struct {
	PropertyType  *string `json:"property_type"`
	Designation   *string `json:"designation"`
	Address       *string `json:"address"`
	Owner         *string `json:"owner"`
	PostalCode    *string `json:"postal_code"`
	City          *string `json:"city"`
	NumApartments *int64  `json:"num_apartments" validate:"omitempty,gte=0"`
	NumPremises   *int64  `json:"num_premises" validate:"omitempty,gte=0"`
	Notes         *string `json:"notes"`
}
