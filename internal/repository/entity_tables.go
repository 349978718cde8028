package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"besiktning-sync-server/internal/domain"
)

func tableSpecs() map[domain.EntityType]*tableSpec {
	specs := map[domain.EntityType]*tableSpec{
		domain.EntityTypeProperty: {
			table: "properties",
			columns: []string{"property_type", "designation", "address", "owner",
				"postal_code", "city", "num_apartments", "num_premises", "notes"},
			values: propertyValues,
			scan:   scanProperty,
		},
		domain.EntityTypeInspection: {
			table:        "inspections",
			parentColumn: "property_id",
			columns: []string{"property_id", "inspector_id", "date", "status",
				"active_time_seconds", "notes"},
			values: inspectionValues,
			scan:   scanInspection,
		},
		domain.EntityTypeApartment: {
			table:        "apartments",
			parentColumn: "inspection_id",
			columns:      []string{"inspection_id", "apartment_number", "rooms", "notes"},
			values:       apartmentValues,
			scan:         scanApartment,
		},
		domain.EntityTypeDefect: {
			table:        "defects",
			parentColumn: "apartment_id",
			columns: []string{"apartment_id", "room_index", "description", "code",
				"title", "remedy", "severity"},
			values: defectValues,
			scan:   scanDefect,
		},
		domain.EntityTypeMeasurement: {
			table:        "measurements",
			parentColumn: "inspection_id",
			columns: []string{"inspection_id", "type", "value", "unit",
				"apartment_number", "sort_key", "notes"},
			values: measurementValues,
			scan:   scanMeasurement,
		},
	}
	for _, s := range specs {
		s.build()
	}
	return specs
}

// metaRow buffers the nullable meta columns during a scan.
type metaRow struct {
	clientID  sql.NullString
	createdAt string
	updatedAt string
	deletedAt sql.NullString
}

func (m *metaRow) apply(dst *domain.EntityMeta) error {
	dst.ClientID = nullStr(m.clientID)

	var err error
	if dst.CreatedAt, err = parseTime(m.createdAt); err != nil {
		return err
	}
	if dst.UpdatedAt, err = parseTime(m.updatedAt); err != nil {
		return err
	}
	if dst.DeletedAt, err = parseNullTime(m.deletedAt); err != nil {
		return err
	}
	return nil
}

func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	n := ni.Int64
	return &n
}

func propertyValues(e domain.Entity) ([]any, error) {
	p, ok := e.(*domain.Property)
	if !ok {
		return nil, fmt.Errorf("expected *domain.Property, got %T", e)
	}
	return []any{p.PropertyType, p.Designation, p.Address, p.Owner,
		p.PostalCode, p.City, p.NumApartments, p.NumPremises, p.Notes}, nil
}

func scanProperty(row rowScanner) (domain.Entity, error) {
	var (
		p    domain.Property
		meta metaRow

		owner, postalCode, city, notes sql.NullString
		numApartments, numPremises     sql.NullInt64
	)
	err := row.Scan(&p.ID, &meta.clientID, &p.Revision, &meta.createdAt, &meta.updatedAt, &meta.deletedAt,
		&p.PropertyType, &p.Designation, &p.Address, &owner, &postalCode, &city,
		&numApartments, &numPremises, &notes)
	if err != nil {
		return nil, fmt.Errorf("failed to scan property: %w", err)
	}
	if err := meta.apply(&p.EntityMeta); err != nil {
		return nil, err
	}

	p.Owner = nullStr(owner)
	p.PostalCode = nullStr(postalCode)
	p.City = nullStr(city)
	p.NumApartments = nullInt(numApartments)
	p.NumPremises = nullInt(numPremises)
	p.Notes = nullStr(notes)
	return &p, nil
}

func inspectionValues(e domain.Entity) ([]any, error) {
	i, ok := e.(*domain.Inspection)
	if !ok {
		return nil, fmt.Errorf("expected *domain.Inspection, got %T", e)
	}
	return []any{i.PropertyID, i.InspectorID, i.Date, string(i.Status),
		i.ActiveTimeSeconds, i.Notes}, nil
}

func scanInspection(row rowScanner) (domain.Entity, error) {
	var (
		i    domain.Inspection
		meta metaRow

		inspectorID sql.NullInt64
		status      string
		notes       sql.NullString
	)
	err := row.Scan(&i.ID, &meta.clientID, &i.Revision, &meta.createdAt, &meta.updatedAt, &meta.deletedAt,
		&i.PropertyID, &inspectorID, &i.Date, &status, &i.ActiveTimeSeconds, &notes)
	if err != nil {
		return nil, fmt.Errorf("failed to scan inspection: %w", err)
	}
	if err := meta.apply(&i.EntityMeta); err != nil {
		return nil, err
	}

	i.InspectorID = nullInt(inspectorID)
	i.Status = domain.InspectionStatus(status)
	i.Notes = nullStr(notes)
	return &i, nil
}

func apartmentValues(e domain.Entity) ([]any, error) {
	a, ok := e.(*domain.Apartment)
	if !ok {
		return nil, fmt.Errorf("expected *domain.Apartment, got %T", e)
	}
	rooms, err := json.Marshal(a.Rooms)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rooms: %w", err)
	}
	return []any{a.InspectionID, a.ApartmentNumber, string(rooms), a.Notes}, nil
}

func scanApartment(row rowScanner) (domain.Entity, error) {
	var (
		a    domain.Apartment
		meta metaRow

		rooms string
		notes sql.NullString
	)
	err := row.Scan(&a.ID, &meta.clientID, &a.Revision, &meta.createdAt, &meta.updatedAt, &meta.deletedAt,
		&a.InspectionID, &a.ApartmentNumber, &rooms, &notes)
	if err != nil {
		return nil, fmt.Errorf("failed to scan apartment: %w", err)
	}
	if err := meta.apply(&a.EntityMeta); err != nil {
		return nil, err
	}

	a.Rooms = []domain.Room{}
	if rooms != "" {
		if err := json.Unmarshal([]byte(rooms), &a.Rooms); err != nil {
			return nil, fmt.Errorf("failed to decode rooms: %w", err)
		}
	}
	a.Notes = nullStr(notes)
	return &a, nil
}

func defectValues(e domain.Entity) ([]any, error) {
	d, ok := e.(*domain.Defect)
	if !ok {
		return nil, fmt.Errorf("expected *domain.Defect, got %T", e)
	}
	return []any{d.ApartmentID, d.RoomIndex, d.Description, d.Code,
		d.Title, d.Remedy, string(d.Severity)}, nil
}

func scanDefect(row rowScanner) (domain.Entity, error) {
	var (
		d    domain.Defect
		meta metaRow

		code, title, remedy sql.NullString
		severity            string
	)
	err := row.Scan(&d.ID, &meta.clientID, &d.Revision, &meta.createdAt, &meta.updatedAt, &meta.deletedAt,
		&d.ApartmentID, &d.RoomIndex, &d.Description, &code, &title, &remedy, &severity)
	if err != nil {
		return nil, fmt.Errorf("failed to scan defect: %w", err)
	}
	if err := meta.apply(&d.EntityMeta); err != nil {
		return nil, err
	}

	d.Code = nullStr(code)
	d.Title = nullStr(title)
	d.Remedy = nullStr(remedy)
	d.Severity = domain.DefectSeverity(severity)
	return &d, nil
}

func measurementValues(e domain.Entity) ([]any, error) {
	m, ok := e.(*domain.Measurement)
	if !ok {
		return nil, fmt.Errorf("expected *domain.Measurement, got %T", e)
	}
	return []any{m.InspectionID, string(m.Type), m.Value, m.Unit,
		m.ApartmentNumber, m.SortKey, m.Notes}, nil
}

func scanMeasurement(row rowScanner) (domain.Entity, error) {
	var (
		m    domain.Measurement
		meta metaRow

		mType                  string
		apartmentNumber, notes sql.NullString
		sortKey                sql.NullInt64
	)
	err := row.Scan(&m.ID, &meta.clientID, &m.Revision, &meta.createdAt, &meta.updatedAt, &meta.deletedAt,
		&m.InspectionID, &mType, &m.Value, &m.Unit, &apartmentNumber, &sortKey, &notes)
	if err != nil {
		return nil, fmt.Errorf("failed to scan measurement: %w", err)
	}
	if err := meta.apply(&m.EntityMeta); err != nil {
		return nil, err
	}

	m.Type = domain.MeasurementType(mType)
	m.ApartmentNumber = nullStr(apartmentNumber)
	m.SortKey = nullInt(sortKey)
	m.Notes = nullStr(notes)
	return &m, nil
}
