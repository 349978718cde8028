package service

import (
	"context"
	"encoding/json"
	"fmt"

	"besiktning-sync-server/internal/domain"
	"besiktning-sync-server/internal/repository"
)

type propertyHandler struct{}

func (propertyHandler) build(ctx context.Context, reg *Registry, q repository.Querier, clientID *string, payload json.RawMessage, userID int64) (domain.Entity, error) {
	var p domain.CreatePropertyPayload
	if err := reg.decode(payload, &p); err != nil {
		return nil, err
	}

	return &domain.Property{
		EntityMeta:    domain.EntityMeta{ClientID: clientID},
		PropertyType:  p.PropertyType,
		Designation:   p.Designation,
		Address:       p.Address,
		Owner:         p.Owner,
		PostalCode:    p.PostalCode,
		City:          p.City,
		NumApartments: p.NumApartments,
		NumPremises:   p.NumPremises,
		Notes:         p.Notes,
	}, nil
}

func (propertyHandler) applyPatch(reg *Registry, e domain.Entity, payload json.RawMessage) error {
	prop, ok := e.(*domain.Property)
	if !ok {
		return fmt.Errorf("expected *domain.Property, got %T", e)
	}

	var p domain.UpdatePropertyPayload
	if err := reg.decode(payload, &p); err != nil {
		return err
	}

	if p.PropertyType != nil {
		prop.PropertyType = *p.PropertyType
	}
	if p.Designation != nil {
		prop.Designation = *p.Designation
	}
	if p.Address != nil {
		prop.Address = *p.Address
	}
	if p.Owner != nil {
		prop.Owner = p.Owner
	}
	if p.PostalCode != nil {
		prop.PostalCode = p.PostalCode
	}
	if p.City != nil {
		prop.City = p.City
	}
	if p.NumApartments != nil {
		prop.NumApartments = p.NumApartments
	}
	if p.NumPremises != nil {
		prop.NumPremises = p.NumPremises
	}
	if p.Notes != nil {
		prop.Notes = p.Notes
	}
	return nil
}

type inspectionHandler struct{}

func (inspectionHandler) build(ctx context.Context, reg *Registry, q repository.Querier, clientID *string, payload json.RawMessage, userID int64) (domain.Entity, error) {
	var p domain.CreateInspectionPayload
	if err := reg.decode(payload, &p); err != nil {
		return nil, err
	}

	propertyID, err := reg.ResolveRef(ctx, q, domain.EntityTypeProperty, p.PropertyID, p.PropertyClientID, "property")
	if err != nil {
		return nil, err
	}

	inspectorID := p.InspectorID
	if inspectorID == nil {
		inspectorID = &userID
	}

	status := domain.InspectionStatusDraft
	if p.Status != nil {
		status = domain.InspectionStatus(*p.Status)
	}

	var activeTime int64
	if p.ActiveTimeSeconds != nil {
		activeTime = *p.ActiveTimeSeconds
	}

	return &domain.Inspection{
		EntityMeta:        domain.EntityMeta{ClientID: clientID},
		PropertyID:        propertyID,
		InspectorID:       inspectorID,
		Date:              p.Date,
		Status:            status,
		ActiveTimeSeconds: activeTime,
		Notes:             p.Notes,
	}, nil
}

func (inspectionHandler) applyPatch(reg *Registry, e domain.Entity, payload json.RawMessage) error {
	insp, ok := e.(*domain.Inspection)
	if !ok {
		return fmt.Errorf("expected *domain.Inspection, got %T", e)
	}

	var p domain.UpdateInspectionPayload
	if err := reg.decode(payload, &p); err != nil {
		return err
	}

	if p.InspectorID != nil {
		insp.InspectorID = p.InspectorID
	}
	if p.Date != nil {
		insp.Date = *p.Date
	}
	if p.Status != nil {
		insp.Status = domain.InspectionStatus(*p.Status)
	}
	if p.ActiveTimeSeconds != nil {
		insp.ActiveTimeSeconds = *p.ActiveTimeSeconds
	}
	if p.Notes != nil {
		insp.Notes = p.Notes
	}
	return nil
}

type apartmentHandler struct{}

func (apartmentHandler) build(ctx context.Context, reg *Registry, q repository.Querier, clientID *string, payload json.RawMessage, userID int64) (domain.Entity, error) {
	var p domain.CreateApartmentPayload
	if err := reg.decode(payload, &p); err != nil {
		return nil, err
	}

	inspectionID, err := reg.ResolveRef(ctx, q, domain.EntityTypeInspection, p.InspectionID, p.InspectionClientID, "inspection")
	if err != nil {
		return nil, err
	}

	rooms := p.Rooms
	if rooms == nil {
		rooms = []domain.Room{}
	}

	return &domain.Apartment{
		EntityMeta:      domain.EntityMeta{ClientID: clientID},
		InspectionID:    inspectionID,
		ApartmentNumber: p.ApartmentNumber,
		Rooms:           rooms,
		Notes:           p.Notes,
	}, nil
}

func (apartmentHandler) applyPatch(reg *Registry, e domain.Entity, payload json.RawMessage) error {
	apt, ok := e.(*domain.Apartment)
	if !ok {
		return fmt.Errorf("expected *domain.Apartment, got %T", e)
	}

	var p domain.UpdateApartmentPayload
	if err := reg.decode(payload, &p); err != nil {
		return err
	}

	if p.ApartmentNumber != nil {
		apt.ApartmentNumber = *p.ApartmentNumber
	}
	if p.Rooms != nil {
		apt.Rooms = *p.Rooms
	}
	if p.Notes != nil {
		apt.Notes = p.Notes
	}
	return nil
}

type defectHandler struct{}

func (defectHandler) build(ctx context.Context, reg *Registry, q repository.Querier, clientID *string, payload json.RawMessage, userID int64) (domain.Entity, error) {
	var p domain.CreateDefectPayload
	if err := reg.decode(payload, &p); err != nil {
		return nil, err
	}

	apartmentID, err := reg.ResolveRef(ctx, q, domain.EntityTypeApartment, p.ApartmentID, p.ApartmentClientID, "apartment")
	if err != nil {
		return nil, err
	}

	severity := domain.DefectSeverityMedium
	if p.Severity != nil {
		severity = domain.DefectSeverity(*p.Severity)
	}

	return &domain.Defect{
		EntityMeta:  domain.EntityMeta{ClientID: clientID},
		ApartmentID: apartmentID,
		RoomIndex:   *p.RoomIndex,
		Description: p.Description,
		Code:        p.Code,
		Title:       p.Title,
		Remedy:      p.Remedy,
		Severity:    severity,
	}, nil
}

func (defectHandler) applyPatch(reg *Registry, e domain.Entity, payload json.RawMessage) error {
	def, ok := e.(*domain.Defect)
	if !ok {
		return fmt.Errorf("expected *domain.Defect, got %T", e)
	}

	var p domain.UpdateDefectPayload
	if err := reg.decode(payload, &p); err != nil {
		return err
	}

	if p.RoomIndex != nil {
		def.RoomIndex = *p.RoomIndex
	}
	if p.Description != nil {
		def.Description = *p.Description
	}
	if p.Code != nil {
		def.Code = p.Code
	}
	if p.Title != nil {
		def.Title = p.Title
	}
	if p.Remedy != nil {
		def.Remedy = p.Remedy
	}
	if p.Severity != nil {
		def.Severity = domain.DefectSeverity(*p.Severity)
	}
	return nil
}

type measurementHandler struct{}

func (measurementHandler) build(ctx context.Context, reg *Registry, q repository.Querier, clientID *string, payload json.RawMessage, userID int64) (domain.Entity, error) {
	var p domain.CreateMeasurementPayload
	if err := reg.decode(payload, &p); err != nil {
		return nil, err
	}

	inspectionID, err := reg.ResolveRef(ctx, q, domain.EntityTypeInspection, p.InspectionID, p.InspectionClientID, "inspection")
	if err != nil {
		return nil, err
	}

	return &domain.Measurement{
		EntityMeta:      domain.EntityMeta{ClientID: clientID},
		InspectionID:    inspectionID,
		Type:            domain.MeasurementType(p.Type),
		Value:           *p.Value,
		Unit:            p.Unit,
		ApartmentNumber: p.ApartmentNumber,
		SortKey:         p.SortKey,
		Notes:           p.Notes,
	}, nil
}

func (measurementHandler) applyPatch(reg *Registry, e domain.Entity, payload json.RawMessage) error {
	mes, ok := e.(*domain.Measurement)
	if !ok {
		return fmt.Errorf("expected *domain.Measurement, got %T", e)
	}

	var p domain.UpdateMeasurementPayload
	if err := reg.decode(payload, &p); err != nil {
		return err
	}

	if p.Type != nil {
		mes.Type = domain.MeasurementType(*p.Type)
	}
	if p.Value != nil {
		mes.Value = *p.Value
	}
	if p.Unit != nil {
		mes.Unit = *p.Unit
	}
	if p.ApartmentNumber != nil {
		mes.ApartmentNumber = p.ApartmentNumber
	}
	if p.SortKey != nil {
		mes.SortKey = p.SortKey
	}
	if p.Notes != nil {
		mes.Notes = p.Notes
	}
	return nil
}
