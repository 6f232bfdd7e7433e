package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
	"medidispatch/internal/validators"
	"medidispatch/pkg/logger"
	"medidispatch/pkg/maps"
)

// IntakeService turns incoming calls and transport requests into tracked
// entities and starts their dispatch.
type IntakeService interface {
	CreateCall(ctx context.Context, req *models.CallRequest) (*models.CallResponse, error)
	CreateTransport(ctx context.Context, req *models.TransportRequest) (*models.TransportResponse, error)
}

type intakeService struct {
	calls      interfaces.CallRepository
	transports interfaces.TransportRepository
	ids        IDGenerator
	lifecycle  LifecycleService
	balancer   OperatorBalancer
	audit      AuditService
	geocoder   maps.Geocoder
	logger     *logger.Logger
	now        func() time.Time
}

// NewIntakeService builds the intake pipeline. geocoder may be nil, in which
// case address-only locations are stored without coordinates.
func NewIntakeService(
	calls interfaces.CallRepository,
	transports interfaces.TransportRepository,
	ids IDGenerator,
	lifecycle LifecycleService,
	balancer OperatorBalancer,
	audit AuditService,
	geocoder maps.Geocoder,
	log *logger.Logger,
	now func() time.Time,
) IntakeService {
	return &intakeService{
		calls:      calls,
		transports: transports,
		ids:        ids,
		lifecycle:  lifecycle,
		balancer:   balancer,
		audit:      audit,
		geocoder:   geocoder,
		logger:     log.WithComponent("intake"),
		now:        now,
	}
}

func (s *intakeService) CreateCall(ctx context.Context, req *models.CallRequest) (*models.CallResponse, error) {
	errs := validators.ValidateStruct(req)
	requireLocation(&errs, "caller.location", req.Caller.Location)
	if len(errs) > 0 {
		return nil, newValidationError(errs)
	}
	req.Caller.Phone = utils.NormalizePhone(req.Caller.Phone)

	resp := &models.CallResponse{}
	s.resolveLocation(ctx, &req.Caller.Location, "caller", &resp.Warnings)
	if req.Destination != nil && req.Destination.Location == nil && req.Destination.Address != "" {
		loc := models.Location{Address: req.Destination.Address}
		s.resolveLocation(ctx, &loc, "destination", &resp.Warnings)
		if loc.HasCoordinates() {
			req.Destination.Location = &loc
		}
	}

	id, err := s.ids.Next(ctx, utils.IDPrefixCall)
	if err != nil {
		return nil, fmt.Errorf("failed to generate call id: %w", err)
	}
	call := models.NewCall(id, *req, s.now())
	if err := s.calls.Create(ctx, call); err != nil {
		return nil, fmt.Errorf("failed to create call: %w", err)
	}

	s.audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionCreate,
		EntityType: models.EntityTypeCall,
		EntityID:   call.ID,
		ToStatus:   string(call.Status),
		Actor:      call.CreatedBy,
		Note:       "call received",
	})
	s.logger.WithContext(ctx).LogDispatchEvent(call.ID, utils.EventCallReceived, map[string]interface{}{
		"priority":       call.Emergency.Priority,
		"emergency_type": call.Emergency.Type,
	})

	if dispatched, err := s.lifecycle.DispatchCall(ctx, call.ID, &models.DispatchRequest{Actor: "auto_dispatch"}); err != nil {
		resp.Warnings = append(resp.Warnings, dispatchWarning(err))
		s.logger.WithEntity(string(models.EntityTypeCall), call.ID).WithError(err).Warn("Auto dispatch failed")
	} else {
		call = dispatched
	}

	operatorID, queued, err := s.balancer.AssignCall(ctx, call.ID)
	if err != nil {
		resp.Warnings = append(resp.Warnings, "operator assignment failed")
		s.logger.WithEntity(string(models.EntityTypeCall), call.ID).WithError(err).Error("Operator assignment failed")
	}
	resp.OperatorID = operatorID
	resp.Queued = queued

	// Reload so the response carries the operator and dispatch details.
	if fresh, err := s.calls.GetByID(ctx, call.ID); err == nil {
		call = fresh
	}
	resp.Call = call
	return resp, nil
}

func (s *intakeService) CreateTransport(ctx context.Context, req *models.TransportRequest) (*models.TransportResponse, error) {
	errs := validators.ValidateStruct(req)
	requireLocation(&errs, "origin.location", req.Origin.Location)
	requireLocation(&errs, "destination.location", req.Destination.Location)
	if len(errs) > 0 {
		return nil, newValidationError(errs)
	}

	resp := &models.TransportResponse{}
	s.resolveLocation(ctx, &req.Origin.Location, "origin", &resp.Warnings)
	s.resolveLocation(ctx, &req.Destination.Location, "destination", &resp.Warnings)

	id, err := s.ids.Next(ctx, utils.IDPrefixTransport)
	if err != nil {
		return nil, fmt.Errorf("failed to generate transport id: %w", err)
	}
	transport := models.NewTransport(id, *req, s.now())
	if err := s.transports.Create(ctx, transport); err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	s.audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionCreate,
		EntityType: models.EntityTypeTransport,
		EntityID:   transport.ID,
		ToStatus:   string(transport.Status),
		Actor:      transport.CreatedBy,
		Note:       "transport scheduled",
	})

	if transport.Scheduling.Type == models.SchedulingTypeEmergency {
		dispatched, err := s.lifecycle.DispatchTransport(ctx, transport.ID, &models.DispatchRequest{Actor: "auto_dispatch"})
		if err != nil {
			resp.Warnings = append(resp.Warnings, dispatchWarning(err))
			s.logger.WithEntity(string(models.EntityTypeTransport), transport.ID).WithError(err).Warn("Auto dispatch failed")
		} else {
			transport = dispatched
		}
	}

	resp.Transport = transport
	return resp, nil
}

// resolveLocation geocodes a location that only carries an address.
// Geocoding failures become warnings; the entity is still accepted.
func (s *intakeService) resolveLocation(ctx context.Context, loc *models.Location, field string, warnings *[]string) {
	if loc.HasCoordinates() || loc.Address == "" {
		return
	}
	if s.geocoder == nil {
		*warnings = append(*warnings, field+" has no coordinates and geocoding is disabled")
		return
	}

	resp, err := s.geocoder.Geocode(ctx, loc.Address)
	if err != nil {
		s.logger.WithField("field", field).WithError(err).Warn("Geocoding failed")
		*warnings = append(*warnings, field+" could not be geocoded")
		return
	}
	best, ok := resp.Best()
	if !ok {
		*warnings = append(*warnings, field+" address was not found")
		return
	}

	loc.Type = "Point"
	loc.Coordinates = []float64{best.Coordinates.Longitude, best.Coordinates.Latitude}
	loc.PlaceID = best.PlaceID
	if best.Address != "" {
		loc.Address = best.Address
	}
}

func requireLocation(errs *validators.ValidationErrors, field string, loc models.Location) {
	if !loc.HasCoordinates() && loc.Address == "" {
		errs.Add(field, "required", "coordinates or an address are required")
	}
}

func dispatchWarning(err error) string {
	switch {
	case errors.Is(err, ErrNoCapacity):
		return "no vehicle available; awaiting manual dispatch"
	case errors.Is(err, ErrResourceConflict):
		return "vehicles were contended; awaiting manual dispatch"
	default:
		return "auto dispatch failed"
	}
}
