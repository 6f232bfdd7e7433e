package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medidispatch/internal/config"
	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
	"medidispatch/internal/validators"
	"medidispatch/pkg/logger"
)

// LifecycleService is the single writer of call, transport, vehicle and
// driver status. Every accepted change appends one timeline or history
// entry and one audit event.
type LifecycleService interface {
	GetCall(ctx context.Context, id string) (*models.Call, error)
	ListCalls(ctx context.Context, params *utils.PaginationParams) ([]*models.Call, int64, error)
	GetTransport(ctx context.Context, id string) (*models.Transport, error)
	ListTransports(ctx context.Context, params *utils.PaginationParams) ([]*models.Transport, int64, error)

	TransitionCall(ctx context.Context, id string, req *models.TransitionRequest) (*models.Call, error)
	TransitionTransport(ctx context.Context, id string, req *models.TransitionRequest) (*models.Transport, error)
	// Dispatch reserves a vehicle and driver and moves the entity to
	// dispatched. It is the only way into that status.
	DispatchCall(ctx context.Context, id string, req *models.DispatchRequest) (*models.Call, error)
	DispatchTransport(ctx context.Context, id string, req *models.DispatchRequest) (*models.Transport, error)
	CandidatesFor(ctx context.Context, entityType models.EntityType, id string) ([]Candidate, error)

	Acknowledge(ctx context.Context, entityType models.EntityType, id string, req *models.AcknowledgeRequest) error
	RecordVitals(ctx context.Context, entityType models.EntityType, id string, vitals models.VitalSigns) error
	RecordIntervention(ctx context.Context, entityType models.EntityType, id string, intervention models.Intervention) error
	RecordMedication(ctx context.Context, entityType models.EntityType, id string, medication models.Medication) error

	// Escalate raises the escalation level to what the entity's age calls
	// for and returns how many levels were added.
	Escalate(ctx context.Context, entityType models.EntityType, id string) (int, error)
	// ReconcileAssignments frees vehicles and drivers still held for a call
	// or transport that has closed or no longer exists, and returns how many
	// it freed.
	ReconcileAssignments(ctx context.Context) (int, error)

	SetVehicleStatus(ctx context.Context, id string, req *models.VehicleStatusRequest) (*models.Vehicle, error)
	SetDriverStatus(ctx context.Context, id string, req *models.DriverStatusRequest) (*models.Driver, error)
}

type LifecycleDeps struct {
	Calls      interfaces.CallRepository
	Transports interfaces.TransportRepository
	Vehicles   interfaces.VehicleRepository
	Drivers    interfaces.DriverRepository
	Matcher    DispatchMatcher
	Balancer   OperatorBalancer
	Planner    RoutePlanner
	Audit      AuditService
	Notifier   Notifier
	// Tx, when set, makes the vehicle and driver release on close commit
	// or roll back as one.
	Tx Transactor
}

// Transactor runs fn so that every repository write made with the context
// it is handed commits or rolls back together.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type lifecycleService struct {
	LifecycleDeps
	cfg    *config.DispatchConfig
	logger *logger.Logger
	now    func() time.Time
}

// NewLifecycleService also subscribes to route recomputes so the dispatch
// ETA follows the latest estimate.
func NewLifecycleService(deps LifecycleDeps, cfg *config.DispatchConfig, log *logger.Logger, now func() time.Time) LifecycleService {
	s := &lifecycleService{
		LifecycleDeps: deps,
		cfg:           cfg,
		logger:        log.WithComponent("lifecycle"),
		now:           now,
	}
	if deps.Planner != nil {
		deps.Planner.OnRecompute(s.refreshArrival)
	}
	return s
}

func (s *lifecycleService) load(ctx context.Context, kind models.EntityType, id string) (*tracked, error) {
	switch kind {
	case models.EntityTypeCall:
		call, err := s.Calls.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return &tracked{call: call}, nil
	case models.EntityTypeTransport:
		transport, err := s.Transports.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return &tracked{transport: transport}, nil
	}
	return nil, fmt.Errorf("unsupported entity type %q: %w", kind, ErrValidation)
}

func (s *lifecycleService) save(ctx context.Context, t *tracked) error {
	if t.call != nil {
		return s.Calls.Update(ctx, t.call)
	}
	return s.Transports.Update(ctx, t.transport)
}

func (s *lifecycleService) mutate(ctx context.Context, kind models.EntityType, id string, apply func(*tracked) error) (*tracked, bool, error) {
	return casUpdate(ctx, s.cfg.TransitionRetries,
		func(ctx context.Context) (*tracked, error) { return s.load(ctx, kind, id) },
		s.save,
		apply)
}

func (s *lifecycleService) GetCall(ctx context.Context, id string) (*models.Call, error) {
	call, err := s.Calls.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return call, nil
}

func (s *lifecycleService) ListCalls(ctx context.Context, params *utils.PaginationParams) ([]*models.Call, int64, error) {
	return s.Calls.List(ctx, params)
}

func (s *lifecycleService) GetTransport(ctx context.Context, id string) (*models.Transport, error) {
	transport, err := s.Transports.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get transport: %w", err)
	}
	return transport, nil
}

func (s *lifecycleService) ListTransports(ctx context.Context, params *utils.PaginationParams) ([]*models.Transport, int64, error) {
	return s.Transports.List(ctx, params)
}

func (s *lifecycleService) TransitionCall(ctx context.Context, id string, req *models.TransitionRequest) (*models.Call, error) {
	t, err := s.transition(ctx, models.EntityTypeCall, id, req)
	if err != nil {
		return nil, err
	}
	return t.call, nil
}

func (s *lifecycleService) TransitionTransport(ctx context.Context, id string, req *models.TransitionRequest) (*models.Transport, error) {
	t, err := s.transition(ctx, models.EntityTypeTransport, id, req)
	if err != nil {
		return nil, err
	}
	return t.transport, nil
}

func (s *lifecycleService) transition(ctx context.Context, kind models.EntityType, id string, req *models.TransitionRequest) (*tracked, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	now := s.now()
	var from string
	t, changed, err := s.mutate(ctx, kind, id, func(t *tracked) error {
		if models.HasRequest(*t.timeline(), req.RequestID) || t.status() == req.Status {
			return errNoChange
		}
		if !t.knows(req.Status) {
			var errs validators.ValidationErrors
			errs.Add("status", "oneof", fmt.Sprintf("unknown %s status %q", kind, req.Status))
			return newValidationError(errs)
		}
		if !t.canTransitionTo(req.Status) {
			return invalidTransition(string(kind), t.status(), req.Status)
		}
		if req.Status == statusDispatched {
			return fmt.Errorf("%s needs a vehicle reservation to be dispatched: %w", kind, ErrInvalidTransition)
		}
		from = t.status()
		t.applyStatus(req.Status, req.Actor, req.Note, req.RequestID, now)
		t.setOutcome(req.Outcome)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to transition %s %s: %w", kind, id, err)
	}
	if changed {
		s.afterTransition(ctx, t, from, req.Actor, req.Note, req.RequestID)
	}
	return t, nil
}

// afterTransition runs the side effects of a committed transition. None of
// them can undo it.
func (s *lifecycleService) afterTransition(ctx context.Context, t *tracked, from, actor, note, requestID string) {
	d := t.dispatch()
	s.logger.WithContext(ctx).LogDispatchEvent(t.id(), utils.EventStatusChanged, map[string]interface{}{
		"entity_type": t.kind(),
		"from_status": from,
		"to_status":   t.status(),
		"actor":       actor,
	})
	s.Audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionTransition,
		EntityType: t.kind(),
		EntityID:   t.id(),
		FromStatus: from,
		ToStatus:   t.status(),
		Actor:      actor,
		Note:       note,
		RequestID:  requestID,
		Metadata: map[string]interface{}{
			"vehicle_id": d.VehicleID,
			"driver_id":  d.DriverID,
		},
	})

	n := models.Notification{
		Type:       models.NotificationTypeStatus,
		EntityType: t.kind(),
		EntityID:   t.id(),
		Title:      fmt.Sprintf("%s %s", t.kind(), t.status()),
		Message:    fmt.Sprintf("%s moved from %s to %s", t.id(), from, t.status()),
		Data:       map[string]interface{}{"from_status": from, "to_status": t.status()},
	}
	if t.status() == statusDispatched {
		n.Type = models.NotificationTypeAssignment
		n.Title = "New assignment"
		n.Message = fmt.Sprintf("Vehicle %s dispatched to %s", d.VehicleID, t.id())
		n.DriverID = d.DriverID
		n.Data["vehicle_id"] = d.VehicleID
		n.Data["route_id"] = d.RouteID
	}
	if t.status() == string(models.CallStatusCancelled) {
		n.DriverID = d.DriverID
	}
	s.Notifier.Notify(ctx, n)

	switch {
	case t.status() == string(models.CallStatusEnRoute) && d.RouteID != "":
		if err := s.Planner.ActivateEntityRoutes(ctx, t.id()); err != nil {
			s.logger.WithEntity(string(t.kind()), t.id()).WithError(err).Warn("Failed to activate route")
		}
	case t.isTerminal():
		s.releaseResources(ctx, t, actor)
	}
}

// releaseResources frees everything a closed call or transport held.
func (s *lifecycleService) releaseResources(ctx context.Context, t *tracked, actor string) {
	log := s.logger.WithContext(ctx).WithEntity(string(t.kind()), t.id())
	d := t.dispatch()
	completed := t.status() == string(models.CallStatusCompleted)
	closedAt := d.CompletedAt
	if closedAt == nil {
		closedAt = d.CancelledAt
	}

	if d.HasResources() {
		req := ReleaseRequest{
			EntityID:        t.id(),
			VehicleID:       d.VehicleID,
			DriverID:        d.DriverID,
			Actor:           actor,
			Reason:          fmt.Sprintf("%s %s", t.id(), t.status()),
			Completed:       completed,
			ResponseMinutes: minutesBetween(d.DispatchedAt, d.ArrivedAt),
		}
		if err := s.inTx(ctx, func(ctx context.Context) error { return s.Matcher.Release(ctx, req) }); err != nil {
			log.WithError(err).Error("Failed to release vehicle and driver, leaving them to reconciliation")
		}
	}

	if t.call != nil {
		var err error
		if d.OperatorID != "" {
			responseMinutes := minutesBetween(&t.call.CreatedAt, d.DispatchedAt)
			err = s.Balancer.ReleaseCall(ctx, d.OperatorID, t.id(), completed, responseMinutes)
		} else {
			err = s.Balancer.Dequeue(ctx, t.id())
		}
		if err != nil {
			log.WithError(err).Error("Failed to release operator slot")
		}
	}

	if d.RouteID != "" {
		if err := s.Planner.CloseEntityRoutes(ctx, t.id(), minutesBetween(d.DispatchedAt, closedAt)); err != nil {
			log.WithError(err).Warn("Failed to close routes")
		}
	}
}

func (s *lifecycleService) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.Tx == nil {
		return fn(ctx)
	}
	return s.Tx.WithTransaction(ctx, fn)
}

func (s *lifecycleService) ReconcileAssignments(ctx context.Context) (int, error) {
	vehicles, err := s.Vehicles.ListAssigned(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list assigned vehicles: %w", err)
	}
	drivers, err := s.Drivers.ListAssigned(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list assigned drivers: %w", err)
	}

	freed := 0
	for _, v := range vehicles {
		if s.reconcile(ctx, *v.CurrentAssignment, ReleaseRequest{VehicleID: v.ID}) {
			freed++
		}
	}
	for _, d := range drivers {
		if s.reconcile(ctx, *d.CurrentAssignment, ReleaseRequest{DriverID: d.ID}) {
			freed++
		}
	}
	return freed, nil
}

// reconcile releases one resource when the entity holding it is closed or
// gone. Holders that are still open keep their resources.
func (s *lifecycleService) reconcile(ctx context.Context, held models.Assignment, req ReleaseRequest) bool {
	log := s.logger.WithContext(ctx).WithEntity(string(held.EntityType), held.EntityID)

	req.EntityID = held.EntityID
	req.Actor = "reconciler"
	req.Reason = held.EntityID + " no longer exists"

	t, err := s.load(ctx, held.EntityType, held.EntityID)
	switch {
	case err == nil:
		if !t.isTerminal() {
			return false
		}
		d := t.dispatch()
		req.Reason = fmt.Sprintf("%s %s", t.id(), t.status())
		req.Completed = t.status() == string(models.CallStatusCompleted)
		req.ResponseMinutes = minutesBetween(d.DispatchedAt, d.ArrivedAt)
	case !isNotFound(err):
		log.WithError(err).Warn("Failed to load assignment holder")
		return false
	}

	if err := s.Matcher.Release(ctx, req); err != nil {
		log.WithError(err).Error("Failed to reconcile assignment")
		return false
	}
	log.WithFields(map[string]interface{}{
		"vehicle_id": req.VehicleID,
		"driver_id":  req.DriverID,
		"reason":     req.Reason,
	}).Warn("Released resources held for a closed entity")
	return true
}

// refreshArrival moves the dispatch ETA to the first leg of the latest
// estimate, until the vehicle arrives.
func (s *lifecycleService) refreshArrival(ctx context.Context, route *models.Route) {
	if route.EntityType != models.EntityTypeCall && route.EntityType != models.EntityTypeTransport {
		return
	}
	if len(route.Segments) == 0 {
		return
	}

	now := s.now()
	eta := now.Add(time.Duration(route.Segments[0].AdjustedMinutes * float64(time.Minute)))
	_, _, err := s.mutate(ctx, route.EntityType, route.EntityID, func(t *tracked) error {
		d := t.dispatch()
		if t.isTerminal() || d.RouteID != route.ID || d.ArrivedAt != nil {
			return errNoChange
		}
		if d.EstimatedArrival != nil && d.EstimatedArrival.Equal(eta) {
			return errNoChange
		}
		d.EstimatedArrival = &eta
		t.touch(now)
		return nil
	})
	if err != nil && !isNotFound(err) {
		s.logger.WithContext(ctx).WithEntity(string(route.EntityType), route.EntityID).
			WithError(err).Warn("Failed to refresh estimated arrival")
	}
}

func (s *lifecycleService) DispatchCall(ctx context.Context, id string, req *models.DispatchRequest) (*models.Call, error) {
	t, err := s.dispatchEntity(ctx, models.EntityTypeCall, id, req)
	if err != nil {
		return nil, err
	}
	return t.call, nil
}

func (s *lifecycleService) DispatchTransport(ctx context.Context, id string, req *models.DispatchRequest) (*models.Transport, error) {
	t, err := s.dispatchEntity(ctx, models.EntityTypeTransport, id, req)
	if err != nil {
		return nil, err
	}
	return t.transport, nil
}

func (s *lifecycleService) CandidatesFor(ctx context.Context, kind models.EntityType, id string) ([]Candidate, error) {
	t, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", kind, err)
	}
	return s.Matcher.Candidates(ctx, t.matchRequest(""))
}

func (s *lifecycleService) dispatchEntity(ctx context.Context, kind models.EntityType, id string, req *models.DispatchRequest) (*tracked, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	current, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", kind, err)
	}
	if models.HasRequest(*current.timeline(), req.RequestID) || current.status() == statusDispatched {
		return current, nil
	}
	if !current.canTransitionTo(statusDispatched) {
		return nil, invalidTransition(string(kind), current.status(), statusDispatched)
	}

	reservation, err := s.Matcher.Reserve(ctx, current.matchRequest(req.Actor))
	if err != nil {
		return nil, fmt.Errorf("failed to dispatch %s %s: %w", kind, id, err)
	}

	route := s.planDispatchRoute(ctx, current, reservation.Vehicle)

	now := s.now()
	var from string
	t, changed, err := s.mutate(ctx, kind, id, func(t *tracked) error {
		if models.HasRequest(*t.timeline(), req.RequestID) || t.status() == statusDispatched {
			return errNoChange
		}
		if !t.canTransitionTo(statusDispatched) {
			return invalidTransition(string(kind), t.status(), statusDispatched)
		}
		from = t.status()
		d := t.dispatch()
		d.VehicleID = reservation.Vehicle.ID
		d.DriverID = reservation.Driver.ID
		if route != nil {
			d.RouteID = route.ID
			if len(route.Segments) > 0 {
				eta := now.Add(time.Duration(route.Segments[0].AdjustedMinutes * float64(time.Minute)))
				d.EstimatedArrival = &eta
			}
		}
		t.applyStatus(statusDispatched, req.Actor, "vehicle "+reservation.Vehicle.ID+" dispatched", req.RequestID, now)
		return nil
	})
	if err != nil || !changed {
		s.abandonReservation(ctx, kind, id, reservation, req.Actor)
		if err != nil {
			return nil, fmt.Errorf("failed to dispatch %s %s: %w", kind, id, err)
		}
		return t, nil
	}

	s.logger.WithContext(ctx).LogDispatchEvent(id, utils.EventCallDispatched, map[string]interface{}{
		"entity_type": kind,
		"vehicle_id":  reservation.Vehicle.ID,
		"driver_id":   reservation.Driver.ID,
		"distance_km": utils.RoundTo(reservation.DistanceKM, 2),
	})
	s.afterTransition(ctx, t, from, req.Actor, "vehicle "+reservation.Vehicle.ID+" dispatched", req.RequestID)
	return t, nil
}

// planDispatchRoute plans vehicle -> pickup -> destination. Planning is
// best effort; a dispatch never fails because of it.
func (s *lifecycleService) planDispatchRoute(ctx context.Context, t *tracked, vehicle *models.Vehicle) *models.Route {
	pickup := t.pickup()
	if !vehicle.CurrentLocation.HasCoordinates() || !pickup.HasCoordinates() {
		return nil
	}

	req := &models.RouteRequest{
		EntityType:    t.kind(),
		EntityID:      t.id(),
		StartLocation: vehicle.CurrentLocation,
		EndLocation:   pickup,
		Waypoints:     []models.Waypoint{},
		Optimization:  models.OptimizationTraffic,
	}
	if dest, ok := t.destination(); ok {
		req.Waypoints = []models.Waypoint{{Location: pickup, Label: "pickup"}}
		req.EndLocation = dest
	}

	route, err := s.Planner.PlanRoute(ctx, req)
	if err != nil {
		s.logger.WithEntity(string(t.kind()), t.id()).WithError(err).Warn("Failed to plan dispatch route")
		return nil
	}
	return route
}

func (s *lifecycleService) abandonReservation(ctx context.Context, kind models.EntityType, id string, r *Reservation, actor string) {
	err := s.Matcher.Release(ctx, ReleaseRequest{
		EntityID:  id,
		VehicleID: r.Vehicle.ID,
		DriverID:  r.Driver.ID,
		Actor:     actor,
		Reason:    "dispatch abandoned",
	})
	if err != nil {
		s.logger.WithEntity(string(kind), id).WithError(err).Error("Failed to release abandoned reservation")
	}
}

func (s *lifecycleService) Acknowledge(ctx context.Context, kind models.EntityType, id string, req *models.AcknowledgeRequest) error {
	if err := validate(req); err != nil {
		return err
	}

	now := s.now()
	t, changed, err := s.mutate(ctx, kind, id, func(t *tracked) error {
		ack := t.acknowledgement()
		if *ack != nil {
			return errNoChange
		}
		if t.isTerminal() {
			return fmt.Errorf("%s %s is already %s: %w", kind, id, t.status(), ErrInvalidTransition)
		}
		*ack = &models.Acknowledgement{By: req.Actor, At: now}
		t.appendEntry(models.TimelineEntry{
			Kind:      models.TimelineKindAcknowledgement,
			Status:    t.status(),
			Timestamp: now,
			Actor:     req.Actor,
			Note:      "acknowledged",
		})
		t.touch(now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to acknowledge %s %s: %w", kind, id, err)
	}

	if changed {
		s.Audit.Record(ctx, &models.AuditLog{
			Action:     models.AuditActionAcknowledge,
			EntityType: kind,
			EntityID:   id,
			ToStatus:   t.status(),
			Actor:      req.Actor,
			Note:       "acknowledged",
		})
	}
	return nil
}

func (s *lifecycleService) RecordVitals(ctx context.Context, kind models.EntityType, id string, vitals models.VitalSigns) error {
	if err := validate(vitals); err != nil {
		return err
	}
	if vitals.RecordedAt.IsZero() {
		vitals.RecordedAt = s.now()
	}
	return s.recordClinical(ctx, kind, id, vitals.RecordedBy, "vital signs recorded", func(t *tracked) {
		t.appendVitals(vitals)
	})
}

func (s *lifecycleService) RecordIntervention(ctx context.Context, kind models.EntityType, id string, intervention models.Intervention) error {
	if err := validate(intervention); err != nil {
		return err
	}
	if intervention.PerformedAt.IsZero() {
		intervention.PerformedAt = s.now()
	}
	return s.recordClinical(ctx, kind, id, intervention.PerformedBy, "intervention: "+intervention.Type, func(t *tracked) {
		t.appendIntervention(intervention)
	})
}

func (s *lifecycleService) RecordMedication(ctx context.Context, kind models.EntityType, id string, medication models.Medication) error {
	if err := validate(medication); err != nil {
		return err
	}
	if medication.AdministeredAt.IsZero() {
		medication.AdministeredAt = s.now()
	}
	return s.recordClinical(ctx, kind, id, medication.AdministeredBy, "medication: "+medication.Name, func(t *tracked) {
		t.appendMedication(medication)
	})
}

func (s *lifecycleService) recordClinical(ctx context.Context, kind models.EntityType, id, actor, note string, add func(*tracked)) error {
	now := s.now()
	t, _, err := s.mutate(ctx, kind, id, func(t *tracked) error {
		add(t)
		t.touch(now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record clinical data on %s %s: %w", kind, id, err)
	}

	s.Audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionClinical,
		EntityType: kind,
		EntityID:   id,
		ToStatus:   t.status(),
		Actor:      actor,
		Note:       note,
	})
	return nil
}

func (s *lifecycleService) Escalate(ctx context.Context, kind models.EntityType, id string) (int, error) {
	now := s.now()
	var from, to int
	var age time.Duration

	t, changed, err := s.mutate(ctx, kind, id, func(t *tracked) error {
		if t.isTerminal() || *t.acknowledgement() != nil {
			return errNoChange
		}
		sla := s.cfg.SLA[t.priority()]
		if sla <= 0 {
			return errNoChange
		}
		age = now.Sub(t.slaStart())
		if age <= 0 {
			return errNoChange
		}

		target := int(age / sla)
		if target > s.cfg.MaxEscalationLevel {
			target = s.cfg.MaxEscalationLevel
		}
		esc := t.escalation()
		if target <= esc.Level {
			return errNoChange
		}

		from, to = esc.Level, target
		for level := from + 1; level <= to; level++ {
			t.appendEntry(models.TimelineEntry{
				Kind:      models.TimelineKindEscalation,
				Status:    t.status(),
				Timestamp: now,
				Actor:     "escalation_sweeper",
				Note:      fmt.Sprintf("unacknowledged for %s", utils.FormatDuration(age)),
				Level:     level,
			})
		}
		escalatedAt := now
		esc.Level = to
		esc.LastEscalatedAt = &escalatedAt
		esc.Reason = fmt.Sprintf("%s SLA of %s exceeded", t.priority(), sla)
		t.touch(now)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to escalate %s %s: %w", kind, id, err)
	}
	if !changed {
		return 0, nil
	}

	for level := from + 1; level <= to; level++ {
		s.logger.WithContext(ctx).LogEscalation(string(kind), id, level, string(t.priority()), age)
		s.Audit.Record(ctx, &models.AuditLog{
			Action:     models.AuditActionEscalate,
			EntityType: kind,
			EntityID:   id,
			ToStatus:   t.status(),
			Actor:      "escalation_sweeper",
			Note:       fmt.Sprintf("escalated to level %d", level),
			Metadata:   map[string]interface{}{"level": level, "priority": t.priority()},
		})
		s.Notifier.Notify(ctx, models.Notification{
			Type:       models.NotificationTypeEscalation,
			EntityType: kind,
			EntityID:   id,
			Severity:   t.priority(),
			Title:      fmt.Sprintf("Escalation level %d", level),
			Message:    fmt.Sprintf("%s is %s and unacknowledged after %s", id, t.status(), utils.FormatDuration(age)),
			Data:       map[string]interface{}{"level": level},
		})
	}
	return to - from, nil
}

func (s *lifecycleService) SetVehicleStatus(ctx context.Context, id string, req *models.VehicleStatusRequest) (*models.Vehicle, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	now := s.now()
	var from models.VehicleStatus
	vehicle, changed, err := casUpdate(ctx, s.cfg.TransitionRetries,
		func(ctx context.Context) (*models.Vehicle, error) { return s.Vehicles.GetByID(ctx, id) },
		s.Vehicles.Update,
		func(v *models.Vehicle) error {
			if v.Status == req.Status {
				return errNoChange
			}
			if v.CurrentAssignment != nil {
				return fmt.Errorf("vehicle %s is serving %s: %w", v.ID, v.CurrentAssignment.EntityID, ErrInvalidTransition)
			}
			from = v.Status
			v.StatusHistory = append(v.StatusHistory, models.StatusChange{
				From:      string(v.Status),
				To:        string(req.Status),
				Timestamp: now,
				Actor:     req.Actor,
				Reason:    req.Reason,
			})
			v.Status = req.Status
			v.Available = req.Status == models.VehicleStatusActive
			v.UpdatedAt = now
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to set vehicle status: %w", err)
	}
	if changed {
		s.recordResourceTransition(ctx, models.EntityTypeVehicle, id, string(from), string(req.Status), req.Actor, req.Reason)
	}
	return vehicle, nil
}

func (s *lifecycleService) SetDriverStatus(ctx context.Context, id string, req *models.DriverStatusRequest) (*models.Driver, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	now := s.now()
	var from models.DriverStatus
	driver, changed, err := casUpdate(ctx, s.cfg.TransitionRetries,
		func(ctx context.Context) (*models.Driver, error) { return s.Drivers.GetByID(ctx, id) },
		s.Drivers.Update,
		func(d *models.Driver) error {
			if d.Status == req.Status {
				return errNoChange
			}
			if d.CurrentAssignment != nil {
				return fmt.Errorf("driver %s is serving %s: %w", d.ID, d.CurrentAssignment.EntityID, ErrInvalidTransition)
			}
			from = d.Status
			d.StatusHistory = append(d.StatusHistory, models.StatusChange{
				From:      string(d.Status),
				To:        string(req.Status),
				Timestamp: now,
				Actor:     req.Actor,
				Reason:    req.Reason,
			})
			d.Status = req.Status
			d.UpdatedAt = now
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to set driver status: %w", err)
	}
	if changed {
		s.recordResourceTransition(ctx, models.EntityTypeDriver, id, string(from), string(req.Status), req.Actor, req.Reason)
	}
	return driver, nil
}

func (s *lifecycleService) recordResourceTransition(ctx context.Context, kind models.EntityType, id, from, to, actor, reason string) {
	s.Audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionTransition,
		EntityType: kind,
		EntityID:   id,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Note:       reason,
	})
}

// isNotFound is shared by callers that treat a missing entity as a no-op.
func isNotFound(err error) bool {
	return errors.Is(err, interfaces.ErrNotFound)
}
