package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
	"medidispatch/pkg/logger"
)

// Ranking weights, all expressed in kilometres of distance.
const (
	typeMatchBonusKM   = 5.0
	ratingWeightKM     = 1.0
	unlocatedPenaltyKM = 500.0
	criticalDistanceFx = 0.5
)

type MatchRequest struct {
	EntityType    models.EntityType
	EntityID      string
	Pickup        models.Location
	Requirements  models.Capabilities
	Urgency       models.Severity
	PreferredType models.VehicleType
	Actor         string
}

type Candidate struct {
	Vehicle    *models.Vehicle `json:"vehicle"`
	Driver     *models.Driver  `json:"driver"`
	DistanceKM float64         `json:"distance_km"`
	Score      float64         `json:"score"`
}

type Reservation struct {
	Vehicle    *models.Vehicle
	Driver     *models.Driver
	DistanceKM float64
	Attempts   int
}

type ReleaseRequest struct {
	EntityID        string
	VehicleID       string
	DriverID        string
	Actor           string
	Reason          string
	Completed       bool
	ResponseMinutes float64
}

// DispatchMatcher picks and reserves a vehicle and driver pair. A vehicle
// is held by at most one call or transport at a time.
type DispatchMatcher interface {
	Candidates(ctx context.Context, req MatchRequest) ([]Candidate, error)
	Reserve(ctx context.Context, req MatchRequest) (*Reservation, error)
	Release(ctx context.Context, req ReleaseRequest) error
}

type dispatchMatcher struct {
	vehicles    interfaces.VehicleRepository
	drivers     interfaces.DriverRepository
	notifier    Notifier
	logger      *logger.Logger
	now         func() time.Time
	maxAttempts int
	retries     int
}

func NewDispatchMatcher(
	vehicles interfaces.VehicleRepository,
	drivers interfaces.DriverRepository,
	notifier Notifier,
	log *logger.Logger,
	now func() time.Time,
	maxAttempts, retries int,
) DispatchMatcher {
	if maxAttempts <= 0 {
		maxAttempts = utils.DefaultReservationAttempts
	}
	return &dispatchMatcher{
		vehicles:    vehicles,
		drivers:     drivers,
		notifier:    notifier,
		logger:      log.WithComponent("matcher"),
		now:         now,
		maxAttempts: maxAttempts,
		retries:     retries,
	}
}

// Candidates returns eligible pairs best first. Lower scores rank higher;
// ties fall back to vehicle ID.
func (m *dispatchMatcher) Candidates(ctx context.Context, req MatchRequest) ([]Candidate, error) {
	vehicles, err := m.vehicles.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list available vehicles: %w", err)
	}

	now := m.now()
	var candidates []Candidate
	for _, v := range vehicles {
		if !v.IsDispatchable(now) || !v.Capabilities.Satisfies(req.Requirements) || v.AssignedDriverID == "" {
			continue
		}

		driver, err := m.drivers.GetByID(ctx, v.AssignedDriverID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load driver %s: %w", v.AssignedDriverID, err)
		}
		if !driver.IsDispatchable() {
			continue
		}

		distance := pickupDistance(req.Pickup, v.CurrentLocation)
		candidates = append(candidates, Candidate{
			Vehicle:    v,
			Driver:     driver,
			DistanceKM: distance,
			Score:      score(distance, v, driver, req),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !equalFloat(candidates[i].Score, candidates[j].Score) {
			return candidates[i].Score < candidates[j].Score
		}
		return candidates[i].Vehicle.ID < candidates[j].Vehicle.ID
	})
	return candidates, nil
}

func pickupDistance(pickup, at models.Location) float64 {
	if !pickup.HasCoordinates() {
		return 0
	}
	if !at.HasCoordinates() {
		return unlocatedPenaltyKM
	}
	return utils.CalculateDistance(pickup.Latitude(), pickup.Longitude(), at.Latitude(), at.Longitude())
}

func score(distance float64, v *models.Vehicle, d *models.Driver, req MatchRequest) float64 {
	s := distance
	if req.Urgency == models.SeverityCritical {
		s *= criticalDistanceFx
	}
	if req.PreferredType != "" && v.Type == req.PreferredType {
		s -= typeMatchBonusKM
	}
	return s - d.Performance.Rating*ratingWeightKM
}

func (m *dispatchMatcher) Reserve(ctx context.Context, req MatchRequest) (*Reservation, error) {
	log := m.logger.WithContext(ctx).WithEntity(string(req.EntityType), req.EntityID)

	candidates, err := m.Candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	// Running out of attempts on contended vehicles is treated the same as
	// having no candidates at all.
	attempts := 0
	for _, c := range candidates {
		if attempts >= m.maxAttempts {
			break
		}
		attempts++

		vehicle, err := m.reserveVehicle(ctx, c.Vehicle, req)
		if err != nil {
			if errors.Is(err, interfaces.ErrVersionConflict) {
				log.WithField("vehicle_id", c.Vehicle.ID).Debug("Vehicle taken, trying next candidate")
				continue
			}
			return nil, err
		}

		driver, err := m.reserveDriver(ctx, c.Driver, vehicle.ID, req)
		if err != nil {
			m.rollbackVehicle(ctx, vehicle.ID, req)
			if errors.Is(err, interfaces.ErrVersionConflict) {
				log.WithField("driver_id", c.Driver.ID).Debug("Driver taken, trying next candidate")
				continue
			}
			return nil, err
		}

		log.LogDispatchEvent(req.EntityID, utils.EventVehicleReserved, map[string]interface{}{
			"vehicle_id":  vehicle.ID,
			"driver_id":   driver.ID,
			"distance_km": utils.RoundTo(c.DistanceKM, 2),
			"attempts":    attempts,
		})
		return &Reservation{
			Vehicle:    vehicle,
			Driver:     driver,
			DistanceKM: c.DistanceKM,
			Attempts:   attempts,
		}, nil
	}

	log.WithFields(map[string]interface{}{
		"candidates": len(candidates),
		"attempts":   attempts,
		"requires":   req.Requirements.Names(),
	}).Warn("No vehicle available")
	log.LogDispatchEvent(req.EntityID, utils.EventNoCapacity, map[string]interface{}{
		"urgency":    req.Urgency,
		"candidates": len(candidates),
		"attempts":   attempts,
	})
	if req.Urgency == models.SeverityCritical {
		m.notifier.Notify(ctx, models.Notification{
			Type:       models.NotificationTypeNoCapacity,
			EntityType: req.EntityType,
			EntityID:   req.EntityID,
			Severity:   req.Urgency,
			Title:      "No vehicle available",
			Message:    "Critical case could not be matched to a vehicle",
		})
	}
	return nil, fmt.Errorf("%s %s: %w", req.EntityType, req.EntityID, ErrNoCapacity)
}

// reserveVehicle writes against the version the candidate was read at, so
// a vehicle taken in the meantime surfaces as a version conflict.
func (m *dispatchMatcher) reserveVehicle(ctx context.Context, v *models.Vehicle, req MatchRequest) (*models.Vehicle, error) {
	now := m.now()
	if !v.IsDispatchable(now) {
		return nil, interfaces.ErrVersionConflict
	}

	v.Available = false
	v.CurrentAssignment = &models.Assignment{EntityType: req.EntityType, EntityID: req.EntityID, AssignedAt: now}
	v.StatusHistory = append(v.StatusHistory, models.StatusChange{
		From:      models.VehicleAvailable,
		To:        models.VehicleReserved,
		Timestamp: now,
		Actor:     actorOr(req.Actor, "matcher"),
		Reason:    "reserved for " + req.EntityID,
	})
	v.UpdatedAt = now

	if err := m.vehicles.Update(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to reserve vehicle %s: %w", v.ID, err)
	}
	return v, nil
}

func (m *dispatchMatcher) reserveDriver(ctx context.Context, d *models.Driver, vehicleID string, req MatchRequest) (*models.Driver, error) {
	now := m.now()
	if !d.IsDispatchable() {
		return nil, interfaces.ErrVersionConflict
	}

	d.Status = models.DriverStatusOnDuty
	d.AssignedVehicleID = vehicleID
	d.CurrentAssignment = &models.Assignment{EntityType: req.EntityType, EntityID: req.EntityID, AssignedAt: now}
	d.StatusHistory = append(d.StatusHistory, models.StatusChange{
		From:      string(models.DriverStatusActive),
		To:        string(models.DriverStatusOnDuty),
		Timestamp: now,
		Actor:     actorOr(req.Actor, "matcher"),
		Reason:    "assigned to " + req.EntityID,
	})
	d.UpdatedAt = now

	if err := m.drivers.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to reserve driver %s: %w", d.ID, err)
	}
	return d, nil
}

func (m *dispatchMatcher) rollbackVehicle(ctx context.Context, vehicleID string, req MatchRequest) {
	err := m.releaseVehicle(ctx, vehicleID, req.EntityID, actorOr(req.Actor, "matcher"), "reservation rolled back")
	if err != nil {
		m.logger.WithEntity("vehicle", vehicleID).WithError(err).Error("Failed to roll back vehicle reservation")
	}
}

// Release frees the pair held for an entity. Resources already released or
// held for a different entity are left alone.
func (m *dispatchMatcher) Release(ctx context.Context, req ReleaseRequest) error {
	actor := actorOr(req.Actor, "lifecycle")

	var errs []error
	if req.VehicleID != "" {
		if err := m.releaseVehicle(ctx, req.VehicleID, req.EntityID, actor, req.Reason); err != nil {
			errs = append(errs, err)
		}
	}
	if req.DriverID != "" {
		if err := m.releaseDriver(ctx, req, actor); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *dispatchMatcher) releaseVehicle(ctx context.Context, vehicleID, entityID, actor, reason string) error {
	now := m.now()
	_, _, err := casUpdate(ctx, m.retries,
		func(ctx context.Context) (*models.Vehicle, error) { return m.vehicles.GetByID(ctx, vehicleID) },
		m.vehicles.Update,
		func(v *models.Vehicle) error {
			if v.CurrentAssignment == nil || v.CurrentAssignment.EntityID != entityID {
				return errNoChange
			}
			v.CurrentAssignment = nil
			v.Available = true
			v.StatusHistory = append(v.StatusHistory, models.StatusChange{
				From:      models.VehicleReserved,
				To:        models.VehicleAvailable,
				Timestamp: now,
				Actor:     actor,
				Reason:    reason,
			})
			v.UpdatedAt = now
			return nil
		})
	if err != nil {
		return fmt.Errorf("failed to release vehicle %s: %w", vehicleID, err)
	}
	return nil
}

func (m *dispatchMatcher) releaseDriver(ctx context.Context, req ReleaseRequest, actor string) error {
	now := m.now()
	_, _, err := casUpdate(ctx, m.retries,
		func(ctx context.Context) (*models.Driver, error) { return m.drivers.GetByID(ctx, req.DriverID) },
		m.drivers.Update,
		func(d *models.Driver) error {
			if d.CurrentAssignment == nil || d.CurrentAssignment.EntityID != req.EntityID {
				return errNoChange
			}
			d.CurrentAssignment = nil
			if d.Status == models.DriverStatusOnDuty {
				d.Status = models.DriverStatusActive
				d.StatusHistory = append(d.StatusHistory, models.StatusChange{
					From:      string(models.DriverStatusOnDuty),
					To:        string(models.DriverStatusActive),
					Timestamp: now,
					Actor:     actor,
					Reason:    req.Reason,
				})
			}
			if req.Completed {
				d.Performance.TripsCompleted++
				d.Performance.AverageResponseMinutes = utils.RoundTo(utils.RunningAverage(
					d.Performance.AverageResponseMinutes, d.Performance.TripsCompleted, req.ResponseMinutes), 2)
			}
			d.UpdatedAt = now
			return nil
		})
	if err != nil {
		return fmt.Errorf("failed to release driver %s: %w", req.DriverID, err)
	}
	return nil
}

func actorOr(actor, fallback string) string {
	return utils.CoalesceString(actor, fallback)
}
