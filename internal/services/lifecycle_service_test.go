package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medidispatch/internal/models"
)

func TestCallLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCrew(t, "AMB-1", "DRV-1", 12.9750, 77.6000, models.VehicleTypeAdvanced, models.Capabilities{CardiacMonitor: true})
	op := env.addOperator(t, "Nadia", 2)

	resp, err := env.intake.CreateCall(ctx, callRequest(models.SeverityHigh))
	require.NoError(t, err)
	call := resp.Call
	assert.Empty(t, resp.Warnings)
	assert.Equal(t, models.CallStatusDispatched, call.Status)
	assert.Equal(t, "AMB-1", call.Dispatch.VehicleID)
	assert.Equal(t, "DRV-1", call.Dispatch.DriverID)
	assert.Equal(t, op.ID, resp.OperatorID)
	assert.NotEmpty(t, call.Dispatch.RouteID)
	require.NotNil(t, call.Dispatch.EstimatedArrival)

	for _, next := range []models.CallStatus{models.CallStatusEnRoute, models.CallStatusArrived, models.CallStatusInTransit, models.CallStatusCompleted} {
		env.clock.Advance(4 * time.Minute)
		call, err = env.lifecycle.TransitionCall(ctx, call.ID, &models.TransitionRequest{Status: string(next), Actor: "DRV-1"})
		require.NoError(t, err, "transition to %s", next)
		assert.Equal(t, next, call.Status)
	}

	assert.Equal(t, []string{"pending", "dispatched", "en_route", "arrived", "in_transit", "completed"}, statusSequence(call.Timeline))
	assert.NotNil(t, call.Dispatch.CompletedAt)

	vehicle, err := env.vehicles.GetByID(ctx, "AMB-1")
	require.NoError(t, err)
	assert.True(t, vehicle.Available)
	assert.Nil(t, vehicle.CurrentAssignment)

	driver, err := env.drivers.GetByID(ctx, "DRV-1")
	require.NoError(t, err)
	assert.Equal(t, models.DriverStatusActive, driver.Status)
	assert.Equal(t, int64(1), driver.Performance.TripsCompleted)
	assert.InDelta(t, 8.0, driver.Performance.AverageResponseMinutes, 0.001)

	operator, err := env.operators.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Empty(t, operator.ActiveCallIDs)
	assert.Equal(t, int64(1), operator.CallsHandled)

	route, err := env.routes.GetByID(ctx, call.Dispatch.RouteID)
	require.NoError(t, err)
	assert.Equal(t, models.RouteStatusCompleted, route.Status)
	assert.InDelta(t, 16.0, route.ActualMinutes, 0.001)

	trail, err := env.audit.Trail(ctx, models.EntityTypeCall, call.ID)
	require.NoError(t, err)
	transitions := 0
	for _, a := range trail {
		if a.Action == models.AuditActionTransition {
			transitions++
		}
	}
	assert.Equal(t, 5, transitions)
}

func TestEveryCallStatusIsReachable(t *testing.T) {
	reached := map[models.CallStatus]bool{models.CallStatusPending: true}
	queue := []models.CallStatus{models.CallStatusPending}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, next := range models.NextCallStatuses(s) {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, s := range []models.CallStatus{
		models.CallStatusDispatched, models.CallStatusEnRoute, models.CallStatusArrived,
		models.CallStatusInTransit, models.CallStatusCompleted, models.CallStatusCancelled,
	} {
		assert.True(t, reached[s], "%s unreachable", s)
	}
	assert.Empty(t, models.NextCallStatuses(models.CallStatusCompleted))
	assert.Empty(t, models.NextCallStatuses(models.CallStatusCancelled))
}

func TestTransitionRejectsSkippedStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	call := env.seedCall(t, models.SeverityMedium)

	_, err := env.lifecycle.TransitionCall(ctx, call.ID, &models.TransitionRequest{Status: "arrived", Actor: "ops"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := env.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusPending, stored.Status)
	assert.Len(t, stored.Timeline, 1)
	assert.Equal(t, call.Version, stored.Version)
}

func TestTransitionCannotEnterDispatchedDirectly(t *testing.T) {
	env := newTestEnv(t)
	call := env.seedCall(t, models.SeverityMedium)

	_, err := env.lifecycle.TransitionCall(context.Background(), call.ID, &models.TransitionRequest{Status: "dispatched", Actor: "ops"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	call := env.seedCall(t, models.SeverityMedium)

	_, err := env.lifecycle.TransitionCall(ctx, call.ID, &models.TransitionRequest{Status: "cancelled"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.lifecycle.TransitionCall(ctx, call.ID, &models.TransitionRequest{Status: "teleported", Actor: "ops"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "status", verr.Errors[0].Field)

	_, err = env.lifecycle.TransitionCall(ctx, "CALL-404", &models.TransitionRequest{Status: "cancelled", Actor: "ops"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateTransitionAppendsOneEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	call := env.seedCall(t, models.SeverityLow)

	req := &models.TransitionRequest{Status: "cancelled", Actor: "ops", RequestID: "req-1", Note: "caller hung up"}
	first, err := env.lifecycle.TransitionCall(ctx, call.ID, req)
	require.NoError(t, err)
	second, err := env.lifecycle.TransitionCall(ctx, call.ID, req)
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, []string{"pending", "cancelled"}, statusSequence(second.Timeline))

	// Same status under a different request ID is still a no-op.
	third, err := env.lifecycle.TransitionCall(ctx, call.ID, &models.TransitionRequest{Status: "cancelled", Actor: "ops", RequestID: "req-2"})
	require.NoError(t, err)
	assert.Len(t, third.Timeline, 2)
}

func TestConcurrentDuplicateRequestsApplyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	call := env.seedCall(t, models.SeverityLow)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.lifecycle.TransitionCall(ctx, call.ID, &models.TransitionRequest{Status: "cancelled", Actor: "ops", RequestID: "same"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := env.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"pending", "cancelled"}, statusSequence(stored.Timeline))
}

func TestTimelineNeverRepeatsStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCrew(t, "AMB-1", "DRV-1", 12.9750, 77.6000, models.VehicleTypeBasic, models.Capabilities{})
	call := env.seedCall(t, models.SeverityMedium)

	_, err := env.lifecycle.DispatchCall(ctx, call.ID, &models.DispatchRequest{Actor: "ops"})
	require.NoError(t, err)

	steps := []string{"en_route", "en_route", "arrived", "arrived", "in_transit", "cancelled", "cancelled"}
	for _, s := range steps {
		_, err := env.lifecycle.TransitionCall(ctx, call.ID, &models.TransitionRequest{Status: s, Actor: "ops"})
		require.NoError(t, err)
	}

	stored, err := env.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)
	seq := statusSequence(stored.Timeline)
	for i := 1; i < len(seq); i++ {
		assert.NotEqual(t, seq[i-1], seq[i])
	}
	assert.Equal(t, []string{"pending", "dispatched", "en_route", "arrived", "in_transit", "cancelled"}, seq)
}

func TestConcurrentDispatchReservesVehicleOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCrew(t, "AMB-1", "DRV-1", 12.9750, 77.6000, models.VehicleTypeBasic, models.Capabilities{})

	const n = 10
	calls := make([]*models.Call, n)
	for i := range calls {
		calls[i] = env.seedCall(t, models.SeverityHigh)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		unexpects []error
	)
	for _, c := range calls {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.lifecycle.DispatchCall(ctx, id, &models.DispatchRequest{Actor: "ops"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, id)
			case errors.Is(err, ErrNoCapacity):
			default:
				unexpects = append(unexpects, err)
			}
		}(c.ID)
	}
	wg.Wait()

	require.Empty(t, unexpects)
	require.Len(t, winners, 1)

	vehicle, err := env.vehicles.GetByID(ctx, "AMB-1")
	require.NoError(t, err)
	require.NotNil(t, vehicle.CurrentAssignment)
	assert.Equal(t, winners[0], vehicle.CurrentAssignment.EntityID)

	dispatched := 0
	for _, c := range calls {
		stored, err := env.calls.GetByID(ctx, c.ID)
		require.NoError(t, err)
		if stored.Status == models.CallStatusDispatched {
			dispatched++
			assert.Equal(t, "AMB-1", stored.Dispatch.VehicleID)
		}
	}
	assert.Equal(t, 1, dispatched)
}

func TestDispatchWithoutCapacityLeavesCallPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	call := env.seedCall(t, models.SeverityCritical)

	_, err := env.lifecycle.DispatchCall(ctx, call.ID, &models.DispatchRequest{Actor: "ops"})
	require.ErrorIs(t, err, ErrNoCapacity)

	stored, err := env.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusPending, stored.Status)
	assert.Len(t, env.notifier.ofType(models.NotificationTypeNoCapacity), 1)
}

func TestCancelReleasesVehicleAndOperator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCrew(t, "AMB-1", "DRV-1", 12.9750, 77.6000, models.VehicleTypeBasic, models.Capabilities{})
	op := env.addOperator(t, "Nadia", 1)

	first, err := env.intake.CreateCall(ctx, callRequest(models.SeverityMedium))
	require.NoError(t, err)
	second, err := env.intake.CreateCall(ctx, callRequest(models.SeverityMedium))
	require.NoError(t, err)
	assert.True(t, second.Queued)
	assert.Contains(t, second.Warnings, "no vehicle available; awaiting manual dispatch")

	_, err = env.lifecycle.TransitionCall(ctx, first.Call.ID, &models.TransitionRequest{Status: "cancelled", Actor: "ops"})
	require.NoError(t, err)

	vehicle, err := env.vehicles.GetByID(ctx, "AMB-1")
	require.NoError(t, err)
	assert.True(t, vehicle.IsDispatchable(env.clock.Now()))

	driver, err := env.drivers.GetByID(ctx, "DRV-1")
	require.NoError(t, err)
	assert.Equal(t, models.DriverStatusActive, driver.Status)
	assert.Zero(t, driver.Performance.TripsCompleted)

	// The freed operator slot goes to the queued call.
	operator, err := env.operators.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{second.Call.ID}, operator.ActiveCallIDs)
	assert.Zero(t, operator.CallsHandled)

	queued, err := env.balancer.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestCancelledQueuedCallLeavesQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.intake.CreateCall(ctx, callRequest(models.SeverityLow))
	require.NoError(t, err)
	require.True(t, resp.Queued)

	_, err = env.lifecycle.TransitionCall(ctx, resp.Call.ID, &models.TransitionRequest{Status: "cancelled", Actor: "ops"})
	require.NoError(t, err)

	pending, err := env.balancer.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTransportLifecycleIncludesLoading(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCrew(t, "AMB-1", "DRV-1", 12.9650, 77.5850, models.VehicleTypeBasic, models.Capabilities{})

	resp, err := env.intake.CreateTransport(ctx, transportRequest(models.SchedulingTypeScheduled, t0.Add(2*time.Hour)))
	require.NoError(t, err)
	tr := resp.Transport
	assert.Equal(t, models.TransportStatusScheduled, tr.Status)
	assert.Equal(t, models.SeverityMedium, tr.Priority)

	tr, err = env.lifecycle.DispatchTransport(ctx, tr.ID, &models.DispatchRequest{Actor: "scheduler"})
	require.NoError(t, err)

	_, err = env.lifecycle.TransitionTransport(ctx, tr.ID, &models.TransitionRequest{Status: "in_transit", Actor: "crew"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, []models.TransportStatus{models.TransportStatusLoading, models.TransportStatusCancelled},
		models.NextTransportStatuses(models.TransportStatusArrived))

	for _, s := range []string{"en_route", "arrived", "loading", "in_transit", "completed"} {
		tr, err = env.lifecycle.TransitionTransport(ctx, tr.ID, &models.TransitionRequest{Status: s, Actor: "crew", Outcome: outcomeFor(s)})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"scheduled", "dispatched", "en_route", "arrived", "loading", "in_transit", "completed"}, statusSequence(tr.Timeline))
	assert.NotNil(t, tr.Dispatch.LoadingAt)
	assert.Equal(t, "successful", tr.Outcome)

	route, err := env.routes.GetByID(ctx, tr.Dispatch.RouteID)
	require.NoError(t, err)
	require.Len(t, route.Waypoints, 1)
	assert.Equal(t, "pickup", route.Waypoints[0].Label)
}

func outcomeFor(status string) string {
	if status == "completed" {
		return "successful"
	}
	return ""
}

func TestEmergencyTransportAutoDispatches(t *testing.T) {
	env := newTestEnv(t)
	env.addCrew(t, "AMB-1", "DRV-1", 12.9650, 77.5850, models.VehicleTypeCriticalCare, models.Capabilities{Ventilator: true})

	req := transportRequest(models.SchedulingTypeEmergency, t0)
	req.Requirements = models.Capabilities{Ventilator: true}
	resp, err := env.intake.CreateTransport(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.TransportStatusDispatched, resp.Transport.Status)
	assert.Equal(t, models.SeverityCritical, resp.Transport.Priority)
	assert.Equal(t, "AMB-1", resp.Transport.Dispatch.VehicleID)
}

func TestAcknowledgeIsRecordedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	call := env.seedCall(t, models.SeverityHigh)

	require.NoError(t, env.lifecycle.Acknowledge(ctx, models.EntityTypeCall, call.ID, &models.AcknowledgeRequest{Actor: "sup-1"}))
	require.NoError(t, env.lifecycle.Acknowledge(ctx, models.EntityTypeCall, call.ID, &models.AcknowledgeRequest{Actor: "sup-2"}))

	stored, err := env.lifecycle.GetCall(ctx, call.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Acknowledgement)
	assert.Equal(t, "sup-1", stored.Acknowledgement.By)
	assert.Len(t, stored.Timeline, 2)
	assert.Equal(t, models.TimelineKindAcknowledgement, stored.Timeline[1].Kind)
	assert.Equal(t, []string{"pending"}, statusSequence(stored.Timeline))
}

func TestClinicalRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	call := env.seedCall(t, models.SeverityHigh)

	require.NoError(t, env.lifecycle.RecordVitals(ctx, models.EntityTypeCall, call.ID, models.VitalSigns{
		Phase:            models.VitalPhasePre,
		HeartRate:        118,
		OxygenSaturation: 91,
		RecordedBy:       "medic-1",
	}))
	require.NoError(t, env.lifecycle.RecordIntervention(ctx, models.EntityTypeCall, call.ID, models.Intervention{Type: "12-lead ECG", PerformedBy: "medic-1"}))
	require.NoError(t, env.lifecycle.RecordMedication(ctx, models.EntityTypeCall, call.ID, models.Medication{Name: "aspirin", Dosage: "300mg", Route: models.MedicationRouteOral, AdministeredBy: "medic-1"}))

	err := env.lifecycle.RecordVitals(ctx, models.EntityTypeCall, call.ID, models.VitalSigns{HeartRate: 400})
	assert.ErrorIs(t, err, ErrValidation)
	err = env.lifecycle.RecordMedication(ctx, models.EntityTypeCall, call.ID, models.Medication{})
	assert.ErrorIs(t, err, ErrValidation)

	stored, err := env.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)
	require.Len(t, stored.VitalSigns, 1)
	assert.Equal(t, t0, stored.VitalSigns[0].RecordedAt)
	assert.Len(t, stored.Interventions, 1)
	assert.Len(t, stored.Medications, 1)
	assert.Equal(t, models.CallStatusPending, stored.Status)
}

func TestVehicleStatusChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCrew(t, "AMB-1", "DRV-1", 12.9750, 77.6000, models.VehicleTypeBasic, models.Capabilities{})

	v, err := env.lifecycle.SetVehicleStatus(ctx, "AMB-1", &models.VehicleStatusRequest{Status: models.VehicleStatusMaintenance, Actor: "fleet", Reason: "brakes"})
	require.NoError(t, err)
	assert.False(t, v.Available)
	last := v.StatusHistory[len(v.StatusHistory)-1]
	assert.Equal(t, "active", last.From)
	assert.Equal(t, "maintenance", last.To)

	call := env.seedCall(t, models.SeverityMedium)
	_, err = env.lifecycle.DispatchCall(ctx, call.ID, &models.DispatchRequest{Actor: "ops"})
	assert.ErrorIs(t, err, ErrNoCapacity)

	v, err = env.lifecycle.SetVehicleStatus(ctx, "AMB-1", &models.VehicleStatusRequest{Status: models.VehicleStatusActive, Actor: "fleet"})
	require.NoError(t, err)
	assert.True(t, v.Available)

	_, err = env.lifecycle.DispatchCall(ctx, call.ID, &models.DispatchRequest{Actor: "ops"})
	require.NoError(t, err)

	_, err = env.lifecycle.SetVehicleStatus(ctx, "AMB-1", &models.VehicleStatusRequest{Status: models.VehicleStatusInactive, Actor: "fleet"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = env.lifecycle.SetDriverStatus(ctx, "DRV-1", &models.DriverStatusRequest{Status: models.DriverStatusOffDuty, Actor: "fleet"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDriverCannotBeSetOnDutyByHand(t *testing.T) {
	env := newTestEnv(t)
	env.addCrew(t, "AMB-1", "DRV-1", 12.9750, 77.6000, models.VehicleTypeBasic, models.Capabilities{})

	_, err := env.lifecycle.SetDriverStatus(context.Background(), "DRV-1", &models.DriverStatusRequest{Status: models.DriverStatusOnDuty, Actor: "fleet"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCandidatesPreview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCrew(t, "AMB-1", "DRV-1", 13.0500, 77.7000, models.VehicleTypeBasic, models.Capabilities{})
	env.addCrew(t, "AMB-2", "DRV-2", 12.9720, 77.5950, models.VehicleTypeBasic, models.Capabilities{})
	call := env.seedCall(t, models.SeverityMedium)

	candidates, err := env.lifecycle.CandidatesFor(ctx, models.EntityTypeCall, call.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "AMB-2", candidates[0].Vehicle.ID)

	// Previewing reserves nothing.
	v, err := env.vehicles.GetByID(ctx, "AMB-2")
	require.NoError(t, err)
	assert.Nil(t, v.CurrentAssignment)
	assert.True(t, v.Available)
}

func TestRouteRecomputeMovesEstimatedArrival(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCrew(t, "AMB-1", "DRV-1", 12.9750, 77.6000, models.VehicleTypeBasic, models.Capabilities{})

	call := env.seedCall(t, models.SeverityHigh)
	dispatched, err := env.lifecycle.DispatchCall(ctx, call.ID, &models.DispatchRequest{Actor: "ops"})
	require.NoError(t, err)
	require.NotNil(t, dispatched.Dispatch.EstimatedArrival)
	before := *dispatched.Dispatch.EstimatedArrival

	env.clock.Advance(2 * time.Minute)
	alert, err := env.traffic.CreateAlert(ctx, alertRequest(models.SeverityCritical, 12.9730, 77.5970))
	require.NoError(t, err)

	route, err := env.routes.GetByID(ctx, dispatched.Dispatch.RouteID)
	require.NoError(t, err)
	require.NotEmpty(t, route.Segments)
	want := t0.Add(2 * time.Minute).Add(time.Duration(route.Segments[0].AdjustedMinutes * float64(time.Minute)))

	stored, err := env.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Dispatch.EstimatedArrival)
	assert.True(t, want.Equal(*stored.Dispatch.EstimatedArrival), "eta %s, want %s", stored.Dispatch.EstimatedArrival, want)
	assert.True(t, stored.Dispatch.EstimatedArrival.After(before))
	assert.Equal(t, statusSequence(dispatched.Timeline), statusSequence(stored.Timeline))

	for _, next := range []models.CallStatus{models.CallStatusEnRoute, models.CallStatusArrived} {
		_, err = env.lifecycle.TransitionCall(ctx, call.ID, &models.TransitionRequest{Status: string(next), Actor: "DRV-1"})
		require.NoError(t, err)
	}
	arrived, err := env.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	_, err = env.traffic.ResolveAlert(ctx, alert.ID, "traffic-desk")
	require.NoError(t, err)

	stored, err = env.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.True(t, arrived.Dispatch.EstimatedArrival.Equal(*stored.Dispatch.EstimatedArrival))
}
