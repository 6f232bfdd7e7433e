package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medidispatch/internal/models"
	"medidispatch/pkg/logger"
)

func escalationEntries(timeline []models.TimelineEntry) []models.TimelineEntry {
	var out []models.TimelineEntry
	for _, e := range timeline {
		if e.Kind == models.TimelineKindEscalation {
			out = append(out, e)
		}
	}
	return out
}

func TestCriticalCallEscalatesOnceAfterSLA(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	call := env.seedCall(t, models.SeverityCritical)

	env.clock.Advance(14 * time.Minute)
	res, err := env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Levels)

	env.clock.Advance(2 * time.Minute)
	res, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 1, Escalated: 1, Levels: 1}, res)

	res, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Levels)

	stored, err := env.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Escalation.Level)
	require.NotNil(t, stored.Escalation.LastEscalatedAt)
	assert.Equal(t, t0.Add(16*time.Minute), *stored.Escalation.LastEscalatedAt)
	entries := escalationEntries(stored.Timeline)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Level)
	assert.Equal(t, models.CallStatusPending, stored.Status)

	notes := env.notifier.ofType(models.NotificationTypeEscalation)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].IsCritical())

	trail, err := env.audit.Trail(ctx, models.EntityTypeCall, call.ID)
	require.NoError(t, err)
	escalations := 0
	for _, a := range trail {
		if a.Action == models.AuditActionEscalate {
			escalations++
		}
	}
	assert.Equal(t, 1, escalations)
}

func TestEscalationCatchesUpAndCapsLevel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	call := env.seedCall(t, models.SeverityCritical)

	env.clock.Advance(35 * time.Minute)
	levels, err := env.lifecycle.Escalate(ctx, models.EntityTypeCall, call.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, levels)

	env.clock.Advance(3 * time.Hour)
	levels, err = env.lifecycle.Escalate(ctx, models.EntityTypeCall, call.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, levels)

	stored, err := env.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, env.cfg.MaxEscalationLevel, stored.Escalation.Level)

	entries := escalationEntries(stored.Timeline)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Level)
	}
}

func TestAcknowledgedAndClosedEntitiesAreNotEscalated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acked := env.seedCall(t, models.SeverityCritical)
	closed := env.seedCall(t, models.SeverityCritical)

	require.NoError(t, env.lifecycle.Acknowledge(ctx, models.EntityTypeCall, acked.ID, &models.AcknowledgeRequest{Actor: "sup-1"}))
	_, err := env.lifecycle.TransitionCall(ctx, closed.ID, &models.TransitionRequest{Status: "cancelled", Actor: "ops"})
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	res, err := env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)

	levels, err := env.lifecycle.Escalate(ctx, models.EntityTypeCall, closed.ID)
	require.NoError(t, err)
	assert.Zero(t, levels)
}

func TestTransportSLACountsFromScheduledTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.intake.CreateTransport(ctx, transportRequest(models.SchedulingTypeUrgent, t0.Add(30*time.Minute)))
	require.NoError(t, err)
	tr := resp.Transport
	assert.Equal(t, models.SeverityHigh, tr.Priority)

	// High priority allows 60 minutes from the scheduled pickup.
	env.clock.Advance(80 * time.Minute)
	res, err := env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Levels)

	env.clock.Advance(11 * time.Minute)
	res, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Levels)

	stored, err := env.lifecycle.GetTransport(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Escalation.Level)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	sweeper := NewEscalationSweeper(env.sweeper.SweeperDeps, 5*time.Millisecond, env.sweeper.logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestUnresolvedCriticalAlertEscalates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	critical, err := env.traffic.CreateAlert(ctx, alertRequest(models.SeverityCritical, 12.9500, 77.6000))
	require.NoError(t, err)
	_, err = env.traffic.CreateAlert(ctx, alertRequest(models.SeverityLow, 12.9600, 77.6000))
	require.NoError(t, err)
	resolved, err := env.traffic.CreateAlert(ctx, alertRequest(models.SeverityCritical, 12.9700, 77.6000))
	require.NoError(t, err)
	_, err = env.traffic.ResolveAlert(ctx, resolved.ID, "traffic-desk")
	require.NoError(t, err)

	env.clock.Advance(14 * time.Minute)
	res, err := env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 2}, res)

	env.clock.Advance(2 * time.Minute)
	res, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 2, Escalated: 1, Levels: 1}, res)

	res, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Levels)

	stored, err := env.traffic.GetAlert(ctx, critical.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Escalation.Level)
	require.NotNil(t, stored.Escalation.LastEscalatedAt)
	assert.Equal(t, t0.Add(16*time.Minute), *stored.Escalation.LastEscalatedAt)

	notes := env.notifier.ofType(models.NotificationTypeEscalation)
	require.Len(t, notes, 1)
	assert.Equal(t, models.EntityTypeAlert, notes[0].EntityType)
	assert.Equal(t, critical.ID, notes[0].EntityID)

	trail, err := env.audit.Trail(ctx, models.EntityTypeAlert, critical.ID)
	require.NoError(t, err)
	escalations := 0
	for _, a := range trail {
		if a.Action == models.AuditActionEscalate {
			escalations++
		}
	}
	assert.Equal(t, 1, escalations)

	levels, err := env.traffic.EscalateAlert(ctx, resolved.ID)
	require.NoError(t, err)
	assert.Zero(t, levels)
}

// releaseFailingMatcher reserves normally but every release fails.
type releaseFailingMatcher struct {
	DispatchMatcher
}

func (releaseFailingMatcher) Release(context.Context, ReleaseRequest) error {
	return errors.New("store unavailable")
}

func TestSweepFreesResourcesLeftByFailedRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCrew(t, "AMB-1", "DRV-1", 12.9750, 77.6000, models.VehicleTypeBasic, models.Capabilities{})
	env.addCrew(t, "AMB-2", "DRV-2", 12.9760, 77.6000, models.VehicleTypeBasic, models.Capabilities{})

	deps := env.lifecycleDeps()
	deps.Matcher = releaseFailingMatcher{DispatchMatcher: env.matcher}
	failing := NewLifecycleService(deps, env.cfg, logger.NewNop(), env.clock.Now)

	closed := env.seedCall(t, models.SeverityHigh)
	open := env.seedCall(t, models.SeverityHigh)
	_, err := failing.DispatchCall(ctx, closed.ID, &models.DispatchRequest{Actor: "ops"})
	require.NoError(t, err)
	_, err = env.lifecycle.DispatchCall(ctx, open.ID, &models.DispatchRequest{Actor: "ops"})
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	cancelled, err := failing.TransitionCall(ctx, closed.ID, &models.TransitionRequest{Status: "cancelled", Actor: "ops"})
	require.NoError(t, err)
	assert.Equal(t, models.CallStatusCancelled, cancelled.Status)

	vehicle, err := env.vehicles.GetByID(ctx, cancelled.Dispatch.VehicleID)
	require.NoError(t, err)
	require.NotNil(t, vehicle.CurrentAssignment)
	assert.Equal(t, closed.ID, vehicle.CurrentAssignment.EntityID)

	res, err := env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Reconciled)

	vehicle, err = env.vehicles.GetByID(ctx, cancelled.Dispatch.VehicleID)
	require.NoError(t, err)
	assert.Nil(t, vehicle.CurrentAssignment)
	assert.True(t, vehicle.Available)

	driver, err := env.drivers.GetByID(ctx, cancelled.Dispatch.DriverID)
	require.NoError(t, err)
	assert.Nil(t, driver.CurrentAssignment)
	assert.Equal(t, models.DriverStatusActive, driver.Status)

	stillOpen, err := env.calls.GetByID(ctx, open.ID)
	require.NoError(t, err)
	held, err := env.vehicles.GetByID(ctx, stillOpen.Dispatch.VehicleID)
	require.NoError(t, err)
	require.NotNil(t, held.CurrentAssignment)
	assert.Equal(t, open.ID, held.CurrentAssignment.EntityID)

	res, err = env.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Reconciled)
}

// countingTx runs fn directly and counts how often it was asked to.
type countingTx struct {
	runs atomic.Int32
}

func (tx *countingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.runs.Add(1)
	return fn(ctx)
}

func TestCloseReleasesResourcesInOneTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCrew(t, "AMB-1", "DRV-1", 12.9750, 77.6000, models.VehicleTypeBasic, models.Capabilities{})

	tx := &countingTx{}
	deps := env.lifecycleDeps()
	deps.Tx = tx
	lifecycle := NewLifecycleService(deps, env.cfg, logger.NewNop(), env.clock.Now)

	call := env.seedCall(t, models.SeverityHigh)
	_, err := lifecycle.DispatchCall(ctx, call.ID, &models.DispatchRequest{Actor: "ops"})
	require.NoError(t, err)
	assert.Zero(t, tx.runs.Load())

	_, err = lifecycle.TransitionCall(ctx, call.ID, &models.TransitionRequest{Status: "cancelled", Actor: "ops"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), tx.runs.Load())

	vehicle, err := env.vehicles.GetByID(ctx, "AMB-1")
	require.NoError(t, err)
	assert.Nil(t, vehicle.CurrentAssignment)
	driver, err := env.drivers.GetByID(ctx, "DRV-1")
	require.NoError(t, err)
	assert.Nil(t, driver.CurrentAssignment)
}
