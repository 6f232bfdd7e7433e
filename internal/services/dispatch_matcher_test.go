package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/pkg/logger"
)

// contendedVehicles loses every reservation write, as if another dispatcher
// always got there first.
type contendedVehicles struct {
	interfaces.VehicleRepository
	writes atomic.Int32
}

func (r *contendedVehicles) Update(_ context.Context, _ *models.Vehicle) error {
	r.writes.Add(1)
	return interfaces.ErrVersionConflict
}

func (e *testEnv) setRating(t *testing.T, driverID string, rating float64) {
	t.Helper()
	ctx := context.Background()
	d, err := e.drivers.GetByID(ctx, driverID)
	require.NoError(t, err)
	d.Performance.Rating = rating
	require.NoError(t, e.drivers.Update(ctx, d))
}

func (e *testEnv) setHours(t *testing.T, vehicleID string, hours *models.OperatingHours) {
	t.Helper()
	ctx := context.Background()
	v, err := e.vehicles.GetByID(ctx, vehicleID)
	require.NoError(t, err)
	v.OperatingHours = hours
	require.NoError(t, e.vehicles.Update(ctx, v))
}

func candidateIDs(cs []Candidate) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.Vehicle.ID)
	}
	return ids
}

func TestCandidatesRanking(t *testing.T) {
	pickup := models.NewPoint(12.9716, 77.5946, "MG Road")
	basic, advanced := models.VehicleTypeBasic, models.VehicleTypeAdvanced

	tests := []struct {
		name  string
		setup func(t *testing.T, e *testEnv)
		req   MatchRequest
		want  []string
	}{
		{
			name: "nearest first",
			setup: func(t *testing.T, e *testEnv) {
				e.addCrew(t, "AMB-1", "DRV-1", 13.0216, 77.5946, basic, models.Capabilities{})
				e.addCrew(t, "AMB-2", "DRV-2", 12.9816, 77.5946, basic, models.Capabilities{})
			},
			req:  MatchRequest{Urgency: models.SeverityHigh},
			want: []string{"AMB-2", "AMB-1"},
		},
		{
			name: "preferred type outranks a few kilometres",
			setup: func(t *testing.T, e *testEnv) {
				e.addCrew(t, "AMB-1", "DRV-1", 12.9916, 77.5946, basic, models.Capabilities{})
				e.addCrew(t, "AMB-2", "DRV-2", 13.0216, 77.5946, advanced, models.Capabilities{})
			},
			req:  MatchRequest{Urgency: models.SeverityHigh, PreferredType: advanced},
			want: []string{"AMB-2", "AMB-1"},
		},
		{
			name: "rating decides at equal distance",
			setup: func(t *testing.T, e *testEnv) {
				e.addCrew(t, "AMB-1", "DRV-1", 12.9816, 77.5946, basic, models.Capabilities{})
				e.addCrew(t, "AMB-2", "DRV-2", 12.9816, 77.5946, basic, models.Capabilities{})
				e.setRating(t, "DRV-1", 3)
				e.setRating(t, "DRV-2", 5)
			},
			req:  MatchRequest{Urgency: models.SeverityMedium},
			want: []string{"AMB-2", "AMB-1"},
		},
		{
			name: "full tie falls back to vehicle id",
			setup: func(t *testing.T, e *testEnv) {
				e.addCrew(t, "AMB-2", "DRV-2", 12.9816, 77.5946, basic, models.Capabilities{})
				e.addCrew(t, "AMB-1", "DRV-1", 12.9816, 77.5946, basic, models.Capabilities{})
			},
			req:  MatchRequest{Urgency: models.SeverityMedium},
			want: []string{"AMB-1", "AMB-2"},
		},
		{
			name: "distance dominates rating when not critical",
			setup: func(t *testing.T, e *testEnv) {
				e.addCrew(t, "AMB-1", "DRV-1", 13.0716, 77.5946, basic, models.Capabilities{})
				e.addCrew(t, "AMB-2", "DRV-2", 13.0116, 77.5946, basic, models.Capabilities{})
				e.setRating(t, "DRV-1", 5)
				e.setRating(t, "DRV-2", 0)
			},
			req:  MatchRequest{Urgency: models.SeverityHigh},
			want: []string{"AMB-2", "AMB-1"},
		},
		{
			name: "critical urgency halves distance",
			setup: func(t *testing.T, e *testEnv) {
				e.addCrew(t, "AMB-1", "DRV-1", 13.0716, 77.5946, basic, models.Capabilities{})
				e.addCrew(t, "AMB-2", "DRV-2", 13.0116, 77.5946, basic, models.Capabilities{})
				e.setRating(t, "DRV-1", 5)
				e.setRating(t, "DRV-2", 0)
			},
			req:  MatchRequest{Urgency: models.SeverityCritical},
			want: []string{"AMB-1", "AMB-2"},
		},
		{
			name: "missing capability is excluded",
			setup: func(t *testing.T, e *testEnv) {
				e.addCrew(t, "AMB-1", "DRV-1", 12.9716, 77.5946, basic, models.Capabilities{Oxygen: true})
				e.addCrew(t, "AMB-2", "DRV-2", 13.0716, 77.5946, advanced, models.Capabilities{Oxygen: true, Ventilator: true})
			},
			req:  MatchRequest{Urgency: models.SeverityHigh, Requirements: models.Capabilities{Ventilator: true}},
			want: []string{"AMB-2"},
		},
		{
			name: "closed operating window is excluded",
			setup: func(t *testing.T, e *testEnv) {
				e.addCrew(t, "AMB-1", "DRV-1", 12.9716, 77.5946, basic, models.Capabilities{})
				e.addCrew(t, "AMB-2", "DRV-2", 12.9816, 77.5946, basic, models.Capabilities{})
				e.addCrew(t, "AMB-3", "DRV-3", 12.9916, 77.5946, basic, models.Capabilities{})
				e.setHours(t, "AMB-1", &models.OperatingHours{Slots: []models.TimeSlot{{StartTime: "22:00", EndTime: "06:00"}}})
				e.setHours(t, "AMB-2", &models.OperatingHours{Slots: []models.TimeSlot{{StartTime: "08:00", EndTime: "08:00"}}})
				e.setHours(t, "AMB-3", &models.OperatingHours{Slots: []models.TimeSlot{{StartTime: "20:00", EndTime: "10:00"}}})
			},
			req:  MatchRequest{Urgency: models.SeverityHigh},
			want: []string{"AMB-2", "AMB-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(t, env)
			tt.req.Pickup = pickup

			got, err := env.matcher.Candidates(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, candidateIDs(got))
		})
	}
}

func TestReserveExhaustedAttemptsReportsNoCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 1; i <= 6; i++ {
		env.addCrew(t, fmt.Sprintf("AMB-%d", i), fmt.Sprintf("DRV-%d", i), 12.9716+float64(i)/100, 77.5946,
			models.VehicleTypeBasic, models.Capabilities{})
	}

	vehicles := &contendedVehicles{VehicleRepository: env.vehicles}
	matcher := NewDispatchMatcher(vehicles, env.drivers, env.notifier, logger.NewNop(), env.clock.Now, 5, env.cfg.TransitionRetries)

	_, err := matcher.Reserve(ctx, MatchRequest{
		EntityType: models.EntityTypeCall,
		EntityID:   "CALL-1",
		Pickup:     models.NewPoint(12.9716, 77.5946, "MG Road"),
		Urgency:    models.SeverityCritical,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCapacity)
	assert.NotErrorIs(t, err, ErrResourceConflict)
	assert.Equal(t, int32(5), vehicles.writes.Load())

	alerts := env.notifier.ofType(models.NotificationTypeNoCapacity)
	require.Len(t, alerts, 1)
	assert.Equal(t, "CALL-1", alerts[0].EntityID)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)

	available, err := env.vehicles.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Len(t, available, 6)
}
