package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medidispatch/internal/models"
	"medidispatch/internal/utils"
)

func straightRoute() *models.RouteRequest {
	return &models.RouteRequest{
		EntityType:    models.EntityTypeCall,
		EntityID:      "CALL-1",
		StartLocation: models.NewPoint(12.9000, 77.6000, "Station"),
		EndLocation:   models.NewPoint(13.0000, 77.6000, "Scene"),
	}
}

func alertRequest(sev models.Severity, lat, lng float64) *models.TrafficAlertRequest {
	return &models.TrafficAlertRequest{
		Type:       models.AlertTypeAccident,
		Severity:   sev,
		Location:   models.NewPoint(lat, lng, "Junction"),
		RadiusKM:   1,
		ReportedBy: "traffic-desk",
	}
}

func TestPlanRouteIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.planner.PlanRoute(ctx, straightRoute())
	require.NoError(t, err)
	b, err := env.planner.PlanRoute(ctx, straightRoute())
	require.NoError(t, err)

	expectedKM := utils.CalculateDistance(12.9, 77.6, 13.0, 77.6)
	assert.InDelta(t, expectedKM, a.DistanceKM, 1e-9)
	assert.InDelta(t, utils.TravelMinutes(expectedKM, 50), a.BaseMinutes, 1e-9)
	assert.Equal(t, a.DistanceKM, b.DistanceKM)
	assert.Equal(t, a.AdjustedMinutes, b.AdjustedMinutes)
	assert.Equal(t, a.BaseMinutes, a.AdjustedMinutes)
	assert.Equal(t, models.TrafficLevelClear, a.TrafficLevel)
	assert.Equal(t, models.OptimizationTraffic, a.Optimization)
	require.Len(t, a.Revisions, 1)
	assert.Equal(t, "initial estimate", a.Revisions[0].Reason)

	// Planning again for the same call retires the earlier route.
	first, err := env.planner.GetRoute(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RouteStatusSuperseded, first.Status)
}

func TestHighAlertSlowsRouteByAtLeastItsMultiplier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	clear, err := env.planner.PlanRoute(ctx, straightRoute())
	require.NoError(t, err)

	alert, err := env.traffic.CreateAlert(ctx, alertRequest(models.SeverityHigh, 12.9500, 77.6000))
	require.NoError(t, err)

	route, err := env.planner.GetRoute(ctx, clear.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, route.AdjustedMinutes, 1.6*clear.AdjustedMinutes-1e-9)
	assert.Equal(t, models.TrafficLevelHigh, route.TrafficLevel)
	assert.Equal(t, []string{alert.ID}, route.AlertIDs)
	require.Len(t, route.Revisions, 2)
	assert.Equal(t, 1, route.Revisions[0].Revision)
	assert.Equal(t, clear.AdjustedMinutes, route.Revisions[0].AdjustedMinutes)
	assert.Equal(t, 2, route.Revisions[1].Revision)

	notes := env.notifier.ofType(models.NotificationTypeRouteETA)
	require.Len(t, notes, 1)
	assert.Equal(t, "CALL-1", notes[0].EntityID)
}

func TestWorstAlertOnSegmentWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.traffic.CreateAlert(ctx, alertRequest(models.SeverityLow, 12.9500, 77.6000))
	require.NoError(t, err)
	_, err = env.traffic.CreateAlert(ctx, alertRequest(models.SeverityCritical, 12.9600, 77.6000))
	require.NoError(t, err)

	route, err := env.planner.PlanRoute(ctx, straightRoute())
	require.NoError(t, err)
	require.Len(t, route.Segments, 1)
	assert.Equal(t, 2.2, route.Segments[0].Multiplier)
	assert.InDelta(t, route.BaseMinutes*2.2, route.AdjustedMinutes, 1e-9)
	assert.Equal(t, models.TrafficLevelCritical, route.TrafficLevel)
	assert.Len(t, route.AlertIDs, 2)
}

func TestRecomputeOnlySnapshotsChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	route, err := env.planner.PlanRoute(ctx, straightRoute())
	require.NoError(t, err)

	_, changed, err := env.planner.Recompute(ctx, route.ID, "manual")
	require.NoError(t, err)
	assert.False(t, changed)

	alert, err := env.traffic.CreateAlert(ctx, alertRequest(models.SeverityMedium, 12.9500, 77.6000))
	require.NoError(t, err)

	_, err = env.traffic.ResolveAlert(ctx, alert.ID, "traffic-desk")
	require.NoError(t, err)

	got, err := env.planner.GetRoute(ctx, route.ID)
	require.NoError(t, err)
	require.Len(t, got.Revisions, 3)
	assert.Equal(t, models.TrafficLevelMedium, got.Revisions[1].TrafficLevel)
	assert.Equal(t, models.TrafficLevelClear, got.Revisions[2].TrafficLevel)
	assert.Equal(t, got.Revisions[0].AdjustedMinutes, got.AdjustedMinutes)
	assert.Empty(t, got.AlertIDs)

	// Resolving again changes nothing.
	_, err = env.traffic.ResolveAlert(ctx, alert.ID, "traffic-desk")
	require.NoError(t, err)
	got, err = env.planner.GetRoute(ctx, route.ID)
	require.NoError(t, err)
	assert.Len(t, got.Revisions, 3)
}

func TestAlertAwayFromRouteLeavesItAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	route, err := env.planner.PlanRoute(ctx, straightRoute())
	require.NoError(t, err)

	_, err = env.traffic.CreateAlert(ctx, alertRequest(models.SeverityCritical, 12.9500, 77.9000))
	require.NoError(t, err)

	got, err := env.planner.GetRoute(ctx, route.ID)
	require.NoError(t, err)
	assert.Len(t, got.Revisions, 1)
	assert.Empty(t, env.notifier.ofType(models.NotificationTypeRouteETA))
}

func TestExpiredAlertsTriggerRecompute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	route, err := env.planner.PlanRoute(ctx, straightRoute())
	require.NoError(t, err)

	req := alertRequest(models.SeverityHigh, 12.9500, 77.6000)
	expires := t0.Add(30 * time.Minute)
	req.ExpiresAt = &expires
	alert, err := env.traffic.CreateAlert(ctx, req)
	require.NoError(t, err)

	n, err := env.traffic.ExpireAlerts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.clock.Advance(31 * time.Minute)
	n, err = env.traffic.ExpireAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := env.traffic.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusExpired, stored.Status)

	got, err := env.planner.GetRoute(ctx, route.ID)
	require.NoError(t, err)
	require.Len(t, got.Revisions, 3)
	assert.Equal(t, models.TrafficLevelClear, got.TrafficLevel)
}

func TestCreateAlertDefaultsAndValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := alertRequest(models.SeverityLow, 12.95, 77.6)
	req.RadiusKM = 0
	alert, err := env.traffic.CreateAlert(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, env.cfg.AlertRadiusKM, alert.RadiusKM)
	assert.Equal(t, t0.Add(24*time.Hour), alert.ExpiresAt)
	assert.Regexp(t, `^ALERT-\d+-\d{4}$`, alert.ID)

	bad := alertRequest("severe", 12.95, 77.6)
	_, err = env.traffic.CreateAlert(ctx, bad)
	assert.ErrorIs(t, err, ErrValidation)

	noPoint := alertRequest(models.SeverityLow, 0, 0)
	noPoint.Location = models.Location{Address: "somewhere"}
	_, err = env.traffic.CreateAlert(ctx, noPoint)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOptimizeModes(t *testing.T) {
	start := models.NewPoint(12.90, 77.60, "start")
	end := models.NewPoint(12.90, 77.70, "end")
	near := models.Waypoint{Location: models.NewPoint(12.90, 77.62, "near"), Label: "near"}
	far := models.Waypoint{Location: models.NewPoint(12.90, 77.68, "far"), Label: "far", Priority: 5}

	byDistance := optimize(start, end, []models.Waypoint{far, near}, models.OptimizationDistance, nil, 50)
	require.Len(t, byDistance.waypoints, 2)
	assert.Equal(t, "near", byDistance.waypoints[0].Label)

	byPriority := optimize(start, end, []models.Waypoint{near, far}, models.OptimizationPriority, nil, 50)
	assert.Equal(t, "far", byPriority.waypoints[0].Label)
	assert.Zero(t, byPriority.inversions)

	// Every order passes the near stop, so the alert is always hit.
	alerts := []*models.TrafficAlert{{
		ID:       "ALERT-1",
		Severity: models.SeverityCritical,
		Location: models.NewPoint(12.90, 77.62, "near"),
		RadiusKM: 0.5,
		Status:   models.AlertStatusActive,
	}}
	a := optimize(start, end, []models.Waypoint{far, near}, models.OptimizationTraffic, alerts, 50)
	b := optimize(start, end, []models.Waypoint{far, near}, models.OptimizationTraffic, alerts, 50)
	assert.Equal(t, a, b)
	assert.Equal(t, []string{"ALERT-1"}, a.alertIDs)
}

func TestPlanRouteValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := straightRoute()
	req.EndLocation = models.Location{Address: "unknown"}
	_, err := env.planner.PlanRoute(ctx, req)
	assert.ErrorIs(t, err, ErrValidation)

	req = straightRoute()
	for i := 0; i < 6; i++ {
		req.Waypoints = append(req.Waypoints, models.Waypoint{Location: models.NewPoint(12.95, 77.6, "")})
	}
	_, err = env.planner.PlanRoute(ctx, req)
	assert.ErrorIs(t, err, ErrValidation)

	req = straightRoute()
	req.Optimization = "scenic"
	_, err = env.planner.PlanRoute(ctx, req)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRouteStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.planner.PlanRoute(ctx, straightRoute())
	require.NoError(t, err)
	other := straightRoute()
	other.EntityID = "CALL-2"
	_, err = env.planner.PlanRoute(ctx, other)
	require.NoError(t, err)

	stats, err := env.stats.RouteStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.Open)
	assert.Equal(t, int64(2), stats.ByTrafficLevel[models.TrafficLevelClear])
}
