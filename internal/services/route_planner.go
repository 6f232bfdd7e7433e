package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
	"medidispatch/internal/validators"
	"medidispatch/pkg/logger"
)

const (
	recomputeConcurrency = 4
	floatTolerance       = 1e-9
)

// RoutePlanner estimates travel time over great circle legs, weighting each
// leg by the worst active traffic alert that touches it.
type RoutePlanner interface {
	PlanRoute(ctx context.Context, req *models.RouteRequest) (*models.Route, error)
	GetRoute(ctx context.Context, id string) (*models.Route, error)
	ListRoutes(ctx context.Context, params *utils.PaginationParams) ([]*models.Route, int64, error)
	RoutesForEntity(ctx context.Context, entityID string) ([]*models.Route, error)
	// Recompute re-estimates an open route and appends a snapshot only when
	// the estimate changed.
	Recompute(ctx context.Context, routeID, reason string) (*models.Route, bool, error)
	// RecomputeForAlert re-estimates every open route the alert touches or
	// used to touch, and returns how many changed.
	RecomputeForAlert(ctx context.Context, alert *models.TrafficAlert, reason string) (int, error)
	// ActivateEntityRoutes marks planned routes of a call or transport as
	// being driven.
	ActivateEntityRoutes(ctx context.Context, entityID string) error
	CloseEntityRoutes(ctx context.Context, entityID string, actualMinutes float64) error
	Stats(ctx context.Context) (*models.RouteStats, error)
	// OnRecompute registers fn to run after every recompute that changed
	// the estimate of a route serving a call or transport.
	OnRecompute(fn RecomputeHook)
}

type RecomputeHook func(ctx context.Context, route *models.Route)

type routePlanner struct {
	routes   interfaces.RouteRepository
	alerts   interfaces.TrafficAlertRepository
	ids      IDGenerator
	audit    AuditService
	notifier Notifier
	logger   *logger.Logger
	now      func() time.Time
	speedKMH float64
	retries  int

	hooksMu sync.RWMutex
	hooks   []RecomputeHook
}

func NewRoutePlanner(
	routes interfaces.RouteRepository,
	alerts interfaces.TrafficAlertRepository,
	ids IDGenerator,
	audit AuditService,
	notifier Notifier,
	log *logger.Logger,
	now func() time.Time,
	speedKMH float64,
	retries int,
) RoutePlanner {
	if speedKMH <= 0 {
		speedKMH = utils.DefaultAverageSpeedKMH
	}
	return &routePlanner{
		routes:   routes,
		alerts:   alerts,
		ids:      ids,
		audit:    audit,
		notifier: notifier,
		logger:   log.WithComponent("route_planner"),
		now:      now,
		speedKMH: speedKMH,
		retries:  retries,
	}
}

func (p *routePlanner) PlanRoute(ctx context.Context, req *models.RouteRequest) (*models.Route, error) {
	if err := validateRouteRequest(req); err != nil {
		return nil, err
	}

	mode := req.Optimization
	if mode == "" {
		mode = models.OptimizationTraffic
	}

	alerts, err := p.activeAlerts(ctx)
	if err != nil {
		return nil, err
	}

	now := p.now()
	est := optimize(req.StartLocation, req.EndLocation, req.Waypoints, mode, alerts, p.speedKMH)

	id, err := p.ids.Next(ctx, utils.IDPrefixRoute)
	if err != nil {
		return nil, fmt.Errorf("failed to generate route id: %w", err)
	}

	route := &models.Route{
		ID:            id,
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		StartLocation: req.StartLocation,
		EndLocation:   req.EndLocation,
		Optimization:  mode,
		Status:        models.RouteStatusPlanned,
		CreatedAt:     now,
	}
	est.applyTo(route, "initial estimate", now)

	if err := p.routes.Create(ctx, route); err != nil {
		return nil, fmt.Errorf("failed to create route: %w", err)
	}

	if req.EntityID != "" {
		p.supersedeOthers(ctx, req.EntityID, route.ID)
	}

	p.audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionCreate,
		EntityType: models.EntityTypeRoute,
		EntityID:   route.ID,
		ToStatus:   string(route.Status),
		Actor:      "route_planner",
		Note:       "route planned",
		Metadata: map[string]interface{}{
			"entity_id":        req.EntityID,
			"adjusted_minutes": route.AdjustedMinutes,
		},
	})

	return route, nil
}

func (p *routePlanner) GetRoute(ctx context.Context, id string) (*models.Route, error) {
	route, err := p.routes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get route: %w", err)
	}
	return route, nil
}

func (p *routePlanner) ListRoutes(ctx context.Context, params *utils.PaginationParams) ([]*models.Route, int64, error) {
	return p.routes.List(ctx, params)
}

func (p *routePlanner) RoutesForEntity(ctx context.Context, entityID string) ([]*models.Route, error) {
	return p.routes.ListByEntity(ctx, entityID)
}

func (p *routePlanner) Recompute(ctx context.Context, routeID, reason string) (*models.Route, bool, error) {
	alerts, err := p.activeAlerts(ctx)
	if err != nil {
		return nil, false, err
	}
	return p.recompute(ctx, routeID, reason, alerts)
}

func (p *routePlanner) recompute(ctx context.Context, routeID, reason string, alerts []*models.TrafficAlert) (*models.Route, bool, error) {
	now := p.now()
	route, changed, err := casUpdate(ctx, p.retries,
		func(ctx context.Context) (*models.Route, error) { return p.routes.GetByID(ctx, routeID) },
		p.routes.Update,
		func(r *models.Route) error {
			if !r.Status.IsOpen() {
				return errNoChange
			}
			est := optimize(r.StartLocation, r.EndLocation, r.Waypoints, r.Optimization, alerts, p.speedKMH)
			if est.sameAs(r) {
				return errNoChange
			}
			est.applyTo(r, reason, now)
			return nil
		})
	if err != nil {
		return nil, false, fmt.Errorf("failed to recompute route %s: %w", routeID, err)
	}
	if !changed {
		return route, false, nil
	}

	snapshot, _ := route.LatestSnapshot()
	p.logger.WithContext(ctx).LogDispatchEvent(route.ID, utils.EventRouteRecomputed, map[string]interface{}{
		"entity_id":        route.EntityID,
		"revision":         snapshot.Revision,
		"adjusted_minutes": utils.RoundTo(snapshot.AdjustedMinutes, 1),
	})
	p.audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionRecompute,
		EntityType: models.EntityTypeRoute,
		EntityID:   route.ID,
		Actor:      "route_planner",
		Note:       reason,
		Metadata: map[string]interface{}{
			"revision":         snapshot.Revision,
			"adjusted_minutes": snapshot.AdjustedMinutes,
			"traffic_level":    snapshot.TrafficLevel,
		},
	})

	if route.EntityID != "" {
		p.runHooks(ctx, route)
		p.notifier.Notify(ctx, models.Notification{
			Type:       models.NotificationTypeRouteETA,
			EntityType: route.EntityType,
			EntityID:   route.EntityID,
			Title:      "ETA updated",
			Message:    fmt.Sprintf("Estimated travel time now %.0f minutes (%s)", route.AdjustedMinutes, reason),
			Data: map[string]interface{}{
				"route_id":         route.ID,
				"adjusted_minutes": route.AdjustedMinutes,
				"traffic_level":    route.TrafficLevel,
				"revision":         snapshot.Revision,
			},
		})
	}

	return route, true, nil
}

func (p *routePlanner) OnRecompute(fn RecomputeHook) {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	p.hooks = append(p.hooks, fn)
}

func (p *routePlanner) runHooks(ctx context.Context, route *models.Route) {
	p.hooksMu.RLock()
	hooks := p.hooks
	p.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, route)
	}
}

func (p *routePlanner) RecomputeForAlert(ctx context.Context, alert *models.TrafficAlert, reason string) (int, error) {
	open, err := p.routes.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list open routes: %w", err)
	}

	alerts, err := p.activeAlerts(ctx)
	if err != nil {
		return 0, err
	}

	var affected []*models.Route
	for _, route := range open {
		if route.HasAlert(alert.ID) || alertTouchesRoute(alert, route) {
			affected = append(affected, route)
		}
	}

	var changed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recomputeConcurrency)
	for _, route := range affected {
		routeID := route.ID
		g.Go(func() error {
			_, ok, err := p.recompute(gctx, routeID, reason, alerts)
			if err != nil {
				p.logger.WithEntity("route", routeID).WithError(err).Warn("Route recompute failed")
				return nil
			}
			if ok {
				atomic.AddInt64(&changed, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(changed), err
	}

	p.logger.WithFields(map[string]interface{}{
		"alert_id": alert.ID,
		"affected": len(affected),
		"changed":  changed,
	}).Info("Routes recomputed for traffic alert")

	return int(changed), nil
}

func (p *routePlanner) ActivateEntityRoutes(ctx context.Context, entityID string) error {
	return p.markEntityRoutes(ctx, entityID, func(r *models.Route) error {
		if r.Status != models.RouteStatusPlanned {
			return errNoChange
		}
		r.Status = models.RouteStatusActive
		return nil
	})
}

func (p *routePlanner) CloseEntityRoutes(ctx context.Context, entityID string, actualMinutes float64) error {
	return p.markEntityRoutes(ctx, entityID, func(r *models.Route) error {
		if !r.Status.IsOpen() {
			return errNoChange
		}
		r.Status = models.RouteStatusCompleted
		r.ActualMinutes = actualMinutes
		return nil
	})
}

func (p *routePlanner) markEntityRoutes(ctx context.Context, entityID string, apply func(*models.Route) error) error {
	routes, err := p.routes.ListByEntity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("failed to list routes: %w", err)
	}

	now := p.now()
	for _, route := range routes {
		if !route.Status.IsOpen() {
			continue
		}
		_, _, err := casUpdate(ctx, p.retries,
			func(ctx context.Context) (*models.Route, error) { return p.routes.GetByID(ctx, route.ID) },
			p.routes.Update,
			func(r *models.Route) error {
				if err := apply(r); err != nil {
					return err
				}
				r.UpdatedAt = now
				return nil
			})
		if err != nil {
			return fmt.Errorf("failed to update route %s: %w", route.ID, err)
		}
	}
	return nil
}

func (p *routePlanner) Stats(ctx context.Context) (*models.RouteStats, error) {
	stats := &models.RouteStats{ByTrafficLevel: make(map[models.TrafficLevel]int64)}

	var distance, adjusted float64
	params := &utils.PaginationParams{Page: 1, PageSize: utils.MaxPageSize, Sort: "created_at", Order: "asc"}
	for {
		routes, total, err := p.routes.List(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("failed to list routes: %w", err)
		}
		for _, r := range routes {
			stats.Total++
			if r.Status.IsOpen() {
				stats.Open++
			}
			stats.ByTrafficLevel[r.TrafficLevel]++
			distance += r.DistanceKM
			adjusted += r.AdjustedMinutes
		}
		if len(routes) == 0 || stats.Total >= total {
			break
		}
		params.Page++
	}

	if stats.Total > 0 {
		stats.AverageDistanceKM = utils.RoundTo(distance/float64(stats.Total), 2)
		stats.AverageAdjustedMin = utils.RoundTo(adjusted/float64(stats.Total), 2)
	}
	return stats, nil
}

// supersedeOthers retires earlier open routes for the same call or
// transport once a new one is planned.
func (p *routePlanner) supersedeOthers(ctx context.Context, entityID, keepID string) {
	routes, err := p.routes.ListByEntity(ctx, entityID)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to list routes to supersede")
		return
	}
	now := p.now()
	for _, route := range routes {
		if route.ID == keepID || !route.Status.IsOpen() {
			continue
		}
		_, _, err := casUpdate(ctx, p.retries,
			func(ctx context.Context) (*models.Route, error) { return p.routes.GetByID(ctx, route.ID) },
			p.routes.Update,
			func(r *models.Route) error {
				if !r.Status.IsOpen() {
					return errNoChange
				}
				r.Status = models.RouteStatusSuperseded
				r.UpdatedAt = now
				return nil
			})
		if err != nil {
			p.logger.WithEntity("route", route.ID).WithError(err).Warn("Failed to supersede route")
		}
	}
}

// activeAlerts returns alerts affecting travel now, ordered by ID so ties
// between equally severe alerts always resolve the same way.
func (p *routePlanner) activeAlerts(ctx context.Context) ([]*models.TrafficAlert, error) {
	all, err := p.alerts.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list traffic alerts: %w", err)
	}
	now := p.now()
	active := make([]*models.TrafficAlert, 0, len(all))
	for _, a := range all {
		if a.IsActiveAt(now) && a.Location.HasCoordinates() {
			active = append(active, a)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

func validateRouteRequest(req *models.RouteRequest) error {
	errs := validators.ValidateStruct(req)
	if !req.StartLocation.HasCoordinates() {
		errs.Add("StartLocation.Coordinates", "required", "start location coordinates are required")
	}
	if !req.EndLocation.HasCoordinates() {
		errs.Add("EndLocation.Coordinates", "required", "end location coordinates are required")
	}
	for i, wp := range req.Waypoints {
		if !wp.Location.HasCoordinates() {
			errs.Add(fmt.Sprintf("Waypoints[%d].Location.Coordinates", i), "required", "waypoint coordinates are required")
		}
	}
	if len(errs) > 0 {
		return newValidationError(errs)
	}
	return nil
}

func alertTouchesRoute(alert *models.TrafficAlert, route *models.Route) bool {
	if !alert.Location.HasCoordinates() {
		return false
	}
	points := routePoints(route.StartLocation, route.EndLocation, route.Waypoints)
	for i := 0; i+1 < len(points); i++ {
		if touches(alert, points[i], points[i+1]) {
			return true
		}
	}
	return false
}

func touches(alert *models.TrafficAlert, from, to models.Location) bool {
	return utils.SegmentIntersectsRadius(
		alert.Location.Latitude(), alert.Location.Longitude(), alert.RadiusKM,
		from.Latitude(), from.Longitude(),
		to.Latitude(), to.Longitude(),
	)
}

func routePoints(start, end models.Location, waypoints []models.Waypoint) []models.Location {
	points := make([]models.Location, 0, len(waypoints)+2)
	points = append(points, start)
	for _, wp := range waypoints {
		points = append(points, wp.Location)
	}
	return append(points, end)
}

// routeEstimate is the pure result of estimating one waypoint order.
type routeEstimate struct {
	waypoints       []models.Waypoint
	segments        []models.RouteSegment
	distanceKM      float64
	baseMinutes     float64
	adjustedMinutes float64
	level           models.TrafficLevel
	alertIDs        []string
	inversions      int
}

// estimate walks the legs in order. alerts must already be filtered to the
// active set and sorted by ID.
func estimate(start, end models.Location, waypoints []models.Waypoint, alerts []*models.TrafficAlert, speedKMH float64) routeEstimate {
	est := routeEstimate{
		waypoints: waypoints,
		level:     models.TrafficLevelClear,
		alertIDs:  []string{},
	}

	points := routePoints(start, end, waypoints)
	seen := make(map[string]bool)
	worstRank := 0

	for i := 0; i+1 < len(points); i++ {
		from, to := points[i], points[i+1]
		dist := utils.CalculateDistance(from.Latitude(), from.Longitude(), to.Latitude(), to.Longitude())
		base := utils.TravelMinutes(dist, speedKMH)

		var worst *models.TrafficAlert
		for _, a := range alerts {
			if !touches(a, from, to) {
				continue
			}
			if !seen[a.ID] {
				seen[a.ID] = true
				est.alertIDs = append(est.alertIDs, a.ID)
			}
			if worst == nil || a.Severity.Rank() > worst.Severity.Rank() {
				worst = a
			}
		}

		seg := models.RouteSegment{
			From:            from,
			To:              to,
			DistanceKM:      dist,
			BaseMinutes:     base,
			Multiplier:      1.0,
			AdjustedMinutes: base,
		}
		if worst != nil {
			seg.Multiplier = worst.Severity.TrafficMultiplier()
			seg.AdjustedMinutes = base * seg.Multiplier
			seg.AlertID = worst.ID
			if worst.Severity.Rank() > worstRank {
				worstRank = worst.Severity.Rank()
				est.level = models.TrafficLevelFor(worst.Severity)
			}
		}

		est.segments = append(est.segments, seg)
		est.distanceKM += seg.DistanceKM
		est.baseMinutes += seg.BaseMinutes
		est.adjustedMinutes += seg.AdjustedMinutes
	}

	sort.Strings(est.alertIDs)
	for i := range waypoints {
		for j := i + 1; j < len(waypoints); j++ {
			if waypoints[j].Priority > waypoints[i].Priority {
				est.inversions++
			}
		}
	}
	return est
}

// optimize tries every visiting order of the waypoints and keeps the best
// under the optimization mode. Orders are enumerated lexicographically and
// the first of equal candidates wins.
func optimize(start, end models.Location, waypoints []models.Waypoint, mode models.OptimizationMode, alerts []*models.TrafficAlert, speedKMH float64) routeEstimate {
	if len(waypoints) > utils.MaxWaypoints {
		waypoints = waypoints[:utils.MaxWaypoints]
	}
	if len(waypoints) <= 1 {
		return estimate(start, end, waypoints, alerts, speedKMH)
	}

	var best routeEstimate
	found := false
	permute(len(waypoints), func(order []int) {
		candidate := make([]models.Waypoint, len(order))
		for i, idx := range order {
			candidate[i] = waypoints[idx]
		}
		est := estimate(start, end, candidate, alerts, speedKMH)
		if !found || better(est, best, mode) {
			best = est
			found = true
		}
	})
	return best
}

func better(a, b routeEstimate, mode models.OptimizationMode) bool {
	switch mode {
	case models.OptimizationDistance:
		return less(a.distanceKM, b.distanceKM)
	case models.OptimizationTime:
		return less(a.adjustedMinutes, b.adjustedMinutes)
	case models.OptimizationPriority:
		if a.inversions != b.inversions {
			return a.inversions < b.inversions
		}
		return less(a.adjustedMinutes, b.adjustedMinutes)
	default:
		delayA := a.adjustedMinutes - a.baseMinutes
		delayB := b.adjustedMinutes - b.baseMinutes
		if !equalFloat(delayA, delayB) {
			return delayA < delayB
		}
		return less(a.adjustedMinutes, b.adjustedMinutes)
	}
}

func less(a, b float64) bool {
	return a < b && !equalFloat(a, b)
}

func equalFloat(a, b float64) bool {
	return math.Abs(a-b) <= floatTolerance
}

// permute calls fn with every permutation of 0..n-1 in lexicographic order.
func permute(n int, fn func([]int)) {
	order := make([]int, n)
	used := make([]bool, n)
	var walk func(depth int)
	walk = func(depth int) {
		if depth == n {
			fn(order)
			return
		}
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			used[i] = true
			order[depth] = i
			walk(depth + 1)
			used[i] = false
		}
	}
	walk(0)
}

func (e routeEstimate) sameAs(r *models.Route) bool {
	if !equalFloat(e.distanceKM, r.DistanceKM) ||
		!equalFloat(e.baseMinutes, r.BaseMinutes) ||
		!equalFloat(e.adjustedMinutes, r.AdjustedMinutes) ||
		e.level != r.TrafficLevel {
		return false
	}
	if len(e.alertIDs) != len(r.AlertIDs) {
		return false
	}
	for i := range e.alertIDs {
		if e.alertIDs[i] != r.AlertIDs[i] {
			return false
		}
	}
	return true
}

// applyTo copies the estimate onto the route and appends a snapshot.
func (e routeEstimate) applyTo(r *models.Route, reason string, now time.Time) {
	r.Waypoints = e.waypoints
	if r.Waypoints == nil {
		r.Waypoints = []models.Waypoint{}
	}
	r.Segments = e.segments
	r.DistanceKM = e.distanceKM
	r.BaseMinutes = e.baseMinutes
	r.AdjustedMinutes = e.adjustedMinutes
	r.TrafficLevel = e.level
	r.AlertIDs = e.alertIDs
	r.UpdatedAt = now
	r.Revisions = append(r.Revisions, models.ETASnapshot{
		Revision:        len(r.Revisions) + 1,
		DistanceKM:      e.distanceKM,
		BaseMinutes:     e.baseMinutes,
		AdjustedMinutes: e.adjustedMinutes,
		TrafficLevel:    e.level,
		AlertIDs:        append([]string{}, e.alertIDs...),
		Reason:          reason,
		ComputedAt:      now,
	})
}
