package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"medidispatch/internal/config"
	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/repositories/memory"
	"medidispatch/pkg/logger"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: t0}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *recordingNotifier) ofType(typ models.NotificationType) []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Notification
	for _, note := range n.sent {
		if note.Type == typ {
			out = append(out, note)
		}
	}
	return out
}

// testEnv wires every service over the in-memory repositories.
type testEnv struct {
	clock    *testClock
	notifier *recordingNotifier
	cfg      *config.DispatchConfig

	calls      interfaces.CallRepository
	transports interfaces.TransportRepository
	vehicles   interfaces.VehicleRepository
	drivers    interfaces.DriverRepository
	operators  interfaces.OperatorRepository
	routes     interfaces.RouteRepository
	alerts     interfaces.TrafficAlertRepository
	auditLogs  interfaces.AuditLogRepository

	ids       IDGenerator
	audit     AuditService
	queue     PendingQueue
	registry  RegistryService
	planner   RoutePlanner
	matcher   DispatchMatcher
	balancer  OperatorBalancer
	lifecycle LifecycleService
	intake    IntakeService
	traffic   TrafficService
	stats     StatsService
	sweeper   *EscalationSweeper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.NewNop()
	e := &testEnv{
		clock:      newTestClock(),
		notifier:   &recordingNotifier{},
		cfg:        config.DefaultDispatchConfig(),
		calls:      memory.NewCallRepository(),
		transports: memory.NewTransportRepository(),
		vehicles:   memory.NewVehicleRepository(),
		drivers:    memory.NewDriverRepository(),
		operators:  memory.NewOperatorRepository(),
		routes:     memory.NewRouteRepository(),
		alerts:     memory.NewTrafficAlertRepository(),
		auditLogs:  memory.NewAuditLogRepository(),
		queue:      NewMemoryQueue(),
	}
	now := e.clock.Now
	retries := e.cfg.TransitionRetries

	e.ids = NewIDGenerator(nil, time.Minute, now, log)
	e.audit = NewAuditService(e.auditLogs, nil, log, now)
	e.registry = NewRegistryService(e.vehicles, e.drivers, e.audit, log, now, retries)
	e.planner = NewRoutePlanner(e.routes, e.alerts, e.ids, e.audit, e.notifier, log, now, e.cfg.AverageSpeedKMH, retries)
	e.matcher = NewDispatchMatcher(e.vehicles, e.drivers, e.notifier, log, now, e.cfg.ReservationAttempts, retries)
	e.balancer = NewOperatorBalancer(e.operators, e.calls, e.queue, e.ids, e.audit, e.notifier, log, now, retries)
	e.lifecycle = NewLifecycleService(e.lifecycleDeps(), e.cfg, log, now)
	e.intake = NewIntakeService(e.calls, e.transports, e.ids, e.lifecycle, e.balancer, e.audit, nil, log, now)
	e.traffic = NewTrafficService(e.alerts, e.planner, e.ids, e.audit, e.notifier, e.cfg, log, now)
	e.stats = NewStatsService(e.calls, e.transports, e.queue, e.planner, e.cfg, now)
	e.sweeper = NewEscalationSweeper(SweeperDeps{
		Calls:      e.calls,
		Transports: e.transports,
		Alerts:     e.alerts,
		Lifecycle:  e.lifecycle,
		Traffic:    e.traffic,
	}, e.cfg.SweepInterval, log)
	return e
}

func (e *testEnv) lifecycleDeps() LifecycleDeps {
	return LifecycleDeps{
		Calls:      e.calls,
		Transports: e.transports,
		Vehicles:   e.vehicles,
		Drivers:    e.drivers,
		Matcher:    e.matcher,
		Balancer:   e.balancer,
		Planner:    e.planner,
		Audit:      e.audit,
		Notifier:   e.notifier,
	}
}

// addCrew registers a crewed vehicle at the given point.
func (e *testEnv) addCrew(t *testing.T, vehicleID, driverID string, lat, lng float64, typ models.VehicleType, caps models.Capabilities) {
	t.Helper()
	ctx := context.Background()

	_, err := e.registry.RegisterDriver(ctx, &models.DriverRequest{
		ID:      driverID,
		Name:    "Driver " + driverID,
		Phone:   "+15550100" + driverID[len(driverID)-1:],
		License: models.License{Number: "LIC-" + driverID, Class: "EMT", Expiry: t0.AddDate(2, 0, 0)},
		Rating:  4,
	})
	require.NoError(t, err)

	_, err = e.registry.RegisterVehicle(ctx, &models.VehicleRequest{
		ID:               vehicleID,
		Name:             "Medic " + vehicleID,
		VehicleNumber:    "PLATE-" + vehicleID,
		Type:             typ,
		Capabilities:     caps,
		CurrentLocation:  models.NewPoint(lat, lng, "Station "+vehicleID),
		AssignedDriverID: driverID,
	})
	require.NoError(t, err)
}

func (e *testEnv) addOperator(t *testing.T, name string, capacity int) *models.DispatchOperator {
	t.Helper()
	op, err := e.balancer.Register(context.Background(), &models.OperatorRequest{
		Name:               name,
		UserRef:            name,
		MaxConcurrentCalls: capacity,
	})
	require.NoError(t, err)
	return op
}

func callRequest(priority models.Severity) *models.CallRequest {
	return &models.CallRequest{
		Caller: models.CallerInfo{
			Name:     "Asha",
			Phone:    "+15550123456",
			Location: models.NewPoint(12.9716, 77.5946, "MG Road"),
		},
		Patient: models.PatientInfo{
			Name:      "Ravi",
			Age:       62,
			Condition: "chest pain",
		},
		Emergency: models.EmergencyDetails{
			Type:     models.EmergencyTypeCardiac,
			Priority: priority,
		},
		CreatedBy: "operator-1",
	}
}

// seedCall stores a pending call without running intake, so no dispatch
// or operator assignment happens.
func (e *testEnv) seedCall(t *testing.T, priority models.Severity) *models.Call {
	t.Helper()
	ctx := context.Background()
	id, err := e.ids.Next(ctx, "CALL")
	require.NoError(t, err)
	call := models.NewCall(id, *callRequest(priority), e.clock.Now())
	require.NoError(t, e.calls.Create(ctx, call))
	return call
}

func transportRequest(schedulingType models.SchedulingType, at time.Time) *models.TransportRequest {
	return &models.TransportRequest{
		Patient: models.TransportPatient{
			Name:      "Meera",
			Condition: "stable",
		},
		TransportType: "inter_facility",
		Origin: models.Endpoint{
			Type:     "hospital",
			Name:     "City General",
			Location: models.NewPoint(12.9600, 77.5800, "City General"),
		},
		Destination: models.Endpoint{
			Type:     "rehabilitation",
			Name:     "Lakeside Rehab",
			Location: models.NewPoint(13.0200, 77.6400, "Lakeside Rehab"),
		},
		Scheduling: models.Scheduling{
			Type:        schedulingType,
			ScheduledAt: at,
		},
		CreatedBy: "scheduler",
	}
}

func statusSequence(timeline []models.TimelineEntry) []string {
	var out []string
	for _, e := range models.StatusEntries(timeline) {
		out = append(out, e.Status)
	}
	return out
}
