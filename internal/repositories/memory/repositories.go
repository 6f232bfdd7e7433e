package memory

import (
	"context"
	"fmt"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
)

// In-memory repositories back single-node runs without MongoDB and the
// service tests. They honour the same version compare-and-swap contract.

type callRepository struct{ s *store[models.Call] }

func NewCallRepository() interfaces.CallRepository {
	return &callRepository{s: newStore("call",
		func(c *models.Call) string { return c.ID },
		func(c *models.Call) *int64 { return &c.Version })}
}

func (r *callRepository) Create(_ context.Context, call *models.Call) error {
	return r.s.create(call)
}

func (r *callRepository) GetByID(_ context.Context, id string) (*models.Call, error) {
	return r.s.get(id)
}

func (r *callRepository) Update(_ context.Context, call *models.Call) error {
	return r.s.update(call)
}

func (r *callRepository) List(_ context.Context, params *utils.PaginationParams) ([]*models.Call, int64, error) {
	return r.s.page(params, func(c *models.Call) string { return string(c.Status) }, nil)
}

func (r *callRepository) ListActive(_ context.Context) ([]*models.Call, error) {
	return r.s.filter(func(c *models.Call) bool { return !c.Status.IsTerminal() })
}

func (r *callRepository) CountByStatus(_ context.Context) (map[models.CallStatus]int64, error) {
	all, err := r.s.filter(nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.CallStatus]int64)
	for _, c := range all {
		counts[c.Status]++
	}
	return counts, nil
}

func (r *callRepository) AverageResponseMinutes(_ context.Context) (float64, error) {
	all, err := r.s.filter(func(c *models.Call) bool { return c.Dispatch.DispatchedAt != nil })
	if err != nil || len(all) == 0 {
		return 0, err
	}
	var total float64
	for _, c := range all {
		rt, _ := c.ResponseTime()
		total += rt.Minutes()
	}
	return utils.RoundTo(total/float64(len(all)), 2), nil
}

type transportRepository struct{ s *store[models.Transport] }

func NewTransportRepository() interfaces.TransportRepository {
	return &transportRepository{s: newStore("transport",
		func(t *models.Transport) string { return t.ID },
		func(t *models.Transport) *int64 { return &t.Version })}
}

func (r *transportRepository) Create(_ context.Context, t *models.Transport) error {
	return r.s.create(t)
}

func (r *transportRepository) GetByID(_ context.Context, id string) (*models.Transport, error) {
	return r.s.get(id)
}

func (r *transportRepository) Update(_ context.Context, t *models.Transport) error {
	return r.s.update(t)
}

func (r *transportRepository) List(_ context.Context, params *utils.PaginationParams) ([]*models.Transport, int64, error) {
	return r.s.page(params, func(t *models.Transport) string { return string(t.Status) }, nil)
}

func (r *transportRepository) ListActive(_ context.Context) ([]*models.Transport, error) {
	return r.s.filter(func(t *models.Transport) bool { return !t.Status.IsTerminal() })
}

func (r *transportRepository) CountByStatus(_ context.Context) (map[models.TransportStatus]int64, error) {
	all, err := r.s.filter(nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.TransportStatus]int64)
	for _, t := range all {
		counts[t.Status]++
	}
	return counts, nil
}

type vehicleRepository struct{ s *store[models.Vehicle] }

func NewVehicleRepository() interfaces.VehicleRepository {
	return &vehicleRepository{s: newStore("vehicle",
		func(v *models.Vehicle) string { return v.ID },
		func(v *models.Vehicle) *int64 { return &v.Version })}
}

func (r *vehicleRepository) Create(_ context.Context, v *models.Vehicle) error {
	return r.s.create(v)
}

func (r *vehicleRepository) GetByID(_ context.Context, id string) (*models.Vehicle, error) {
	return r.s.get(id)
}

func (r *vehicleRepository) Update(_ context.Context, v *models.Vehicle) error {
	return r.s.update(v)
}

func (r *vehicleRepository) List(_ context.Context, params *utils.PaginationParams) ([]*models.Vehicle, int64, error) {
	return r.s.page(params, func(v *models.Vehicle) string { return string(v.Status) }, nil)
}

func (r *vehicleRepository) ListAvailable(_ context.Context) ([]*models.Vehicle, error) {
	return r.s.filter(func(v *models.Vehicle) bool {
		return v.Available && v.Status == models.VehicleStatusActive
	})
}

func (r *vehicleRepository) ListAssigned(_ context.Context) ([]*models.Vehicle, error) {
	return r.s.filter(func(v *models.Vehicle) bool { return v.CurrentAssignment != nil })
}

type driverRepository struct{ s *store[models.Driver] }

func NewDriverRepository() interfaces.DriverRepository {
	return &driverRepository{s: newStore("driver",
		func(d *models.Driver) string { return d.ID },
		func(d *models.Driver) *int64 { return &d.Version })}
}

func (r *driverRepository) Create(_ context.Context, d *models.Driver) error {
	return r.s.create(d)
}

func (r *driverRepository) GetByID(_ context.Context, id string) (*models.Driver, error) {
	return r.s.get(id)
}

func (r *driverRepository) Update(_ context.Context, d *models.Driver) error {
	return r.s.update(d)
}

func (r *driverRepository) List(_ context.Context, params *utils.PaginationParams) ([]*models.Driver, int64, error) {
	return r.s.page(params, func(d *models.Driver) string { return string(d.Status) }, nil)
}

func (r *driverRepository) GetByVehicleID(_ context.Context, vehicleID string) (*models.Driver, error) {
	found, err := r.s.filter(func(d *models.Driver) bool { return d.AssignedVehicleID == vehicleID })
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("driver for vehicle %s: %w", vehicleID, interfaces.ErrNotFound)
	}
	return found[0], nil
}

func (r *driverRepository) ListAssigned(_ context.Context) ([]*models.Driver, error) {
	return r.s.filter(func(d *models.Driver) bool { return d.CurrentAssignment != nil })
}

type operatorRepository struct{ s *store[models.DispatchOperator] }

func NewOperatorRepository() interfaces.OperatorRepository {
	return &operatorRepository{s: newStore("operator",
		func(o *models.DispatchOperator) string { return o.ID },
		func(o *models.DispatchOperator) *int64 { return &o.Version })}
}

func (r *operatorRepository) Create(_ context.Context, o *models.DispatchOperator) error {
	return r.s.create(o)
}

func (r *operatorRepository) GetByID(_ context.Context, id string) (*models.DispatchOperator, error) {
	return r.s.get(id)
}

func (r *operatorRepository) Update(_ context.Context, o *models.DispatchOperator) error {
	return r.s.update(o)
}

func (r *operatorRepository) List(_ context.Context, params *utils.PaginationParams) ([]*models.DispatchOperator, int64, error) {
	return r.s.page(params,
		func(o *models.DispatchOperator) string { return string(o.Status) },
		func(o *models.DispatchOperator) bool { return !o.Deleted })
}

func (r *operatorRepository) ListAvailable(_ context.Context) ([]*models.DispatchOperator, error) {
	return r.s.filter(func(o *models.DispatchOperator) bool {
		return !o.Deleted && o.Status == models.OperatorStatusAvailable
	})
}

type routeRepository struct{ s *store[models.Route] }

func NewRouteRepository() interfaces.RouteRepository {
	return &routeRepository{s: newStore("route",
		func(rt *models.Route) string { return rt.ID },
		func(rt *models.Route) *int64 { return &rt.Version })}
}

func (r *routeRepository) Create(_ context.Context, rt *models.Route) error {
	return r.s.create(rt)
}

func (r *routeRepository) GetByID(_ context.Context, id string) (*models.Route, error) {
	return r.s.get(id)
}

func (r *routeRepository) Update(_ context.Context, rt *models.Route) error {
	return r.s.update(rt)
}

func (r *routeRepository) List(_ context.Context, params *utils.PaginationParams) ([]*models.Route, int64, error) {
	return r.s.page(params, func(rt *models.Route) string { return string(rt.Status) }, nil)
}

func (r *routeRepository) ListOpen(_ context.Context) ([]*models.Route, error) {
	return r.s.filter(func(rt *models.Route) bool { return rt.Status.IsOpen() })
}

func (r *routeRepository) ListByEntity(_ context.Context, entityID string) ([]*models.Route, error) {
	return r.s.filter(func(rt *models.Route) bool { return rt.EntityID == entityID })
}

type trafficAlertRepository struct{ s *store[models.TrafficAlert] }

func NewTrafficAlertRepository() interfaces.TrafficAlertRepository {
	return &trafficAlertRepository{s: newStore("traffic alert",
		func(a *models.TrafficAlert) string { return a.ID },
		func(a *models.TrafficAlert) *int64 { return &a.Version })}
}

func (r *trafficAlertRepository) Create(_ context.Context, a *models.TrafficAlert) error {
	return r.s.create(a)
}

func (r *trafficAlertRepository) GetByID(_ context.Context, id string) (*models.TrafficAlert, error) {
	return r.s.get(id)
}

func (r *trafficAlertRepository) Update(_ context.Context, a *models.TrafficAlert) error {
	return r.s.update(a)
}

func (r *trafficAlertRepository) List(_ context.Context, params *utils.PaginationParams) ([]*models.TrafficAlert, int64, error) {
	return r.s.page(params, func(a *models.TrafficAlert) string { return string(a.Status) }, nil)
}

func (r *trafficAlertRepository) ListActive(_ context.Context) ([]*models.TrafficAlert, error) {
	return r.s.filter(func(a *models.TrafficAlert) bool { return a.Status == models.AlertStatusActive })
}

type auditLogRepository struct{ s *store[models.AuditLog] }

func NewAuditLogRepository() interfaces.AuditLogRepository {
	return &auditLogRepository{s: newStore("audit log",
		func(a *models.AuditLog) string { return a.ID },
		func(*models.AuditLog) *int64 { return new(int64) })}
}

func (r *auditLogRepository) Create(_ context.Context, a *models.AuditLog) error {
	return r.s.create(a)
}

func (r *auditLogRepository) ListByEntity(_ context.Context, entityType models.EntityType, entityID string) ([]*models.AuditLog, error) {
	logs, err := r.s.filter(func(a *models.AuditLog) bool {
		return a.EntityType == entityType && a.EntityID == entityID
	})
	if err != nil {
		return nil, err
	}
	reverse(logs)
	return logs, nil
}
