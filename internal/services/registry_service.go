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
)

// RegistryService owns the vehicle and driver records. Status changes on
// either go through LifecycleService.
type RegistryService interface {
	RegisterVehicle(ctx context.Context, req *models.VehicleRequest) (*models.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, params *utils.PaginationParams) ([]*models.Vehicle, int64, error)
	UpdateVehicleLocation(ctx context.Context, id string, location models.Location) (*models.Vehicle, error)

	RegisterDriver(ctx context.Context, req *models.DriverRequest) (*models.Driver, error)
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	ListDrivers(ctx context.Context, params *utils.PaginationParams) ([]*models.Driver, int64, error)
	UpdateDriverDevice(ctx context.Context, id, token string, platform models.DevicePlatform) (*models.Driver, error)

	// AssignCrew pairs a driver with a vehicle. Neither may be crewed
	// elsewhere or serving an assignment.
	AssignCrew(ctx context.Context, vehicleID, driverID, actor string) (*models.Vehicle, *models.Driver, error)
}

type registryService struct {
	vehicles interfaces.VehicleRepository
	drivers  interfaces.DriverRepository
	audit    AuditService
	logger   *logger.Logger
	now      func() time.Time
	retries  int
}

func NewRegistryService(
	vehicles interfaces.VehicleRepository,
	drivers interfaces.DriverRepository,
	audit AuditService,
	log *logger.Logger,
	now func() time.Time,
	retries int,
) RegistryService {
	return &registryService{
		vehicles: vehicles,
		drivers:  drivers,
		audit:    audit,
		logger:   log.WithComponent("registry"),
		now:      now,
		retries:  retries,
	}
}

func (s *registryService) RegisterVehicle(ctx context.Context, req *models.VehicleRequest) (*models.Vehicle, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	driverID := req.AssignedDriverID
	registration := *req
	registration.AssignedDriverID = ""

	vehicle := models.NewVehicle(registration, s.now())
	if err := s.vehicles.Create(ctx, vehicle); err != nil {
		return nil, fmt.Errorf("failed to register vehicle: %w", err)
	}

	s.audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionCreate,
		EntityType: models.EntityTypeVehicle,
		EntityID:   vehicle.ID,
		ToStatus:   string(vehicle.Status),
		Actor:      "registry",
		Note:       "vehicle registered",
	})

	if driverID == "" {
		return vehicle, nil
	}
	paired, _, err := s.AssignCrew(ctx, vehicle.ID, driverID, "registry")
	if err != nil {
		return vehicle, fmt.Errorf("vehicle registered but crew assignment failed: %w", err)
	}
	return paired, nil
}

func (s *registryService) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	vehicle, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return vehicle, nil
}

func (s *registryService) ListVehicles(ctx context.Context, params *utils.PaginationParams) ([]*models.Vehicle, int64, error) {
	return s.vehicles.List(ctx, params)
}

func (s *registryService) UpdateVehicleLocation(ctx context.Context, id string, location models.Location) (*models.Vehicle, error) {
	if !location.HasCoordinates() {
		var errs validators.ValidationErrors
		errs.Add("coordinates", "required", "coordinates are required")
		return nil, newValidationError(errs)
	}
	if err := validate(location); err != nil {
		return nil, err
	}

	now := s.now()
	vehicle, _, err := casUpdate(ctx, s.retries,
		func(ctx context.Context) (*models.Vehicle, error) { return s.vehicles.GetByID(ctx, id) },
		s.vehicles.Update,
		func(v *models.Vehicle) error {
			loc := location
			if loc.Type == "" {
				loc.Type = "Point"
			}
			loc.Timestamp = now
			v.CurrentLocation = loc
			v.UpdatedAt = now
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to update vehicle location: %w", err)
	}
	return vehicle, nil
}

func (s *registryService) RegisterDriver(ctx context.Context, req *models.DriverRequest) (*models.Driver, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	vehicleID := req.AssignedVehicleID
	registration := *req
	registration.AssignedVehicleID = ""
	registration.Phone = utils.NormalizePhone(req.Phone)

	driver := models.NewDriver(registration, s.now())
	if !driver.License.Expiry.IsZero() && driver.License.Expiry.Before(s.now()) {
		var errs validators.ValidationErrors
		errs.Add("License.Expiry", "expired", "license has expired")
		return nil, newValidationError(errs)
	}

	if err := s.drivers.Create(ctx, driver); err != nil {
		return nil, fmt.Errorf("failed to register driver: %w", err)
	}

	s.audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionCreate,
		EntityType: models.EntityTypeDriver,
		EntityID:   driver.ID,
		ToStatus:   string(driver.Status),
		Actor:      "registry",
		Note:       "driver registered",
	})

	if vehicleID == "" {
		return driver, nil
	}
	_, paired, err := s.AssignCrew(ctx, vehicleID, driver.ID, "registry")
	if err != nil {
		return driver, fmt.Errorf("driver registered but crew assignment failed: %w", err)
	}
	return paired, nil
}

func (s *registryService) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	driver, err := s.drivers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}
	return driver, nil
}

func (s *registryService) ListDrivers(ctx context.Context, params *utils.PaginationParams) ([]*models.Driver, int64, error) {
	return s.drivers.List(ctx, params)
}

func (s *registryService) UpdateDriverDevice(ctx context.Context, id, token string, platform models.DevicePlatform) (*models.Driver, error) {
	if platform != models.DevicePlatformAndroid && platform != models.DevicePlatformIOS {
		var errs validators.ValidationErrors
		errs.Add("device_platform", "oneof", "device_platform must be one of: android ios")
		return nil, newValidationError(errs)
	}

	now := s.now()
	driver, _, err := casUpdate(ctx, s.retries,
		func(ctx context.Context) (*models.Driver, error) { return s.drivers.GetByID(ctx, id) },
		s.drivers.Update,
		func(d *models.Driver) error {
			if d.DeviceToken == token && d.DevicePlatform == platform {
				return errNoChange
			}
			d.DeviceToken = token
			d.DevicePlatform = platform
			d.UpdatedAt = now
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to update driver device: %w", err)
	}
	return driver, nil
}

func (s *registryService) AssignCrew(ctx context.Context, vehicleID, driverID, actor string) (*models.Vehicle, *models.Driver, error) {
	if _, err := s.drivers.GetByID(ctx, driverID); err != nil {
		return nil, nil, fmt.Errorf("failed to get driver: %w", err)
	}

	now := s.now()
	vehicle, _, err := casUpdate(ctx, s.retries,
		func(ctx context.Context) (*models.Vehicle, error) { return s.vehicles.GetByID(ctx, vehicleID) },
		s.vehicles.Update,
		func(v *models.Vehicle) error {
			switch {
			case v.AssignedDriverID == driverID:
				return errNoChange
			case v.AssignedDriverID != "":
				return conflict("vehicle "+v.ID, fmt.Errorf("already crewed by %s", v.AssignedDriverID))
			case v.CurrentAssignment != nil:
				return conflict("vehicle "+v.ID, errors.New("serving an assignment"))
			}
			v.AssignedDriverID = driverID
			v.UpdatedAt = now
			return nil
		})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to assign crew: %w", err)
	}

	driver, _, err := casUpdate(ctx, s.retries,
		func(ctx context.Context) (*models.Driver, error) { return s.drivers.GetByID(ctx, driverID) },
		s.drivers.Update,
		func(d *models.Driver) error {
			switch {
			case d.AssignedVehicleID == vehicleID:
				return errNoChange
			case d.AssignedVehicleID != "":
				return conflict("driver "+d.ID, fmt.Errorf("already crewing %s", d.AssignedVehicleID))
			}
			d.AssignedVehicleID = vehicleID
			d.UpdatedAt = now
			return nil
		})
	if err != nil {
		s.unpairVehicle(ctx, vehicleID, driverID)
		return nil, nil, fmt.Errorf("failed to assign crew: %w", err)
	}

	s.audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionAssign,
		EntityType: models.EntityTypeVehicle,
		EntityID:   vehicleID,
		Actor:      actor,
		Note:       "crew assigned",
		Metadata:   map[string]interface{}{"driver_id": driverID},
	})
	return vehicle, driver, nil
}

func (s *registryService) unpairVehicle(ctx context.Context, vehicleID, driverID string) {
	_, _, err := casUpdate(ctx, s.retries,
		func(ctx context.Context) (*models.Vehicle, error) { return s.vehicles.GetByID(ctx, vehicleID) },
		s.vehicles.Update,
		func(v *models.Vehicle) error {
			if v.AssignedDriverID != driverID {
				return errNoChange
			}
			v.AssignedDriverID = ""
			v.UpdatedAt = s.now()
			return nil
		})
	if err != nil {
		s.logger.WithEntity("vehicle", vehicleID).WithError(err).Error("Failed to roll back crew pairing")
	}
}
