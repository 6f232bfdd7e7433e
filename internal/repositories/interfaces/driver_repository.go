package interfaces

import (
	"context"

	"medidispatch/internal/models"
	"medidispatch/internal/utils"
)

type DriverRepository interface {
	Create(ctx context.Context, driver *models.Driver) error
	GetByID(ctx context.Context, id string) (*models.Driver, error)
	Update(ctx context.Context, driver *models.Driver) error

	List(ctx context.Context, params *utils.PaginationParams) ([]*models.Driver, int64, error)
	// GetByVehicleID returns the driver crewing a vehicle, or ErrNotFound.
	GetByVehicleID(ctx context.Context, vehicleID string) (*models.Driver, error)
	ListAssigned(ctx context.Context) ([]*models.Driver, error)
}
