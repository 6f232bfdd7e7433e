package interfaces

import (
	"context"

	"medidispatch/internal/models"
	"medidispatch/internal/utils"
)

type VehicleRepository interface {
	Create(ctx context.Context, vehicle *models.Vehicle) error
	GetByID(ctx context.Context, id string) (*models.Vehicle, error)
	// Update is a compare-and-swap on Version.
	Update(ctx context.Context, vehicle *models.Vehicle) error

	List(ctx context.Context, params *utils.PaginationParams) ([]*models.Vehicle, int64, error)
	// ListAvailable returns active vehicles flagged available. Operating
	// hours and capabilities are checked by the caller.
	ListAvailable(ctx context.Context) ([]*models.Vehicle, error)
	// ListAssigned returns vehicles currently held for a call or transport.
	ListAssigned(ctx context.Context) ([]*models.Vehicle, error)
}
