package interfaces

import (
	"context"

	"medidispatch/internal/models"
	"medidispatch/internal/utils"
)

type RouteRepository interface {
	Create(ctx context.Context, route *models.Route) error
	GetByID(ctx context.Context, id string) (*models.Route, error)
	Update(ctx context.Context, route *models.Route) error

	List(ctx context.Context, params *utils.PaginationParams) ([]*models.Route, int64, error)
	// ListOpen returns planned and active routes.
	ListOpen(ctx context.Context) ([]*models.Route, error)
	ListByEntity(ctx context.Context, entityID string) ([]*models.Route, error)
}
