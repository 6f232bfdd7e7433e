package interfaces

import (
	"context"

	"medidispatch/internal/models"
	"medidispatch/internal/utils"
)

type TransportRepository interface {
	Create(ctx context.Context, transport *models.Transport) error
	GetByID(ctx context.Context, id string) (*models.Transport, error)
	Update(ctx context.Context, transport *models.Transport) error

	List(ctx context.Context, params *utils.PaginationParams) ([]*models.Transport, int64, error)
	ListActive(ctx context.Context) ([]*models.Transport, error)

	CountByStatus(ctx context.Context) (map[models.TransportStatus]int64, error)
}
