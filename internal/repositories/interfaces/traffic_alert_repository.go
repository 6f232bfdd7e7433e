package interfaces

import (
	"context"

	"medidispatch/internal/models"
	"medidispatch/internal/utils"
)

type TrafficAlertRepository interface {
	Create(ctx context.Context, alert *models.TrafficAlert) error
	GetByID(ctx context.Context, id string) (*models.TrafficAlert, error)
	Update(ctx context.Context, alert *models.TrafficAlert) error

	List(ctx context.Context, params *utils.PaginationParams) ([]*models.TrafficAlert, int64, error)
	// ListActive returns alerts in active status, including ones whose
	// expiry has passed but that the expiry loop has not yet closed.
	ListActive(ctx context.Context) ([]*models.TrafficAlert, error)
}
