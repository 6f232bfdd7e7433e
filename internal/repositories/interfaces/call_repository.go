package interfaces

import (
	"context"

	"medidispatch/internal/models"
	"medidispatch/internal/utils"
)

// CallRepository stores calls. Update is a compare-and-swap on Version:
// it fails with ErrVersionConflict when the stored version differs and
// increments call.Version on success.
type CallRepository interface {
	Create(ctx context.Context, call *models.Call) error
	GetByID(ctx context.Context, id string) (*models.Call, error)
	Update(ctx context.Context, call *models.Call) error

	List(ctx context.Context, params *utils.PaginationParams) ([]*models.Call, int64, error)
	// ListActive returns every call in a non-terminal status.
	ListActive(ctx context.Context) ([]*models.Call, error)

	CountByStatus(ctx context.Context) (map[models.CallStatus]int64, error)
	// AverageResponseMinutes averages dispatchedAt - createdAt over
	// dispatched calls; zero when none.
	AverageResponseMinutes(ctx context.Context) (float64, error)
}
