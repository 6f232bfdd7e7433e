package interfaces

import (
	"context"

	"medidispatch/internal/models"
	"medidispatch/internal/utils"
)

type OperatorRepository interface {
	Create(ctx context.Context, operator *models.DispatchOperator) error
	GetByID(ctx context.Context, id string) (*models.DispatchOperator, error)
	Update(ctx context.Context, operator *models.DispatchOperator) error

	// List and ListAvailable skip offboarded operators.
	List(ctx context.Context, params *utils.PaginationParams) ([]*models.DispatchOperator, int64, error)
	ListAvailable(ctx context.Context) ([]*models.DispatchOperator, error)
}
