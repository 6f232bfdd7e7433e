package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
	"medidispatch/pkg/database"
)

type operatorRepository struct {
	collection *mongo.Collection
}

func NewOperatorRepository(db *database.MongoDB) interfaces.OperatorRepository {
	return &operatorRepository{
		collection: db.Collection(database.CollectionOperators),
	}
}

func (r *operatorRepository) Create(ctx context.Context, operator *models.DispatchOperator) error {
	return insertDocument(ctx, r.collection, operator, "operator")
}

func (r *operatorRepository) GetByID(ctx context.Context, id string) (*models.DispatchOperator, error) {
	var operator models.DispatchOperator
	if err := findByID(ctx, r.collection, id, &operator, "operator"); err != nil {
		return nil, err
	}
	return &operator, nil
}

func (r *operatorRepository) Update(ctx context.Context, operator *models.DispatchOperator) error {
	return replaceVersioned(ctx, r.collection, operator.ID, &operator.Version, operator, "operator")
}

func (r *operatorRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.DispatchOperator, int64, error) {
	return findPage[models.DispatchOperator](ctx, r.collection, bson.M{"deleted": false}, params, "operators")
}

func (r *operatorRepository) ListAvailable(ctx context.Context) ([]*models.DispatchOperator, error) {
	filter := bson.M{
		"status":  models.OperatorStatusAvailable,
		"deleted": false,
	}
	return findAll[models.DispatchOperator](ctx, r.collection, filter, newestFirst(), "operators")
}
