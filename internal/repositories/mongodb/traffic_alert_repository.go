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

type trafficAlertRepository struct {
	collection *mongo.Collection
}

func NewTrafficAlertRepository(db *database.MongoDB) interfaces.TrafficAlertRepository {
	return &trafficAlertRepository{
		collection: db.Collection(database.CollectionTrafficAlerts),
	}
}

func (r *trafficAlertRepository) Create(ctx context.Context, alert *models.TrafficAlert) error {
	return insertDocument(ctx, r.collection, alert, "traffic alert")
}

func (r *trafficAlertRepository) GetByID(ctx context.Context, id string) (*models.TrafficAlert, error) {
	var alert models.TrafficAlert
	if err := findByID(ctx, r.collection, id, &alert, "traffic alert"); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *trafficAlertRepository) Update(ctx context.Context, alert *models.TrafficAlert) error {
	return replaceVersioned(ctx, r.collection, alert.ID, &alert.Version, alert, "traffic alert")
}

func (r *trafficAlertRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.TrafficAlert, int64, error) {
	return findPage[models.TrafficAlert](ctx, r.collection, bson.M{}, params, "traffic alerts")
}

func (r *trafficAlertRepository) ListActive(ctx context.Context) ([]*models.TrafficAlert, error) {
	return findAll[models.TrafficAlert](ctx, r.collection, bson.M{"status": models.AlertStatusActive}, newestFirst(), "traffic alerts")
}
