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

type routeRepository struct {
	collection *mongo.Collection
}

func NewRouteRepository(db *database.MongoDB) interfaces.RouteRepository {
	return &routeRepository{
		collection: db.Collection(database.CollectionRoutes),
	}
}

func (r *routeRepository) Create(ctx context.Context, route *models.Route) error {
	return insertDocument(ctx, r.collection, route, "route")
}

func (r *routeRepository) GetByID(ctx context.Context, id string) (*models.Route, error) {
	var route models.Route
	if err := findByID(ctx, r.collection, id, &route, "route"); err != nil {
		return nil, err
	}
	return &route, nil
}

func (r *routeRepository) Update(ctx context.Context, route *models.Route) error {
	return replaceVersioned(ctx, r.collection, route.ID, &route.Version, route, "route")
}

func (r *routeRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.Route, int64, error) {
	return findPage[models.Route](ctx, r.collection, bson.M{}, params, "routes")
}

func (r *routeRepository) ListOpen(ctx context.Context) ([]*models.Route, error) {
	filter := bson.M{"status": bson.M{"$in": []models.RouteStatus{models.RouteStatusPlanned, models.RouteStatusActive}}}
	return findAll[models.Route](ctx, r.collection, filter, newestFirst(), "routes")
}

func (r *routeRepository) ListByEntity(ctx context.Context, entityID string) ([]*models.Route, error) {
	return findAll[models.Route](ctx, r.collection, bson.M{"entity_id": entityID}, newestFirst(), "routes")
}
