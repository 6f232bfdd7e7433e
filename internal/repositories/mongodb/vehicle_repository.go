package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
	"medidispatch/pkg/database"
)

const vehicleCacheTTL = 30 * time.Second

type vehicleRepository struct {
	collection *mongo.Collection
	cache      interfaces.CacheService
}

// NewVehicleRepository caches single-vehicle reads when cache is non-nil.
func NewVehicleRepository(db *database.MongoDB, cache interfaces.CacheService) interfaces.VehicleRepository {
	return &vehicleRepository{
		collection: db.Collection(database.CollectionVehicles),
		cache:      cache,
	}
}

func (r *vehicleRepository) Create(ctx context.Context, vehicle *models.Vehicle) error {
	return insertDocument(ctx, r.collection, vehicle, "vehicle")
}

func (r *vehicleRepository) GetByID(ctx context.Context, id string) (*models.Vehicle, error) {
	if vehicle := r.getVehicleFromCache(ctx, id); vehicle != nil {
		return vehicle, nil
	}

	var vehicle models.Vehicle
	if err := findByID(ctx, r.collection, id, &vehicle, "vehicle"); err != nil {
		return nil, err
	}

	r.cacheVehicle(ctx, &vehicle)
	return &vehicle, nil
}

func (r *vehicleRepository) Update(ctx context.Context, vehicle *models.Vehicle) error {
	err := replaceVersioned(ctx, r.collection, vehicle.ID, &vehicle.Version, vehicle, "vehicle")
	// A conflict means our cached copy may be stale too.
	if err == nil || errors.Is(err, interfaces.ErrVersionConflict) {
		r.invalidateVehicleCache(ctx, vehicle.ID)
	}
	return err
}

func (r *vehicleRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.Vehicle, int64, error) {
	return findPage[models.Vehicle](ctx, r.collection, bson.M{}, params, "vehicles")
}

func (r *vehicleRepository) ListAvailable(ctx context.Context) ([]*models.Vehicle, error) {
	filter := bson.M{
		"available": true,
		"status":    models.VehicleStatusActive,
	}
	return findAll[models.Vehicle](ctx, r.collection, filter, newestFirst(), "vehicles")
}

func (r *vehicleRepository) ListAssigned(ctx context.Context) ([]*models.Vehicle, error) {
	filter := bson.M{"current_assignment": bson.M{"$ne": nil}}
	return findAll[models.Vehicle](ctx, r.collection, filter, newestFirst(), "vehicles")
}

func (r *vehicleRepository) cacheVehicle(ctx context.Context, vehicle *models.Vehicle) {
	if r.cache != nil {
		r.cache.Set(ctx, utils.CacheVehiclePrefix+vehicle.ID, vehicle, vehicleCacheTTL)
	}
}

func (r *vehicleRepository) getVehicleFromCache(ctx context.Context, vehicleID string) *models.Vehicle {
	if r.cache == nil {
		return nil
	}

	var vehicle models.Vehicle
	if err := r.cache.Get(ctx, utils.CacheVehiclePrefix+vehicleID, &vehicle); err != nil {
		return nil
	}

	return &vehicle
}

func (r *vehicleRepository) invalidateVehicleCache(ctx context.Context, vehicleID string) {
	if r.cache != nil {
		r.cache.Delete(ctx, utils.CacheVehiclePrefix+vehicleID)
	}
}
