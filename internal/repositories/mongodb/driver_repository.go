package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
	"medidispatch/pkg/database"
)

type driverRepository struct {
	collection *mongo.Collection
}

func NewDriverRepository(db *database.MongoDB) interfaces.DriverRepository {
	return &driverRepository{
		collection: db.Collection(database.CollectionDrivers),
	}
}

func (r *driverRepository) Create(ctx context.Context, driver *models.Driver) error {
	return insertDocument(ctx, r.collection, driver, "driver")
}

func (r *driverRepository) GetByID(ctx context.Context, id string) (*models.Driver, error) {
	var driver models.Driver
	if err := findByID(ctx, r.collection, id, &driver, "driver"); err != nil {
		return nil, err
	}
	return &driver, nil
}

func (r *driverRepository) Update(ctx context.Context, driver *models.Driver) error {
	return replaceVersioned(ctx, r.collection, driver.ID, &driver.Version, driver, "driver")
}

func (r *driverRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.Driver, int64, error) {
	return findPage[models.Driver](ctx, r.collection, bson.M{}, params, "drivers")
}

func (r *driverRepository) GetByVehicleID(ctx context.Context, vehicleID string) (*models.Driver, error) {
	var driver models.Driver
	err := r.collection.FindOne(ctx, bson.M{"assigned_vehicle_id": vehicleID}).Decode(&driver)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("driver for vehicle %s: %w", vehicleID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}
	return &driver, nil
}

func (r *driverRepository) ListAssigned(ctx context.Context) ([]*models.Driver, error) {
	filter := bson.M{"current_assignment": bson.M{"$ne": nil}}
	return findAll[models.Driver](ctx, r.collection, filter, newestFirst(), "drivers")
}
