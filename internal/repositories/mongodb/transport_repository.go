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

type transportRepository struct {
	collection *mongo.Collection
}

func NewTransportRepository(db *database.MongoDB) interfaces.TransportRepository {
	return &transportRepository{
		collection: db.Collection(database.CollectionTransports),
	}
}

func (r *transportRepository) Create(ctx context.Context, transport *models.Transport) error {
	return insertDocument(ctx, r.collection, transport, "transport")
}

func (r *transportRepository) GetByID(ctx context.Context, id string) (*models.Transport, error) {
	var transport models.Transport
	if err := findByID(ctx, r.collection, id, &transport, "transport"); err != nil {
		return nil, err
	}
	return &transport, nil
}

func (r *transportRepository) Update(ctx context.Context, transport *models.Transport) error {
	return replaceVersioned(ctx, r.collection, transport.ID, &transport.Version, transport, "transport")
}

func (r *transportRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.Transport, int64, error) {
	return findPage[models.Transport](ctx, r.collection, bson.M{}, params, "transports")
}

func (r *transportRepository) ListActive(ctx context.Context) ([]*models.Transport, error) {
	filter := bson.M{"status": bson.M{"$nin": []models.TransportStatus{models.TransportStatusCompleted, models.TransportStatusCancelled}}}
	return findAll[models.Transport](ctx, r.collection, filter, newestFirst(), "transports")
}

func (r *transportRepository) CountByStatus(ctx context.Context) (map[models.TransportStatus]int64, error) {
	raw, err := countByStatus(ctx, r.collection)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.TransportStatus]int64, len(raw))
	for status, n := range raw {
		counts[models.TransportStatus(status)] = n
	}
	return counts, nil
}
