package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
	"medidispatch/pkg/database"
)

type callRepository struct {
	collection *mongo.Collection
}

func NewCallRepository(db *database.MongoDB) interfaces.CallRepository {
	return &callRepository{
		collection: db.Collection(database.CollectionCalls),
	}
}

func (r *callRepository) Create(ctx context.Context, call *models.Call) error {
	return insertDocument(ctx, r.collection, call, "call")
}

func (r *callRepository) GetByID(ctx context.Context, id string) (*models.Call, error) {
	var call models.Call
	if err := findByID(ctx, r.collection, id, &call, "call"); err != nil {
		return nil, err
	}
	return &call, nil
}

func (r *callRepository) Update(ctx context.Context, call *models.Call) error {
	return replaceVersioned(ctx, r.collection, call.ID, &call.Version, call, "call")
}

func (r *callRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.Call, int64, error) {
	return findPage[models.Call](ctx, r.collection, bson.M{}, params, "calls")
}

func (r *callRepository) ListActive(ctx context.Context) ([]*models.Call, error) {
	filter := bson.M{"status": bson.M{"$nin": []models.CallStatus{models.CallStatusCompleted, models.CallStatusCancelled}}}
	return findAll[models.Call](ctx, r.collection, filter, newestFirst(), "calls")
}

func (r *callRepository) CountByStatus(ctx context.Context) (map[models.CallStatus]int64, error) {
	raw, err := countByStatus(ctx, r.collection)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.CallStatus]int64, len(raw))
	for status, n := range raw {
		counts[models.CallStatus(status)] = n
	}
	return counts, nil
}

func (r *callRepository) AverageResponseMinutes(ctx context.Context) (float64, error) {
	pipeline := []bson.M{
		{"$match": bson.M{"dispatch.dispatched_at": bson.M{"$ne": nil}}},
		{"$group": bson.M{
			"_id": nil,
			"avg_ms": bson.M{"$avg": bson.M{
				"$subtract": []string{"$dispatch.dispatched_at", "$created_at"},
			}},
		}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to get response time: %w", err)
	}
	defer cursor.Close(ctx)

	var result struct {
		AvgMS float64 `bson:"avg_ms"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return 0, fmt.Errorf("failed to decode response time: %w", err)
		}
	}

	return utils.RoundTo(result.AvgMS/60000, 2), nil
}
