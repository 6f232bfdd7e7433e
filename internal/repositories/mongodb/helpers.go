package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
)

func insertDocument(ctx context.Context, collection *mongo.Collection, doc interface{}, kind string) error {
	if _, err := collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", kind, interfaces.ErrDuplicate)
		}
		return fmt.Errorf("failed to create %s: %w", kind, err)
	}
	return nil
}

func findByID(ctx context.Context, collection *mongo.Collection, id string, dest interface{}, kind string) error {
	err := collection.FindOne(ctx, bson.M{"_id": id}).Decode(dest)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("%s %s: %w", kind, id, interfaces.ErrNotFound)
		}
		return fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return nil
}

// replaceVersioned swaps the stored document for doc only when the stored
// version still equals *version, bumping *version on success. The version
// is restored when the swap does not happen.
func replaceVersioned(ctx context.Context, collection *mongo.Collection, id string, version *int64, doc interface{}, kind string) error {
	expected := *version
	*version = expected + 1

	result, err := collection.ReplaceOne(ctx, bson.M{"_id": id, "version": expected}, doc)
	if err != nil {
		*version = expected
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}

	if result.MatchedCount == 0 {
		*version = expected
		count, err := collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", kind, err)
		}
		if count == 0 {
			return fmt.Errorf("%s %s: %w", kind, id, interfaces.ErrNotFound)
		}
		return fmt.Errorf("%s %s at version %d: %w", kind, id, expected, interfaces.ErrVersionConflict)
	}

	return nil
}

func findAll[T any](ctx context.Context, collection *mongo.Collection, filter bson.M, opts *options.FindOptions, kind string) ([]*T, error) {
	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", kind, err)
	}
	defer cursor.Close(ctx)

	items := make([]*T, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", kind, err)
	}

	return items, nil
}

// findPage applies the status filter and paging from params. A nil params
// returns the first default page.
func findPage[T any](ctx context.Context, collection *mongo.Collection, filter bson.M, params *utils.PaginationParams, kind string) ([]*T, int64, error) {
	params = normalizeParams(params)
	if params.Status != "" {
		filter["status"] = params.Status
	}

	total, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count %s: %w", kind, err)
	}

	items, err := findAll[T](ctx, collection, filter, params.GetSortOptions(), kind)
	if err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func normalizeParams(params *utils.PaginationParams) *utils.PaginationParams {
	p := utils.PaginationParams{Page: 1, PageSize: utils.DefaultPageSize, Sort: "created_at", Order: "desc"}
	if params != nil {
		p.Status = params.Status
		if params.Page > 0 {
			p.Page = params.Page
		}
		if params.PageSize > 0 {
			p.PageSize = params.PageSize
		}
		if params.Sort != "" {
			p.Sort = params.Sort
		}
		if params.Order == "asc" {
			p.Order = "asc"
		}
	}
	return &p
}

func countByStatus(ctx context.Context, collection *mongo.Collection) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer cursor.Close(ctx)

	counts := make(map[string]int64)
	for cursor.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode status count: %w", err)
		}
		counts[row.Status] = row.Count
	}

	return counts, cursor.Err()
}

func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
}
