package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/pkg/database"
)

type auditLogRepository struct {
	collection *mongo.Collection
}

func NewAuditLogRepository(db *database.MongoDB) interfaces.AuditLogRepository {
	return &auditLogRepository{
		collection: db.Collection(database.CollectionAuditLogs),
	}
}

func (r *auditLogRepository) Create(ctx context.Context, auditLog *models.AuditLog) error {
	return insertDocument(ctx, r.collection, auditLog, "audit log")
}

func (r *auditLogRepository) ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.AuditLog, error) {
	filter := bson.M{
		"entity_type": entityType,
		"entity_id":   entityID,
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	return findAll[models.AuditLog](ctx, r.collection, filter, opts, "audit logs")
}
