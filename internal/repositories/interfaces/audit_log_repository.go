package interfaces

import (
	"context"

	"medidispatch/internal/models"
)

type AuditLogRepository interface {
	Create(ctx context.Context, auditLog *models.AuditLog) error
	// ListByEntity returns an entity's audit trail oldest first.
	ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.AuditLog, error)
}
