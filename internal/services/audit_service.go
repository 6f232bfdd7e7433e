package services

import (
	"context"
	"fmt"
	"time"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
	"medidispatch/pkg/cache"
	"medidispatch/pkg/logger"
)

// AuditService hands every timeline append to the audit collaborator. It
// persists the event, publishes it for other consumers and logs it.
// Recording never fails the operation that triggered it.
type AuditService interface {
	Record(ctx context.Context, entry *models.AuditLog)
	Trail(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.AuditLog, error)
}

type auditService struct {
	repo      interfaces.AuditLogRepository
	publisher *cache.RedisCache
	logger    *logger.Logger
	now       func() time.Time
}

func NewAuditService(repo interfaces.AuditLogRepository, publisher *cache.RedisCache, log *logger.Logger, now func() time.Time) AuditService {
	return &auditService{
		repo:      repo,
		publisher: publisher,
		logger:    log.WithComponent("audit"),
		now:       now,
	}
}

func (s *auditService) Record(ctx context.Context, entry *models.AuditLog) {
	if entry.ID == "" {
		entry.ID = utils.GenerateUUID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}

	log := s.logger.WithContext(ctx).WithEntity(string(entry.EntityType), entry.EntityID)

	if err := s.repo.Create(ctx, entry); err != nil {
		log.WithError(err).Error("Failed to persist audit event")
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, utils.ChannelAuditEvents, entry); err != nil {
			log.WithError(err).Warn("Failed to publish audit event")
		}
	}

	if entry.Action == models.AuditActionTransition {
		log.LogTransition(string(entry.EntityType), entry.EntityID, entry.FromStatus, entry.ToStatus, entry.Actor)
		return
	}
	log.WithFields(map[string]interface{}{
		"action": entry.Action,
		"actor":  entry.Actor,
		"note":   entry.Note,
	}).Info("Audit event recorded")
}

func (s *auditService) Trail(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.AuditLog, error) {
	logs, err := s.repo.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}
	return logs, nil
}
