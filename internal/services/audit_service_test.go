package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/memory"
	"medidispatch/internal/utils"
	"medidispatch/pkg/logger"
)

func TestAuditRecordPersistsAndPublishes(t *testing.T) {
	c, _ := newMiniredisCache(t)
	ctx := context.Background()

	sub := c.Subscribe(ctx, utils.ChannelAuditEvents)
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	repo := memory.NewAuditLogRepository()
	svc := NewAuditService(repo, c, logger.NewNop(), newTestClock().Now)

	svc.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionTransition,
		EntityType: models.EntityTypeCall,
		EntityID:   "CALL-1",
		FromStatus: "pending",
		ToStatus:   "dispatched",
		Actor:      "ops",
	})

	trail, err := svc.Trail(ctx, models.EntityTypeCall, "CALL-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.NotEmpty(t, trail[0].ID)
	assert.Equal(t, t0, trail[0].Timestamp)

	select {
	case msg := <-sub.Channel():
		var got models.AuditLog
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, trail[0].ID, got.ID)
		assert.Equal(t, "dispatched", got.ToStatus)
	case <-time.After(time.Second):
		t.Fatal("audit event was not published")
	}
}

func TestAuditTrailIsScopedToEntity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.audit.Record(ctx, &models.AuditLog{Action: models.AuditActionCreate, EntityType: models.EntityTypeCall, EntityID: "CALL-1"})
	env.audit.Record(ctx, &models.AuditLog{Action: models.AuditActionCreate, EntityType: models.EntityTypeCall, EntityID: "CALL-2"})
	env.audit.Record(ctx, &models.AuditLog{Action: models.AuditActionCreate, EntityType: models.EntityTypeTransport, EntityID: "CALL-1"})

	trail, err := env.audit.Trail(ctx, models.EntityTypeCall, "CALL-1")
	require.NoError(t, err)
	assert.Len(t, trail, 1)
}
