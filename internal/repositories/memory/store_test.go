package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
)

func testVehicle(id string) *models.Vehicle {
	return models.NewVehicle(models.VehicleRequest{
		ID:              id,
		Name:            "Medic " + id,
		VehicleNumber:   "PLATE-" + id,
		Type:            models.VehicleTypeBasic,
		CurrentLocation: models.NewPoint(12.97, 77.59, "Depot"),
	}, time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
}

func TestCreateRejectsDuplicates(t *testing.T) {
	repo := NewVehicleRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testVehicle("AMB-1")))
	err := repo.Create(ctx, testVehicle("AMB-1"))
	assert.ErrorIs(t, err, interfaces.ErrDuplicate)

	_, err = repo.GetByID(ctx, "AMB-404")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestReadsAreIsolatedCopies(t *testing.T) {
	repo := NewVehicleRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testVehicle("AMB-1")))

	v, err := repo.GetByID(ctx, "AMB-1")
	require.NoError(t, err)
	v.Available = false

	again, err := repo.GetByID(ctx, "AMB-1")
	require.NoError(t, err)
	assert.True(t, again.Available)
}

func TestUpdateIsCompareAndSwap(t *testing.T) {
	repo := NewVehicleRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testVehicle("AMB-1")))

	a, _ := repo.GetByID(ctx, "AMB-1")
	b, _ := repo.GetByID(ctx, "AMB-1")

	a.Available = false
	require.NoError(t, repo.Update(ctx, a))
	assert.Equal(t, int64(1), a.Version)

	b.Available = false
	err := repo.Update(ctx, b)
	assert.ErrorIs(t, err, interfaces.ErrVersionConflict)
	assert.Equal(t, int64(0), b.Version)
}

func TestConcurrentUpdatesHaveOneWinner(t *testing.T) {
	repo := NewVehicleRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, testVehicle("AMB-1")))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		v, err := repo.GetByID(ctx, "AMB-1")
		require.NoError(t, err)
		wg.Add(1)
		go func(v *models.Vehicle) {
			defer wg.Done()
			v.Available = false
			if repo.Update(ctx, v) == nil {
				atomic.AddInt32(&wins, 1)
			}
		}(v)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestListPagingAndStatusFilter(t *testing.T) {
	repo := NewVehicleRepository()
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, repo.Create(ctx, testVehicle(id)))
	}
	c, _ := repo.GetByID(ctx, "C")
	c.Status = models.VehicleStatusMaintenance
	require.NoError(t, repo.Update(ctx, c))

	items, total, err := repo.List(ctx, &utils.PaginationParams{Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, items, 1)
	assert.Equal(t, "C", items[0].ID)

	items, total, err = repo.List(ctx, &utils.PaginationParams{Page: 1, PageSize: 10, Status: "active"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)

	available, err := repo.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Len(t, available, 2)

	a, _ := repo.GetByID(ctx, "A")
	a.CurrentAssignment = &models.Assignment{EntityType: models.EntityTypeCall, EntityID: "CALL-1"}
	require.NoError(t, repo.Update(ctx, a))

	assigned, err := repo.ListAssigned(ctx)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, "A", assigned[0].ID)
}

func TestCallStats(t *testing.T) {
	repo := NewCallRepository()
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	call := models.NewCall("CALL-1-0001", models.CallRequest{
		Caller:    models.CallerInfo{Name: "A", Phone: "+15550100"},
		Patient:   models.PatientInfo{Condition: "fall"},
		Emergency: models.EmergencyDetails{Type: models.EmergencyTypeTrauma, Priority: models.SeverityHigh},
	}, created)
	dispatched := created.Add(6 * time.Minute)
	call.Dispatch.DispatchedAt = &dispatched
	call.Status = models.CallStatusDispatched
	require.NoError(t, repo.Create(ctx, call))

	avg, err := repo.AverageResponseMinutes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6.0, avg)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.CallStatusDispatched])

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestAuditLogsOldestFirst(t *testing.T) {
	repo := NewAuditLogRepository()
	ctx := context.Background()
	for i, to := range []string{"dispatched", "en_route"} {
		require.NoError(t, repo.Create(ctx, &models.AuditLog{
			ID:         to,
			Action:     models.AuditActionTransition,
			EntityType: models.EntityTypeCall,
			EntityID:   "CALL-1",
			ToStatus:   to,
			Timestamp:  time.Unix(int64(i), 0),
		}))
	}

	logs, err := repo.ListByEntity(ctx, models.EntityTypeCall, "CALL-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "dispatched", logs[0].ToStatus)
}
