package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medidispatch/internal/models"
)

func registerOperator(t *testing.T, env *testEnv, name string, capacity int, efficiency float64) *models.DispatchOperator {
	t.Helper()
	op, err := env.balancer.Register(context.Background(), &models.OperatorRequest{
		Name:               name,
		UserRef:            name,
		MaxConcurrentCalls: capacity,
		Efficiency:         efficiency,
	})
	require.NoError(t, err)
	return op
}

func TestAssignPrefersLowestLoadThenEfficiency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	slow := registerOperator(t, env, "slow", 3, 0.5)
	fast := registerOperator(t, env, "fast", 3, 0.9)

	first, queued, err := env.balancer.AssignCall(ctx, env.seedCall(t, models.SeverityHigh).ID)
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, fast.ID, first)

	second, _, err := env.balancer.AssignCall(ctx, env.seedCall(t, models.SeverityHigh).ID)
	require.NoError(t, err)
	assert.Equal(t, slow.ID, second)

	call := env.seedCall(t, models.SeverityLow)
	third, _, err := env.balancer.AssignCall(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, fast.ID, third)

	stored, err := env.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, fast.ID, stored.Dispatch.OperatorID)
	last := stored.Timeline[len(stored.Timeline)-1]
	assert.Equal(t, models.TimelineKindAssignment, last.Kind)
	assert.Equal(t, fast.ID, last.Actor)
}

func TestAssignIsIdempotentPerCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	op := registerOperator(t, env, "solo", 2, 0)
	call := env.seedCall(t, models.SeverityMedium)

	a, _, err := env.balancer.AssignCall(ctx, call.ID)
	require.NoError(t, err)
	b, _, err := env.balancer.AssignCall(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, op.ID, a)
	assert.Equal(t, op.ID, b)

	stored, err := env.balancer.GetOperator(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Load())
}

func TestOperatorBecomesBusyAtCapacityAndQueueDrains(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	op := registerOperator(t, env, "solo", 1, 0)

	held := env.seedCall(t, models.SeverityHigh)
	_, _, err := env.balancer.AssignCall(ctx, held.ID)
	require.NoError(t, err)

	stored, err := env.balancer.GetOperator(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OperatorStatusBusy, stored.Status)

	waiting := env.seedCall(t, models.SeverityHigh)
	id, queued, err := env.balancer.AssignCall(ctx, waiting.ID)
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Empty(t, id)

	pending, err := env.balancer.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{waiting.ID}, pending)

	require.NoError(t, env.balancer.ReleaseCall(ctx, op.ID, held.ID, true, 12))

	stored, err = env.balancer.GetOperator(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{waiting.ID}, stored.ActiveCallIDs)
	assert.Equal(t, models.OperatorStatusBusy, stored.Status)
	assert.Equal(t, int64(1), stored.CallsHandled)
	assert.Equal(t, 12.0, stored.AverageResponseTime)

	pending, err = env.balancer.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNewOperatorDrainsQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	call := env.seedCall(t, models.SeverityHigh)
	_, queued, err := env.balancer.AssignCall(ctx, call.ID)
	require.NoError(t, err)
	require.True(t, queued)

	op := registerOperator(t, env, "late", 2, 0)

	stored, err := env.calls.GetByID(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, op.ID, stored.Dispatch.OperatorID)
}

func TestDrainDropsClosedCalls(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	closed := env.seedCall(t, models.SeverityHigh)
	open := env.seedCall(t, models.SeverityHigh)
	require.NoError(t, env.queue.Push(ctx, closed.ID))
	require.NoError(t, env.queue.Push(ctx, open.ID))
	// Closed behind the queue's back, as another instance would.
	stored, err := env.calls.GetByID(ctx, closed.ID)
	require.NoError(t, err)
	stored.Status = models.CallStatusCancelled
	require.NoError(t, env.calls.Update(ctx, stored))

	op := registerOperator(t, env, "late", 2, 0)

	got, err := env.balancer.GetOperator(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{open.ID}, got.ActiveCallIDs)
	n, err := env.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAutomaticOperatorTransitionsAreAudited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	op := registerOperator(t, env, "solo", 1, 0)

	call := env.seedCall(t, models.SeverityHigh)
	_, _, err := env.balancer.AssignCall(ctx, call.ID)
	require.NoError(t, err)
	require.NoError(t, env.balancer.ReleaseCall(ctx, op.ID, call.ID, true, 5))

	stored, err := env.balancer.GetOperator(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OperatorStatusAvailable, stored.Status)

	trail, err := env.audit.Trail(ctx, models.EntityTypeOperator, op.ID)
	require.NoError(t, err)
	var transitions []string
	for _, a := range trail {
		if a.Action == models.AuditActionTransition {
			transitions = append(transitions, a.FromStatus+"->"+a.ToStatus)
			assert.Equal(t, "operator_balancer", a.Actor)
		}
	}
	assert.ElementsMatch(t, []string{"available->busy", "busy->available"}, transitions)
	assert.Len(t, transitions, len(stored.StatusHistory)-1)
}

func TestOperatorStatusChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	op := registerOperator(t, env, "solo", 1, 0)

	updated, err := env.balancer.UpdateStatus(ctx, op.ID, &models.OperatorStatusRequest{Status: models.OperatorStatusBreak, Actor: "solo"})
	require.NoError(t, err)
	assert.Equal(t, models.OperatorStatusBreak, updated.Status)

	call := env.seedCall(t, models.SeverityHigh)
	_, queued, err := env.balancer.AssignCall(ctx, call.ID)
	require.NoError(t, err)
	assert.True(t, queued)

	// Coming back picks up the waiting call straight away.
	updated, err = env.balancer.UpdateStatus(ctx, op.ID, &models.OperatorStatusRequest{Status: models.OperatorStatusAvailable, Actor: "solo"})
	require.NoError(t, err)
	assert.Equal(t, models.OperatorStatusAvailable, updated.Status)

	stored, err := env.balancer.GetOperator(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{call.ID}, stored.ActiveCallIDs)
	assert.Equal(t, models.OperatorStatusBusy, stored.Status)

	_, err = env.balancer.UpdateStatus(ctx, op.ID, &models.OperatorStatusRequest{Status: "busy"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOffboardRequiresNoActiveCalls(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	op := registerOperator(t, env, "solo", 2, 0)
	call := env.seedCall(t, models.SeverityHigh)
	_, _, err := env.balancer.AssignCall(ctx, call.ID)
	require.NoError(t, err)

	_, err = env.balancer.Offboard(ctx, op.ID, "admin")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, env.balancer.ReleaseCall(ctx, op.ID, call.ID, false, 0))
	gone, err := env.balancer.Offboard(ctx, op.ID, "admin")
	require.NoError(t, err)
	assert.True(t, gone.Deleted)
	assert.Equal(t, models.OperatorStatusOffline, gone.Status)

	_, err = env.balancer.UpdateStatus(ctx, op.ID, &models.OperatorStatusRequest{Status: models.OperatorStatusAvailable})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
