package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
	"medidispatch/pkg/logger"
)

// OperatorBalancer spreads calls across dispatch operators. Calls that find
// no operator with spare capacity wait in the pending queue until an
// operator frees up.
type OperatorBalancer interface {
	Register(ctx context.Context, req *models.OperatorRequest) (*models.DispatchOperator, error)
	GetOperator(ctx context.Context, id string) (*models.DispatchOperator, error)
	ListOperators(ctx context.Context, params *utils.PaginationParams) ([]*models.DispatchOperator, int64, error)
	UpdateStatus(ctx context.Context, id string, req *models.OperatorStatusRequest) (*models.DispatchOperator, error)
	Offboard(ctx context.Context, id, actor string) (*models.DispatchOperator, error)

	// AssignCall gives the call to the least loaded operator, or queues it.
	AssignCall(ctx context.Context, callID string) (operatorID string, queued bool, err error)
	// ReleaseCall frees the operator's slot and drains the queue.
	ReleaseCall(ctx context.Context, operatorID, callID string, completed bool, responseMinutes float64) error
	Dequeue(ctx context.Context, callID string) error
	Drain(ctx context.Context) (int, error)
	Pending(ctx context.Context) ([]string, error)
}

var errCallClosed = errors.New("call is closed")

type operatorBalancer struct {
	operators interfaces.OperatorRepository
	calls     interfaces.CallRepository
	queue     PendingQueue
	ids       IDGenerator
	audit     AuditService
	notifier  Notifier
	logger    *logger.Logger
	now       func() time.Time
	retries   int

	drainMu sync.Mutex
}

func NewOperatorBalancer(
	operators interfaces.OperatorRepository,
	calls interfaces.CallRepository,
	queue PendingQueue,
	ids IDGenerator,
	audit AuditService,
	notifier Notifier,
	log *logger.Logger,
	now func() time.Time,
	retries int,
) OperatorBalancer {
	return &operatorBalancer{
		operators: operators,
		calls:     calls,
		queue:     queue,
		ids:       ids,
		audit:     audit,
		notifier:  notifier,
		logger:    log.WithComponent("operator_balancer"),
		now:       now,
		retries:   retries,
	}
}

func (b *operatorBalancer) Register(ctx context.Context, req *models.OperatorRequest) (*models.DispatchOperator, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	id, err := b.ids.Next(ctx, utils.IDPrefixOperator)
	if err != nil {
		return nil, fmt.Errorf("failed to generate operator id: %w", err)
	}

	op := models.NewDispatchOperator(id, *req, b.now())
	if err := b.operators.Create(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to register operator: %w", err)
	}

	b.audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionCreate,
		EntityType: models.EntityTypeOperator,
		EntityID:   op.ID,
		ToStatus:   string(op.Status),
		Actor:      actorOr(req.UserRef, "operator"),
		Note:       "operator logged on",
	})

	b.drainQuietly(ctx)
	return op, nil
}

func (b *operatorBalancer) GetOperator(ctx context.Context, id string) (*models.DispatchOperator, error) {
	op, err := b.operators.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}
	return op, nil
}

func (b *operatorBalancer) ListOperators(ctx context.Context, params *utils.PaginationParams) ([]*models.DispatchOperator, int64, error) {
	return b.operators.List(ctx, params)
}

func (b *operatorBalancer) UpdateStatus(ctx context.Context, id string, req *models.OperatorStatusRequest) (*models.DispatchOperator, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	now := b.now()
	var from models.OperatorStatus
	op, changed, err := casUpdate(ctx, b.retries,
		func(ctx context.Context) (*models.DispatchOperator, error) { return b.operators.GetByID(ctx, id) },
		b.operators.Update,
		func(o *models.DispatchOperator) error {
			if o.Deleted {
				return invalidTransition("operator", string(o.Status), string(req.Status))
			}
			target := req.Status
			if target == models.OperatorStatusAvailable && o.Load() >= o.MaxConcurrentCalls {
				target = models.OperatorStatusBusy
			}
			if o.Status == target {
				return errNoChange
			}
			from = o.Status
			setOperatorStatus(o, target, actorOr(req.Actor, o.UserRef), req.Reason, now)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to update operator status: %w", err)
	}

	if changed {
		b.recordOperatorTransition(ctx, op, from, req.Actor, req.Reason)
	}
	if op.CanAccept() {
		b.drainQuietly(ctx)
	}
	return op, nil
}

func (b *operatorBalancer) Offboard(ctx context.Context, id, actor string) (*models.DispatchOperator, error) {
	now := b.now()
	var from models.OperatorStatus
	op, changed, err := casUpdate(ctx, b.retries,
		func(ctx context.Context) (*models.DispatchOperator, error) { return b.operators.GetByID(ctx, id) },
		b.operators.Update,
		func(o *models.DispatchOperator) error {
			if o.Deleted {
				return errNoChange
			}
			if o.Load() > 0 {
				return fmt.Errorf("operator %s still handles %d calls: %w", o.ID, o.Load(), ErrInvalidTransition)
			}
			from = o.Status
			if o.Status != models.OperatorStatusOffline {
				setOperatorStatus(o, models.OperatorStatusOffline, actor, "offboarded", now)
			}
			o.Deleted = true
			o.DeletedAt = &now
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to offboard operator: %w", err)
	}
	if changed {
		b.recordOperatorTransition(ctx, op, from, actor, "offboarded")
	}
	return op, nil
}

func (b *operatorBalancer) AssignCall(ctx context.Context, callID string) (string, bool, error) {
	operatorID, err := b.assign(ctx, callID)
	if err == nil {
		return operatorID, false, nil
	}
	if !errors.Is(err, ErrNoCapacity) {
		return "", false, err
	}

	if err := b.queue.Push(ctx, callID); err != nil {
		return "", false, err
	}
	b.logger.WithContext(ctx).WithEntity("call", callID).Info("No operator free, call queued")
	return "", true, nil
}

// assign returns ErrNoCapacity when no operator can take the call.
func (b *operatorBalancer) assign(ctx context.Context, callID string) (string, error) {
	for attempt := 0; attempt < max(b.retries, 1); attempt++ {
		op, err := b.pickOperator(ctx)
		if err != nil {
			return "", err
		}
		if op == nil {
			return "", ErrNoCapacity
		}

		if err := b.claimSlot(ctx, op, callID); err != nil {
			if errors.Is(err, interfaces.ErrVersionConflict) {
				continue
			}
			return "", err
		}

		owner, err := b.attachToCall(ctx, callID, op.ID)
		if err != nil || owner != op.ID {
			if releaseErr := b.releaseSlot(ctx, op.ID, callID, false, 0); releaseErr != nil {
				b.logger.WithEntity("operator", op.ID).WithError(releaseErr).Error("Failed to free unused operator slot")
			}
			if err != nil {
				return "", err
			}
			return owner, nil
		}

		b.logger.WithContext(ctx).LogDispatchEvent(callID, utils.EventOperatorAssigned, map[string]interface{}{
			"operator_id": op.ID,
			"load":        op.Load(),
		})
		b.notifier.Notify(ctx, models.Notification{
			Type:       models.NotificationTypeAssignment,
			EntityType: models.EntityTypeCall,
			EntityID:   callID,
			Title:      "Call assigned",
			Message:    fmt.Sprintf("Call %s assigned to operator %s", callID, op.Name),
			Data:       map[string]interface{}{"operator_id": op.ID},
		})
		return op.ID, nil
	}
	return "", ErrNoCapacity
}

// pickOperator returns the eligible operator with the lowest load, then the
// highest efficiency, then the lowest ID.
func (b *operatorBalancer) pickOperator(ctx context.Context) (*models.DispatchOperator, error) {
	ops, err := b.operators.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list operators: %w", err)
	}

	eligible := ops[:0]
	for _, o := range ops {
		if o.CanAccept() {
			eligible = append(eligible, o)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, c := eligible[i], eligible[j]
		if a.Load() != c.Load() {
			return a.Load() < c.Load()
		}
		if !equalFloat(a.Performance.Efficiency, c.Performance.Efficiency) {
			return a.Performance.Efficiency > c.Performance.Efficiency
		}
		return a.ID < c.ID
	})
	return eligible[0], nil
}

// claimSlot writes against the version the operator was read at.
func (b *operatorBalancer) claimSlot(ctx context.Context, op *models.DispatchOperator, callID string) error {
	now := b.now()
	if op.HandlesCall(callID) {
		return nil
	}
	from := op.Status
	op.ActiveCallIDs = append(op.ActiveCallIDs, callID)
	full := op.Load() >= op.MaxConcurrentCalls && op.Status != models.OperatorStatusBusy
	if full {
		setOperatorStatus(op, models.OperatorStatusBusy, "operator_balancer", "at capacity", now)
	}
	op.UpdatedAt = now
	if err := b.operators.Update(ctx, op); err != nil {
		return err
	}
	if full {
		b.recordOperatorTransition(ctx, op, from, "operator_balancer", "at capacity")
	}
	return nil
}

// attachToCall records the operator on the call and returns whoever owns
// the call afterwards.
func (b *operatorBalancer) attachToCall(ctx context.Context, callID, operatorID string) (string, error) {
	now := b.now()
	call, changed, err := casUpdate(ctx, b.retries,
		func(ctx context.Context) (*models.Call, error) { return b.calls.GetByID(ctx, callID) },
		b.calls.Update,
		func(c *models.Call) error {
			if c.Status.IsTerminal() {
				return fmt.Errorf("call %s is %s: %w", c.ID, c.Status, errCallClosed)
			}
			if c.Dispatch.OperatorID != "" {
				return errNoChange
			}
			c.Dispatch.OperatorID = operatorID
			c.Timeline = append(c.Timeline, models.TimelineEntry{
				Kind:      models.TimelineKindAssignment,
				Status:    string(c.Status),
				Timestamp: now,
				Actor:     operatorID,
				Note:      "operator assigned",
			})
			c.UpdatedAt = now
			return nil
		})
	if err != nil {
		return "", fmt.Errorf("failed to attach operator: %w", err)
	}

	if changed {
		b.audit.Record(ctx, &models.AuditLog{
			Action:     models.AuditActionAssign,
			EntityType: models.EntityTypeCall,
			EntityID:   callID,
			ToStatus:   string(call.Status),
			Actor:      "operator_balancer",
			Note:       "operator assigned",
			Metadata:   map[string]interface{}{"operator_id": operatorID},
		})
	}
	return call.Dispatch.OperatorID, nil
}

func (b *operatorBalancer) ReleaseCall(ctx context.Context, operatorID, callID string, completed bool, responseMinutes float64) error {
	if err := b.releaseSlot(ctx, operatorID, callID, completed, responseMinutes); err != nil {
		return err
	}
	b.drainQuietly(ctx)
	return nil
}

func (b *operatorBalancer) releaseSlot(ctx context.Context, operatorID, callID string, completed bool, responseMinutes float64) error {
	now := b.now()
	var freed bool
	op, changed, err := casUpdate(ctx, b.retries,
		func(ctx context.Context) (*models.DispatchOperator, error) { return b.operators.GetByID(ctx, operatorID) },
		b.operators.Update,
		func(o *models.DispatchOperator) error {
			freed = false
			if !o.HandlesCall(callID) {
				return errNoChange
			}
			o.ActiveCallIDs = utils.RemoveFromSlice(o.ActiveCallIDs, callID)
			if completed {
				o.CallsHandled++
				o.AverageResponseTime = utils.RoundTo(utils.RunningAverage(o.AverageResponseTime, o.CallsHandled, responseMinutes), 2)
			}
			if o.Status == models.OperatorStatusBusy && o.Load() < o.MaxConcurrentCalls {
				setOperatorStatus(o, models.OperatorStatusAvailable, "operator_balancer", "below capacity", now)
				freed = true
			}
			o.UpdatedAt = now
			return nil
		})
	if err != nil {
		return fmt.Errorf("failed to release operator slot: %w", err)
	}
	if changed && freed {
		b.recordOperatorTransition(ctx, op, models.OperatorStatusBusy, "operator_balancer", "below capacity")
	}
	return nil
}

func (b *operatorBalancer) Dequeue(ctx context.Context, callID string) error {
	return b.queue.Remove(ctx, callID)
}

// Drain hands queued calls to operators until the queue empties or no
// operator has room. Calls that closed while queued are dropped.
func (b *operatorBalancer) Drain(ctx context.Context) (int, error) {
	b.drainMu.Lock()
	defer b.drainMu.Unlock()

	assigned := 0
	for {
		if err := ctx.Err(); err != nil {
			return assigned, err
		}

		callID, ok, err := b.queue.Pop(ctx)
		if err != nil {
			return assigned, err
		}
		if !ok {
			return assigned, nil
		}

		_, err = b.assign(ctx, callID)
		switch {
		case err == nil:
			assigned++
		case errors.Is(err, ErrNoCapacity):
			if err := b.queue.Requeue(ctx, callID); err != nil {
				return assigned, err
			}
			return assigned, nil
		case errors.Is(err, errCallClosed), errors.Is(err, interfaces.ErrNotFound):
			b.logger.WithEntity("call", callID).Info("Dropping closed call from pending queue")
		default:
			if err := b.queue.Requeue(ctx, callID); err != nil {
				return assigned, err
			}
			return assigned, err
		}
	}
}

func (b *operatorBalancer) drainQuietly(ctx context.Context) {
	if _, err := b.Drain(ctx); err != nil {
		b.logger.WithError(err).Warn("Pending queue drain failed")
	}
}

func (b *operatorBalancer) Pending(ctx context.Context) ([]string, error) {
	return b.queue.List(ctx)
}

func (b *operatorBalancer) recordOperatorTransition(ctx context.Context, op *models.DispatchOperator, from models.OperatorStatus, actor, reason string) {
	b.audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionTransition,
		EntityType: models.EntityTypeOperator,
		EntityID:   op.ID,
		FromStatus: string(from),
		ToStatus:   string(op.Status),
		Actor:      actorOr(actor, op.UserRef),
		Note:       reason,
	})
}

func setOperatorStatus(o *models.DispatchOperator, status models.OperatorStatus, actor, reason string, now time.Time) {
	o.StatusHistory = append(o.StatusHistory, models.StatusChange{
		From:      string(o.Status),
		To:        string(status),
		Timestamp: now,
		Actor:     actor,
		Reason:    reason,
	})
	o.Status = status
	o.UpdatedAt = now
}
