package services

import (
	"context"
	"fmt"
	"time"

	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/pkg/logger"
)

type SweepResult struct {
	Checked    int `json:"checked"`
	Escalated  int `json:"escalated"`
	Levels     int `json:"levels"`
	Failed     int `json:"failed"`
	Reconciled int `json:"reconciled"`
}

type SweeperDeps struct {
	Calls      interfaces.CallRepository
	Transports interfaces.TransportRepository
	Alerts     interfaces.TrafficAlertRepository
	Lifecycle  LifecycleService
	Traffic    TrafficService
}

// EscalationSweeper periodically escalates active, unacknowledged calls and
// transports and unresolved traffic alerts that have outlived their SLA. Each
// pass also frees vehicles and drivers left held by closed entities.
type EscalationSweeper struct {
	SweeperDeps
	interval time.Duration
	logger   *logger.Logger
}

func NewEscalationSweeper(deps SweeperDeps, interval time.Duration, log *logger.Logger) *EscalationSweeper {
	return &EscalationSweeper{
		SweeperDeps: deps,
		interval:    interval,
		logger:      log.WithComponent("escalation_sweeper"),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *EscalationSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("Escalation sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Escalation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("Escalation sweep failed")
			}
		}
	}
}

// SweepOnce runs a single pass. Failures on individual entities are logged
// and counted; only listing failures are returned.
func (s *EscalationSweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	calls, err := s.Calls.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list active calls: %w", err)
	}
	for _, c := range calls {
		if c.IsAcknowledged() {
			continue
		}
		s.escalate(ctx, models.EntityTypeCall, c.ID, &result)
	}

	transports, err := s.Transports.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list active transports: %w", err)
	}
	for _, t := range transports {
		if t.IsAcknowledged() {
			continue
		}
		s.escalate(ctx, models.EntityTypeTransport, t.ID, &result)
	}

	if s.Alerts != nil && s.Traffic != nil {
		alerts, err := s.Alerts.ListActive(ctx)
		if err != nil {
			return result, fmt.Errorf("failed to list active alerts: %w", err)
		}
		for _, a := range alerts {
			s.escalate(ctx, models.EntityTypeAlert, a.ID, &result)
		}
	}

	freed, err := s.Lifecycle.ReconcileAssignments(ctx)
	if err != nil {
		return result, err
	}
	result.Reconciled = freed

	if result.Levels > 0 || result.Failed > 0 || result.Reconciled > 0 {
		s.logger.WithFields(map[string]interface{}{
			"checked":    result.Checked,
			"escalated":  result.Escalated,
			"levels":     result.Levels,
			"failed":     result.Failed,
			"reconciled": result.Reconciled,
		}).Info("Escalation sweep finished")
	}
	return result, nil
}

func (s *EscalationSweeper) escalate(ctx context.Context, kind models.EntityType, id string, result *SweepResult) {
	result.Checked++
	var levels int
	var err error
	if kind == models.EntityTypeAlert {
		levels, err = s.Traffic.EscalateAlert(ctx, id)
	} else {
		levels, err = s.Lifecycle.Escalate(ctx, kind, id)
	}
	if err != nil {
		if isNotFound(err) {
			return
		}
		result.Failed++
		s.logger.WithEntity(string(kind), id).WithError(err).Warn("Failed to escalate")
		return
	}
	if levels > 0 {
		result.Escalated++
		result.Levels += levels
	}
}
