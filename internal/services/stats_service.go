package services

import (
	"context"
	"fmt"
	"time"

	"medidispatch/internal/config"
	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
)

type StatsService interface {
	DispatchStats(ctx context.Context) (*models.DispatchStats, error)
	RouteStats(ctx context.Context) (*models.RouteStats, error)
}

type statsService struct {
	calls      interfaces.CallRepository
	transports interfaces.TransportRepository
	queue      PendingQueue
	planner    RoutePlanner
	cfg        *config.DispatchConfig
	now        func() time.Time
}

func NewStatsService(
	calls interfaces.CallRepository,
	transports interfaces.TransportRepository,
	queue PendingQueue,
	planner RoutePlanner,
	cfg *config.DispatchConfig,
	now func() time.Time,
) StatsService {
	return &statsService{
		calls:      calls,
		transports: transports,
		queue:      queue,
		planner:    planner,
		cfg:        cfg,
		now:        now,
	}
}

func (s *statsService) DispatchStats(ctx context.Context) (*models.DispatchStats, error) {
	byStatus, err := s.calls.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count calls: %w", err)
	}
	avg, err := s.calls.AverageResponseMinutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to average response time: %w", err)
	}
	transports, err := s.transports.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count transports: %w", err)
	}
	pending, err := s.queue.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending queue: %w", err)
	}

	stats := &models.DispatchStats{
		Calls: models.CallStats{
			ByStatus:              byStatus,
			AverageResponseMinute: utils.RoundTo(avg, 2),
		},
		Transports:   transports,
		PendingQueue: pending,
	}
	for status, n := range byStatus {
		stats.Calls.Total += n
		if !status.IsTerminal() {
			stats.Calls.Active += n
		}
	}

	now := s.now()
	activeCalls, err := s.calls.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active calls: %w", err)
	}
	for _, c := range activeCalls {
		if c.Escalation.Level > 0 {
			stats.Calls.Escalated++
		}
		if c.IsOverdue(now, s.cfg.SLA[c.Emergency.Priority]) {
			stats.OverdueCalls++
		}
	}

	activeTransports, err := s.transports.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active transports: %w", err)
	}
	for _, t := range activeTransports {
		if t.IsOverdue(now, s.cfg.SLA[t.Priority]) {
			stats.OverdueTransports++
		}
	}
	return stats, nil
}

func (s *statsService) RouteStats(ctx context.Context) (*models.RouteStats, error) {
	return s.planner.Stats(ctx)
}
