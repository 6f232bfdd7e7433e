package services

import (
	"context"
	"fmt"
	"time"

	"medidispatch/internal/config"
	"medidispatch/internal/models"
	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
	"medidispatch/internal/validators"
	"medidispatch/pkg/logger"
)

// TrafficService manages traffic alerts. Every alert change re-estimates
// the open routes it touches.
type TrafficService interface {
	CreateAlert(ctx context.Context, req *models.TrafficAlertRequest) (*models.TrafficAlert, error)
	GetAlert(ctx context.Context, id string) (*models.TrafficAlert, error)
	ListAlerts(ctx context.Context, params *utils.PaginationParams) ([]*models.TrafficAlert, int64, error)
	ResolveAlert(ctx context.Context, id, actor string) (*models.TrafficAlert, error)
	// ExpireAlerts closes active alerts past their expiry and returns how
	// many it closed.
	ExpireAlerts(ctx context.Context) (int, error)
	RunExpiryLoop(ctx context.Context, interval time.Duration)
	// EscalateAlert raises the escalation level of an unresolved alert to
	// what its age and severity call for, and returns how many levels were
	// added.
	EscalateAlert(ctx context.Context, id string) (int, error)
}

type trafficService struct {
	alerts   interfaces.TrafficAlertRepository
	planner  RoutePlanner
	ids      IDGenerator
	audit    AuditService
	notifier Notifier
	cfg      *config.DispatchConfig
	logger   *logger.Logger
	now      func() time.Time
}

func NewTrafficService(
	alerts interfaces.TrafficAlertRepository,
	planner RoutePlanner,
	ids IDGenerator,
	audit AuditService,
	notifier Notifier,
	cfg *config.DispatchConfig,
	log *logger.Logger,
	now func() time.Time,
) TrafficService {
	return &trafficService{
		alerts:   alerts,
		planner:  planner,
		ids:      ids,
		audit:    audit,
		notifier: notifier,
		cfg:      cfg,
		logger:   log.WithComponent("traffic"),
		now:      now,
	}
}

func (s *trafficService) CreateAlert(ctx context.Context, req *models.TrafficAlertRequest) (*models.TrafficAlert, error) {
	errs := validators.ValidateStruct(req)
	if !req.Location.HasCoordinates() {
		errs.Add("location.coordinates", "required", "alert location needs coordinates")
	}
	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		errs.Add("expires_at", "gt", "expiry must be in the future")
	}
	if len(errs) > 0 {
		return nil, newValidationError(errs)
	}

	id, err := s.ids.Next(ctx, utils.IDPrefixAlert)
	if err != nil {
		return nil, fmt.Errorf("failed to generate alert id: %w", err)
	}
	alert := models.NewTrafficAlert(id, *req, s.cfg.AlertRadiusKM, s.cfg.AlertTTL, now)
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to create traffic alert: %w", err)
	}

	s.audit.Record(ctx, &models.AuditLog{
		Action:     models.AuditActionCreate,
		EntityType: models.EntityTypeAlert,
		EntityID:   alert.ID,
		ToStatus:   string(alert.Status),
		Actor:      utils.CoalesceString(req.ReportedBy, "traffic"),
		Note:       fmt.Sprintf("%s %s alert", alert.Severity, alert.Type),
	})
	s.notifier.Notify(ctx, models.Notification{
		Type:       models.NotificationTypeAlert,
		EntityType: models.EntityTypeAlert,
		EntityID:   alert.ID,
		Title:      "Traffic alert",
		Message:    fmt.Sprintf("%s %s reported, radius %.1f km", alert.Severity, alert.Type, alert.RadiusKM),
		Data: map[string]interface{}{
			"severity":  alert.Severity,
			"radius_km": alert.RadiusKM,
		},
	})

	s.recompute(ctx, alert, "traffic alert "+alert.ID+" reported")
	return alert, nil
}

func (s *trafficService) GetAlert(ctx context.Context, id string) (*models.TrafficAlert, error) {
	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get traffic alert: %w", err)
	}
	return alert, nil
}

func (s *trafficService) ListAlerts(ctx context.Context, params *utils.PaginationParams) ([]*models.TrafficAlert, int64, error) {
	return s.alerts.List(ctx, params)
}

func (s *trafficService) ResolveAlert(ctx context.Context, id, actor string) (*models.TrafficAlert, error) {
	alert, changed, err := s.close(ctx, id, models.AlertStatusResolved)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve traffic alert: %w", err)
	}
	if changed {
		s.audit.Record(ctx, &models.AuditLog{
			Action:     models.AuditActionTransition,
			EntityType: models.EntityTypeAlert,
			EntityID:   id,
			FromStatus: string(models.AlertStatusActive),
			ToStatus:   string(models.AlertStatusResolved),
			Actor:      actor,
		})
		s.recompute(ctx, alert, "traffic alert "+id+" resolved")
	}
	return alert, nil
}

func (s *trafficService) ExpireAlerts(ctx context.Context) (int, error) {
	active, err := s.alerts.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active alerts: %w", err)
	}

	now := s.now()
	expired := 0
	for _, a := range active {
		if !a.IsExpired(now) {
			continue
		}
		alert, changed, err := s.close(ctx, a.ID, models.AlertStatusExpired)
		if err != nil {
			s.logger.WithEntity(string(models.EntityTypeAlert), a.ID).WithError(err).Warn("Failed to expire alert")
			continue
		}
		if !changed {
			continue
		}
		expired++
		s.audit.Record(ctx, &models.AuditLog{
			Action:     models.AuditActionTransition,
			EntityType: models.EntityTypeAlert,
			EntityID:   a.ID,
			FromStatus: string(models.AlertStatusActive),
			ToStatus:   string(models.AlertStatusExpired),
			Actor:      "alert_expiry",
		})
		s.recompute(ctx, alert, "traffic alert "+a.ID+" expired")
	}
	return expired, nil
}

func (s *trafficService) RunExpiryLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireAlerts(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("Alert expiry scan failed")
				continue
			}
			if n > 0 {
				s.logger.WithField("expired", n).Info("Expired traffic alerts")
			}
		}
	}
}

func (s *trafficService) EscalateAlert(ctx context.Context, id string) (int, error) {
	now := s.now()
	var from, to int
	var age time.Duration

	alert, changed, err := casUpdate(ctx, s.cfg.TransitionRetries,
		func(ctx context.Context) (*models.TrafficAlert, error) { return s.alerts.GetByID(ctx, id) },
		s.alerts.Update,
		func(a *models.TrafficAlert) error {
			if !a.IsActiveAt(now) {
				return errNoChange
			}
			sla := s.cfg.SLA[a.Severity]
			if sla <= 0 {
				return errNoChange
			}
			age = now.Sub(a.CreatedAt)
			target := int(age / sla)
			if target > s.cfg.MaxEscalationLevel {
				target = s.cfg.MaxEscalationLevel
			}
			if target <= a.Escalation.Level {
				return errNoChange
			}

			from, to = a.Escalation.Level, target
			escalatedAt := now
			a.Escalation.Level = to
			a.Escalation.LastEscalatedAt = &escalatedAt
			a.Escalation.Reason = fmt.Sprintf("%s SLA of %s exceeded", a.Severity, sla)
			a.UpdatedAt = now
			return nil
		})
	if err != nil {
		return 0, fmt.Errorf("failed to escalate traffic alert %s: %w", id, err)
	}
	if !changed {
		return 0, nil
	}

	for level := from + 1; level <= to; level++ {
		s.logger.WithContext(ctx).LogEscalation(string(models.EntityTypeAlert), id, level, string(alert.Severity), age)
		s.audit.Record(ctx, &models.AuditLog{
			Action:     models.AuditActionEscalate,
			EntityType: models.EntityTypeAlert,
			EntityID:   id,
			ToStatus:   string(alert.Status),
			Actor:      "escalation_sweeper",
			Note:       fmt.Sprintf("escalated to level %d", level),
			Metadata:   map[string]interface{}{"level": level, "severity": alert.Severity},
		})
		s.notifier.Notify(ctx, models.Notification{
			Type:       models.NotificationTypeEscalation,
			EntityType: models.EntityTypeAlert,
			EntityID:   id,
			Severity:   alert.Severity,
			Title:      fmt.Sprintf("Escalation level %d", level),
			Message:    fmt.Sprintf("%s %s alert unresolved after %s", alert.Severity, alert.Type, utils.FormatDuration(age)),
			Data:       map[string]interface{}{"level": level},
		})
	}
	return to - from, nil
}

// close moves an active alert to a closed status. Closing an alert that
// is already closed is a no-op.
func (s *trafficService) close(ctx context.Context, id string, status models.AlertStatus) (*models.TrafficAlert, bool, error) {
	now := s.now()
	return casUpdate(ctx, s.cfg.TransitionRetries,
		func(ctx context.Context) (*models.TrafficAlert, error) { return s.alerts.GetByID(ctx, id) },
		s.alerts.Update,
		func(a *models.TrafficAlert) error {
			if a.Status != models.AlertStatusActive {
				return errNoChange
			}
			a.Status = status
			if status == models.AlertStatusResolved {
				a.ResolvedAt = &now
			}
			a.UpdatedAt = now
			return nil
		})
}

func (s *trafficService) recompute(ctx context.Context, alert *models.TrafficAlert, reason string) {
	changed, err := s.planner.RecomputeForAlert(ctx, alert, reason)
	if err != nil {
		s.logger.WithEntity(string(models.EntityTypeAlert), alert.ID).WithError(err).Error("Route recompute failed")
		return
	}
	if changed > 0 {
		s.logger.WithEntity(string(models.EntityTypeAlert), alert.ID).WithField("routes", changed).Info("Routes recomputed")
	}
}
