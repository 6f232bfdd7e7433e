package models

import (
	"time"
)

type AlertType string
type AlertStatus string

const (
	AlertTypeAccident     AlertType = "accident"
	AlertTypeConstruction AlertType = "construction"
	AlertTypeCongestion   AlertType = "congestion"
	AlertTypeWeather      AlertType = "weather"
	AlertTypeEvent        AlertType = "event"
	AlertTypeRoadClosure  AlertType = "road_closure"

	AlertStatusActive   AlertStatus = "active"
	AlertStatusResolved AlertStatus = "resolved"
	AlertStatusExpired  AlertStatus = "expired"
)

type TrafficAlert struct {
	ID                    string          `json:"id" bson:"_id"`
	Type                  AlertType       `json:"type" bson:"type"`
	Severity              Severity        `json:"severity" bson:"severity"`
	Description           string          `json:"description,omitempty" bson:"description,omitempty"`
	EstimatedDelayMinutes int             `json:"estimated_delay_minutes" bson:"estimated_delay_minutes"`
	Location              Location        `json:"location" bson:"location"`
	RadiusKM              float64         `json:"radius_km" bson:"radius_km"`
	Status                AlertStatus     `json:"status" bson:"status"`
	ReportedBy            string          `json:"reported_by,omitempty" bson:"reported_by,omitempty"`
	ExpiresAt             time.Time       `json:"expires_at" bson:"expires_at"`
	ResolvedAt            *time.Time      `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
	Escalation            EscalationState `json:"escalation" bson:"escalation"`
	Version               int64           `json:"version" bson:"version"`
	CreatedAt             time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" bson:"updated_at"`
}

type TrafficAlertRequest struct {
	Type                  AlertType  `json:"type" validate:"required,oneof=accident construction congestion weather event road_closure"`
	Severity              Severity   `json:"severity" validate:"required,severity"`
	Description           string     `json:"description"`
	EstimatedDelayMinutes int        `json:"estimated_delay_minutes" validate:"omitempty,min=0"`
	Location              Location   `json:"location"`
	RadiusKM              float64    `json:"radius_km" validate:"omitempty,gt=0"`
	ExpiresAt             *time.Time `json:"expires_at"`
	ReportedBy            string     `json:"reported_by"`
}

// NewTrafficAlert applies the default radius and time to live when the
// request leaves them unset.
func NewTrafficAlert(id string, req TrafficAlertRequest, defaultRadiusKM float64, ttl time.Duration, now time.Time) *TrafficAlert {
	radius := req.RadiusKM
	if radius <= 0 {
		radius = defaultRadiusKM
	}
	expires := now.Add(ttl)
	if req.ExpiresAt != nil {
		expires = *req.ExpiresAt
	}
	loc := req.Location
	if loc.Type == "" {
		loc.Type = "Point"
	}
	return &TrafficAlert{
		ID:                    id,
		Type:                  req.Type,
		Severity:              req.Severity,
		Description:           req.Description,
		EstimatedDelayMinutes: req.EstimatedDelayMinutes,
		Location:              loc,
		RadiusKM:              radius,
		Status:                AlertStatusActive,
		ReportedBy:            req.ReportedBy,
		ExpiresAt:             expires,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func (a *TrafficAlert) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// IsActiveAt reports whether the alert still affects travel time.
func (a *TrafficAlert) IsActiveAt(now time.Time) bool {
	return a.Status == AlertStatusActive && !a.IsExpired(now)
}
