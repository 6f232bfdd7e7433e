package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeAssignment NotificationType = "assignment"
	NotificationTypeEscalation NotificationType = "escalation"
	NotificationTypeNoCapacity NotificationType = "no_capacity"
	NotificationTypeStatus     NotificationType = "status"
	NotificationTypeRouteETA   NotificationType = "route_eta"
	NotificationTypeAlert      NotificationType = "traffic_alert"
)

// Notification is a best-effort event for the dispatch console, supervisor
// pagers and driver devices.
type Notification struct {
	Type       NotificationType       `json:"type"`
	EntityType EntityType             `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Severity   Severity               `json:"severity,omitempty"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	DriverID   string                 `json:"driver_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// IsCritical reports whether supervisors should be paged.
func (n Notification) IsCritical() bool {
	return n.Type == NotificationTypeNoCapacity || n.Severity == SeverityCritical
}
