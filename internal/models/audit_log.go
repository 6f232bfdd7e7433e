package models

import (
	"time"
)

type AuditAction string

const (
	AuditActionCreate      AuditAction = "create"
	AuditActionTransition  AuditAction = "transition"
	AuditActionAcknowledge AuditAction = "acknowledge"
	AuditActionEscalate    AuditAction = "escalate"
	AuditActionAssign      AuditAction = "assign"
	AuditActionRelease     AuditAction = "release"
	AuditActionRecompute   AuditAction = "recompute"
	AuditActionClinical    AuditAction = "clinical"
)

// AuditLog is the event handed to the audit collaborator for every timeline
// append.
type AuditLog struct {
	ID         string                 `json:"id" bson:"_id"`
	Action     AuditAction            `json:"action" bson:"action" validate:"required"`
	EntityType EntityType             `json:"entity_type" bson:"entity_type" validate:"required"`
	EntityID   string                 `json:"entity_id" bson:"entity_id" validate:"required"`
	FromStatus string                 `json:"from_status,omitempty" bson:"from_status,omitempty"`
	ToStatus   string                 `json:"to_status,omitempty" bson:"to_status,omitempty"`
	Actor      string                 `json:"actor" bson:"actor"`
	Note       string                 `json:"note,omitempty" bson:"note,omitempty"`
	RequestID  string                 `json:"request_id,omitempty" bson:"request_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp" bson:"timestamp"`
}
