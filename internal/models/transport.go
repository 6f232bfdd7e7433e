package models

import (
	"time"
)

type TransportStatus string
type SchedulingType string

const (
	// Transport Status
	TransportStatusScheduled  TransportStatus = "scheduled"
	TransportStatusDispatched TransportStatus = "dispatched"
	TransportStatusEnRoute    TransportStatus = "en_route"
	TransportStatusArrived    TransportStatus = "arrived"
	TransportStatusLoading    TransportStatus = "loading"
	TransportStatusInTransit  TransportStatus = "in_transit"
	TransportStatusCompleted  TransportStatus = "completed"
	TransportStatusCancelled  TransportStatus = "cancelled"

	// Scheduling Types
	SchedulingTypeScheduled SchedulingType = "scheduled"
	SchedulingTypeUrgent    SchedulingType = "urgent"
	SchedulingTypeEmergency SchedulingType = "emergency"
)

var transportTransitions = map[TransportStatus][]TransportStatus{
	TransportStatusScheduled:  {TransportStatusDispatched, TransportStatusCancelled},
	TransportStatusDispatched: {TransportStatusEnRoute, TransportStatusCancelled},
	TransportStatusEnRoute:    {TransportStatusArrived, TransportStatusCancelled},
	TransportStatusArrived:    {TransportStatusLoading, TransportStatusCancelled},
	TransportStatusLoading:    {TransportStatusInTransit, TransportStatusCancelled},
	TransportStatusInTransit:  {TransportStatusCompleted, TransportStatusCancelled},
	TransportStatusCompleted:  {},
	TransportStatusCancelled:  {},
}

func (s TransportStatus) Valid() bool {
	_, ok := transportTransitions[s]
	return ok
}

func (s TransportStatus) IsTerminal() bool {
	return s == TransportStatusCompleted || s == TransportStatusCancelled
}

func (s TransportStatus) CanTransitionTo(next TransportStatus) bool {
	for _, allowed := range transportTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func NextTransportStatuses(s TransportStatus) []TransportStatus {
	out := make([]TransportStatus, len(transportTransitions[s]))
	copy(out, transportTransitions[s])
	return out
}

// Priority maps a scheduling type onto the severity scale used for SLA and
// matching.
func (t SchedulingType) Priority() Severity {
	switch t {
	case SchedulingTypeEmergency:
		return SeverityCritical
	case SchedulingTypeUrgent:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

type Contact struct {
	Name  string `json:"name,omitempty" bson:"name,omitempty"`
	Phone string `json:"phone,omitempty" bson:"phone,omitempty" validate:"omitempty,phone_number"`
}

type Endpoint struct {
	Type     string   `json:"type" bson:"type" validate:"required,oneof=hospital clinic home rehabilitation other_facility"`
	Name     string   `json:"name" bson:"name" validate:"required"`
	Address  string   `json:"address" bson:"address"`
	Location Location `json:"location" bson:"location"`
	Contact  Contact  `json:"contact" bson:"contact"`
}

type TransportPatient struct {
	Name      string `json:"name" bson:"name" validate:"required"`
	Age       int    `json:"age,omitempty" bson:"age,omitempty" validate:"omitempty,min=0,max=150"`
	Gender    string `json:"gender,omitempty" bson:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Condition string `json:"condition" bson:"condition" validate:"required,oneof=stable critical unstable ventilated monitored"`
	Diagnosis string `json:"diagnosis,omitempty" bson:"diagnosis,omitempty"`
}

type Scheduling struct {
	Type                     SchedulingType `json:"type" bson:"type" validate:"required,oneof=scheduled urgent emergency"`
	ScheduledAt              time.Time      `json:"scheduled_at" bson:"scheduled_at" validate:"required"`
	EstimatedDurationMinutes int            `json:"estimated_duration_minutes,omitempty" bson:"estimated_duration_minutes,omitempty" validate:"omitempty,min=0"`
}

type Transport struct {
	ID                   string           `json:"id" bson:"_id"`
	Patient              TransportPatient `json:"patient" bson:"patient"`
	TransportType        string           `json:"transport_type" bson:"transport_type"`
	Origin               Endpoint         `json:"origin" bson:"origin"`
	Destination          Endpoint         `json:"destination" bson:"destination"`
	Scheduling           Scheduling       `json:"scheduling" bson:"scheduling"`
	Priority             Severity         `json:"priority" bson:"priority"`
	Requirements         Capabilities     `json:"requirements" bson:"requirements"`
	PreferredVehicleType VehicleType      `json:"preferred_vehicle_type,omitempty" bson:"preferred_vehicle_type,omitempty"`
	Status               TransportStatus  `json:"status" bson:"status"`
	Dispatch             DispatchInfo     `json:"dispatch" bson:"dispatch"`
	Timeline             []TimelineEntry  `json:"timeline" bson:"timeline"`
	VitalSigns           []VitalSigns     `json:"vital_signs" bson:"vital_signs"`
	Interventions        []Intervention   `json:"interventions" bson:"interventions"`
	Medications          []Medication     `json:"medications" bson:"medications"`
	Acknowledgement      *Acknowledgement `json:"acknowledgement,omitempty" bson:"acknowledgement,omitempty"`
	Escalation           EscalationState  `json:"escalation" bson:"escalation"`
	Outcome              string           `json:"outcome,omitempty" bson:"outcome,omitempty" validate:"omitempty,oneof=successful complications delayed cancelled"`
	Notes                string           `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedBy            string           `json:"created_by" bson:"created_by"`
	Version              int64            `json:"version" bson:"version"`
	CreatedAt            time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at" bson:"updated_at"`
}

type TransportRequest struct {
	Patient              TransportPatient `json:"patient"`
	TransportType        string           `json:"transport_type" validate:"required,oneof=inter_facility discharge appointment emergency_transfer specialist_referral rehabilitation return other"`
	Origin               Endpoint         `json:"origin"`
	Destination          Endpoint         `json:"destination"`
	Scheduling           Scheduling       `json:"scheduling"`
	Priority             Severity         `json:"priority" validate:"omitempty,severity"`
	Requirements         Capabilities     `json:"requirements"`
	PreferredVehicleType VehicleType      `json:"preferred_vehicle_type" validate:"omitempty,vehicle_type"`
	Notes                string           `json:"notes"`
	CreatedBy            string           `json:"created_by"`
}

type TransportResponse struct {
	Transport *Transport `json:"transport"`
	Warnings  []string   `json:"warnings,omitempty"`
}

// NewTransport builds a scheduled transport with its initial timeline entry.
// Priority defaults from the scheduling type.
func NewTransport(id string, req TransportRequest, now time.Time) *Transport {
	actor := req.CreatedBy
	if actor == "" {
		actor = "intake"
	}
	priority := req.Priority
	if priority == "" {
		priority = req.Scheduling.Type.Priority()
	}

	return &Transport{
		ID:                   id,
		Patient:              req.Patient,
		TransportType:        req.TransportType,
		Origin:               req.Origin,
		Destination:          req.Destination,
		Scheduling:           req.Scheduling,
		Priority:             priority,
		Requirements:         req.Requirements,
		PreferredVehicleType: req.PreferredVehicleType,
		Status:               TransportStatusScheduled,
		Timeline: []TimelineEntry{{
			Kind:      TimelineKindStatus,
			Status:    string(TransportStatusScheduled),
			Timestamp: now,
			Actor:     actor,
			Note:      "transport scheduled",
		}},
		VitalSigns:    []VitalSigns{},
		Interventions: []Intervention{},
		Medications:   []Medication{},
		Notes:         req.Notes,
		CreatedBy:     actor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// SLAStart is the instant the SLA clock starts for a transport: its
// scheduled pickup time.
func (t *Transport) SLAStart() time.Time {
	if t.Scheduling.ScheduledAt.IsZero() {
		return t.CreatedAt
	}
	return t.Scheduling.ScheduledAt
}

func (t *Transport) IsOverdue(now time.Time, sla time.Duration) bool {
	if t.Status.IsTerminal() || sla <= 0 {
		return false
	}
	return now.Sub(t.SLAStart()) > sla
}

func (t *Transport) IsAcknowledged() bool {
	return t.Acknowledgement != nil
}

func (t *Transport) ResponseTime() (time.Duration, bool) {
	if t.Dispatch.DispatchedAt == nil {
		return 0, false
	}
	return t.Dispatch.DispatchedAt.Sub(t.SLAStart()), true
}
