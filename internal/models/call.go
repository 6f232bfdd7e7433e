package models

import (
	"time"
)

type CallStatus string
type EmergencyType string

const (
	// Call Status
	CallStatusPending    CallStatus = "pending"
	CallStatusDispatched CallStatus = "dispatched"
	CallStatusEnRoute    CallStatus = "en_route"
	CallStatusArrived    CallStatus = "arrived"
	CallStatusInTransit  CallStatus = "in_transit"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusCancelled  CallStatus = "cancelled"

	// Emergency Types
	EmergencyTypeMedical      EmergencyType = "medical"
	EmergencyTypeTrauma       EmergencyType = "trauma"
	EmergencyTypeCardiac      EmergencyType = "cardiac"
	EmergencyTypeRespiratory  EmergencyType = "respiratory"
	EmergencyTypeNeurological EmergencyType = "neurological"
	EmergencyTypePediatric    EmergencyType = "pediatric"
	EmergencyTypeObstetric    EmergencyType = "obstetric"
	EmergencyTypePsychiatric  EmergencyType = "psychiatric"
	EmergencyTypeOther        EmergencyType = "other"
)

var callTransitions = map[CallStatus][]CallStatus{
	CallStatusPending:    {CallStatusDispatched, CallStatusCancelled},
	CallStatusDispatched: {CallStatusEnRoute, CallStatusCancelled},
	CallStatusEnRoute:    {CallStatusArrived, CallStatusCancelled},
	CallStatusArrived:    {CallStatusInTransit, CallStatusCancelled},
	CallStatusInTransit:  {CallStatusCompleted, CallStatusCancelled},
	CallStatusCompleted:  {},
	CallStatusCancelled:  {},
}

func (s CallStatus) Valid() bool {
	_, ok := callTransitions[s]
	return ok
}

func (s CallStatus) IsTerminal() bool {
	return s == CallStatusCompleted || s == CallStatusCancelled
}

// CanTransitionTo reports whether next is in the allowed-next set of s.
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	for _, allowed := range callTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NextCallStatuses returns the allowed-next set for a status.
func NextCallStatuses(s CallStatus) []CallStatus {
	out := make([]CallStatus, len(callTransitions[s]))
	copy(out, callTransitions[s])
	return out
}

type CallerInfo struct {
	Name         string   `json:"name" bson:"name" validate:"required"`
	Phone        string   `json:"phone" bson:"phone" validate:"required,phone_number"`
	Relationship string   `json:"relationship,omitempty" bson:"relationship,omitempty"`
	Location     Location `json:"location" bson:"location"`
}

type PatientInfo struct {
	Name      string `json:"name" bson:"name"`
	Age       int    `json:"age,omitempty" bson:"age,omitempty" validate:"omitempty,min=0,max=150"`
	Gender    string `json:"gender,omitempty" bson:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Condition string `json:"condition" bson:"condition" validate:"required"`
	Symptoms  string `json:"symptoms,omitempty" bson:"symptoms,omitempty"`
}

type EmergencyDetails struct {
	Type              EmergencyType `json:"type" bson:"type" validate:"required,oneof=medical trauma cardiac respiratory neurological pediatric obstetric psychiatric other"`
	Priority          Severity      `json:"priority" bson:"priority" validate:"required,severity"`
	EstimatedSeverity string        `json:"estimated_severity,omitempty" bson:"estimated_severity,omitempty" validate:"omitempty,oneof=mild moderate severe critical"`
	Description       string        `json:"description,omitempty" bson:"description,omitempty"`
}

type Destination struct {
	Type     string    `json:"type,omitempty" bson:"type,omitempty" validate:"omitempty,oneof=hospital clinic home other"`
	Name     string    `json:"name,omitempty" bson:"name,omitempty"`
	Address  string    `json:"address,omitempty" bson:"address,omitempty"`
	Location *Location `json:"location,omitempty" bson:"location,omitempty"`
}

type Call struct {
	ID                   string           `json:"id" bson:"_id"`
	Caller               CallerInfo       `json:"caller" bson:"caller"`
	Patient              PatientInfo      `json:"patient" bson:"patient"`
	Emergency            EmergencyDetails `json:"emergency" bson:"emergency"`
	Destination          *Destination     `json:"destination,omitempty" bson:"destination,omitempty"`
	Requirements         Capabilities     `json:"requirements" bson:"requirements"`
	PreferredVehicleType VehicleType      `json:"preferred_vehicle_type,omitempty" bson:"preferred_vehicle_type,omitempty"`
	Status               CallStatus       `json:"status" bson:"status"`
	Dispatch             DispatchInfo     `json:"dispatch" bson:"dispatch"`
	Timeline             []TimelineEntry  `json:"timeline" bson:"timeline"`
	VitalSigns           []VitalSigns     `json:"vital_signs" bson:"vital_signs"`
	Interventions        []Intervention   `json:"interventions" bson:"interventions"`
	Medications          []Medication     `json:"medications" bson:"medications"`
	Acknowledgement      *Acknowledgement `json:"acknowledgement,omitempty" bson:"acknowledgement,omitempty"`
	Escalation           EscalationState  `json:"escalation" bson:"escalation"`
	Outcome              string           `json:"outcome,omitempty" bson:"outcome,omitempty"`
	CreatedBy            string           `json:"created_by" bson:"created_by"`
	Version              int64            `json:"version" bson:"version"`
	CreatedAt            time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at" bson:"updated_at"`
}

type CallRequest struct {
	Caller               CallerInfo       `json:"caller"`
	Patient              PatientInfo      `json:"patient"`
	Emergency            EmergencyDetails `json:"emergency"`
	Destination          *Destination     `json:"destination"`
	Requirements         Capabilities     `json:"requirements"`
	PreferredVehicleType VehicleType      `json:"preferred_vehicle_type" validate:"omitempty,vehicle_type"`
	CreatedBy            string           `json:"created_by"`
}

type CallResponse struct {
	Call       *Call    `json:"call"`
	OperatorID string   `json:"operator_id,omitempty"`
	Queued     bool     `json:"queued"`
	Warnings   []string `json:"warnings,omitempty"`
}

type CallStats struct {
	Total                 int64                `json:"total"`
	ByStatus              map[CallStatus]int64 `json:"by_status"`
	Active                int64                `json:"active"`
	AverageResponseMinute float64              `json:"average_response_minutes"`
	Escalated             int64                `json:"escalated"`
}

// NewCall builds a pending call with its initial timeline entry.
func NewCall(id string, req CallRequest, now time.Time) *Call {
	actor := req.CreatedBy
	if actor == "" {
		actor = "intake"
	}
	loc := req.Caller.Location
	if loc.Type == "" {
		loc.Type = "Point"
	}
	loc.Timestamp = now
	caller := req.Caller
	caller.Location = loc

	return &Call{
		ID:                   id,
		Caller:               caller,
		Patient:              req.Patient,
		Emergency:            req.Emergency,
		Destination:          req.Destination,
		Requirements:         req.Requirements,
		PreferredVehicleType: req.PreferredVehicleType,
		Status:               CallStatusPending,
		Timeline: []TimelineEntry{{
			Kind:      TimelineKindStatus,
			Status:    string(CallStatusPending),
			Timestamp: now,
			Actor:     actor,
			Note:      "call received",
		}},
		VitalSigns:    []VitalSigns{},
		Interventions: []Intervention{},
		Medications:   []Medication{},
		CreatedBy:     actor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ResponseTime is the time between intake and dispatch.
func (c *Call) ResponseTime() (time.Duration, bool) {
	if c.Dispatch.DispatchedAt == nil {
		return 0, false
	}
	return c.Dispatch.DispatchedAt.Sub(c.CreatedAt), true
}

// IsOverdue reports whether the call has outlived its SLA without reaching
// a terminal state.
func (c *Call) IsOverdue(now time.Time, sla time.Duration) bool {
	if c.Status.IsTerminal() || sla <= 0 {
		return false
	}
	return now.Sub(c.CreatedAt) > sla
}

func (c *Call) IsAcknowledged() bool {
	return c.Acknowledgement != nil
}
