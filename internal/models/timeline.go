package models

import (
	"time"
)

type EntityType string

const (
	EntityTypeCall      EntityType = "call"
	EntityTypeTransport EntityType = "transport"
	EntityTypeVehicle   EntityType = "vehicle"
	EntityTypeDriver    EntityType = "driver"
	EntityTypeOperator  EntityType = "operator"
	EntityTypeRoute     EntityType = "route"
	EntityTypeAlert     EntityType = "alert"
)

type TimelineKind string

const (
	TimelineKindStatus          TimelineKind = "status"
	TimelineKindAcknowledgement TimelineKind = "acknowledgement"
	TimelineKindEscalation      TimelineKind = "escalation"
	TimelineKindAssignment      TimelineKind = "assignment"
)

// TimelineEntry is an immutable record on a call or transport. Entries are
// only ever appended.
type TimelineEntry struct {
	Kind       TimelineKind `json:"kind" bson:"kind"`
	Status     string       `json:"status" bson:"status"`
	FromStatus string       `json:"from_status,omitempty" bson:"from_status,omitempty"`
	Timestamp  time.Time    `json:"timestamp" bson:"timestamp"`
	Actor      string       `json:"actor" bson:"actor"`
	Note       string       `json:"note,omitempty" bson:"note,omitempty"`
	RequestID  string       `json:"request_id,omitempty" bson:"request_id,omitempty"`
	Level      int          `json:"level,omitempty" bson:"level,omitempty"`
}

// HasRequest reports whether a status entry with the given request ID was
// already recorded.
func HasRequest(timeline []TimelineEntry, requestID string) bool {
	if requestID == "" {
		return false
	}
	for _, e := range timeline {
		if e.Kind == TimelineKindStatus && e.RequestID == requestID {
			return true
		}
	}
	return false
}

// StatusEntries filters the timeline down to status transitions.
func StatusEntries(timeline []TimelineEntry) []TimelineEntry {
	var out []TimelineEntry
	for _, e := range timeline {
		if e.Kind == TimelineKindStatus {
			out = append(out, e)
		}
	}
	return out
}

// StatusChange is a history entry for resource status (vehicle, driver,
// operator).
type StatusChange struct {
	From      string    `json:"from" bson:"from"`
	To        string    `json:"to" bson:"to"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Actor     string    `json:"actor" bson:"actor"`
	Reason    string    `json:"reason,omitempty" bson:"reason,omitempty"`
}

type Acknowledgement struct {
	By string    `json:"by" bson:"by"`
	At time.Time `json:"at" bson:"at"`
}

type EscalationState struct {
	Level           int        `json:"level" bson:"level"`
	LastEscalatedAt *time.Time `json:"last_escalated_at,omitempty" bson:"last_escalated_at,omitempty"`
	Reason          string     `json:"reason,omitempty" bson:"reason,omitempty"`
}

// Assignment links a vehicle or driver to the call or transport it serves.
type Assignment struct {
	EntityType EntityType `json:"entity_type" bson:"entity_type"`
	EntityID   string     `json:"entity_id" bson:"entity_id"`
	AssignedAt time.Time  `json:"assigned_at" bson:"assigned_at"`
}

type DispatchInfo struct {
	VehicleID        string     `json:"vehicle_id,omitempty" bson:"vehicle_id,omitempty"`
	DriverID         string     `json:"driver_id,omitempty" bson:"driver_id,omitempty"`
	OperatorID       string     `json:"operator_id,omitempty" bson:"operator_id,omitempty"`
	RouteID          string     `json:"route_id,omitempty" bson:"route_id,omitempty"`
	DispatchedAt     *time.Time `json:"dispatched_at,omitempty" bson:"dispatched_at,omitempty"`
	EnRouteAt        *time.Time `json:"en_route_at,omitempty" bson:"en_route_at,omitempty"`
	ArrivedAt        *time.Time `json:"arrived_at,omitempty" bson:"arrived_at,omitempty"`
	LoadingAt        *time.Time `json:"loading_at,omitempty" bson:"loading_at,omitempty"`
	InTransitAt      *time.Time `json:"in_transit_at,omitempty" bson:"in_transit_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	EstimatedArrival *time.Time `json:"estimated_arrival,omitempty" bson:"estimated_arrival,omitempty"`
}

// Stamp records the key timestamp for a status. Statuses without a
// dedicated field are ignored.
func (d *DispatchInfo) Stamp(status string, at time.Time) {
	t := at
	switch status {
	case "dispatched":
		d.DispatchedAt = &t
	case "en_route":
		d.EnRouteAt = &t
	case "arrived":
		d.ArrivedAt = &t
	case "loading":
		d.LoadingAt = &t
	case "in_transit":
		d.InTransitAt = &t
	case "completed":
		d.CompletedAt = &t
	case "cancelled":
		d.CancelledAt = &t
	}
}

func (d DispatchInfo) HasResources() bool {
	return d.VehicleID != "" || d.DriverID != ""
}

type VitalPhase string

const (
	VitalPhasePre    VitalPhase = "pre"
	VitalPhaseDuring VitalPhase = "during"
	VitalPhasePost   VitalPhase = "post"
)

type BloodPressure struct {
	Systolic  int `json:"systolic" bson:"systolic"`
	Diastolic int `json:"diastolic" bson:"diastolic"`
}

type VitalSigns struct {
	Phase            VitalPhase     `json:"phase,omitempty" bson:"phase,omitempty"`
	BloodPressure    *BloodPressure `json:"blood_pressure,omitempty" bson:"blood_pressure,omitempty"`
	HeartRate        int            `json:"heart_rate,omitempty" bson:"heart_rate,omitempty" validate:"omitempty,min=0,max=300"`
	RespiratoryRate  int            `json:"respiratory_rate,omitempty" bson:"respiratory_rate,omitempty" validate:"omitempty,min=0,max=100"`
	Temperature      float64        `json:"temperature,omitempty" bson:"temperature,omitempty"`
	OxygenSaturation int            `json:"oxygen_saturation,omitempty" bson:"oxygen_saturation,omitempty" validate:"omitempty,min=0,max=100"`
	Glucose          float64        `json:"glucose,omitempty" bson:"glucose,omitempty"`
	GCS              int            `json:"gcs,omitempty" bson:"gcs,omitempty" validate:"omitempty,min=3,max=15"`
	RecordedBy       string         `json:"recorded_by" bson:"recorded_by"`
	RecordedAt       time.Time      `json:"recorded_at" bson:"recorded_at"`
}

type Intervention struct {
	Type        string    `json:"type" bson:"type" validate:"required"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Outcome     string    `json:"outcome,omitempty" bson:"outcome,omitempty"`
	PerformedBy string    `json:"performed_by" bson:"performed_by"`
	PerformedAt time.Time `json:"performed_at" bson:"performed_at"`
}

type MedicationRoute string

const (
	MedicationRouteOral         MedicationRoute = "oral"
	MedicationRouteIV           MedicationRoute = "iv"
	MedicationRouteIM           MedicationRoute = "im"
	MedicationRouteSubcutaneous MedicationRoute = "subcutaneous"
	MedicationRouteInhalation   MedicationRoute = "inhalation"
	MedicationRouteTopical      MedicationRoute = "topical"
)

type Medication struct {
	Name           string          `json:"name" bson:"name" validate:"required"`
	Dosage         string          `json:"dosage,omitempty" bson:"dosage,omitempty"`
	Route          MedicationRoute `json:"route,omitempty" bson:"route,omitempty" validate:"omitempty,oneof=oral iv im subcutaneous inhalation topical"`
	AdministeredBy string          `json:"administered_by" bson:"administered_by"`
	AdministeredAt time.Time       `json:"administered_at" bson:"administered_at"`
}
