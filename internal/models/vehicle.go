package models

import (
	"fmt"
	"time"
)

type VehicleStatus string
type VehicleType string

const (
	VehicleStatusActive      VehicleStatus = "active"
	VehicleStatusInactive    VehicleStatus = "inactive"
	VehicleStatusMaintenance VehicleStatus = "maintenance"

	VehicleTypeBasic        VehicleType = "basic"
	VehicleTypeAdvanced     VehicleType = "advanced"
	VehicleTypeCriticalCare VehicleType = "critical_care"
	VehicleTypeNeonatal     VehicleType = "neonatal"
	VehicleTypeBariatric    VehicleType = "bariatric"
)

func (t VehicleType) Valid() bool {
	switch t {
	case VehicleTypeBasic, VehicleTypeAdvanced, VehicleTypeCriticalCare, VehicleTypeNeonatal, VehicleTypeBariatric:
		return true
	}
	return false
}

func (s VehicleStatus) Valid() bool {
	switch s {
	case VehicleStatusActive, VehicleStatusInactive, VehicleStatusMaintenance:
		return true
	}
	return false
}

// Availability history values recorded alongside status changes.
const (
	VehicleAvailable = "available"
	VehicleReserved  = "reserved"
)

type Vehicle struct {
	ID                string          `json:"id" bson:"_id"`
	Name              string          `json:"name" bson:"name" validate:"required"`
	VehicleNumber     string          `json:"vehicle_number" bson:"vehicle_number" validate:"required"`
	Type              VehicleType     `json:"type" bson:"type" validate:"required,vehicle_type"`
	Capabilities      Capabilities    `json:"capabilities" bson:"capabilities"`
	CurrentLocation   Location        `json:"current_location" bson:"current_location"`
	OperatingHours    *OperatingHours `json:"operating_hours,omitempty" bson:"operating_hours,omitempty"`
	Available         bool            `json:"available" bson:"available"`
	AssignedDriverID  string          `json:"assigned_driver_id,omitempty" bson:"assigned_driver_id,omitempty"`
	Status            VehicleStatus   `json:"status" bson:"status"`
	CurrentAssignment *Assignment     `json:"current_assignment,omitempty" bson:"current_assignment,omitempty"`
	StatusHistory     []StatusChange  `json:"status_history" bson:"status_history"`
	Version           int64           `json:"version" bson:"version"`
	CreatedAt         time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" bson:"updated_at"`
}

type VehicleRequest struct {
	ID               string          `json:"id" validate:"required"`
	Name             string          `json:"name" validate:"required"`
	VehicleNumber    string          `json:"vehicle_number" validate:"required"`
	Type             VehicleType     `json:"type" validate:"required,vehicle_type"`
	Capabilities     Capabilities    `json:"capabilities"`
	CurrentLocation  Location        `json:"current_location"`
	OperatingHours   *OperatingHours `json:"operating_hours"`
	AssignedDriverID string          `json:"assigned_driver_id"`
}

// NewVehicle registers an active, available vehicle.
func NewVehicle(req VehicleRequest, now time.Time) *Vehicle {
	loc := req.CurrentLocation
	if loc.Type == "" {
		loc.Type = "Point"
	}
	return &Vehicle{
		ID:               req.ID,
		Name:             req.Name,
		VehicleNumber:    req.VehicleNumber,
		Type:             req.Type,
		Capabilities:     req.Capabilities,
		CurrentLocation:  loc,
		OperatingHours:   req.OperatingHours,
		Available:        true,
		AssignedDriverID: req.AssignedDriverID,
		Status:           VehicleStatusActive,
		StatusHistory: []StatusChange{{
			To:        string(VehicleStatusActive),
			Timestamp: now,
			Actor:     "registry",
			Reason:    "registered",
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsDispatchable reports whether the vehicle itself passes the matcher's
// availability filter at the given instant.
func (v *Vehicle) IsDispatchable(now time.Time) bool {
	return v.Available &&
		v.Status == VehicleStatusActive &&
		v.CurrentAssignment == nil &&
		v.OperatingHours.Includes(now)
}

type TimeSlot struct {
	StartTime string `json:"start_time" bson:"start_time" validate:"required,clock_time"`
	EndTime   string `json:"end_time" bson:"end_time" validate:"required,clock_time"`
}

// OperatingHours is a daily service window. A nil window, or one marked
// AlwaysOpen, is open around the clock, as is a slot whose start equals its
// end. Windows whose end precedes their start wrap past midnight.
type OperatingHours struct {
	AlwaysOpen bool       `json:"always_open" bson:"always_open"`
	Slots      []TimeSlot `json:"slots" bson:"slots" validate:"dive"`
}

func (h *OperatingHours) Includes(t time.Time) bool {
	if h == nil || h.AlwaysOpen || len(h.Slots) == 0 {
		return true
	}
	minute := t.Hour()*60 + t.Minute()
	for _, slot := range h.Slots {
		start, err := parseClock(slot.StartTime)
		if err != nil {
			continue
		}
		end, err := parseClock(slot.EndTime)
		if err != nil {
			continue
		}
		if start == end {
			return true
		}
		if start < end {
			if minute >= start && minute < end {
				return true
			}
			continue
		}
		if minute >= start || minute < end {
			return true
		}
	}
	return false
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
