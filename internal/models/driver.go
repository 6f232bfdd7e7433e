package models

import (
	"time"
)

type DriverStatus string

const (
	DriverStatusActive    DriverStatus = "active"
	DriverStatusOnDuty    DriverStatus = "on_duty"
	DriverStatusOffDuty   DriverStatus = "off_duty"
	DriverStatusOnLeave   DriverStatus = "on_leave"
	DriverStatusSuspended DriverStatus = "suspended"
)

func (s DriverStatus) Valid() bool {
	switch s {
	case DriverStatusActive, DriverStatusOnDuty, DriverStatusOffDuty, DriverStatusOnLeave, DriverStatusSuspended:
		return true
	}
	return false
}

type DevicePlatform string

const (
	DevicePlatformAndroid DevicePlatform = "android"
	DevicePlatformIOS     DevicePlatform = "ios"
)

type License struct {
	Number string    `json:"number" bson:"number" validate:"required"`
	Class  string    `json:"class" bson:"class"`
	Expiry time.Time `json:"expiry" bson:"expiry"`
}

type DriverPerformance struct {
	Rating                 float64 `json:"rating" bson:"rating"`
	TripsCompleted         int64   `json:"trips_completed" bson:"trips_completed"`
	AverageResponseMinutes float64 `json:"average_response_minutes" bson:"average_response_minutes"`
}

type Driver struct {
	ID                string            `json:"id" bson:"_id"`
	Name              string            `json:"name" bson:"name" validate:"required"`
	Phone             string            `json:"phone" bson:"phone" validate:"required,phone_number"`
	License           License           `json:"license" bson:"license"`
	Specializations   []string          `json:"specializations" bson:"specializations"`
	Status            DriverStatus      `json:"status" bson:"status"`
	AssignedVehicleID string            `json:"assigned_vehicle_id,omitempty" bson:"assigned_vehicle_id,omitempty"`
	CurrentAssignment *Assignment       `json:"current_assignment,omitempty" bson:"current_assignment,omitempty"`
	DeviceToken       string            `json:"device_token,omitempty" bson:"device_token,omitempty"`
	DevicePlatform    DevicePlatform    `json:"device_platform,omitempty" bson:"device_platform,omitempty"`
	Performance       DriverPerformance `json:"performance" bson:"performance"`
	StatusHistory     []StatusChange    `json:"status_history" bson:"status_history"`
	Version           int64             `json:"version" bson:"version"`
	CreatedAt         time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" bson:"updated_at"`
}

type DriverRequest struct {
	ID                string         `json:"id" validate:"required"`
	Name              string         `json:"name" validate:"required"`
	Phone             string         `json:"phone" validate:"required,phone_number"`
	License           License        `json:"license"`
	Specializations   []string       `json:"specializations"`
	AssignedVehicleID string         `json:"assigned_vehicle_id"`
	DeviceToken       string         `json:"device_token"`
	DevicePlatform    DevicePlatform `json:"device_platform" validate:"omitempty,oneof=android ios"`
	Rating            float64        `json:"rating" validate:"omitempty,min=0,max=5"`
}

func NewDriver(req DriverRequest, now time.Time) *Driver {
	return &Driver{
		ID:                req.ID,
		Name:              req.Name,
		Phone:             req.Phone,
		License:           req.License,
		Specializations:   req.Specializations,
		Status:            DriverStatusActive,
		AssignedVehicleID: req.AssignedVehicleID,
		DeviceToken:       req.DeviceToken,
		DevicePlatform:    req.DevicePlatform,
		Performance:       DriverPerformance{Rating: req.Rating},
		StatusHistory: []StatusChange{{
			To:        string(DriverStatusActive),
			Timestamp: now,
			Actor:     "registry",
			Reason:    "registered",
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DaysUntilLicenseExpiry is negative once the licence has expired.
func (d *Driver) DaysUntilLicenseExpiry(now time.Time) int {
	if d.License.Expiry.IsZero() {
		return 0
	}
	return int(d.License.Expiry.Sub(now).Hours() / 24)
}

func (d *Driver) IsDispatchable() bool {
	return d.Status == DriverStatusActive && d.CurrentAssignment == nil
}
