package models

import (
	"time"
)

type OperatorStatus string

const (
	OperatorStatusAvailable OperatorStatus = "available"
	OperatorStatusBusy      OperatorStatus = "busy"
	OperatorStatusOffline   OperatorStatus = "offline"
	OperatorStatusBreak     OperatorStatus = "break"
	OperatorStatusTraining  OperatorStatus = "training"
)

func (s OperatorStatus) Valid() bool {
	switch s {
	case OperatorStatusAvailable, OperatorStatusBusy, OperatorStatusOffline, OperatorStatusBreak, OperatorStatusTraining:
		return true
	}
	return false
}

type OperatorPerformance struct {
	Efficiency float64 `json:"efficiency" bson:"efficiency"`
}

type DispatchOperator struct {
	ID                  string              `json:"id" bson:"_id"`
	Name                string              `json:"name" bson:"name" validate:"required"`
	UserRef             string              `json:"user_ref" bson:"user_ref"`
	Status              OperatorStatus      `json:"status" bson:"status"`
	MaxConcurrentCalls  int                 `json:"max_concurrent_calls" bson:"max_concurrent_calls"`
	ActiveCallIDs       []string            `json:"active_call_ids" bson:"active_call_ids"`
	CallsHandled        int64               `json:"calls_handled" bson:"calls_handled"`
	AverageResponseTime float64             `json:"average_response_time" bson:"average_response_time"` // minutes
	Performance         OperatorPerformance `json:"performance" bson:"performance"`
	StatusHistory       []StatusChange      `json:"status_history" bson:"status_history"`
	Deleted             bool                `json:"deleted" bson:"deleted"`
	DeletedAt           *time.Time          `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
	Version             int64               `json:"version" bson:"version"`
	CreatedAt           time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at" bson:"updated_at"`
}

type OperatorRequest struct {
	Name               string  `json:"name" validate:"required"`
	UserRef            string  `json:"user_ref"`
	MaxConcurrentCalls int     `json:"max_concurrent_calls" validate:"omitempty,min=1,max=50"`
	Efficiency         float64 `json:"efficiency" validate:"omitempty,min=0"`
}

type OperatorStatusRequest struct {
	Status OperatorStatus `json:"status" validate:"required,oneof=available offline break training"`
	Actor  string         `json:"actor"`
	Reason string         `json:"reason"`
}

// NewDispatchOperator logs an operator on. They start available.
func NewDispatchOperator(id string, req OperatorRequest, now time.Time) *DispatchOperator {
	max := req.MaxConcurrentCalls
	if max <= 0 {
		max = 1
	}
	return &DispatchOperator{
		ID:                 id,
		Name:               req.Name,
		UserRef:            req.UserRef,
		Status:             OperatorStatusAvailable,
		MaxConcurrentCalls: max,
		ActiveCallIDs:      []string{},
		Performance:        OperatorPerformance{Efficiency: req.Efficiency},
		StatusHistory: []StatusChange{{
			To:        string(OperatorStatusAvailable),
			Timestamp: now,
			Actor:     req.UserRef,
			Reason:    "logged on",
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (o *DispatchOperator) Load() int {
	return len(o.ActiveCallIDs)
}

// CanAccept reports whether the operator is eligible for another call.
func (o *DispatchOperator) CanAccept() bool {
	return !o.Deleted && o.Status == OperatorStatusAvailable && o.Load() < o.MaxConcurrentCalls
}

func (o *DispatchOperator) HandlesCall(callID string) bool {
	for _, id := range o.ActiveCallIDs {
		if id == callID {
			return true
		}
	}
	return false
}
