package models

import (
	"time"
)

type RouteStatus string
type OptimizationMode string

const (
	RouteStatusPlanned    RouteStatus = "planned"
	RouteStatusActive     RouteStatus = "active"
	RouteStatusCompleted  RouteStatus = "completed"
	RouteStatusSuperseded RouteStatus = "superseded"

	OptimizationTraffic  OptimizationMode = "traffic"
	OptimizationDistance OptimizationMode = "distance"
	OptimizationTime     OptimizationMode = "time"
	OptimizationPriority OptimizationMode = "priority"
)

func (m OptimizationMode) Valid() bool {
	switch m {
	case OptimizationTraffic, OptimizationDistance, OptimizationTime, OptimizationPriority:
		return true
	}
	return false
}

func (s RouteStatus) IsOpen() bool {
	return s == RouteStatusPlanned || s == RouteStatusActive
}

type Waypoint struct {
	Location Location `json:"location" bson:"location"`
	Label    string   `json:"label,omitempty" bson:"label,omitempty"`
	// Higher values are visited earlier under priority optimization.
	Priority int `json:"priority,omitempty" bson:"priority,omitempty"`
}

type RouteSegment struct {
	From            Location `json:"from" bson:"from"`
	To              Location `json:"to" bson:"to"`
	DistanceKM      float64  `json:"distance_km" bson:"distance_km"`
	BaseMinutes     float64  `json:"base_minutes" bson:"base_minutes"`
	Multiplier      float64  `json:"multiplier" bson:"multiplier"`
	AdjustedMinutes float64  `json:"adjusted_minutes" bson:"adjusted_minutes"`
	AlertID         string   `json:"alert_id,omitempty" bson:"alert_id,omitempty"`
}

// ETASnapshot is an immutable revision of a route's estimate.
type ETASnapshot struct {
	Revision        int          `json:"revision" bson:"revision"`
	DistanceKM      float64      `json:"distance_km" bson:"distance_km"`
	BaseMinutes     float64      `json:"base_minutes" bson:"base_minutes"`
	AdjustedMinutes float64      `json:"adjusted_minutes" bson:"adjusted_minutes"`
	TrafficLevel    TrafficLevel `json:"traffic_level" bson:"traffic_level"`
	AlertIDs        []string     `json:"alert_ids" bson:"alert_ids"`
	Reason          string       `json:"reason" bson:"reason"`
	ComputedAt      time.Time    `json:"computed_at" bson:"computed_at"`
}

type Route struct {
	ID              string           `json:"id" bson:"_id"`
	EntityType      EntityType       `json:"entity_type" bson:"entity_type"`
	EntityID        string           `json:"entity_id" bson:"entity_id"`
	StartLocation   Location         `json:"start_location" bson:"start_location"`
	EndLocation     Location         `json:"end_location" bson:"end_location"`
	Waypoints       []Waypoint       `json:"waypoints" bson:"waypoints"`
	Optimization    OptimizationMode `json:"optimization" bson:"optimization"`
	DistanceKM      float64          `json:"distance_km" bson:"distance_km"`
	BaseMinutes     float64          `json:"base_minutes" bson:"base_minutes"`
	AdjustedMinutes float64          `json:"adjusted_minutes" bson:"adjusted_minutes"`
	ActualMinutes   float64          `json:"actual_minutes,omitempty" bson:"actual_minutes,omitempty"`
	TrafficLevel    TrafficLevel     `json:"traffic_level" bson:"traffic_level"`
	Segments        []RouteSegment   `json:"segments" bson:"segments"`
	AlertIDs        []string         `json:"alert_ids" bson:"alert_ids"`
	Status          RouteStatus      `json:"status" bson:"status"`
	Revisions       []ETASnapshot    `json:"revisions" bson:"revisions"`
	Version         int64            `json:"version" bson:"version"`
	CreatedAt       time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" bson:"updated_at"`
}

type RouteRequest struct {
	EntityType    EntityType       `json:"entity_type" validate:"omitempty,oneof=call transport"`
	EntityID      string           `json:"entity_id"`
	StartLocation Location         `json:"start_location"`
	EndLocation   Location         `json:"end_location"`
	Waypoints     []Waypoint       `json:"waypoints" validate:"max=5,dive"`
	Optimization  OptimizationMode `json:"optimization" validate:"omitempty,oneof=traffic distance time priority"`
}

// LatestSnapshot returns the most recent ETA revision, if any.
func (r *Route) LatestSnapshot() (ETASnapshot, bool) {
	if len(r.Revisions) == 0 {
		return ETASnapshot{}, false
	}
	return r.Revisions[len(r.Revisions)-1], true
}

func (r *Route) HasAlert(alertID string) bool {
	for _, id := range r.AlertIDs {
		if id == alertID {
			return true
		}
	}
	return false
}

type RouteStats struct {
	Total              int64                  `json:"total"`
	Open               int64                  `json:"open"`
	ByTrafficLevel     map[TrafficLevel]int64 `json:"by_traffic_level"`
	AverageDistanceKM  float64                `json:"average_distance_km"`
	AverageAdjustedMin float64                `json:"average_adjusted_minutes"`
}
