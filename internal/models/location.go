package models

import (
	"time"
)

type Location struct {
	Type        string    `json:"type" bson:"type" default:"Point"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates" validate:"omitempty,coordinates"`
	Address     string    `json:"address" bson:"address"`
	City        string    `json:"city,omitempty" bson:"city,omitempty"`
	State       string    `json:"state,omitempty" bson:"state,omitempty"`
	Country     string    `json:"country,omitempty" bson:"country,omitempty"`
	PostalCode  string    `json:"postal_code,omitempty" bson:"postal_code,omitempty"`
	PlaceID     string    `json:"place_id,omitempty" bson:"place_id,omitempty"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

// NewPoint builds a GeoJSON point. Coordinates are stored as [lng, lat].
func NewPoint(lat, lng float64, address string) Location {
	return Location{
		Type:        "Point",
		Coordinates: []float64{lng, lat},
		Address:     address,
	}
}

func (l Location) Latitude() float64 {
	if len(l.Coordinates) >= 2 {
		return l.Coordinates[1]
	}
	return 0
}

func (l Location) Longitude() float64 {
	if len(l.Coordinates) >= 1 {
		return l.Coordinates[0]
	}
	return 0
}

// HasCoordinates reports whether the location carries a usable point.
func (l Location) HasCoordinates() bool {
	return len(l.Coordinates) == 2
}
