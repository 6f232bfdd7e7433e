package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperatingHoursIncludes(t *testing.T) {
	at := func(hh, mm int) time.Time {
		return time.Date(2026, 3, 2, hh, mm, 0, 0, time.UTC)
	}
	tests := []struct {
		name  string
		hours *OperatingHours
		when  time.Time
		want  bool
	}{
		{"nil window", nil, at(3, 0), true},
		{"always open", &OperatingHours{AlwaysOpen: true}, at(3, 0), true},
		{"inside day slot", &OperatingHours{Slots: []TimeSlot{{"08:00", "18:00"}}}, at(9, 0), true},
		{"end is exclusive", &OperatingHours{Slots: []TimeSlot{{"08:00", "18:00"}}}, at(18, 0), false},
		{"before day slot", &OperatingHours{Slots: []TimeSlot{{"08:00", "18:00"}}}, at(7, 59), false},
		{"overnight late", &OperatingHours{Slots: []TimeSlot{{"22:00", "06:00"}}}, at(23, 30), true},
		{"overnight early", &OperatingHours{Slots: []TimeSlot{{"22:00", "06:00"}}}, at(5, 59), true},
		{"overnight gap", &OperatingHours{Slots: []TimeSlot{{"22:00", "06:00"}}}, at(12, 0), false},
		{"equal bounds midnight", &OperatingHours{Slots: []TimeSlot{{"00:00", "00:00"}}}, at(13, 0), true},
		{"equal bounds midday", &OperatingHours{Slots: []TimeSlot{{"07:00", "07:00"}}}, at(6, 59), true},
		{"second slot", &OperatingHours{Slots: []TimeSlot{{"06:00", "08:00"}, {"12:00", "14:00"}}}, at(13, 0), true},
		{"bad slot skipped", &OperatingHours{Slots: []TimeSlot{{"25:00", "08:00"}}}, at(7, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.hours.Includes(tt.when))
		})
	}
}
