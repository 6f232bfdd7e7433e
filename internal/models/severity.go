package models

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

var trafficMultipliers = map[Severity]float64{
	SeverityLow:      1.1,
	SeverityMedium:   1.3,
	SeverityHigh:     1.6,
	SeverityCritical: 2.2,
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank orders severities; unknown values rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

// TrafficMultiplier is the travel time factor an alert of this severity
// applies to a segment it intersects.
func (s Severity) TrafficMultiplier() float64 {
	if m, ok := trafficMultipliers[s]; ok {
		return m
	}
	return 1.0
}

// TrafficLevel summarises the worst alert along a route.
type TrafficLevel string

const (
	TrafficLevelClear    TrafficLevel = "clear"
	TrafficLevelLow      TrafficLevel = "low"
	TrafficLevelMedium   TrafficLevel = "medium"
	TrafficLevelHigh     TrafficLevel = "high"
	TrafficLevelCritical TrafficLevel = "critical"
)

func TrafficLevelFor(s Severity) TrafficLevel {
	if !s.Valid() {
		return TrafficLevelClear
	}
	return TrafficLevel(s)
}
