package config

import (
	"fmt"
	"time"

	"medidispatch/internal/models"
	"medidispatch/internal/utils"
)

// DispatchConfig tunes the matcher, the lifecycle retries, the escalation
// sweeper and the route planner.
type DispatchConfig struct {
	ReservationAttempts int                               `yaml:"reservation_attempts"`
	TransitionRetries   int                               `yaml:"transition_retries"`
	SweepInterval       time.Duration                     `yaml:"sweep_interval"`
	MaxEscalationLevel  int                               `yaml:"max_escalation_level"`
	SLA                 map[models.Severity]time.Duration `yaml:"sla"`
	AverageSpeedKMH     float64                           `yaml:"average_speed_kmh"`
	AlertRadiusKM       float64                           `yaml:"alert_radius_km"`
	AlertTTL            time.Duration                     `yaml:"alert_ttl"`
	AlertExpiryInterval time.Duration                     `yaml:"alert_expiry_interval"`
	SupervisorPhones    []string                          `yaml:"supervisor_phones"`
	IDSequenceTTL       time.Duration                     `yaml:"id_sequence_ttl"`
}

// DefaultSLA is the unacknowledged age after which each severity escalates.
func DefaultSLA() map[models.Severity]time.Duration {
	return map[models.Severity]time.Duration{
		models.SeverityCritical: 15 * time.Minute,
		models.SeverityHigh:     60 * time.Minute,
		models.SeverityMedium:   240 * time.Minute,
		models.SeverityLow:      1440 * time.Minute,
	}
}

// DefaultDispatchConfig returns the built-in tuning, also used by tests.
func DefaultDispatchConfig() *DispatchConfig {
	return &DispatchConfig{
		ReservationAttempts: utils.DefaultReservationAttempts,
		TransitionRetries:   utils.DefaultTransitionRetries,
		SweepInterval:       utils.DefaultSweepInterval,
		MaxEscalationLevel:  utils.DefaultMaxEscalationLevel,
		SLA:                 DefaultSLA(),
		AverageSpeedKMH:     utils.DefaultAverageSpeedKMH,
		AlertRadiusKM:       utils.DefaultAlertRadiusKM,
		AlertTTL:            utils.DefaultAlertTTL,
		AlertExpiryInterval: utils.AlertExpiryScanInterval,
		IDSequenceTTL:       time.Minute,
	}
}

func loadDispatchConfig() *DispatchConfig {
	d := DefaultDispatchConfig()
	d.ReservationAttempts = getEnvAsInt("DISPATCH_MAX_RESERVATION_ATTEMPTS", d.ReservationAttempts)
	d.TransitionRetries = getEnvAsInt("DISPATCH_TRANSITION_RETRIES", d.TransitionRetries)
	d.SweepInterval = getEnvAsDuration("ESCALATION_SWEEP_INTERVAL", d.SweepInterval)
	d.MaxEscalationLevel = getEnvAsInt("ESCALATION_MAX_LEVEL", d.MaxEscalationLevel)
	d.SLA[models.SeverityCritical] = getEnvAsDuration("SLA_CRITICAL", d.SLA[models.SeverityCritical])
	d.SLA[models.SeverityHigh] = getEnvAsDuration("SLA_HIGH", d.SLA[models.SeverityHigh])
	d.SLA[models.SeverityMedium] = getEnvAsDuration("SLA_MEDIUM", d.SLA[models.SeverityMedium])
	d.SLA[models.SeverityLow] = getEnvAsDuration("SLA_LOW", d.SLA[models.SeverityLow])
	d.AverageSpeedKMH = getEnvAsFloat64("ROUTING_AVERAGE_SPEED_KMH", d.AverageSpeedKMH)
	d.AlertRadiusKM = getEnvAsFloat64("TRAFFIC_ALERT_RADIUS_KM", d.AlertRadiusKM)
	d.AlertTTL = getEnvAsDuration("TRAFFIC_ALERT_TTL", d.AlertTTL)
	d.AlertExpiryInterval = getEnvAsDuration("TRAFFIC_ALERT_EXPIRY_INTERVAL", d.AlertExpiryInterval)
	d.SupervisorPhones = getEnvAsSlice("SUPERVISOR_PHONES", nil)
	return d
}

func (d *DispatchConfig) Validate() error {
	if d.ReservationAttempts < 1 {
		return fmt.Errorf("DISPATCH_MAX_RESERVATION_ATTEMPTS must be at least 1, got %d", d.ReservationAttempts)
	}
	if d.TransitionRetries < 1 {
		return fmt.Errorf("DISPATCH_TRANSITION_RETRIES must be at least 1, got %d", d.TransitionRetries)
	}
	if d.SweepInterval <= 0 {
		return fmt.Errorf("ESCALATION_SWEEP_INTERVAL must be positive")
	}
	if d.MaxEscalationLevel < 1 {
		return fmt.Errorf("ESCALATION_MAX_LEVEL must be at least 1, got %d", d.MaxEscalationLevel)
	}
	for sev, window := range d.SLA {
		if window <= 0 {
			return fmt.Errorf("SLA for %s must be positive", sev)
		}
	}
	if d.AverageSpeedKMH <= 0 {
		return fmt.Errorf("ROUTING_AVERAGE_SPEED_KMH must be positive")
	}
	if d.AlertRadiusKM <= 0 {
		return fmt.Errorf("TRAFFIC_ALERT_RADIUS_KM must be positive")
	}
	return nil
}
