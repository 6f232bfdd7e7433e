package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medidispatch/internal/models"
)

func TestLoadDispatchConfigDefaults(t *testing.T) {
	d := loadDispatchConfig()

	assert.Equal(t, 5, d.ReservationAttempts)
	assert.Equal(t, 60*time.Second, d.SweepInterval)
	assert.Equal(t, 15*time.Minute, d.SLA[models.SeverityCritical])
	assert.Equal(t, 24*time.Hour, d.SLA[models.SeverityLow])
	assert.Equal(t, 50.0, d.AverageSpeedKMH)
	require.NoError(t, d.Validate())
}

func TestLoadDispatchConfigFromEnv(t *testing.T) {
	t.Setenv("ESCALATION_SWEEP_INTERVAL", "10s")
	t.Setenv("SLA_CRITICAL", "5m")
	t.Setenv("SUPERVISOR_PHONES", "+15550001111, +15550002222")
	t.Setenv("DISPATCH_MAX_RESERVATION_ATTEMPTS", "not-a-number")

	d := loadDispatchConfig()

	assert.Equal(t, 10*time.Second, d.SweepInterval)
	assert.Equal(t, 5*time.Minute, d.SLA[models.SeverityCritical])
	assert.Equal(t, []string{"+15550001111", "+15550002222"}, d.SupervisorPhones)
	assert.Equal(t, 5, d.ReservationAttempts)
}

func TestDispatchConfigValidate(t *testing.T) {
	d := DefaultDispatchConfig()
	d.ReservationAttempts = 0
	assert.Error(t, d.Validate())

	d = DefaultDispatchConfig()
	d.SLA[models.SeverityHigh] = 0
	assert.Error(t, d.Validate())
}

func TestConfigValidateRejectsBadPort(t *testing.T) {
	cfg := &Config{
		App:      &AppConfig{Port: 0},
		Database: &DatabaseConfig{},
		Dispatch: DefaultDispatchConfig(),
	}
	assert.Error(t, cfg.Validate())

	cfg.App.Port = 8080
	assert.NoError(t, cfg.Validate())
}

func TestMapsGeocodingEnabled(t *testing.T) {
	var m *MapsConfig
	assert.False(t, m.GeocodingEnabled())
	assert.True(t, (&MapsConfig{GoogleMaps: &GoogleMapsConfig{APIKey: "k"}}).GeocodingEnabled())
}
