package config

type MapsConfig struct {
	GoogleMaps *GoogleMapsConfig `yaml:"google_maps"`
}

type GoogleMapsConfig struct {
	APIKey string `yaml:"api_key"`
}

// GeocodingEnabled reports whether address-only intake can be geocoded.
func (m *MapsConfig) GeocodingEnabled() bool {
	return m != nil && m.GoogleMaps != nil && m.GoogleMaps.APIKey != ""
}

func loadMapsConfig() *MapsConfig {
	return &MapsConfig{
		GoogleMaps: &GoogleMapsConfig{
			APIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		},
	}
}
