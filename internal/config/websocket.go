package config

type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func loadWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		Enabled: getEnvAsBool("WEBSOCKET_ENABLED", true),
		Path:    getEnv("WEBSOCKET_PATH", "/ws"),
	}
}
