package config

import "time"

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			APIKey:  "${OPENAI_API_KEY}",
			Timeout: 180 * time.Second,
		},
		Defaults: DefaultsConfig{
			Model:         "gpt-4o",
			Temperature:   0.1,
			MaxTokens:     8192,
			SchemaVersion: "1.0.0",
		},
		Telemetry: TelemetryConfig{
			APIKey:  "${TELEMETRY_API_KEY}",
			Project: "tallyscan",
		},
	}
}
