package observability

import (
	"testing"

	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizesTelemetry(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:      " ",
		AppVersion:   "1.4.0 ",
		Environment:  "Production",
		OTLPEndpoint: "collector:4317",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "VERBOSE",
			LogFormat:     "Console",
			OtelEnabled:   true,
			OtelProtocol:  "HTTP",
			SamplingRatio: 3,
		},
	})

	assert.Equal(t, "boxoffice", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "1.4.0", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigDisablesExportWithoutEndpoint(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "staging",
		Telemetry:   config.TelemetryConfig{OtelEnabled: true, OtelProtocol: "zipkin", SamplingRatio: 0.25, LogLevel: "debug"},
	})

	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.25, cfg.OtelSamplingRatio)
	assert.True(t, cfg.Debug())
}

func TestDebugEnvironments(t *testing.T) {
	for _, env := range []string{"dev", "Local", "test"} {
		assert.True(t, Config{Environment: env, LogLevel: "info"}.Debug(), env)
	}
	assert.False(t, Config{Environment: "production", LogLevel: "warn"}.Debug())
}
