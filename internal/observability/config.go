package observability

import (
	"strings"

	"github.com/smallbiznis/boxoffice/internal/config"
)

const defaultServiceName = "boxoffice"

// debugEnvironments log at debug level and include stacks on errors.
var debugEnvironments = map[string]bool{
	"dev":         true,
	"development": true,
	"local":       true,
	"test":        true,
}

// Config is the telemetry view of the application config, normalized for the
// logger, tracer and meter providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	telemetry := cfg.Telemetry
	out := Config{
		ServiceName:          orDefault(cfg.AppName, defaultServiceName),
		Environment:          strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             oneOf(telemetry.LogLevel, "info", "debug", "info", "warn", "error"),
		LogFormat:            oneOf(telemetry.LogFormat, "json", "json", "console"),
		OtelEnabled:          telemetry.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: oneOf(telemetry.OtelProtocol, "grpc", "grpc", "http"),
		OtelSamplingRatio:    telemetry.SamplingRatio,
	}
	if out.OtelSamplingRatio < 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = 1
	}
	// No endpoint, no export.
	if out.OtelExporterEndpoint == "" {
		out.OtelEnabled = false
	}
	return out
}

// Debug holds for a debug log level and for non-production environments.
func (c Config) Debug() bool {
	return c.LogLevel == "debug" || debugEnvironments[strings.ToLower(strings.TrimSpace(c.Environment))]
}

func orDefault(value, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}

// oneOf lower-cases value and falls back to def when it is not in allowed.
func oneOf(value, def string, allowed ...string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range allowed {
		if value == candidate {
			return value
		}
	}
	return def
}
