package observability

import (
	"github.com/smallbiznis/officeflow/internal/observability/logger"
	"github.com/smallbiznis/officeflow/internal/observability/metrics"
	"github.com/smallbiznis/officeflow/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(cfg Config) logger.Config {
			return logger.Config{
				ServiceName:         cfg.ServiceName,
				Environment:         cfg.Environment,
				Version:             cfg.Version,
				Level:               cfg.LogLevel,
				Format:              cfg.LogFormat,
				Debug:               cfg.Debug(),
				IncludeCaller:       true,
				IncludeStackOnError: cfg.Debug(),
			}
		},
		logger.New,
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.OtelEnabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.OtelExporterEndpoint,
				ExporterProtocol: cfg.OtelExporterProtocol,
				SamplingRatio:    cfg.OtelSamplingRatio,
			}
		},
		tracing.NewProvider,
		func(cfg Config) metrics.Config {
			return metrics.Config{ServiceName: cfg.ServiceName, Environment: cfg.Environment}
		},
		// Settlement counters and HTTP metrics share the default registry
		// scraped on /metrics.
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// The tracer provider is only reachable through otel globals, so force
	// its construction.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
