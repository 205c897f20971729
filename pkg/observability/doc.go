// Package observability holds the service shell's logging, metrics, tracing,
// health checks and shutdown handling.
//
// # Logging
//
// The HTTP surface and process lifecycle log through Logger, a JSON slog wrapper.
// Engine packages take a *logrus.Logger; NewEngineLogger builds one that writes
// the same JSON shape at the same level.
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	engineLog := observability.NewEngineLogger(observability.InfoLevel, os.Stdout)
//
// # Metrics
//
// Metrics registers the trellis Prometheus collectors on a registry and serves
// them with Handler. It implements inject.Recorder.
//
// # Tracing
//
// InitOTel installs a global OTLP/gRPC tracer provider when enabled. Extension
// realization spans are created against the global provider.
//
// # Health
//
// HealthChecker runs named checks; SQLCheck and RedisCheck cover the settings
// backends.
package observability
