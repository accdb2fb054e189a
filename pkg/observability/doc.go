// Package observability provides structured logging, Prometheus metrics, health checks,
// and OpenTelemetry tracing for the bookrank services.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.ParseLevel(cfg.LogLevel), os.Stdout)
//	logger.WithField("book_id", 42).Info("counter incremented")
//
// Request and job context:
//
//	ctx = observability.WithRunID(ctx, runID)
//	logger.Ctx(ctx).WithDate(day).Info("flush started")
//
// Ctx adds request_id, run_id and the active trace and span IDs when ctx carries them.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordFlush("success", elapsed, persisted, skipped, failed, deleted)
//
// A nil *Metrics is valid and records nothing.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, statsBuffer)
//	status := checker.Check(ctx)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "bookrank-scheduler",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
//	ctx, span := observability.StartSpan(ctx, "flush")
//	defer func() { observability.EndSpan(span, err) }()
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
