// Package observability provides structured logging, Prometheus metrics,
// and health probes for the Gatehouse service.
//
// # Logging
//
// The Logger wraps stdlib slog with JSON output and field chaining:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("org_id", orgID).Info("membership created")
//
// Request-scoped loggers are carried on the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("invitation expired")
//
// # Metrics
//
// Metrics covers the decision path (evaluations by outcome, decision cache
// hits/misses), the provisioning state machine (outcomes by branch), the
// invitation ledger, HTTP traffic, and database pool gauges. Register once
// at startup and expose via Handler() on the health port.
//
// # Health
//
// HealthChecker serves liveness and readiness probes; readiness pings the
// database and (when configured) the Redis decision cache.
package observability
