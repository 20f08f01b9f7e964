// Package observability provides an OpenTelemetry metrics extension for
// caseflow. MetricsExtension implements lifecycle hooks to count runs by
// outcome and stage completions, failures and retries.
//
// For per-attempt tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
