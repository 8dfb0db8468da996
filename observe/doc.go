// Package observe provides telemetry for the connection registry.
//
// It bundles a structured JSON logger with credential redaction, OpenTelemetry
// metrics for acquire/open/close activity, and tracing spans around resource
// lifecycle operations. An Observer wires the SDK providers together from a
// single Config.
package observe
