// Package otel publishes engine counters through OpenTelemetry observable
// instruments. The caller owns the MeterProvider; one registered callback
// reads a snapshot per collection.
package otel
