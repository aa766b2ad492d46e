// Package otel exposes authority counters as OpenTelemetry observable
// instruments.
//
// Counters are published on a single lmsauth.events instrument keyed by the
// event attribute. One callback reads the authority snapshot per collection
// cycle. Callers own the MeterProvider.
package otel
