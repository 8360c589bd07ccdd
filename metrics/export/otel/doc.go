// Package otel bridges engine metrics into OpenTelemetry.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine
// counter and an Int64ObservableGauge per cumulative histogram bucket.
// A single callback reads the engine snapshot on each collection cycle.
//
// The package never owns the MeterProvider; callers supply the Meter.
// It reads engine state and never mutates it.
package otel
