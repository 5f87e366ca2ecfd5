// Package prometheus provides a Prometheus collector for authsentry metrics.
//
// [NewPrometheusExporter] accepts an [authsentry.Engine] and exposes an
// [net/http.Handler] that renders all authsentry counters in Prometheus text
// exposition format. Counter names are prefixed authsentry_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
