// Package metrics exposes the bridge's Prometheus collectors and the
// /metrics handler.
package metrics
