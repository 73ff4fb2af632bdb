// Package metrics provides Prometheus-compatible metrics for logwire.
//
// The package writes the Prometheus text exposition format
// (text/plain; version=0.0.4) with the standard library only.
//
// Supported metric types:
//   - Counter: monotonically increasing value (accepted connections)
//   - Gauge: value that can go up or down (live connections)
//   - Histogram: distribution of values (message sizes)
//
// All metrics are safe for concurrent use.
//
// # Default Metrics
//
//   - logwire_connections_accepted_total (listener)
//   - logwire_connections_active (listener)
//   - logwire_connections_reaped_total (listener)
//   - logwire_connection_errors_total (listener, kind)
//   - logwire_bytes_received_total (listener)
//   - logwire_messages_total (listener)
//   - logwire_message_bytes (listener)
//   - logwire_events_emitted_total (tag)
//
// # Usage
//
//	registry := metrics.Init()
//	http.Handle("/metrics", registry.Handler())
//
//	if vec, err := metrics.ConnectionsActive.WithLabels("in_tcp"); err == nil {
//	    vec.Inc()
//	}
//
// Components check the package-level metric for nil before use, so nothing
// is recorded unless Init was called.
package metrics
