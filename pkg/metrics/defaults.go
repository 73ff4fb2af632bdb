package metrics

import "sync"

// Default metrics for the agent, initialized by Init.
//
// # Label Conventions
//
//   - listener: the listener id from the configuration (defaults to bind:port)
//   - kind: callback, read, write, accept
//   - tag: the event tag records were emitted with
var (
	// ConnectionsAccepted counts accepted TCP connections.
	// Labels: listener
	ConnectionsAccepted *Counter

	// ConnectionsActive tracks connections currently in a listener registry.
	// Labels: listener
	ConnectionsActive *Gauge

	// ConnectionsReaped counts connections closed by the keepalive reaper.
	// Labels: listener
	ConnectionsReaped *Counter

	// ConnectionErrors counts connections closed because of an error.
	// Labels: listener, kind
	ConnectionErrors *Counter

	// BytesReceived counts bytes read from connections.
	// Labels: listener
	BytesReceived *Counter

	// MessagesTotal counts delimited messages handed to input plugins.
	// Labels: listener
	MessagesTotal *Counter

	// MessageSize tracks the size of delimited messages in bytes.
	// Labels: listener
	MessageSize *Histogram

	// EventsEmitted counts events routed to outputs.
	// Labels: tag
	EventsEmitted *Counter

	// OutputDropped counts events a queued output dropped because its
	// buffer was full or it was closing.
	// Labels: output
	OutputDropped *Counter

	// OutputErrors counts events a queued output failed to deliver.
	// Labels: output
	OutputErrors *Counter

	defaultRegistry *Registry
	initOnce        sync.Once
)

// Init initializes the default metrics and returns the registry.
// It is idempotent.
func Init() *Registry {
	initOnce.Do(func() {
		r := NewRegistry()

		ConnectionsAccepted = r.NewCounter(
			"logwire_connections_accepted_total",
			"Total number of accepted TCP connections",
			"listener",
		)
		ConnectionsActive = r.NewGauge(
			"logwire_connections_active",
			"Number of live TCP connections",
			"listener",
		)
		ConnectionsReaped = r.NewCounter(
			"logwire_connections_reaped_total",
			"Connections closed after exceeding the keepalive ceiling",
			"listener",
		)
		ConnectionErrors = r.NewCounter(
			"logwire_connection_errors_total",
			"Connections closed because of an error, by kind",
			"listener", "kind",
		)
		BytesReceived = r.NewCounter(
			"logwire_bytes_received_total",
			"Bytes read from TCP connections",
			"listener",
		)
		MessagesTotal = r.NewCounter(
			"logwire_messages_total",
			"Delimited messages received",
			"listener",
		)
		MessageSize = r.NewHistogram(
			"logwire_message_bytes",
			"Size of delimited messages in bytes",
			SizeBuckets,
			"listener",
		)
		EventsEmitted = r.NewCounter(
			"logwire_events_emitted_total",
			"Events routed to outputs",
			"tag",
		)
		OutputDropped = r.NewCounter(
			"logwire_output_dropped_events_total",
			"Events dropped by an output queue",
			"output",
		)
		OutputErrors = r.NewCounter(
			"logwire_output_errors_total",
			"Events an output failed to deliver",
			"output",
		)

		defaultRegistry = r
	})
	return defaultRegistry
}

// DefaultRegistry returns the default registry, or nil before Init.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Reset clears the default metrics so Init can run again. Used by tests.
func Reset() {
	initOnce = sync.Once{}
	defaultRegistry = nil
	ConnectionsAccepted = nil
	ConnectionsActive = nil
	ConnectionsReaped = nil
	ConnectionErrors = nil
	BytesReceived = nil
	MessagesTotal = nil
	MessageSize = nil
	EventsEmitted = nil
	OutputDropped = nil
	OutputErrors = nil
}
