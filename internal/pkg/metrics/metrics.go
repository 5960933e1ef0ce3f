/*
Package metrics declares the Prometheus collectors exported on /metrics.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections counts open websocket connections, bound or not.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmchat",
		Name:      "active_connections",
		Help:      "Number of open websocket connections.",
	})

	// BoundUsers counts usernames with at least one bound connection on this process.
	BoundUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmchat",
		Name:      "bound_users",
		Help:      "Number of users with at least one bound connection.",
	})

	// EventsEmitted counts server-to-client events handed to connections, by event type.
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dmchat",
		Name:      "events_emitted_total",
		Help:      "Realtime events delivered to connection send queues.",
	}, []string{"type"})

	// DeliveriesDropped counts events dropped because a connection queue was full or closed.
	DeliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dmchat",
		Name:      "deliveries_dropped_total",
		Help:      "Realtime events dropped at a full or closed connection queue.",
	})

	// OperationsIgnored counts realtime operations dropped by validation or not-found policy.
	OperationsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dmchat",
		Name:      "operations_ignored_total",
		Help:      "Realtime operations silently ignored, by operation and reason.",
	}, []string{"operation", "reason"})

	// StoreFailures counts failed store calls on the realtime path, by operation.
	StoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dmchat",
		Name:      "store_failures_total",
		Help:      "Store errors swallowed by the realtime dispatcher.",
	}, []string{"operation"})

	// RelayMessages counts envelopes published to or received from the cross-process relay.
	RelayMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dmchat",
		Name:      "relay_messages_total",
		Help:      "Envelopes exchanged with the Redis relay, by direction.",
	}, []string{"direction"})
)
