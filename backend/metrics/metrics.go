package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Relay metrics
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchtogether_connected_clients",
			Help: "Currently connected sync clients",
		},
	)

	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtogether_messages_relayed_total",
			Help: "Messages fanned out to room members",
		},
		[]string{"type"},
	)

	MessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchtogether_messages_dropped_total",
			Help: "Deliveries dropped because a member queue was full",
		},
	)

	MalformedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchtogether_malformed_messages_total",
			Help: "Inbound frames dropped as malformed",
		},
	)

	// Streamer metrics
	BytesStreamed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchtogether_bytes_streamed_total",
			Help: "Media bytes written to clients",
		},
	)

	RangeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtogether_media_requests_total",
			Help: "Media requests by response status",
		},
		[]string{"status"},
	)

	// Catalog metrics
	CatalogAssets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchtogether_catalog_assets",
			Help: "Assets found by the most recent scan",
		},
	)
)
