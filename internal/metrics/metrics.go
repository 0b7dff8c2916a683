package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "messenger_active_connections",
		Help: "Number of currently open websocket connections.",
	})

	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messenger_events_delivered_total",
		Help: "Events delivered to client connections, by event name.",
	}, []string{"event"})

	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messenger_messages_ingested_total",
		Help: "Messages accepted by the ingestion pipeline, by type.",
	}, []string{"type"})

	MediaJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messenger_media_jobs_total",
		Help: "Media post-processing jobs, by kind and outcome.",
	}, []string{"kind", "outcome"})
)

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
