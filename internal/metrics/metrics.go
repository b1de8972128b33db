package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stream metrics
var (
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetcastr_events_total",
		Help: "Total number of decoded stream events by route",
	}, []string{"route"})

	IgnoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetcastr_ignored_total",
		Help: "Total number of ignored events by reason",
	}, []string{"reason"})

	PersistedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetcastr_persisted_total",
		Help: "Total number of events written to the destination by acceptance path",
	}, []string{"path"})

	DuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tweetcastr_duplicates_total",
		Help: "Total number of link-bearing events dropped as duplicates",
	})

	HandledErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetcastr_handled_errors_total",
		Help: "Total number of errors recorded in the error log by class",
	}, []string{"class"})

	BytesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tweetcastr_bytes_received_total",
		Help: "Total number of payload bytes received from the stream",
	})
)

// Connection metrics
var (
	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tweetcastr_connection_state",
		Help: "Stream connection state (1=streaming, 0=not streaming)",
	})

	ReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetcastr_reconnects_total",
		Help: "Total number of resubscriptions by cause",
	}, []string{"reason"})

	RateLimitPausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tweetcastr_rate_limit_pauses_total",
		Help: "Total number of rate-limit pauses",
	})
)

// Session gauges (updated periodically by collector)
var (
	SeenKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tweetcastr_seen_keys",
		Help: "Number of dedup keys held by the current session",
	})

	DestinationSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tweetcastr_destination_size",
		Help: "Number of documents in the destination collection",
	})

	TargetCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tweetcastr_target_count",
		Help: "Destination size at which ingestion stops",
	})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
