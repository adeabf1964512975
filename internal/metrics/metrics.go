package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReadingsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waterquality_ingest_readings_total",
		Help: "Readings persisted from the MQTT pipeline.",
	})
	IngestDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waterquality_ingest_dropped_total",
		Help: "MQTT messages dropped without a persisted reading.",
	}, []string{"reason"})
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waterquality_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "status"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
