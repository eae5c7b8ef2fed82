package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	compressions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagetools",
			Name:      "compressions_total",
			Help:      "Total local compressions by output MIME type and result",
		},
		[]string{"mime", "result"},
	)

	compressionBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagetools",
			Name:      "compression_bytes_total",
			Help:      "Bytes seen by the compressor, labeled input or output",
		},
		[]string{"direction"},
	)

	compressionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "imagetools",
			Name:      "compression_duration_seconds",
			Help:      "Duration of local compressions",
			Buckets:   prometheus.DefBuckets,
		},
	)

	remoteReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagetools",
			Name:      "remote_requests_total",
			Help:      "Total remote tool requests by tool, model and result",
		},
		[]string{"tool", "model", "result"},
	)

	remoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imagetools",
			Name:      "remote_request_duration_seconds",
			Help:      "Duration of remote tool requests by tool and model",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool", "model"},
	)

	streamChunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imagetools",
			Name:      "stream_chunks_total",
			Help:      "Total streamed reply chunks appended",
		},
	)

	locators = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagetools",
			Name:      "locators_total",
			Help:      "Extracted image locators by kind",
		},
		[]string{"kind"},
	)

	busyRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imagetools",
			Name:      "busy_rejections_total",
			Help:      "Submissions rejected while another pipeline was running",
		},
	)

	initOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(compressions, compressionBytes, compressionLatency, remoteReqs, remoteLatency, streamChunks, locators, busyRejections)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveCompression(mime, result string, inBytes, outBytes int, dur time.Duration) {
	compressions.WithLabelValues(mime, result).Inc()
	compressionLatency.Observe(dur.Seconds())
	if result == "success" {
		compressionBytes.WithLabelValues("input").Add(float64(inBytes))
		compressionBytes.WithLabelValues("output").Add(float64(outBytes))
	}
}

func ObserveRemote(tool, model, result string, dur time.Duration) {
	remoteReqs.WithLabelValues(tool, model, result).Inc()
	remoteLatency.WithLabelValues(tool, model).Observe(dur.Seconds())
}

func IncStreamChunk()        { streamChunks.Inc() }
func IncLocator(kind string) { locators.WithLabelValues(kind).Inc() }
func IncBusy()               { busyRejections.Inc() }
