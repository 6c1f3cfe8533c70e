package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mirage_http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var indexJobsInQueue = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "mirage_index_jobs_in_queue",
	Help: "Number of index jobs waiting for a worker",
})

var dispatcherSignalCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mirage_dispatcher_signal_total",
	Help: "How often the dispatcher has signaled to start a worker",
})

var activeWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "mirage_active_worker_count",
	Help: "Number of active index workers",
})

var chunksIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mirage_chunks_indexed_total",
	Help: "Chunks written to a vector store, by store location",
}, []string{"location"})

var sourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mirage_source_failures_total",
	Help: "Per source retrieval failures, by location",
}, []string{"location"})

type HttpStatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *HttpStatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the recorder.
func (r *HttpStatusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func IncrementJobsInQueue() {
	indexJobsInQueue.Inc()
}

func DecrementJobsInQueue() {
	indexJobsInQueue.Dec()
}

func StartDispatcherSignalCount() {
	dispatcherSignalCount.Inc()
}

func IncrementActiveWorkerCount() {
	activeWorkerCount.Inc()
}
func DecrementActiveWorkerCount() {
	activeWorkerCount.Dec()
}

func AddChunksIndexed(location string, n int) {
	chunksIndexed.WithLabelValues(location).Add(float64(n))
}

func IncrementSourceFailures(location string) {
	sourceFailures.WithLabelValues(location).Inc()
}

var jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "mirage_index_job_duration_seconds",
	Help:    "Total time spent running an index job.",
	Buckets: []float64{.5, 1, 5, 10, 30, 60, 300},
}, []string{"status"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "mirage_dependency_latency_seconds",
	Help:    "Latency of embedding, search, completion and indexing calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"service"})

func CaptureExecutionMetrics(label string, timeElapsed time.Duration) {
	dependencyLatency.WithLabelValues(label).Observe(timeElapsed.Seconds())
}

func CaptureJobMetrics(label string, timeElapsed time.Duration) {
	jobDuration.WithLabelValues(label).Observe(timeElapsed.Seconds())
}
