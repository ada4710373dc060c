package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce     sync.Once
	batchItemsTotal  *prometheus.CounterVec
	batchJobsTotal   *prometheus.CounterVec
	batchJobDuration *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors for batch job
// observability.
func RegisterMetrics() {
	registerOnce.Do(func() {
		batchItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_items_total",
			Help: "Total number of batch items processed, by classification.",
		}, []string{"result"})

		batchJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_jobs_total",
			Help: "Total number of bulk grading jobs executed.",
		}, []string{"kind"})

		batchJobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration distribution of bulk grading jobs.",
			Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0, 900.0},
		}, []string{"kind"})

		prometheus.MustRegister(batchItemsTotal, batchJobsTotal, batchJobDuration)
	})
}

// BatchItems exposes the per-item classification counter.
func BatchItems() *prometheus.CounterVec {
	RegisterMetrics()
	return batchItemsTotal
}

// BatchJobs exposes the job counter.
func BatchJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return batchJobsTotal
}

// BatchJobDuration exposes the job duration histogram.
func BatchJobDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return batchJobDuration
}
