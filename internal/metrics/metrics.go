package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AttendanceMarks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance", Name: "marks_total", Help: "Attendance records written",
	}, []string{"method"})
	RFIDBatchItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance", Name: "rfid_batch_items_total", Help: "RFID batch items by outcome",
	}, []string{"outcome"})
	StatsRecompute = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendance", Name: "stats_recompute_seconds", Help: "Stats recomputation latency",
		Buckets: prometheus.DefBuckets,
	})
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance", Name: "http_requests_total", Help: "HTTP requests by route and status",
	}, []string{"route", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance", Name: "http_request_duration_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendance", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
	SyncJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance", Name: "sync_jobs_total", Help: "External sync jobs by target and status",
	}, []string{"target", "status"})
	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance", Name: "job_runs_total", Help: "Scheduled job runs",
	}, []string{"job"})
	JobErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance", Name: "job_errors_total", Help: "Scheduled job errors",
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(AttendanceMarks, RFIDBatchItems, StatsRecompute,
		HTTPRequests, HTTPDuration, DBPing, SyncJobs, JobRuns, JobErrors)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }
