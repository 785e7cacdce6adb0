package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postcodejp_sync_runs_total",
		Help: "Sync runs by dataset, kind and terminal status",
	}, []string{"dataset", "kind", "status"})
	SyncDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postcodejp_sync_duration_seconds",
		Help:    "Wall time of a sync run from begin to terminal status",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"dataset", "kind"})
	RecordsWrittenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postcodejp_records_written_total",
		Help: "Rows inserted or deleted by the import engine",
	}, []string{"dataset", "op"})
	DownloadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postcodejp_download_bytes_total",
		Help: "Bytes of archive data downloaded from the publisher",
	})
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "postcodejp_cache_lookups_total",
		Help: "Lookup cache results by outcome",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(SyncRunsTotal)
	prometheus.MustRegister(SyncDurationSeconds)
	prometheus.MustRegister(RecordsWrittenTotal)
	prometheus.MustRegister(DownloadBytesTotal)
	prometheus.MustRegister(CacheLookupsTotal)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler { return promhttp.Handler() }
