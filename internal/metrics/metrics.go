// Package metrics declares the Prometheus instruments exposed by the
// optional local HTTP shell (SPEC_FULL.md §13.2). Metrics are package-level
// promauto vars incremented directly from call sites, matching the
// teacher's checkpoint_manager.go style rather than an injected interface.
package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	ParserFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsxia_parser_files_total",
		Help: "Total number of DSX files parsed",
	})

	ParserJobsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsxia_parser_jobs_total",
		Help: "Total number of job records extracted from DSX files",
	})

	ParserErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dsxia_parser_errors_total",
		Help: "Total number of parse errors by kind",
	}, []string{"kind"})

	IndexRebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dsxia_index_rebuild_duration_seconds",
		Help:    "Time spent rebuilding the job index",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	IndexCacheHitRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dsxia_index_cache_hit_ratio",
		Help: "Fraction of files skipped during the last rebuild because their (size, mtime) was unchanged",
	})

	GraphQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dsxia_graph_query_duration_seconds",
		Help:    "Time spent answering a dependency graph query",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"}) // kind: direct|cascading|chain|pk_impact|erp_tier
)

// Server exposes /metrics and /healthz for the optional local shell.
// Analysis results are never served from it (SPEC_FULL.md §11.4).
type Server struct {
	server *http.Server
	logger *logrus.Logger
}

// NewServer builds a metrics/health HTTP server listening on addr. This
// is the one place gorilla/mux is wired in, per SPEC_FULL.md §11.8's
// outer-shell-only scoping.
func NewServer(addr string, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger,
	}
}

// Start runs the server in a background goroutine.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("starting metrics server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("metrics server error")
		}
	}()

	return nil
}

// Stop shuts down the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping metrics server")
	return s.server.Close()
}
