package metrics

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgcrud_queries_total",
			Help: "Total number of entity operations by outcome",
		},
		[]string{"entity", "operation", "outcome"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgcrud_query_duration_seconds",
			Help:    "Duration of entity operations including cache lookups",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity", "operation"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgcrud_cache_lookups_total",
			Help: "Result cache lookups by entity and result (hit, miss, error)",
		},
		[]string{"entity", "result"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgcrud_publish_errors_total",
			Help: "Mutation events that could not be published",
		},
		[]string{"entity"},
	)
)

// Outcome labels an operation result for Queries.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// ObserveQuery records one finished operation.
func ObserveQuery(entity, operation string, start time.Time, err error) {
	Queries.WithLabelValues(entity, operation, Outcome(err)).Inc()
	QueryDuration.WithLabelValues(entity, operation).Observe(time.Since(start).Seconds())
}

type PromServerOpts struct {
	Addr              string
	Path              string        // defaults to "/metrics"
	ShutdownTimeout   time.Duration // defaults to 5 seconds
	ReadHeaderTimeout time.Duration // defaults to 3 seconds
	Logger            *zap.Logger
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		Logger:            zap.NewNop(),
	}
}

// StartPrometheusServer serves the metrics endpoint until ctx is canceled.
// wg is released once the server has stopped.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	o := defaultPrometheusServerOptions()
	if opts != nil {
		o.Addr = cmp.Or(opts.Addr, o.Addr)
		o.Path = cmp.Or(opts.Path, o.Path)
		o.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, o.ShutdownTimeout)
		o.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, o.ReadHeaderTimeout)
		if opts.Logger != nil {
			o.Logger = opts.Logger
		}
	}

	mux := http.NewServeMux()
	mux.Handle(o.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              o.Addr,
		Handler:           mux,
		ReadHeaderTimeout: o.ReadHeaderTimeout,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Logger.Info("starting metrics server", zap.String("addr", o.Addr), zap.String("path", o.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.Logger.Error("metrics server", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			o.Logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}()
}
