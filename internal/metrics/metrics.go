// Package metrics exports pipeline and dictionary statistics in the
// Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lessucettes/adresu-wordguard/internal/policy"
	"github.com/lessucettes/adresu-wordguard/internal/profanity"
)

const namespace = "wordguard"

// Collector implements policy.MetricsCollector and policy.RejectionHandler.
type Collector struct {
	registry *prometheus.Registry

	stageResults  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	rejections    *prometheus.CounterVec
	scans         *prometheus.CounterVec
	dictTerms     prometheus.Gauge
	dictPatterns  prometheus.Gauge
	dictSkipped   prometheus.Gauge
	dictLoads     prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		stageResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_results_total",
				Help:      "Pipeline stage verdicts.",
			},
			[]string{"filter", "result"}, // result: "allowed", "rejected"
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage.",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
			},
			[]string{"filter"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Rejected submissions by content type and stage.",
			},
			[]string{"content_type", "filter"},
		),
		scans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "profanity_scans_total",
				Help:      "Profanity scans by resulting severity.",
			},
			[]string{"severity"},
		),
		dictTerms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dictionary_terms",
			Help:      "Terms in the active dictionary.",
		}),
		dictPatterns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dictionary_patterns",
			Help:      "Compiled patterns in the active dictionary.",
		}),
		dictSkipped: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dictionary_skipped_terms",
			Help:      "Terms for which no pattern compiled.",
		}),
		dictLoads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dictionary_loads_total",
			Help:      "Dictionary snapshots published to the scanner.",
		}),
	}
}

func (c *Collector) Report(res policy.FilterResult) {
	result := "allowed"
	if !res.Allowed {
		result = "rejected"
	}
	c.stageResults.WithLabelValues(res.Filter, result).Inc()
	c.stageDuration.WithLabelValues(res.Filter).Observe(res.Duration.Seconds())

	if res.Outcome != nil && res.Outcome.Scan != nil {
		c.scans.WithLabelValues(string(res.Outcome.Scan.Severity)).Inc()
	}
}

func (c *Collector) HandleRejection(_ context.Context, sub *policy.Submission, filterName string) {
	ct := string(sub.ContentType)
	if ct == "" {
		ct = "default"
	}
	c.rejections.WithLabelValues(ct, filterName).Inc()
}

// ObserveLoad records a newly published scanner snapshot.
func (c *Collector) ObserveLoad(stats profanity.LoadStats) {
	c.dictLoads.Inc()
	c.dictTerms.Set(float64(stats.Terms))
	c.dictPatterns.Set(float64(stats.Patterns))
	c.dictSkipped.Set(float64(stats.Skipped))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down metrics server", "error", err)
		}
	}()

	slog.Info("Metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
