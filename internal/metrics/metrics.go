// Package metrics exposes sync run counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncMetrics defines the metrics operations needed by the sync engine.
type SyncMetrics interface {
	IncItemsSynced()
	AddBytesCopied(n int64)
	IncItemsFailed(reason string)
	IncItemsDeleted()
	IncTargetSwitches()
	IncCopyRetries()
	SetTargetIndex(index int)
}

// Sync implements SyncMetrics.
type Sync struct {
	ItemsSynced    prometheus.Counter
	BytesCopied    prometheus.Counter
	ItemsFailed    *prometheus.CounterVec // labels: reason
	ItemsDeleted   prometheus.Counter
	TargetSwitches prometheus.Counter
	CopyRetries    prometheus.Counter
	TargetIndex    prometheus.Gauge
}

const namespace = "span"

// New registers the sync metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Sync {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Sync{
		ItemsSynced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_synced_total",
			Help:      "Total number of items processed successfully",
		}),
		BytesCopied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_copied_total",
			Help:      "Total number of file bytes written to targets",
		}),
		ItemsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_failed_total",
			Help:      "Total number of items recorded as failed",
		}, []string{"reason"}),
		ItemsDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_deleted_total",
			Help:      "Total number of extraneous destination entries removed",
		}),
		TargetSwitches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_switches_total",
			Help:      "Total number of switches to the next target",
		}),
		CopyRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "copy_retries_total",
			Help:      "Total number of failed copy attempts that were retried",
		}),
		TargetIndex: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_index",
			Help:      "Index of the active target",
		}),
	}
}

func (m *Sync) IncItemsSynced()              { m.ItemsSynced.Inc() }
func (m *Sync) AddBytesCopied(n int64)       { m.BytesCopied.Add(float64(n)) }
func (m *Sync) IncItemsFailed(reason string) { m.ItemsFailed.WithLabelValues(reason).Inc() }
func (m *Sync) IncItemsDeleted()             { m.ItemsDeleted.Inc() }
func (m *Sync) IncTargetSwitches()           { m.TargetSwitches.Inc() }
func (m *Sync) IncCopyRetries()              { m.CopyRetries.Inc() }
func (m *Sync) SetTargetIndex(index int)     { m.TargetIndex.Set(float64(index)) }

// Nop discards everything.
type Nop struct{}

func (Nop) IncItemsSynced()       {}
func (Nop) AddBytesCopied(int64)  {}
func (Nop) IncItemsFailed(string) {}
func (Nop) IncItemsDeleted()      {}
func (Nop) IncTargetSwitches()    {}
func (Nop) IncCopyRetries()       {}
func (Nop) SetTargetIndex(int)    {}

// Serve exposes /metrics for gatherer on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
