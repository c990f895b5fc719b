// Package metrics records run statistics and exports them in the Prometheus
// text format for the node exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"memwatch/internal/models"
)

// Recorder holds the metrics of one process.
type Recorder struct {
	registry *prometheus.Registry

	productsTotal  prometheus.Gauge
	priceUps       prometheus.Gauge
	priceDowns     prometheus.Gauge
	historyRecords prometheus.Gauge
	lastRun        prometheus.Gauge
	lastRunSuccess prometheus.Gauge
	skippedEntries prometheus.Counter
	fetchDuration  *prometheus.HistogramVec
	averageChange  prometheus.Gauge
	productPrice   *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		productsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memwatch_products_total",
			Help: "Products priced in the last run",
		}),
		priceUps: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memwatch_price_ups",
			Help: "Products whose price rose in the last run",
		}),
		priceDowns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memwatch_price_downs",
			Help: "Products whose price fell in the last run",
		}),
		historyRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memwatch_history_records",
			Help: "Records held in the price history",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memwatch_last_run_timestamp_seconds",
			Help: "Unix time of the last run",
		}),
		lastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memwatch_last_run_success",
			Help: "1 if the last run succeeded, 0 otherwise",
		}),
		skippedEntries: factory.NewCounter(prometheus.CounterOpts{
			Name: "memwatch_skipped_entries_total",
			Help: "Snapshot entries dropped during merges",
		}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memwatch_fetch_duration_seconds",
			Help:    "Duration of price page requests",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}),
		averageChange: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memwatch_average_change_percent",
			Help: "Mean change percent across products in the last run",
		}),
		productPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "memwatch_product_price_usd",
			Help: "Last observed price per product",
		}, []string{"product", "category"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveChangeSet records the outcome of a merge.
func (r *Recorder) ObserveChangeSet(cs *models.ChangeSet, skipped, historyRecords int) {
	r.productsTotal.Set(float64(cs.TotalProducts))
	r.priceUps.Set(float64(len(cs.PriceUps)))
	r.priceDowns.Set(float64(len(cs.PriceDowns)))
	r.averageChange.Set(cs.AverageChangePercent())
	r.historyRecords.Set(float64(historyRecords))
	r.skippedEntries.Add(float64(skipped))

	r.productPrice.Reset()
	for _, p := range cs.AllProducts {
		r.productPrice.WithLabelValues(p.Product, p.Category).Set(p.Price)
	}
}

// ObserveFetch records a page request.
func (r *Recorder) ObserveFetch(url string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.fetchDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveRun records the end of a run.
func (r *Recorder) ObserveRun(at time.Time, success bool) {
	r.lastRun.Set(float64(at.Unix()))
	if success {
		r.lastRunSuccess.Set(1)
	} else {
		r.lastRunSuccess.Set(0)
	}
}

// WriteTextfile writes the metrics to path atomically. An empty path is a
// no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
