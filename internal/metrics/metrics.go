// Package metrics records the outcome of a pipeline run and pushes it to a
// Prometheus Pushgateway.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "fidestats"

// ErrPushFailed wraps any error returned by the Pushgateway.
var ErrPushFailed = errors.New("metrics push failed")

// Run holds the gauges of one pipeline run on a private registry.
type Run struct {
	registry *prometheus.Registry

	records     prometheus.Gauge
	players     prometheus.Gauge
	groups      prometheus.Gauge
	skipped     *prometheus.GaugeVec
	removed     *prometheus.GaugeVec
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewRun registers the run gauges.
func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "records",
			Help: "Enriched records exported by the last run.",
		}),
		players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "players",
			Help: "Distinct players exported by the last run.",
		}),
		groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "aggregate_groups",
			Help: "Aggregated (year, country, gender) groups exported by the last run.",
		}),
		skipped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "skipped_rows",
			Help: "Joined rows dropped during enrichment, by reason.",
		}, []string{"reason"}),
		removed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "filter_removed_records",
			Help: "Records removed by each filter stage.",
		}, []string{"stage"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
	}
	r.registry.MustRegister(r.records, r.players, r.groups, r.skipped, r.removed, r.duration, r.lastSuccess)
	return r
}

// Registry exposes the registry, mainly for tests.
func (r *Run) Registry() *prometheus.Registry { return r.registry }

// ObserveOutput records the exported sizes.
func (r *Run) ObserveOutput(records, players, groups int) {
	r.records.Set(float64(records))
	r.players.Set(float64(players))
	r.groups.Set(float64(groups))
}

// ObserveSkipped records the skip count of one reason.
func (r *Run) ObserveSkipped(reason string, n int) {
	r.skipped.WithLabelValues(reason).Set(float64(n))
}

// ObserveRemoved records the removal count of one filter stage.
func (r *Run) ObserveRemoved(stage string, n int) {
	r.removed.WithLabelValues(stage).Set(float64(n))
}

// ObserveDone records the run duration and marks the run successful at now.
func (r *Run) ObserveDone(d time.Duration, now time.Time) {
	r.duration.Set(d.Seconds())
	r.lastSuccess.Set(float64(now.Unix()))
}

// Push sends all gauges to the Pushgateway at url under job, replacing the
// previous push of the same job.
func (r *Run) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPushFailed, err)
	}
	return nil
}
