package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/physiocore/clinicsync/internal/common/config"
)

// Metrics observes sync, mirror and migration activity. A nil *Metrics is
// valid and records nothing, so tests and local-only runs need no registry.
type Metrics struct {
	registry     *prometheus.Registry
	syncOpsCnt   *prometheus.CounterVec
	syncOpsDur   *prometheus.HistogramVec
	mirrorCnt    *prometheus.CounterVec
	migrationCnt *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	syncOpsCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "sync_operations_total"}, []string{"direction", "collection", "status"})
	syncOpsDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "sync_operation_duration_seconds", Buckets: cfg.Buckets}, []string{"direction", "collection"})
	r.MustRegister(syncOpsCnt, syncOpsDur)

	mirrorCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "mirror_tasks_total"}, []string{"task", "status"})
	r.MustRegister(mirrorCnt)

	migrationCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "migration_steps_total"}, []string{"step", "status"})
	r.MustRegister(migrationCnt)

	return &Metrics{
		registry:     r,
		syncOpsCnt:   syncOpsCnt,
		syncOpsDur:   syncOpsDur,
		mirrorCnt:    mirrorCnt,
		migrationCnt: migrationCnt,
	}
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// SyncOp records one push or pull of a collection.
func (m *Metrics) SyncOp(direction, collection string, dur time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.syncOpsCnt.WithLabelValues(direction, collection, statusLabel(ok)).Inc()
	m.syncOpsDur.WithLabelValues(direction, collection).Observe(dur.Seconds())
}

// MirrorTask records the outcome of one background mirror task.
func (m *Metrics) MirrorTask(task string, ok bool) {
	if m == nil {
		return
	}
	m.mirrorCnt.WithLabelValues(task, statusLabel(ok)).Inc()
}

// MigrationStep records the outcome of one migration step.
func (m *Metrics) MigrationStep(step string, ok bool) {
	if m == nil {
		return
	}
	m.migrationCnt.WithLabelValues(step, statusLabel(ok)).Inc()
}

// Handler exposes the registry for the ops endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
