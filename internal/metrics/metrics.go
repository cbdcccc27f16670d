// Package metrics holds the prometheus collectors of the wizard service. They
// are registered on the default registry in init and served at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	wizardEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_events_total",
			Help: "Wizard events dispatched, by event name.",
		},
		[]string{"event"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wizard_sessions_active",
			Help: "Sessions currently held in memory.",
		},
	)

	txAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tx_attempts_total",
			Help: "Transaction attempt status changes.",
		},
		[]string{"group", "status"},
	)

	// result: ok|failed|skipped
	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Scheduled job runs, by job and result.",
		},
		[]string{"job", "result"},
	)

	// result: resolved|failed|dropped (a newer read was already applied)
	snapshotReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_reads_total",
			Help: "External reads finished, by key kind and result.",
		},
		[]string{"key_kind", "result"},
	)
)

func init() {
	prometheus.MustRegister(wizardEvents, sessionsActive)
	prometheus.MustRegister(txAttempts, snapshotReads, jobRuns)
}

func IncEvent(name string)                { wizardEvents.WithLabelValues(name).Inc() }
func SessionOpened()                      { sessionsActive.Inc() }
func SessionClosed()                      { sessionsActive.Dec() }
func IncAttempt(group, status string)     { txAttempts.WithLabelValues(group, status).Inc() }
func IncSnapshotRead(kind, result string) { snapshotReads.WithLabelValues(kind, result).Inc() }
func IncJobRun(job, result string)        { jobRuns.WithLabelValues(job, result).Inc() }
