package fsbacking

import "github.com/VictoriaMetrics/metrics"

// Operation counters, exported through the default metrics set
// (metrics.WritePrometheus serves them to any scraper the embedding
// application wires up).
var (
	metricAcquireGranted = metrics.NewCounter(`fsema_acquire_total{result="granted"}`)
	metricAcquireDenied  = metrics.NewCounter(`fsema_acquire_total{result="denied"}`)
	metricRelease        = metrics.NewCounter(`fsema_release_total`)
	metricRefreshOK      = metrics.NewCounter(`fsema_refresh_total{result="renewed"}`)
	metricRefreshFailed  = metrics.NewCounter(`fsema_refresh_total{result="rejected"}`)
	metricCorruptDropped = metrics.NewCounter(`fsema_corrupt_entries_dropped_total`)
	metricExpiredRemoved = metrics.NewCounter(`fsema_expired_entries_removed_total`)
)
