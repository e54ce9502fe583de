// Package metrics keeps the per-run Prometheus series and writes them for
// the node-exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds a private registry; nothing is registered globally.
type Recorder struct {
	reg *prometheus.Registry

	stageDuration *prometheus.GaugeVec
	checksummed   prometheus.Counter
	archiveBytes  *prometheus.GaugeVec
	success       prometheus.Gauge
	lastComplete  prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "seqpack_stage_duration_seconds",
			Help: "Wall time of each pipeline stage in the last run.",
		}, []string{"stage"}),
		checksummed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seqpack_files_checksummed_total",
			Help: "Deliverable files hashed by the checksum engine.",
		}),
		archiveBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "seqpack_archive_bytes",
			Help: "Size of each staged archive.",
		}, []string{"archive"}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seqpack_run_success",
			Help: "1 if the last run completed, 0 if it failed.",
		}),
		lastComplete: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seqpack_run_last_completion_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
	}
	r.reg.MustRegister(r.stageDuration, r.checksummed, r.archiveBytes, r.success, r.lastComplete)
	return r
}

func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Set(d.Seconds())
}

func (r *Recorder) AddChecksummed(n int) {
	r.checksummed.Add(float64(n))
}

func (r *Recorder) SetArchiveBytes(archive string, n int64) {
	r.archiveBytes.WithLabelValues(archive).Set(float64(n))
}

// Finish records the outcome of the run.
func (r *Recorder) Finish(ok bool, now time.Time) {
	if ok {
		r.success.Set(1)
		r.lastComplete.Set(float64(now.Unix()))
		return
	}
	r.success.Set(0)
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WriteTextfile writes all series to path atomically. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
