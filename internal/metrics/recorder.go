// Package metrics exports run results in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "restic"

// Recorder holds the gauges describing the last run per backend.
type Recorder struct {
	registry *prometheus.Registry

	success          *prometheus.GaugeVec
	lastSuccess      *prometheus.GaugeVec
	duration         *prometheus.GaugeVec
	filesNew         *prometheus.GaugeVec
	dataAdded        *prometheus.GaugeVec
	snapshotsKept    *prometheus.GaugeVec
	snapshotsRemoved *prometheus.GaugeVec
}

// NewRecorder creates a recorder on its own registry.
func NewRecorder() *Recorder {
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"backend"})
	}

	r := &Recorder{
		registry:         prometheus.NewRegistry(),
		success:          gauge("run_success", "Whether the last run succeeded (1) or failed (0)"),
		lastSuccess:      gauge("last_success_timestamp_seconds", "Unix time of the last successful run"),
		duration:         gauge("run_duration_seconds", "Duration of the last run in seconds"),
		filesNew:         gauge("backup_files_new", "Files added by the last backup"),
		dataAdded:        gauge("backup_data_added_bytes", "Bytes added by the last backup"),
		snapshotsKept:    gauge("forget_snapshots_kept", "Snapshots kept by the last retention run"),
		snapshotsRemoved: gauge("forget_snapshots_removed", "Snapshots removed by the last retention run"),
	}

	r.registry.MustRegister(
		r.success,
		r.lastSuccess,
		r.duration,
		r.filesNew,
		r.dataAdded,
		r.snapshotsKept,
		r.snapshotsRemoved,
	)

	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Record updates the gauges from a run result.
func (r *Recorder) Record(result models.RunResult) {
	backend := result.Backend

	r.duration.WithLabelValues(backend).Set(result.Duration.Seconds())

	if result.Error != nil {
		r.success.WithLabelValues(backend).Set(0)
	} else {
		r.success.WithLabelValues(backend).Set(1)
		r.lastSuccess.WithLabelValues(backend).Set(float64(result.StartTime.Add(result.Duration).Unix()))
	}

	if b := result.Backup; b != nil && b.Error == nil {
		r.filesNew.WithLabelValues(backend).Set(float64(b.FilesNew))
		r.dataAdded.WithLabelValues(backend).Set(float64(b.DataAdded))
	}

	if f := result.Forget; f != nil && f.Error == nil {
		r.snapshotsKept.WithLabelValues(backend).Set(float64(f.SnapshotsKept))
		r.snapshotsRemoved.WithLabelValues(backend).Set(float64(f.SnapshotsRemoved))
	}
}

// WriteTextfile writes all gauges to path, creating its directory if needed.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
