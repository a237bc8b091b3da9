package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_RecordSuccess(t *testing.T) {
	r := NewRecorder()
	start := time.Unix(1_700_000_000, 0)

	r.Record(models.RunResult{
		Backend:   "b2",
		StartTime: start,
		Duration:  90 * time.Second,
		Backup:    &models.BackupResult{FilesNew: 12, DataAdded: 2048},
		Forget:    &models.ForgetResult{SnapshotsKept: 7, SnapshotsRemoved: 2},
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(r.success.WithLabelValues("b2")))
	assert.Equal(t, float64(1_700_000_090), testutil.ToFloat64(r.lastSuccess.WithLabelValues("b2")))
	assert.Equal(t, float64(90), testutil.ToFloat64(r.duration.WithLabelValues("b2")))
	assert.Equal(t, float64(12), testutil.ToFloat64(r.filesNew.WithLabelValues("b2")))
	assert.Equal(t, float64(2048), testutil.ToFloat64(r.dataAdded.WithLabelValues("b2")))
	assert.Equal(t, float64(7), testutil.ToFloat64(r.snapshotsKept.WithLabelValues("b2")))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.snapshotsRemoved.WithLabelValues("b2")))
}

func TestRecorder_RecordFailureKeepsLastSuccess(t *testing.T) {
	r := NewRecorder()
	start := time.Unix(1_700_000_000, 0)

	r.Record(models.RunResult{Backend: "local", StartTime: start, Duration: time.Second})
	r.Record(models.RunResult{
		Backend:   "local",
		StartTime: start.Add(time.Hour),
		Duration:  time.Second,
		Forget:    &models.ForgetResult{Error: errors.New("locked")},
		Error:     errors.New("forget failed"),
	})

	assert.Equal(t, float64(0), testutil.ToFloat64(r.success.WithLabelValues("local")))
	assert.Equal(t, float64(1_700_000_001), testutil.ToFloat64(r.lastSuccess.WithLabelValues("local")))
	assert.Equal(t, 0, testutil.CollectAndCount(r.snapshotsKept))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.Record(models.RunResult{Backend: "sftp", StartTime: time.Now(), Duration: time.Second})

	path := filepath.Join(t.TempDir(), "textfile", "restic.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `restic_run_success{backend="sftp"} 1`)
	assert.Contains(t, string(data), "# TYPE restic_run_duration_seconds gauge")
}
