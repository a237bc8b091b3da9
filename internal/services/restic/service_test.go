package restic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/fgeck/gorestic-retention/internal/retention"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecutor is a mock implementation of CommandExecutor for testing.
type mockExecutor struct {
	runFunc func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
}

func (m *mockExecutor) Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	if m.runFunc != nil {
		return m.runFunc(ctx, env, name, args...)
	}
	return nil, nil
}

// recordingExecutor returns output for every call and remembers the
// arguments of the last one.
func recordingExecutor(output string, err error) (*mockExecutor, *[]string) {
	var captured []string
	return &mockExecutor{
		runFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			captured = args
			return []byte(output), err
		},
	}, &captured
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig() models.ResticConfig {
	return models.ResticConfig{
		Repository: "/backup",
		Password:   "secret",
	}
}

func intPtr(i int) *int {
	return &i
}

func TestInit_AlreadyInitialized(t *testing.T) {
	var calls [][]string
	executor := &mockExecutor{
		runFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			assert.Equal(t, "restic", name)
			calls = append(calls, args)
			return []byte(`{"version":2,"id":"abc"}`), nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	err := svc.Init(context.Background(), testConfig())

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"cat", "config"}}, calls)
}

func TestInit_NewRepository(t *testing.T) {
	var calls [][]string
	executor := &mockExecutor{
		runFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			calls = append(calls, args)
			if args[0] == "cat" {
				return nil, errors.New("exit status 10: Fatal: repository does not exist")
			}
			return []byte("created restic repository"), nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	err := svc.Init(context.Background(), testConfig())

	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"init", "--repository-version", "2"}, calls[1])
}

func TestInit_FailedToInitialize(t *testing.T) {
	executor := &mockExecutor{
		runFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			return nil, errors.New("exit status 1: Fatal: create repository failed")
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	err := svc.Init(context.Background(), testConfig())

	assert.ErrorContains(t, err, "failed to initialize repository")
	assert.ErrorContains(t, err, "create repository failed")
}

func TestSnapshots_Success(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	snaps := []snapshotJSON{
		{ID: "abc12345ffff", ShortID: "abc12345", Time: now, Hostname: "server1", Tags: []string{"daily"}, Paths: []string{"/data"}},
		{ID: "def45678eeee", Time: now.Add(-24 * time.Hour), Hostname: "server1", Paths: []string{"/data", "/home"}},
	}
	snapsJSON, err := json.Marshal(snaps)
	require.NoError(t, err)

	executor, args := recordingExecutor(string(snapsJSON), nil)
	svc := NewWithExecutor(testLogger(), executor)

	result, err := svc.Snapshots(context.Background(), testConfig(), models.SnapshotFilter{})

	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, []string{"snapshots", "--json"}, *args)
	assert.Equal(t, "abc12345", result[0].ShortID)
	assert.Equal(t, now, result[0].Time)
	assert.Equal(t, []string{"daily"}, result[0].Tags)
	assert.Equal(t, "def45678", result[1].ShortID, "short id falls back to the id prefix")
	assert.Equal(t, []string{"/data", "/home"}, result[1].Paths)
}

func TestSnapshots_Filter(t *testing.T) {
	executor, args := recordingExecutor("[]", nil)
	svc := NewWithExecutor(testLogger(), executor)

	result, err := svc.Snapshots(context.Background(), testConfig(), models.SnapshotFilter{
		Host:   "web1",
		Tags:   []string{"files", "stream"},
		Latest: 3,
	})

	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, []string{
		"snapshots", "--json",
		"--host", "web1",
		"--tag", "files", "--tag", "stream",
		"--latest", "3",
	}, *args)
}

func TestSnapshots_Error(t *testing.T) {
	executor, _ := recordingExecutor("", errors.New("connection refused"))
	svc := NewWithExecutor(testLogger(), executor)

	_, err := svc.Snapshots(context.Background(), testConfig(), models.SnapshotFilter{})

	assert.ErrorContains(t, err, "failed to list snapshots")
}

func TestSnapshots_InvalidJSON(t *testing.T) {
	executor, _ := recordingExecutor("ID  Time  Host\n", nil)
	svc := NewWithExecutor(testLogger(), executor)

	_, err := svc.Snapshots(context.Background(), testConfig(), models.SnapshotFilter{})

	assert.ErrorContains(t, err, "failed to parse snapshots")
}

func TestBackup_Success(t *testing.T) {
	output := `{"message_type":"status","percent_done":0.5}
{"message_type":"summary","files_new":10,"files_changed":5,"files_unmodified":100,"data_added":1048576,"total_files_processed":115,"total_bytes_processed":10485760,"snapshot_id":"abc123def456"}`

	executor, args := recordingExecutor(output, nil)
	svc := NewWithExecutor(testLogger(), executor)
	settings := models.BackupSettings{
		Paths:   []string{"/data"},
		Tags:    []string{"daily", "important"},
		Exclude: []string{"*.tmp"},
		Host:    "myserver",
	}

	result, err := svc.Backup(context.Background(), testConfig(), settings)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, result.Error)
	assert.Equal(t, "abc123def456", result.SnapshotID)
	assert.Equal(t, 10, result.FilesNew)
	assert.Equal(t, 115, result.TotalFilesProcessed)
	assert.Equal(t, int64(1048576), result.DataAdded)
	assert.Equal(t, []string{
		"backup", "--json",
		"--host", "myserver",
		"--tag", "daily", "--tag", "important",
		"--exclude", "*.tmp",
		"/data",
	}, *args)
}

func TestBackup_NoSummary(t *testing.T) {
	executor, _ := recordingExecutor(`{"message_type":"status","percent_done":1}`+"\nnot json\n", nil)
	svc := NewWithExecutor(testLogger(), executor)

	result, err := svc.Backup(context.Background(), testConfig(), models.BackupSettings{Paths: []string{"/data"}})

	require.NoError(t, err)
	assert.Nil(t, result.Error)
	assert.Empty(t, result.SnapshotID)
}

func TestBackup_Error(t *testing.T) {
	executor, _ := recordingExecutor("", errors.New("exit status 1: Fatal: unable to open config file"))
	svc := NewWithExecutor(testLogger(), executor)

	result, err := svc.Backup(context.Background(), testConfig(), models.BackupSettings{Paths: []string{"/nonexistent"}})

	// Backup returns result with error in Error field, not as function return
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.ErrorContains(t, result.Error, "backup failed")
	assert.ErrorContains(t, result.Error, "unable to open config file")
}

func TestForget_Success(t *testing.T) {
	output := `[{"keep":[{"id":"snap1aaaaaaa","short_id":"snap1aaa"},{"id":"snap2bbbbbbb"}],"remove":[{"id":"snap3ccccccc","short_id":"snap3ccc"}]}]`

	var capturedArgs []string
	var capturedEnv []string
	executor := &mockExecutor{
		runFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			capturedArgs = args
			capturedEnv = env
			return []byte(output), nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	policy := &retention.Policy{
		KeepDaily:   intPtr(7),
		KeepWeekly:  intPtr(4),
		KeepMonthly: intPtr(6),
		KeepTag:     []string{"keep me"},
		Prune:       true,
	}
	cfg := testConfig()
	cfg.Env = []string{"RESTIC_HOST=web1"}

	result, err := svc.Forget(context.Background(), cfg, policy)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Nil(t, result.Error)
	assert.Equal(t, 2, result.SnapshotsKept)
	assert.Equal(t, 1, result.SnapshotsRemoved)
	assert.Equal(t, []string{"snap3ccc"}, result.RemovedIDs)
	assert.False(t, result.DryRun)
	assert.Equal(t, []string{
		"forget",
		"--keep-daily", "7",
		"--keep-weekly", "4",
		"--keep-monthly", "6",
		"--keep-tag", "keep me",
		"--prune",
		"--json",
	}, capturedArgs)
	assert.Equal(t, policy.Args(), result.Args)
	assert.Contains(t, capturedEnv, "RESTIC_HOST=web1")
}

func TestForget_PruneOutputAfterJSON(t *testing.T) {
	output := `[{"keep":[{"id":"snap1aaaaaaa"}],"remove":[{"id":"snap2bbbbbbb"},{"id":"snap3ccccccc"}]}]
loading indexes...
finding data that is still in use for 1 snapshots
`
	executor, _ := recordingExecutor(output, nil)
	svc := NewWithExecutor(testLogger(), executor)

	result, err := svc.Forget(context.Background(), testConfig(), &retention.Policy{KeepLast: intPtr(1), Prune: true})

	require.NoError(t, err)
	assert.Equal(t, 1, result.SnapshotsKept)
	assert.Equal(t, []string{"snap2bbb", "snap3ccc"}, result.RemovedIDs)
}

func TestForget_DryRun(t *testing.T) {
	output := `[{"keep":[{"id":"snap1aaaaaaa"}],"remove":[{"id":"snap2bbbbbbb"},{"id":"snap3ccccccc"}]}]`

	executor, args := recordingExecutor(output, nil)
	svc := NewWithExecutor(testLogger(), executor)
	policy := &retention.Policy{KeepLast: intPtr(1), Prune: true}
	policy.SetDry(true)

	result, err := svc.Forget(context.Background(), testConfig(), policy)

	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 2, result.SnapshotsRemoved)
	assert.Contains(t, *args, "--dry-run")
	assert.NotContains(t, *args, "--prune")
}

func TestForget_UnparseableOutput(t *testing.T) {
	executor, _ := recordingExecutor("Applying Policy: keep 7 daily snapshots", nil)
	svc := NewWithExecutor(testLogger(), executor)

	result, err := svc.Forget(context.Background(), testConfig(), &retention.Policy{KeepDaily: intPtr(7)})

	require.NoError(t, err)
	assert.Nil(t, result.Error)
	assert.Zero(t, result.SnapshotsKept)
	assert.Zero(t, result.SnapshotsRemoved)
	assert.Empty(t, result.RemovedIDs)
}

func TestForget_Error(t *testing.T) {
	executor, _ := recordingExecutor("", errors.New("repository is locked"))
	svc := NewWithExecutor(testLogger(), executor)

	result, err := svc.Forget(context.Background(), testConfig(), &retention.Policy{KeepDaily: intPtr(7)})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.ErrorContains(t, result.Error, "forget failed")
	assert.Equal(t, []string{"--keep-daily", "7"}, result.Args)
}

func TestForget_NilPolicy(t *testing.T) {
	executor := &mockExecutor{
		runFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			t.Fatal("should not run restic without a policy")
			return nil, nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	_, err := svc.Forget(context.Background(), testConfig(), nil)

	assert.Error(t, err)
}

func TestCheck_Disabled(t *testing.T) {
	executor := &mockExecutor{
		runFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			t.Fatal("should not be called when check is disabled")
			return nil, nil
		},
	}

	svc := NewWithExecutor(testLogger(), executor)
	result, err := svc.Check(context.Background(), testConfig(), models.CheckSettings{Enabled: false})

	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestCheck_Success(t *testing.T) {
	executor, args := recordingExecutor("no errors were found", nil)
	svc := NewWithExecutor(testLogger(), executor)

	result, err := svc.Check(context.Background(), testConfig(), models.CheckSettings{Enabled: true, Subset: "5%"})

	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, []string{"check", "--read-data-subset", "5%"}, *args)
}

func TestCheck_Error(t *testing.T) {
	executor, _ := recordingExecutor("", errors.New("exit status 1: Fatal: repository contains errors"))
	svc := NewWithExecutor(testLogger(), executor)

	result, err := svc.Check(context.Background(), testConfig(), models.CheckSettings{Enabled: true})

	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.ErrorContains(t, result.Error, "repository contains errors")
}

func TestFindMessage(t *testing.T) {
	output := []byte(`{"message_type":"summary","snapshot_id":"first"}
warning: something on stdout
{"message_type":"status"}
{"message_type":"summary","snapshot_id":"second"}
`)

	var summary backupSummary
	found, err := findMessage(output, "summary", &summary)

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", summary.SnapshotID)

	found, err = findMessage(output, "error", &summary)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDecodeFirst_Empty(t *testing.T) {
	var groups []forgetGroup
	assert.ErrorIs(t, decodeFirst([]byte("  \n"), &groups), errNoJSON)
}

func TestBuildEnv(t *testing.T) {
	svc := New(testLogger())

	tests := []struct {
		name     string
		cfg      models.ResticConfig
		expected []string
	}{
		{
			name: "basic config",
			cfg:  testConfig(),
			expected: []string{
				"RESTIC_REPOSITORY=/backup",
				"RESTIC_PASSWORD=secret",
			},
		},
		{
			name: "backend environment appended",
			cfg: models.ResticConfig{
				Repository: "b2:bucket:repo",
				Password:   "secret",
				Env:        []string{"B2_ACCOUNT_ID=id", "B2_ACCOUNT_KEY=key"},
			},
			expected: []string{
				"RESTIC_REPOSITORY=b2:bucket:repo",
				"RESTIC_PASSWORD=secret",
				"B2_ACCOUNT_ID=id",
				"B2_ACCOUNT_KEY=key",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, svc.buildEnv(tt.cfg))
		})
	}
}
