//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/fgeck/gorestic-retention/internal/retention"
	"github.com/fgeck/gorestic-retention/internal/services/restic"
	"github.com/fgeck/gorestic-retention/internal/services/runner"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getResticConfig(t *testing.T) models.ResticConfig {
	t.Helper()

	repo := os.Getenv("TEST_RESTIC_REPO")
	if repo == "" {
		t.Skip("TEST_RESTIC_REPO not set")
	}

	password := os.Getenv("TEST_RESTIC_PASSWORD")
	if password == "" {
		t.Skip("TEST_RESTIC_PASSWORD not set")
	}

	return models.ResticConfig{
		Repository: repo,
		Password:   password,
	}
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func writeTestData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.txt"), []byte("test data for backup"), 0o600))
	return dir
}

func TestResticBackupAndSnapshots_Integration(t *testing.T) {
	cfg := getResticConfig(t)
	dataDir := writeTestData(t)

	svc := restic.New(testLogger())
	require.NoError(t, svc.Init(context.Background(), cfg))

	result, err := svc.Backup(context.Background(), cfg, models.BackupSettings{
		Paths:   []string{dataDir},
		Tags:    []string{"integration-test"},
		Exclude: []string{"*.tmp"},
		Host:    "test-host",
	})

	require.NoError(t, err)
	require.Nil(t, result.Error)
	assert.NotEmpty(t, result.SnapshotID)

	snapshots, err := svc.Snapshots(context.Background(), cfg, models.SnapshotFilter{
		Host: "test-host",
		Tags: []string{"integration-test"},
	})
	require.NoError(t, err)

	found := false
	for _, snap := range snapshots {
		if snap.ID == result.SnapshotID {
			found = true
			assert.Equal(t, "test-host", snap.Hostname)
			assert.Contains(t, snap.Tags, "integration-test")
			break
		}
	}
	assert.True(t, found, "backup snapshot not found in snapshots list")
}

func TestResticForgetDryRun_Integration(t *testing.T) {
	cfg := getResticConfig(t)
	dataDir := writeTestData(t)

	svc := restic.New(testLogger())
	require.NoError(t, svc.Init(context.Background(), cfg))

	for i := 0; i < 3; i++ {
		_, err := svc.Backup(context.Background(), cfg, models.BackupSettings{
			Paths: []string{dataDir},
			Tags:  []string{"forget-test"},
			Host:  "forget-host",
		})
		require.NoError(t, err)
	}

	policy, err := retention.ParseArgs("--keep-last 1 --host forget-host --tag forget-test")
	require.NoError(t, err)
	policy.SetDry(true)

	result, err := svc.Forget(context.Background(), cfg, policy)

	require.NoError(t, err)
	require.Nil(t, result.Error)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.SnapshotsKept)
	assert.GreaterOrEqual(t, result.SnapshotsRemoved, 2)
}

func TestRunnerWithPolicyFiles_Integration(t *testing.T) {
	resticCfg := getResticConfig(t)
	policyDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(policyDir, "default.toml"), []byte(`
[restic.forget.default]
keep-last = 5
`), 0o600))

	cfg := models.BackupConfig{
		Backend: models.BackendSettings{
			Local: &models.LocalBackend{Name: resticCfg.Repository, Password: resticCfg.Password},
		},
		Backup: models.BackupSettings{
			Paths: []string{writeTestData(t)},
			Host:  "runner-host",
		},
		Retention: models.RetentionSettings{
			File:   filepath.Join(policyDir, ".toml"),
			DryRun: true,
		},
		Check: models.CheckSettings{Enabled: true},
	}

	err := runner.New(testLogger()).Run(context.Background(), cfg)
	require.NoError(t, err)

	doc, err := retention.LoadDocument(cfg.Retention.File)
	require.NoError(t, err)
	p, err := doc.Policy("local")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 5, *p.KeepLast)
}

func TestResticCheck_Integration(t *testing.T) {
	cfg := getResticConfig(t)

	svc := restic.New(testLogger())
	require.NoError(t, svc.Init(context.Background(), cfg))

	result, err := svc.Check(context.Background(), cfg, models.CheckSettings{Enabled: true})

	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Nil(t, result.Error)
}
