// Package restic drives the restic binary for a single repository.
package restic

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/fgeck/gorestic-retention/internal/retention"
	"github.com/rs/zerolog"
)

const resticBinary = "restic"

// Service defines the interface for restic operations.
type Service interface {
	Init(ctx context.Context, cfg models.ResticConfig) error
	Snapshots(ctx context.Context, cfg models.ResticConfig, filter models.SnapshotFilter) ([]models.Snapshot, error)
	Backup(ctx context.Context, cfg models.ResticConfig, settings models.BackupSettings) (*models.BackupResult, error)
	Forget(ctx context.Context, cfg models.ResticConfig, policy *retention.Policy) (*models.ForgetResult, error)
	Check(ctx context.Context, cfg models.ResticConfig, settings models.CheckSettings) (*models.CheckResult, error)
}

// CommandExecutor runs a command with extra environment variables and
// returns its stdout. Stderr is folded into the returned error.
type CommandExecutor interface {
	Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Run executes name with env appended to the current environment.
func (e *DefaultExecutor) Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return output, fmt.Errorf("%w: %s", err, msg)
		}
		return output, err
	}
	return output, nil
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new restic service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new restic service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// buildEnv returns the restic environment for cfg. Backend variables come last.
func (s *Impl) buildEnv(cfg models.ResticConfig) []string {
	env := []string{
		"RESTIC_REPOSITORY=" + cfg.Repository,
		"RESTIC_PASSWORD=" + cfg.Password,
	}
	return append(env, cfg.Env...)
}

func (s *Impl) restic(ctx context.Context, cfg models.ResticConfig, args ...string) ([]byte, error) {
	s.logger.Debug().Strs("args", args).Msg("running restic")
	return s.executor.Run(ctx, s.buildEnv(cfg), resticBinary, args...)
}

// Init creates the repository unless its config can already be read.
func (s *Impl) Init(ctx context.Context, cfg models.ResticConfig) error {
	logger := s.logger.With().Str("repository", cfg.Repository).Logger()

	if _, err := s.restic(ctx, cfg, "cat", "config"); err == nil {
		logger.Debug().Msg("repository already initialized")
		return nil
	}

	logger.Info().Msg("initializing repository")
	if _, err := s.restic(ctx, cfg, "init", "--repository-version", "2"); err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}

	logger.Info().Msg("repository initialized")
	return nil
}

func snapshotArgs(filter models.SnapshotFilter) []string {
	args := []string{"snapshots", "--json"}
	if filter.Host != "" {
		args = append(args, "--host", filter.Host)
	}
	for _, tag := range filter.Tags {
		args = append(args, "--tag", tag)
	}
	if filter.Latest > 0 {
		args = append(args, "--latest", strconv.Itoa(filter.Latest))
	}
	return args
}

// Snapshots lists the snapshots matching filter in the order restic
// reports them, oldest first.
func (s *Impl) Snapshots(ctx context.Context, cfg models.ResticConfig, filter models.SnapshotFilter) ([]models.Snapshot, error) {
	output, err := s.restic(ctx, cfg, snapshotArgs(filter)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var raw []snapshotJSON
	if err := decodeFirst(output, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse snapshots: %w", err)
	}

	snapshots := make([]models.Snapshot, 0, len(raw))
	for _, snap := range raw {
		snapshots = append(snapshots, snap.model())
	}

	s.logger.Debug().
		Str("host", filter.Host).
		Strs("tags", filter.Tags).
		Int("count", len(snapshots)).
		Msg("snapshots listed")
	return snapshots, nil
}

func backupArgs(settings models.BackupSettings) []string {
	args := []string{"backup", "--json"}
	if settings.Host != "" {
		args = append(args, "--host", settings.Host)
	}
	for _, tag := range settings.Tags {
		args = append(args, "--tag", tag)
	}
	for _, pattern := range settings.Exclude {
		args = append(args, "--exclude", pattern)
	}
	return append(args, settings.Paths...)
}

// Backup creates a snapshot of settings.Paths. Restic failures are reported
// in the result's Error field.
func (s *Impl) Backup(ctx context.Context, cfg models.ResticConfig, settings models.BackupSettings) (*models.BackupResult, error) {
	s.logger.Info().Strs("paths", settings.Paths).Msg("starting backup")

	start := time.Now()
	output, err := s.restic(ctx, cfg, backupArgs(settings)...)
	if err != nil {
		return &models.BackupResult{
			Duration: time.Since(start),
			Error:    fmt.Errorf("backup failed: %w", err),
		}, nil
	}

	var summary backupSummary
	found, err := findMessage(output, "summary", &summary)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Msg("failed to parse backup summary")
	case !found:
		s.logger.Warn().Msg("restic printed no backup summary")
	}

	result := summary.result(time.Since(start))

	s.logger.Info().
		Str("snapshot_id", result.SnapshotID).
		Int("files_new", result.FilesNew).
		Int("files_changed", result.FilesChanged).
		Int64("data_added", result.DataAdded).
		Dur("duration", result.Duration).
		Msg("backup completed")

	return result, nil
}

// Forget applies policy with restic forget. Dry run and prune are taken
// from the policy as is.
func (s *Impl) Forget(ctx context.Context, cfg models.ResticConfig, policy *retention.Policy) (*models.ForgetResult, error) {
	if policy == nil {
		return nil, fmt.Errorf("no retention policy given")
	}

	result := &models.ForgetResult{
		Args:   policy.Args(),
		DryRun: policy.Dry(),
	}

	s.logger.Info().
		Str("policy", policy.String()).
		Bool("dry_run", result.DryRun).
		Msg("applying retention policy")

	start := time.Now()
	args := append([]string{"forget"}, result.Args...)
	output, err := s.restic(ctx, cfg, append(args, "--json")...)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = fmt.Errorf("forget failed: %w", err)
		return result, nil
	}

	// With --prune restic keeps printing after the JSON array.
	var groups []forgetGroup
	if err := decodeFirst(output, &groups); err != nil {
		s.logger.Debug().Err(err).Msg("could not parse forget output")
	}
	for _, group := range groups {
		result.SnapshotsKept += len(group.Keep)
		result.SnapshotsRemoved += len(group.Remove)
		for _, snap := range group.Remove {
			result.RemovedIDs = append(result.RemovedIDs, snap.model().ShortID)
		}
	}

	s.logger.Info().
		Int("kept", result.SnapshotsKept).
		Int("removed", result.SnapshotsRemoved).
		Bool("dry_run", result.DryRun).
		Dur("duration", result.Duration).
		Msg("retention policy applied")

	return result, nil
}

// Check verifies the repository integrity, reading the configured subset of
// pack data.
func (s *Impl) Check(ctx context.Context, cfg models.ResticConfig, settings models.CheckSettings) (*models.CheckResult, error) {
	if !settings.Enabled {
		return &models.CheckResult{Passed: true}, nil
	}

	s.logger.Info().Str("subset", settings.Subset).Msg("checking repository")

	args := []string{"check"}
	if settings.Subset != "" {
		args = append(args, "--read-data-subset", settings.Subset)
	}

	start := time.Now()
	_, err := s.restic(ctx, cfg, args...)
	result := &models.CheckResult{Duration: time.Since(start)}
	if err != nil {
		result.Error = fmt.Errorf("check failed: %w", err)
		return result, nil
	}

	result.Passed = true
	s.logger.Info().Dur("duration", result.Duration).Msg("repository check completed")
	return result, nil
}
