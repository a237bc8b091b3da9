// Package runner orchestrates the backup workflow.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fgeck/gorestic-retention/internal/backend"
	"github.com/fgeck/gorestic-retention/internal/metrics"
	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/fgeck/gorestic-retention/internal/retention"
	"github.com/fgeck/gorestic-retention/internal/services/objectstore"
	"github.com/fgeck/gorestic-retention/internal/services/restic"
	"github.com/fgeck/gorestic-retention/internal/services/ssh"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Steps reported in RunResult.FailedStep.
const (
	StepSelect    = "select"
	StepPreflight = "preflight"
	StepInit      = "init"
	StepBackup    = "backup"
	StepForget    = "forget"
	StepCheck     = "check"
)

// ErrNotReachable is returned when a preflight probe fails.
var ErrNotReachable = errors.New("repository host not reachable")

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, cfg models.BackupConfig) error
	Forget(ctx context.Context, cfg models.BackupConfig, dryRun bool) (*models.ForgetResult, error)
	Preflight(ctx context.Context, cfg models.BackupConfig) error
	Snapshots(ctx context.Context, cfg models.BackupConfig, filter models.SnapshotFilter) ([]models.Snapshot, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	resticSvc restic.Service
	sshSvc    ssh.Service
	bucketSvc objectstore.Service
	registry  *backend.Registry
	recorder  *metrics.Recorder
	newRunID  func() string
	logger    zerolog.Logger
}

// New creates a new runner service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		resticSvc: restic.New(logger),
		sshSvc:    ssh.New(logger),
		bucketSvc: objectstore.New(logger),
		registry:  backend.Default(),
		recorder:  metrics.NewRecorder(),
		newRunID:  uuid.NewString,
		logger:    logger,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	resticSvc restic.Service,
	sshSvc ssh.Service,
	bucketSvc objectstore.Service,
	registry *backend.Registry,
	recorder *metrics.Recorder,
) *Impl {
	return &Impl{
		resticSvc: resticSvc,
		sshSvc:    sshSvc,
		bucketSvc: bucketSvc,
		registry:  registry,
		recorder:  recorder,
		newRunID:  uuid.NewString,
		logger:    logger,
	}
}

// Run executes the complete backup workflow.
//
//nolint:gocognit,gocyclo // backup workflow has multiple steps by design
func (s *Impl) Run(ctx context.Context, cfg models.BackupConfig) error {
	result := models.RunResult{
		RunID:     s.newRunID(),
		StartTime: time.Now(),
	}
	logger := s.logger.With().Str("run_id", result.RunID).Logger()

	fail := func(step string, err error) error {
		result.FailedStep = step
		result.Error = err
		return err
	}

	defer func() {
		result.Duration = time.Since(result.StartTime)
		s.report(logger, cfg, result)
	}()

	reg, resticCfg, err := s.selectBackend(cfg)
	if err != nil {
		return fail(StepSelect, err)
	}
	result.Backend = reg.ShortName
	logger = logger.With().Str("backend", reg.ShortName).Logger()

	logger.Info().
		Str("repository", resticCfg.Repository).
		Str("host", cfg.Backup.Host).
		Msg("starting backup run")

	// Step 1: Preflight (if enabled)
	if cfg.Preflight {
		if err := s.probe(ctx, logger, cfg, reg); err != nil {
			return fail(StepPreflight, err)
		}
	}

	// Step 2: Initialize repository (if needed)
	if err := s.resticSvc.Init(ctx, resticCfg); err != nil {
		return fail(StepInit, fmt.Errorf("init failed: %w", err))
	}

	// Step 3: Backup
	backupResult, err := s.resticSvc.Backup(ctx, resticCfg, cfg.Backup)
	if err != nil {
		return fail(StepBackup, fmt.Errorf("backup failed: %w", err))
	}
	result.Backup = backupResult
	if backupResult.Error != nil {
		return fail(StepBackup, fmt.Errorf("backup failed: %w", backupResult.Error))
	}

	// Step 4: Apply retention policy
	forgetResult, err := s.applyRetention(ctx, logger, cfg, reg, resticCfg, false)
	result.Forget = forgetResult
	if err != nil {
		return fail(StepForget, fmt.Errorf("forget failed: %w", err))
	}

	// Step 5: Repository check (if enabled)
	if cfg.Check.Enabled {
		checkResult, err := s.resticSvc.Check(ctx, resticCfg, cfg.Check)
		if err != nil {
			return fail(StepCheck, fmt.Errorf("check failed: %w", err))
		}
		result.Check = checkResult
		if checkResult.Error != nil {
			return fail(StepCheck, fmt.Errorf("check failed: %w", checkResult.Error))
		}
		if !checkResult.Passed {
			return fail(StepCheck, fmt.Errorf("repository check failed"))
		}
	}

	return nil
}

// Forget runs only the retention step against the selected backend.
// A nil result with a nil error means no policy was configured.
func (s *Impl) Forget(ctx context.Context, cfg models.BackupConfig, dryRun bool) (*models.ForgetResult, error) {
	reg, resticCfg, err := s.selectBackend(cfg)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With().Str("backend", reg.ShortName).Logger()

	return s.applyRetention(ctx, logger, cfg, reg, resticCfg, dryRun)
}

// Preflight probes the selected backend's host without touching the repository.
func (s *Impl) Preflight(ctx context.Context, cfg models.BackupConfig) error {
	reg, _, err := s.selectBackend(cfg)
	if err != nil {
		return err
	}
	return s.probe(ctx, s.logger.With().Str("backend", reg.ShortName).Logger(), cfg, reg)
}

// Snapshots lists the selected backend's snapshots. An empty filter host
// means the configured backup host.
func (s *Impl) Snapshots(ctx context.Context, cfg models.BackupConfig, filter models.SnapshotFilter) ([]models.Snapshot, error) {
	_, resticCfg, err := s.selectBackend(cfg)
	if err != nil {
		return nil, err
	}
	if filter.Host == "" {
		filter.Host = cfg.Backup.Host
	}
	return s.resticSvc.Snapshots(ctx, resticCfg, filter)
}

func (s *Impl) selectBackend(cfg models.BackupConfig) (backend.Registration, models.ResticConfig, error) {
	reg, err := s.registry.Select(cfg.Backend)
	if err != nil {
		return backend.Registration{}, models.ResticConfig{}, fmt.Errorf("selecting backend: %w", err)
	}

	resticCfg, err := reg.Backend.ResticConfig(cfg.Backend, cfg.Backup.Host)
	if err != nil {
		return reg, models.ResticConfig{}, fmt.Errorf("configuring backend %s: %w", reg.ShortName, err)
	}
	return reg, resticCfg, nil
}

func (s *Impl) probe(ctx context.Context, logger zerolog.Logger, cfg models.BackupConfig, reg backend.Registration) error {
	switch b := reg.Backend.(type) {
	case backend.SSHBackend:
		target, err := b.SSHTarget(cfg.Backend)
		if err != nil {
			return fmt.Errorf("preflight: %w", err)
		}
		result, err := s.sshSvc.Probe(ctx, target)
		if err != nil {
			return fmt.Errorf("preflight: %w", err)
		}
		if !result.Reachable {
			return fmt.Errorf("%w: %s: %w", ErrNotReachable, target.Host, result.Error)
		}
		logger.Info().Str("host", target.Host).Dur("duration", result.Duration).Msg("preflight passed")

	case backend.BucketBackend:
		target, err := b.BucketTarget(cfg.Backend)
		if err != nil {
			return fmt.Errorf("preflight: %w", err)
		}
		result, err := s.bucketSvc.Probe(ctx, target)
		if err != nil {
			return fmt.Errorf("preflight: %w", err)
		}
		if !result.Reachable {
			return fmt.Errorf("%w: %s: %w", ErrNotReachable, target.Bucket, result.Error)
		}
		logger.Info().Str("bucket", target.Bucket).Dur("duration", result.Duration).Msg("preflight passed")

	default:
		logger.Debug().Msg("backend has no preflight probe")
	}
	return nil
}

func (s *Impl) applyRetention(
	ctx context.Context,
	logger zerolog.Logger,
	cfg models.BackupConfig,
	reg backend.Registration,
	resticCfg models.ResticConfig,
	dryRun bool,
) (*models.ForgetResult, error) {
	policy, err := s.resolvePolicy(logger, cfg.Retention, reg)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		logger.Warn().Msg("no policy configured, skipping retention")
		return nil, nil
	}

	policy.SetDry(cfg.Retention.DryRun || dryRun)

	result, err := s.resticSvc.Forget(ctx, resticCfg, policy)
	if err != nil {
		return nil, err
	}
	if result.Error != nil {
		return result, result.Error
	}
	return result, nil
}

// resolvePolicy prefers an explicit override and otherwise looks the backend
// up by short name and aliases in the policy files.
func (s *Impl) resolvePolicy(logger zerolog.Logger, settings models.RetentionSettings, reg backend.Registration) (*retention.Policy, error) {
	if settings.Policy != "" {
		policy, err := retention.ParseArgs(settings.Policy)
		if err != nil {
			return nil, fmt.Errorf("parsing retention.policy: %w", err)
		}
		logger.Info().Str("policy", policy.String()).Msg("using retention policy override")
		return policy, nil
	}

	store, err := retention.NewStore(settings.File, settings.DefaultFile, logger)
	if err != nil {
		return nil, err
	}

	res, err := store.Resolve(reg.ShortName, reg.Aliases...)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	logger.Info().
		Str("subkey", res.Subkey).
		Stringer("tier", res.Tier).
		Str("file", store.Path).
		Msg("resolved retention policy")
	return res.Policy, nil
}

func (s *Impl) report(logger zerolog.Logger, cfg models.BackupConfig, result models.RunResult) {
	if result.Error != nil {
		logger.Error().
			Err(result.Error).
			Str("failed_step", result.FailedStep).
			Dur("duration", result.Duration).
			Msg("backup run failed")
	} else {
		logger.Info().
			Dur("duration", result.Duration).
			Msg("backup run completed successfully")
	}

	if cfg.Metrics.Textfile == "" || s.recorder == nil {
		return
	}
	s.recorder.Record(result)
	if err := s.recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Error().Err(err).Str("path", cfg.Metrics.Textfile).Msg("failed to write metrics")
		return
	}
	logger.Debug().Str("path", cfg.Metrics.Textfile).Msg("metrics written")
}
