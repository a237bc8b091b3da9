// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.BackupConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.BackupConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

func (p *Parser) parse() (*models.BackupConfig, error) {
	cfg := &models.BackupConfig{
		Backend: p.parseBackends(),
	}

	cfg.Backup = models.BackupSettings{
		Paths:   p.v.GetStringSlice("backup.paths"),
		Tags:    p.v.GetStringSlice("backup.tags"),
		Exclude: p.v.GetStringSlice("backup.exclude"),
		Host:    p.v.GetString("backup.host"),
	}

	// Set default host if not specified.
	if cfg.Backup.Host == "" {
		hostname, err := os.Hostname()
		if err != nil {
			cfg.Backup.Host = "unknown"
		} else {
			cfg.Backup.Host = hostname
		}
	}

	cfg.Retention = models.RetentionSettings{
		File:        p.expandEnv(p.v.GetString("retention.file")),
		DefaultFile: p.expandEnv(p.v.GetString("retention.default_file")),
		Policy:      p.v.GetString("retention.policy"),
		DryRun:      p.v.GetBool("retention.dry_run"),
	}

	cfg.Check = models.CheckSettings{
		Enabled: p.v.GetBool("check.enabled"),
		Subset:  p.v.GetString("check.subset"),
	}

	cfg.Metrics = models.MetricsSettings{
		Textfile: p.expandEnv(p.v.GetString("metrics.textfile")),
	}

	cfg.Schedule = models.ScheduleSettings{
		Cron: p.v.GetString("schedule.cron"),
	}

	cfg.Preflight = p.v.GetBool("preflight")

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

//nolint:gocognit,gocyclo // one block per backend
func (p *Parser) parseBackends() models.BackendSettings {
	b := models.BackendSettings{
		Name: strings.ToLower(p.v.GetString("backend.name")),
	}

	if p.v.IsSet("backend.local") {
		b.Local = &models.LocalBackend{
			Name:     p.expandEnv(p.v.GetString("backend.local.name")),
			Password: p.expandEnv(p.v.GetString("backend.local.password")),
		}
	}

	if p.v.IsSet("backend.sftp") {
		b.SFTP = &models.SFTPBackend{
			Hostname:       p.v.GetString("backend.sftp.hostname"),
			Name:           p.v.GetString("backend.sftp.name"),
			Password:       p.expandEnv(p.v.GetString("backend.sftp.password")),
			Port:           p.v.GetInt("backend.sftp.port"),
			Username:       p.v.GetString("backend.sftp.username"),
			KeyPath:        p.expandEnv(p.v.GetString("backend.sftp.key_path")),
			KnownHostsPath: p.expandEnv(p.v.GetString("backend.sftp.known_hosts_path")),
		}
		if b.SFTP.Port == 0 {
			b.SFTP.Port = 22
		}
	}

	if p.v.IsSet("backend.b2") {
		b.B2 = &models.B2Backend{
			BucketName: p.v.GetString("backend.b2.bucket_name"),
			Name:       p.v.GetString("backend.b2.name"),
			Password:   p.expandEnv(p.v.GetString("backend.b2.password")),
			AccountID:  p.expandEnv(p.v.GetString("backend.b2.account_id")),
			AccountKey: p.expandEnv(p.v.GetString("backend.b2.account_key")),
		}
	}

	if p.v.IsSet("backend.swift") {
		b.Swift = &models.SwiftBackend{
			AuthURL:           p.v.GetString("backend.swift.auth_url"),
			ProjectID:         p.expandEnv(p.v.GetString("backend.swift.project_id")),
			ProjectName:       p.v.GetString("backend.swift.project_name"),
			ProjectDomainName: p.v.GetString("backend.swift.project_domain_name"),
			RegionName:        p.v.GetString("backend.swift.region_name"),
			Username:          p.expandEnv(p.v.GetString("backend.swift.username")),
			Password:          p.expandEnv(p.v.GetString("backend.swift.password")),
			ContainerName:     p.v.GetString("backend.swift.container_name"),
			Name:              p.v.GetString("backend.swift.name"),
			ResticPassword:    p.expandEnv(p.v.GetString("backend.swift.restic_password")),
		}
		if b.Swift.RegionName == "" {
			b.Swift.RegionName = "NL"
		}
		if b.Swift.ContainerName == "" {
			b.Swift.ContainerName = "backups"
		}
	}

	if p.v.IsSet("backend.s3") {
		b.S3 = &models.S3Backend{
			URL:             p.v.GetString("backend.s3.url"),
			Name:            p.v.GetString("backend.s3.name"),
			Password:        p.expandEnv(p.v.GetString("backend.s3.password")),
			AccessKeyID:     p.expandEnv(p.v.GetString("backend.s3.access_key_id")),
			SecretAccessKey: p.expandEnv(p.v.GetString("backend.s3.secret_access_key")),
			Region:          p.v.GetString("backend.s3.region"),
		}
	}

	if p.v.IsSet("backend.r2") {
		b.R2 = &models.R2Backend{
			AccountID:       p.expandEnv(p.v.GetString("backend.r2.account_id")),
			Name:            p.v.GetString("backend.r2.name"),
			Password:        p.expandEnv(p.v.GetString("backend.r2.password")),
			AccessKeyID:     p.expandEnv(p.v.GetString("backend.r2.access_key_id")),
			SecretAccessKey: p.expandEnv(p.v.GetString("backend.r2.secret_access_key")),
		}
	}

	if p.v.IsSet("backend.oracle") {
		b.Oracle = &models.OracleBackend{
			Namespace:       p.v.GetString("backend.oracle.namespace"),
			Region:          p.v.GetString("backend.oracle.region"),
			Name:            p.v.GetString("backend.oracle.name"),
			Password:        p.expandEnv(p.v.GetString("backend.oracle.password")),
			AccessKeyID:     p.expandEnv(p.v.GetString("backend.oracle.access_key_id")),
			SecretAccessKey: p.expandEnv(p.v.GetString("backend.oracle.secret_access_key")),
		}
		if b.Oracle.Region == "" {
			b.Oracle.Region = "eu-amsterdam-1"
		}
	}

	if p.v.IsSet("backend.rest") {
		b.Rest = &models.RestBackend{
			URL:          p.v.GetString("backend.rest.url"),
			Name:         p.v.GetString("backend.rest.name"),
			Password:     p.expandEnv(p.v.GetString("backend.rest.password")),
			RestUser:     p.expandEnv(p.v.GetString("backend.rest.rest_user")),
			RestPassword: p.expandEnv(p.v.GetString("backend.rest.rest_password")),
		}
	}

	return b
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration and reports every
// problem found.
func Validate(cfg *models.BackupConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var err error

	if len(cfg.Backup.Paths) == 0 {
		err = multierr.Append(err, fmt.Errorf("backup.paths is required"))
	}

	b := cfg.Backend
	if b.Local == nil && b.SFTP == nil && b.B2 == nil && b.Swift == nil &&
		b.S3 == nil && b.R2 == nil && b.Oracle == nil && b.Rest == nil {
		err = multierr.Append(err, fmt.Errorf("at least one backend section is required"))
	}

	if cfg.Check.Subset != "" && !cfg.Check.Enabled {
		err = multierr.Append(err, fmt.Errorf("check.subset is set but check.enabled is false"))
	}

	if cfg.Schedule.Cron != "" {
		if _, cronErr := cron.ParseStandard(cfg.Schedule.Cron); cronErr != nil {
			err = multierr.Append(err, fmt.Errorf("schedule.cron is invalid: %w", cronErr))
		}
	}

	return err
}
