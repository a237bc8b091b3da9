// Package models contains the data structures used throughout gorestic-retention.
package models

// BackupConfig holds the complete configuration for a backup run.
type BackupConfig struct {
	Backend   BackendSettings
	Backup    BackupSettings
	Retention RetentionSettings
	Check     CheckSettings
	Metrics   MetricsSettings
	Schedule  ScheduleSettings
	Preflight bool // probe the backend before running restic
}

// ResticConfig is everything a restic invocation needs to reach a repository.
// It is built per backend and passed explicitly to each call.
type ResticConfig struct {
	Repository string
	Password   string
	Env        []string // extra KEY=VALUE pairs, e.g. provider credentials
}

// BackupSettings holds backup-specific settings.
type BackupSettings struct {
	Paths   []string
	Tags    []string
	Exclude []string
	Host    string
}

// RetentionSettings controls where forget policies come from.
type RetentionSettings struct {
	File        string // active policy file, empty means .toml in the working directory
	DefaultFile string // shared defaults, empty means default.toml next to File
	Policy      string // explicit restic forget arguments, bypasses the policy files
	DryRun      bool
}

// CheckSettings defines repository check behavior.
type CheckSettings struct {
	Enabled bool
	Subset  string // e.g., "1%"
}

// MetricsSettings configures the node-exporter textfile output.
type MetricsSettings struct {
	Textfile string // empty disables metrics
}

// ScheduleSettings configures the built-in scheduler.
type ScheduleSettings struct {
	Cron string // standard 5-field cron expression or descriptor such as @daily
}
