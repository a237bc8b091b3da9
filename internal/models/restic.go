package models

import "time"

// BackupResult holds the result of a backup operation.
type BackupResult struct {
	SnapshotID          string
	FilesNew            int
	FilesChanged        int
	FilesUnmodified     int
	DataAdded           int64
	TotalFilesProcessed int
	TotalBytesProcessed int64
	Duration            time.Duration
	Error               error
}

// ForgetResult holds the result of a forget operation.
type ForgetResult struct {
	Args             []string // policy arguments passed to restic forget
	DryRun           bool
	SnapshotsRemoved int
	SnapshotsKept    int
	RemovedIDs       []string // short IDs, also filled on a dry run
	Duration         time.Duration
	Error            error
}

// CheckResult holds the result of a repository check.
type CheckResult struct {
	Passed   bool
	Duration time.Duration
	Error    error
}

// Snapshot represents a restic snapshot.
type Snapshot struct {
	ID       string
	ShortID  string
	Time     time.Time
	Hostname string
	Tags     []string
	Paths    []string
}

// SnapshotFilter narrows a snapshot listing. Zero values mean no filter.
type SnapshotFilter struct {
	Host   string
	Tags   []string // any of
	Latest int      // per host and path set
}

// RunResult summarizes one backup run for reporting.
type RunResult struct {
	RunID      string
	Backend    string
	StartTime  time.Time
	Duration   time.Duration
	Backup     *BackupResult
	Forget     *ForgetResult // nil when retention was skipped
	Check      *CheckResult  // nil when checks are disabled
	FailedStep string
	Error      error
}
