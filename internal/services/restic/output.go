package restic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fgeck/gorestic-retention/internal/models"
)

const shortIDLength = 8

// snapshotJSON is a snapshot as printed by restic snapshots and forget.
type snapshotJSON struct {
	ID       string    `json:"id"`
	ShortID  string    `json:"short_id"`
	Time     time.Time `json:"time"`
	Hostname string    `json:"hostname"`
	Tags     []string  `json:"tags"`
	Paths    []string  `json:"paths"`
}

func (s snapshotJSON) model() models.Snapshot {
	shortID := s.ShortID
	if shortID == "" && len(s.ID) >= shortIDLength {
		shortID = s.ID[:shortIDLength]
	}
	return models.Snapshot{
		ID:       s.ID,
		ShortID:  shortID,
		Time:     s.Time,
		Hostname: s.Hostname,
		Tags:     s.Tags,
		Paths:    s.Paths,
	}
}

// forgetGroup is one host/path group of restic forget --json.
type forgetGroup struct {
	Keep   []snapshotJSON `json:"keep"`
	Remove []snapshotJSON `json:"remove"`
}

// backupSummary is the final message of restic backup --json.
type backupSummary struct {
	FilesNew            int    `json:"files_new"`
	FilesChanged        int    `json:"files_changed"`
	FilesUnmodified     int    `json:"files_unmodified"`
	DataAdded           int64  `json:"data_added"`
	TotalFilesProcessed int    `json:"total_files_processed"`
	TotalBytesProcessed int64  `json:"total_bytes_processed"`
	SnapshotID          string `json:"snapshot_id"`
}

func (b backupSummary) result(d time.Duration) *models.BackupResult {
	return &models.BackupResult{
		SnapshotID:          b.SnapshotID,
		FilesNew:            b.FilesNew,
		FilesChanged:        b.FilesChanged,
		FilesUnmodified:     b.FilesUnmodified,
		DataAdded:           b.DataAdded,
		TotalFilesProcessed: b.TotalFilesProcessed,
		TotalBytesProcessed: b.TotalBytesProcessed,
		Duration:            d,
	}
}

var errNoJSON = errors.New("no JSON output")

// decodeFirst decodes the first JSON value in output into v and ignores
// whatever follows it.
func decodeFirst(output []byte, v any) error {
	if len(bytes.TrimSpace(output)) == 0 {
		return errNoJSON
	}
	return json.NewDecoder(bytes.NewReader(output)).Decode(v)
}

// findMessage scans restic's line-delimited JSON messages and decodes the
// last one of the given message_type into v. Lines that are not JSON are
// skipped.
func findMessage(output []byte, messageType string, v any) (bool, error) {
	var match []byte
	for _, line := range bytes.Split(output, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var msg struct {
			MessageType string `json:"message_type"`
		}
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		if msg.MessageType == messageType {
			match = line
		}
	}
	if match == nil {
		return false, nil
	}
	if err := json.Unmarshal(match, v); err != nil {
		return true, fmt.Errorf("decoding %s message: %w", messageType, err)
	}
	return true, nil
}
