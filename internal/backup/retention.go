package backup

import (
	"fmt"
	"time"

	"dms-go/internal/model"
)

// staleAfter shields live runs from retention: a pending or running record
// is only prunable once it has sat in that state this long.
const staleAfter = 24 * time.Hour

// CleanupReport summarizes a retention pass over recorded backups.
type CleanupReport struct {
	Deleted    int
	SpaceFreed int64
	Warnings   []string
}

// CleanupOldBackups deletes backups that finished before the retention
// window, oldest first, along with abandoned pending/running records older
// than staleAfter. The most recent completed backup is never deleted, even
// when it is nominally expired.
func (s *Service) CleanupOldBackups(retentionDays int) (*CleanupReport, error) {
	if retentionDays < 0 {
		return nil, fmt.Errorf("retention days must not be negative")
	}

	now := s.clock.Now()
	cutoff := now.AddDate(0, 0, -retentionDays)

	latest, err := s.database.FindLatestCompletedBackup()
	if err != nil {
		return nil, fmt.Errorf("finding latest completed backup: %w", err)
	}

	records, err := s.database.ListBackupRecords(0)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	report := &CleanupReport{}
	// ListBackupRecords is newest-first; walk backwards so deletion is
	// oldest-first.
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]

		if rec.Status == model.BackupRunning || rec.Status == model.BackupPending {
			// A run stuck in a non-terminal state was abandoned by a dead
			// process; age it out once it is clearly not live anymore.
			if now.Sub(rec.StartedAt) < staleAfter {
				continue
			}
		}
		if latest != nil && rec.ID == latest.ID {
			continue
		}
		if !expired(rec, cutoff) {
			continue
		}

		if rec.ArchiveName != "" {
			if err := s.vault.Delete(rec.ArchiveName); err != nil {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("deleting archive %s: %v", rec.ArchiveName, err))
				continue
			}
			if err := s.vault.Delete(manifestName(rec.ArchiveName)); err != nil {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("deleting manifest for %s: %v", rec.ArchiveName, err))
			}
		}

		if err := s.database.DeleteBackupRecord(rec.ID); err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("deleting backup record %s: %v", rec.ID, err))
			continue
		}

		report.Deleted++
		report.SpaceFreed += rec.Size
		s.logger.Info("backup pruned", "backup", rec.ID, "archive", rec.ArchiveName)
	}

	return report, nil
}

// expired reports whether a terminal backup run ended before the cutoff.
func expired(rec *model.BackupRecord, cutoff time.Time) bool {
	end := rec.StartedAt
	if rec.FinishedAt != nil {
		end = *rec.FinishedAt
	}
	return end.Before(cutoff)
}
