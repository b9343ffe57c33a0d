package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dms-go/internal/checksum"
	"dms-go/internal/dms"
)

// RestoreOptions controls how an archive is applied to the storage tree.
type RestoreOptions struct {
	// Overwrite replaces existing files; without it they are skipped with a
	// per-file warning.
	Overwrite bool

	// ValidateIntegrity verifies the archive checksum against the backup
	// record before anything touches the storage tree.
	ValidateIntegrity bool

	// DryRun inventories the archive without writing anything.
	DryRun bool

	// Decryption unlocks encrypted archives. Required when the backup
	// record is flagged encrypted.
	Decryption dms.DecryptionContext
}

// RestoreResult reports the outcome of a restore run. Per-file problems
// accumulate in Warnings; the run continues past them.
type RestoreResult struct {
	BackupID      string
	FilesRestored int
	FilesSkipped  int
	DryRun        bool
	Warnings      []string
}

// RestoreFromBackup fetches the archive for a recorded run and extracts it
// over the live storage tree.
func (s *Service) RestoreFromBackup(backupID string, opts RestoreOptions) (*RestoreResult, error) {
	rec, err := s.database.FindBackupRecordByID(backupID)
	if err != nil {
		return nil, fmt.Errorf("looking up backup: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("backup not found: %s", backupID)
	}
	if rec.ArchiveName == "" {
		return nil, fmt.Errorf("backup %s has no archive", backupID)
	}
	if rec.Encrypted && opts.Decryption == nil {
		return nil, fmt.Errorf("backup %s is encrypted; unlock keys first", backupID)
	}

	// Pull the archive into a temp file so integrity can be checked before
	// extraction and the vault stream is only consumed once.
	tmp, err := os.CreateTemp("", "dms-restore-*")
	if err != nil {
		return nil, fmt.Errorf("creating restore temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := s.vault.Get(rec.ArchiveName, tmp); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("fetching archive %s: %w", rec.ArchiveName, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing restore temp file: %w", err)
	}

	result := &RestoreResult{BackupID: backupID, DryRun: opts.DryRun}

	if opts.ValidateIntegrity {
		if rec.Checksum == "" {
			result.Warnings = append(result.Warnings,
				"backup record has no checksum; archive integrity not verified")
		} else {
			sum, err := checksum.SumFile(tmpName)
			if err != nil {
				return nil, fmt.Errorf("hashing archive: %w", err)
			}
			if sum != rec.Checksum {
				return nil, fmt.Errorf("archive checksum mismatch: recorded %s, got %s", rec.Checksum, sum)
			}
		}
	}

	plainPath := tmpName
	if rec.Encrypted {
		dec, err := os.CreateTemp("", "dms-restore-*.tar.gz")
		if err != nil {
			return nil, fmt.Errorf("creating decryption temp file: %w", err)
		}
		decName := dec.Name()
		defer os.Remove(decName)

		encFile, err := os.Open(tmpName)
		if err != nil {
			dec.Close()
			return nil, fmt.Errorf("reopening archive: %w", err)
		}
		if err := opts.Decryption.Decrypt(encFile, dec); err != nil {
			encFile.Close()
			dec.Close()
			return nil, fmt.Errorf("decrypting archive: %w", err)
		}
		encFile.Close()
		if err := dec.Close(); err != nil {
			return nil, fmt.Errorf("closing decrypted archive: %w", err)
		}
		plainPath = decName
	}

	archive, err := os.Open(plainPath)
	if err != nil {
		return nil, fmt.Errorf("opening archive for extraction: %w", err)
	}
	defer archive.Close()

	root := s.files.Root()

	err = readArchive(archive, func(relPath string, size int64) (io.WriteCloser, error) {
		target := filepath.Join(root, filepath.FromSlash(relPath))

		if _, err := os.Stat(target); err == nil && !opts.Overwrite {
			result.FilesSkipped++
			result.Warnings = append(result.Warnings, fmt.Sprintf("exists, skipped: %s", relPath))
			return nil, nil
		}

		if opts.DryRun {
			result.FilesRestored++
			return nil, nil
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", relPath, err)
		}
		f, err := os.Create(target)
		if err != nil {
			// Keep going; a single unwritable file should not abort the run.
			result.Warnings = append(result.Warnings, fmt.Sprintf("cannot write %s: %v", relPath, err))
			return nil, nil
		}
		result.FilesRestored++
		return f, nil
	})
	if err != nil {
		return result, fmt.Errorf("extracting archive: %w", err)
	}

	s.logger.Info("restore complete", "backup", backupID,
		"restored", result.FilesRestored, "skipped", result.FilesSkipped,
		"dryRun", opts.DryRun)
	return result, nil
}
