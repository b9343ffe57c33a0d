package backup

import (
	"fmt"
	"os"
	"strings"

	"dms-go/internal/checksum"
	"dms-go/internal/dms"
	"dms-go/internal/model"
)

// Service orchestrates backup runs: it snapshots the storage tree into an
// archive, ships archive plus manifest to the vault, and tracks each run in
// the database.
type Service struct {
	database  dms.Database
	files     dms.FileStore
	vault     dms.Vault
	encryptor dms.Encryptor
	logger    dms.Logger
	clock     dms.Clock
	idgen     dms.IDGenerator
	metrics   *Metrics
}

// NewService creates a backup Service with the provided dependencies.
// metrics may be nil when no Prometheus registration is wanted.
func NewService(database dms.Database, files dms.FileStore, vault dms.Vault, encryptor dms.Encryptor, logger dms.Logger, clock dms.Clock, idgen dms.IDGenerator, metrics *Metrics) *Service {
	if logger == nil {
		logger = &dms.NopLogger{}
	}
	return &Service{
		database:  database,
		files:     files,
		vault:     vault,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		metrics:   metrics,
	}
}

// Options controls a single backup run.
type Options struct {
	// Encrypt wraps the archive with the configured encryptor.
	Encrypt bool
}

// PerformBackup snapshots the storage tree into a tar.gz archive, optionally
// encrypts it, uploads archive and manifest to the vault, and records the run.
// A failure during any step finalizes the record as failed with the captured
// error; partial vault output is warned about, not rolled back.
func (s *Service) PerformBackup(opts Options) (*model.BackupRecord, error) {
	now := s.clock.Now()
	rec := &model.BackupRecord{
		ID:        s.idgen.New(),
		Status:    model.BackupPending,
		Encrypted: opts.Encrypt,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := s.database.CreateBackupRecord(rec); err != nil {
		return nil, fmt.Errorf("creating backup record: %w", err)
	}

	rec.Status = model.BackupRunning
	if err := s.database.UpdateBackupRecord(rec); err != nil {
		// Best effort; without this the record would sit in pending forever.
		s.finalize(rec, model.BackupFailed, fmt.Sprintf("marking backup running: %v", err))
		return rec, fmt.Errorf("marking backup running: %w", err)
	}

	s.logger.Info("backup started", "backup", rec.ID, "encrypt", opts.Encrypt)

	if err := s.runBackup(rec, opts); err != nil {
		s.finalize(rec, model.BackupFailed, err.Error())
		return rec, fmt.Errorf("backup %s failed: %w", rec.ID, err)
	}

	s.finalize(rec, model.BackupCompleted, "")
	s.logger.Info("backup complete", "backup", rec.ID,
		"files", rec.FileCount, "size", rec.Size)
	return rec, nil
}

// runBackup performs the archive/upload steps, mutating rec as it goes.
func (s *Service) runBackup(rec *model.BackupRecord, opts Options) error {
	if opts.Encrypt {
		if s.encryptor == nil || !s.encryptor.IsConfigured() {
			return fmt.Errorf("encryption requested but no keys are configured")
		}
	}

	archiveName := fmt.Sprintf("dms-%s-%s.tar.gz", rec.StartedAt.UTC().Format("20060102-150405"), rec.ID)
	if opts.Encrypt {
		archiveName += ".age"
	}
	rec.ArchiveName = archiveName

	tmp, err := os.CreateTemp("", "dms-backup-*.tar.gz")
	if err != nil {
		return fmt.Errorf("creating archive temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	defer tmp.Close()

	entries, err := writeArchive(s.files.Root(), tmp)
	if err != nil {
		return fmt.Errorf("building archive: %w", err)
	}

	if _, err := tmp.Seek(0, 0); err != nil {
		return fmt.Errorf("rewinding archive: %w", err)
	}

	archivePath := tmpName
	if opts.Encrypt {
		enc, err := os.CreateTemp("", "dms-backup-*.age")
		if err != nil {
			return fmt.Errorf("creating encrypted temp file: %w", err)
		}
		encName := enc.Name()
		defer os.Remove(encName)

		if err := s.encryptor.Encrypt(tmp, enc); err != nil {
			enc.Close()
			return fmt.Errorf("encrypting archive: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("closing encrypted archive: %w", err)
		}
		archivePath = encName
	}

	sum, err := checksum.SumFile(archivePath)
	if err != nil {
		return fmt.Errorf("hashing archive: %w", err)
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("stating archive: %w", err)
	}

	rec.Checksum = sum
	rec.Size = info.Size()
	rec.FileCount = int64(len(entries))

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("reopening archive: %w", err)
	}
	defer f.Close()

	if err := s.vault.Put(archiveName, f, info.Size()); err != nil {
		return fmt.Errorf("uploading archive: %w", err)
	}

	manifest := &Manifest{
		BackupID:        rec.ID,
		CreatedAt:       rec.StartedAt,
		ArchiveName:     archiveName,
		ArchiveChecksum: sum,
		ArchiveSize:     info.Size(),
		Encrypted:       opts.Encrypt,
		Files:           entries,
	}
	data, err := encodeManifest(manifest)
	if err != nil {
		return err
	}
	if err := s.vault.Put(manifestName(archiveName), strings.NewReader(string(data)), int64(len(data))); err != nil {
		// Archive is already in the vault; surface the orphan as a warning.
		rec.Warnings = appendWarning(rec.Warnings, fmt.Sprintf("manifest upload failed: %v", err))
		return fmt.Errorf("uploading manifest: %w", err)
	}

	return nil
}

// finalize stamps the terminal status on a run record. Persistence errors at
// this point are logged, not propagated; the run result stands.
func (s *Service) finalize(rec *model.BackupRecord, status, errMsg string) {
	finished := s.clock.Now()
	rec.Status = status
	rec.Error = errMsg
	rec.FinishedAt = &finished

	if err := s.database.UpdateBackupRecord(rec); err != nil {
		s.logger.Error("finalizing backup record failed", "backup", rec.ID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(status, rec.Size, finished.Sub(rec.StartedAt))
	}
}

// GetBackup returns a backup run record, or nil if none matches.
func (s *Service) GetBackup(id string) (*model.BackupRecord, error) {
	return s.database.FindBackupRecordByID(id)
}

// ListBackups returns backup runs, newest first.
func (s *Service) ListBackups(limit int) ([]*model.BackupRecord, error) {
	return s.database.ListBackupRecords(limit)
}

func appendWarning(existing, warning string) string {
	if existing == "" {
		return warning
	}
	return existing + "\n" + warning
}
