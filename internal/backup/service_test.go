package backup_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dms-go/internal/backup"
	"dms-go/internal/config"
	"dms-go/internal/dms"
	"dms-go/internal/model"
	"dms-go/internal/storage"
	"dms-go/internal/testutil"
)

type fixture struct {
	db      dms.Database
	files   dms.FileStore
	vault   dms.Vault
	enc     dms.Encryptor
	clock   *testutil.StubClock
	service *backup.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDatabase(t)
	files, err := storage.NewStore(config.StorageConfig{Root: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	vault := testutil.NewTestVault()
	enc := testutil.NewTestEncryptor()
	clock := testutil.FixedClock()

	svc := backup.NewService(db, files, vault, enc, nil, clock, testutil.NewStubIDGenerator(), nil)
	return &fixture{db: db, files: files, vault: vault, enc: enc, clock: clock, service: svc}
}

func (f *fixture) seedFile(t *testing.T, name, content string) {
	t.Helper()
	res, err := f.files.Upload([]byte(content), name, dms.UploadOptions{})
	if err != nil {
		t.Fatalf("Upload(%s) error = %v", name, err)
	}
	if !res.Success {
		t.Fatalf("Upload(%s) failed: %v", name, res.Errors)
	}
}

func TestService_PerformBackup(t *testing.T) {
	t.Run("completes and records archive details", func(t *testing.T) {
		f := newFixture(t)
		f.seedFile(t, "a.txt", "alpha")
		f.seedFile(t, "b.txt", "bravo")

		rec, err := f.service.PerformBackup(backup.Options{})
		if err != nil {
			t.Fatalf("PerformBackup() error = %v", err)
		}

		if rec.Status != model.BackupCompleted {
			t.Errorf("Status = %q, want completed", rec.Status)
		}
		if rec.FileCount != 2 {
			t.Errorf("FileCount = %d, want 2", rec.FileCount)
		}
		if rec.Size <= 0 {
			t.Errorf("Size = %d, want > 0", rec.Size)
		}
		if rec.Checksum == "" {
			t.Error("Checksum is empty")
		}
		if rec.FinishedAt == nil {
			t.Error("FinishedAt is nil")
		}

		// Archive and manifest are both in the vault.
		var archive bytes.Buffer
		if err := f.vault.Get(rec.ArchiveName, &archive); err != nil {
			t.Fatalf("vault missing archive: %v", err)
		}
		if got := testutil.SHA256Hex(archive.Bytes()); got != rec.Checksum {
			t.Errorf("archive checksum = %s, recorded %s", got, rec.Checksum)
		}

		var manifestBuf bytes.Buffer
		if err := f.vault.Get(rec.ArchiveName+".manifest.json", &manifestBuf); err != nil {
			t.Fatalf("vault missing manifest: %v", err)
		}
		var manifest backup.Manifest
		if err := json.Unmarshal(manifestBuf.Bytes(), &manifest); err != nil {
			t.Fatalf("decoding manifest: %v", err)
		}
		if len(manifest.Files) != 2 {
			t.Errorf("manifest files = %d, want 2", len(manifest.Files))
		}
		if manifest.ArchiveChecksum != rec.Checksum {
			t.Error("manifest checksum disagrees with record")
		}
	})

	t.Run("encrypted run flags the record", func(t *testing.T) {
		f := newFixture(t)
		f.seedFile(t, "a.txt", "alpha")

		rec, err := f.service.PerformBackup(backup.Options{Encrypt: true})
		if err != nil {
			t.Fatalf("PerformBackup() error = %v", err)
		}
		if !rec.Encrypted {
			t.Error("Encrypted = false")
		}
		if filepath.Ext(rec.ArchiveName) != ".age" {
			t.Errorf("ArchiveName = %q, want .age suffix", rec.ArchiveName)
		}
	})

	t.Run("failure finalizes the record as failed", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		files, err := storage.NewStore(config.StorageConfig{Root: t.TempDir()}, nil)
		if err != nil {
			t.Fatalf("NewStore() error = %v", err)
		}
		// No encryptor configured but encryption requested.
		svc := backup.NewService(db, files, testutil.NewTestVault(), nil, nil,
			testutil.FixedClock(), testutil.NewStubIDGenerator(), nil)

		rec, err := svc.PerformBackup(backup.Options{Encrypt: true})
		if err == nil {
			t.Fatal("PerformBackup() expected error")
		}
		if rec.Status != model.BackupFailed {
			t.Errorf("Status = %q, want failed", rec.Status)
		}
		if rec.Error == "" {
			t.Error("Error string is empty")
		}
	})
}

func TestService_RestoreFromBackup(t *testing.T) {
	t.Run("round trips the storage tree", func(t *testing.T) {
		f := newFixture(t)
		f.seedFile(t, "a.txt", "alpha")
		f.seedFile(t, "b.txt", "bravo")

		rec, err := f.service.PerformBackup(backup.Options{})
		if err != nil {
			t.Fatalf("PerformBackup() error = %v", err)
		}

		// Wipe the tree, then restore.
		if err := f.files.Delete("documents/a.txt"); err != nil {
			t.Fatal(err)
		}
		if err := f.files.Delete("documents/b.txt"); err != nil {
			t.Fatal(err)
		}

		res, err := f.service.RestoreFromBackup(rec.ID, backup.RestoreOptions{ValidateIntegrity: true})
		if err != nil {
			t.Fatalf("RestoreFromBackup() error = %v", err)
		}
		if res.FilesRestored != 2 {
			t.Errorf("FilesRestored = %d, want 2", res.FilesRestored)
		}

		data, _, err := f.files.Download("documents/a.txt")
		if err != nil {
			t.Fatalf("Download() after restore error = %v", err)
		}
		if string(data) != "alpha" {
			t.Errorf("restored content = %q, want alpha", data)
		}
	})

	t.Run("skips existing files without overwrite", func(t *testing.T) {
		f := newFixture(t)
		f.seedFile(t, "a.txt", "alpha")

		rec, err := f.service.PerformBackup(backup.Options{})
		if err != nil {
			t.Fatalf("PerformBackup() error = %v", err)
		}

		res, err := f.service.RestoreFromBackup(rec.ID, backup.RestoreOptions{})
		if err != nil {
			t.Fatalf("RestoreFromBackup() error = %v", err)
		}
		if res.FilesSkipped != 1 {
			t.Errorf("FilesSkipped = %d, want 1", res.FilesSkipped)
		}
		if len(res.Warnings) != 1 {
			t.Errorf("Warnings = %v, want one skip warning", res.Warnings)
		}

		res, err = f.service.RestoreFromBackup(rec.ID, backup.RestoreOptions{Overwrite: true})
		if err != nil {
			t.Fatalf("RestoreFromBackup(overwrite) error = %v", err)
		}
		if res.FilesRestored != 1 {
			t.Errorf("FilesRestored = %d, want 1", res.FilesRestored)
		}
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		f := newFixture(t)
		f.seedFile(t, "a.txt", "alpha")

		rec, err := f.service.PerformBackup(backup.Options{})
		if err != nil {
			t.Fatalf("PerformBackup() error = %v", err)
		}
		if err := f.files.Delete("documents/a.txt"); err != nil {
			t.Fatal(err)
		}

		res, err := f.service.RestoreFromBackup(rec.ID, backup.RestoreOptions{DryRun: true})
		if err != nil {
			t.Fatalf("RestoreFromBackup() error = %v", err)
		}
		if res.FilesRestored != 1 {
			t.Errorf("FilesRestored = %d, want 1", res.FilesRestored)
		}
		if f.files.Exists("documents/a.txt") {
			t.Error("dry run wrote a file")
		}
	})

	t.Run("integrity check catches a tampered archive", func(t *testing.T) {
		f := newFixture(t)
		f.seedFile(t, "a.txt", "alpha")

		rec, err := f.service.PerformBackup(backup.Options{})
		if err != nil {
			t.Fatalf("PerformBackup() error = %v", err)
		}

		// Replace the archive in the vault with different bytes.
		tampered := []byte("not the archive")
		if err := f.vault.Put(rec.ArchiveName, bytes.NewReader(tampered), int64(len(tampered))); err != nil {
			t.Fatal(err)
		}

		_, err = f.service.RestoreFromBackup(rec.ID, backup.RestoreOptions{ValidateIntegrity: true})
		if err == nil {
			t.Error("RestoreFromBackup() expected checksum mismatch error")
		}
	})

	t.Run("encrypted restore needs a decryption context", func(t *testing.T) {
		f := newFixture(t)
		f.seedFile(t, "a.txt", "alpha")

		rec, err := f.service.PerformBackup(backup.Options{Encrypt: true})
		if err != nil {
			t.Fatalf("PerformBackup() error = %v", err)
		}
		if err := f.files.Delete("documents/a.txt"); err != nil {
			t.Fatal(err)
		}

		if _, err := f.service.RestoreFromBackup(rec.ID, backup.RestoreOptions{}); err == nil {
			t.Error("RestoreFromBackup() without keys expected error")
		}

		ctx, err := f.enc.Unlock("passphrase")
		if err != nil {
			t.Fatalf("Unlock() error = %v", err)
		}
		res, err := f.service.RestoreFromBackup(rec.ID, backup.RestoreOptions{Decryption: ctx})
		if err != nil {
			t.Fatalf("RestoreFromBackup() error = %v", err)
		}
		if res.FilesRestored != 1 {
			t.Errorf("FilesRestored = %d, want 1", res.FilesRestored)
		}
	})

	t.Run("rejects archive entries that escape the storage root", func(t *testing.T) {
		f := newFixture(t)

		// Hand-build an archive whose single entry climbs out of the tree.
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		tw := tar.NewWriter(gz)
		content := []byte("outside")
		if err := tw.WriteHeader(&tar.Header{
			Name:     "../escape.txt",
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatal(err)
		}
		if err := tw.Close(); err != nil {
			t.Fatal(err)
		}
		if err := gz.Close(); err != nil {
			t.Fatal(err)
		}

		archive := buf.Bytes()
		now := f.clock.Now()
		rec := &model.BackupRecord{
			ID:          "crafted",
			Status:      model.BackupCompleted,
			ArchiveName: "crafted.tar.gz",
			Checksum:    testutil.SHA256Hex(archive),
			Size:        int64(len(archive)),
			FileCount:   1,
			StartedAt:   now,
			FinishedAt:  &now,
			CreatedAt:   now,
		}
		if err := f.db.CreateBackupRecord(rec); err != nil {
			t.Fatal(err)
		}
		if err := f.vault.Put(rec.ArchiveName, bytes.NewReader(archive), int64(len(archive))); err != nil {
			t.Fatal(err)
		}

		_, err := f.service.RestoreFromBackup(rec.ID, backup.RestoreOptions{ValidateIntegrity: true, Overwrite: true})
		if err == nil {
			t.Fatal("RestoreFromBackup() expected error for traversal entry")
		}
		if !strings.Contains(err.Error(), "escapes") {
			t.Errorf("error = %v, want traversal rejection", err)
		}
		if _, statErr := os.Stat(filepath.Join(f.files.Root(), "..", "escape.txt")); statErr == nil {
			t.Error("archive entry was written outside the storage root")
		}
	})

	t.Run("warns when validation has no recorded checksum", func(t *testing.T) {
		f := newFixture(t)
		f.seedFile(t, "a.txt", "alpha")

		rec, err := f.service.PerformBackup(backup.Options{})
		if err != nil {
			t.Fatalf("PerformBackup() error = %v", err)
		}

		rec.Checksum = ""
		if err := f.db.UpdateBackupRecord(rec); err != nil {
			t.Fatal(err)
		}
		if err := f.files.Delete("documents/a.txt"); err != nil {
			t.Fatal(err)
		}

		res, err := f.service.RestoreFromBackup(rec.ID, backup.RestoreOptions{ValidateIntegrity: true})
		if err != nil {
			t.Fatalf("RestoreFromBackup() error = %v", err)
		}
		if res.FilesRestored != 1 {
			t.Errorf("FilesRestored = %d, want 1", res.FilesRestored)
		}
		found := false
		for _, w := range res.Warnings {
			if strings.Contains(w, "not verified") {
				found = true
			}
		}
		if !found {
			t.Errorf("Warnings = %v, want an unverified-integrity warning", res.Warnings)
		}
	})

	t.Run("unknown backup id fails", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.service.RestoreFromBackup("nope", backup.RestoreOptions{}); err == nil {
			t.Error("RestoreFromBackup() expected error for unknown id")
		}
	})
}

func TestService_CleanupOldBackups(t *testing.T) {
	t.Run("never deletes the most recent successful backup", func(t *testing.T) {
		f := newFixture(t)
		f.seedFile(t, "a.txt", "alpha")

		rec, err := f.service.PerformBackup(backup.Options{})
		if err != nil {
			t.Fatalf("PerformBackup() error = %v", err)
		}

		// Even with retention 0 and time advanced, the only successful
		// backup survives.
		f.clock.Advance(90 * 24 * time.Hour)
		report, err := f.service.CleanupOldBackups(0)
		if err != nil {
			t.Fatalf("CleanupOldBackups() error = %v", err)
		}
		if report.Deleted != 0 {
			t.Errorf("Deleted = %d, want 0", report.Deleted)
		}

		got, err := f.service.GetBackup(rec.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got == nil {
			t.Error("latest backup was deleted")
		}
	})

	t.Run("prunes expired backups oldest first", func(t *testing.T) {
		f := newFixture(t)
		f.seedFile(t, "a.txt", "alpha")

		old, err := f.service.PerformBackup(backup.Options{})
		if err != nil {
			t.Fatalf("PerformBackup() error = %v", err)
		}

		f.clock.Advance(48 * time.Hour)

		if err := os.WriteFile(filepath.Join(f.files.Root(), "documents", "c.txt"), []byte("charlie"), 0644); err != nil {
			t.Fatal(err)
		}
		fresh, err := f.service.PerformBackup(backup.Options{})
		if err != nil {
			t.Fatalf("PerformBackup() error = %v", err)
		}

		report, err := f.service.CleanupOldBackups(1)
		if err != nil {
			t.Fatalf("CleanupOldBackups() error = %v", err)
		}
		if report.Deleted != 1 {
			t.Fatalf("Deleted = %d, want 1", report.Deleted)
		}

		if got, _ := f.service.GetBackup(old.ID); got != nil {
			t.Error("expired backup still present")
		}
		if got, _ := f.service.GetBackup(fresh.ID); got == nil {
			t.Error("fresh backup was deleted")
		}

		// Its archive is gone from the vault too.
		var buf bytes.Buffer
		if err := f.vault.Get(old.ArchiveName, &buf); err == nil {
			t.Error("expired archive still in vault")
		}
	})

	t.Run("ages out abandoned non-terminal runs but keeps live ones", func(t *testing.T) {
		f := newFixture(t)

		stuck := &model.BackupRecord{
			ID:        "stuck",
			Status:    model.BackupRunning,
			StartedAt: f.clock.Now(),
			CreatedAt: f.clock.Now(),
		}
		if err := f.db.CreateBackupRecord(stuck); err != nil {
			t.Fatal(err)
		}

		f.clock.Advance(48 * time.Hour)

		live := &model.BackupRecord{
			ID:        "live",
			Status:    model.BackupRunning,
			StartedAt: f.clock.Now(),
			CreatedAt: f.clock.Now(),
		}
		if err := f.db.CreateBackupRecord(live); err != nil {
			t.Fatal(err)
		}

		report, err := f.service.CleanupOldBackups(1)
		if err != nil {
			t.Fatalf("CleanupOldBackups() error = %v", err)
		}
		if report.Deleted != 1 {
			t.Fatalf("Deleted = %d, want 1", report.Deleted)
		}

		if got, _ := f.service.GetBackup("stuck"); got != nil {
			t.Error("abandoned run still present")
		}
		if got, _ := f.service.GetBackup("live"); got == nil {
			t.Error("live run was pruned")
		}
	})
}
