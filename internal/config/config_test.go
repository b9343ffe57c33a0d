package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		InstanceID: "test-instance-abc",
		BaseDir:    "/srv/dms",
		LogDir:     "/srv/dms/log",
		Storage: StorageConfig{
			Root:              "/srv/dms/storage",
			MaxFileSize:       1024,
			AllowedExtensions: []string{".pdf", ".docx"},
			AllowedMimeTypes:  []string{"application/pdf"},
			Thumbnails:        true,
			ThumbnailMaxPx:    128,
		},
		Versioning: VersioningConfig{MaxVersions: 5},
		Database:   DatabaseConfig{Type: "sqlite", DataDir: "/srv/dms/db"},
		Vault:      VaultConfig{Type: "filesystem", Name: "local", FSVaultRoot: "/srv/dms/vault"},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/srv/dms/keys/dms.pub",
			PrivateKeyPath: "/srv/dms/keys/dms.key",
		},
		Backup:   BackupConfig{RetentionDays: 7, Encrypt: true},
		Optimize: OptimizeConfig{TempMaxAgeHours: 48, LargeFileThreshold: 4096},
		Metrics:  MetricsConfig{Addr: ":9090"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.InstanceID != original.InstanceID {
		t.Errorf("InstanceID = %q, want %q", got.InstanceID, original.InstanceID)
	}
	if got.Storage.Root != original.Storage.Root {
		t.Errorf("Storage.Root = %q, want %q", got.Storage.Root, original.Storage.Root)
	}
	if got.Storage.MaxFileSize != 1024 {
		t.Errorf("Storage.MaxFileSize = %d, want 1024", got.Storage.MaxFileSize)
	}
	if len(got.Storage.AllowedExtensions) != 2 {
		t.Fatalf("len(AllowedExtensions) = %d, want 2", len(got.Storage.AllowedExtensions))
	}
	if got.Versioning.MaxVersions != 5 {
		t.Errorf("Versioning.MaxVersions = %d, want 5", got.Versioning.MaxVersions)
	}
	if got.Vault.Type != "filesystem" {
		t.Errorf("Vault.Type = %q, want %q", got.Vault.Type, "filesystem")
	}
	if got.Vault.FSVaultRoot != "/srv/dms/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", got.Vault.FSVaultRoot, "/srv/dms/vault")
	}
	if got.Encryption.PrivateKeyPath != original.Encryption.PrivateKeyPath {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", got.Encryption.PrivateKeyPath, original.Encryption.PrivateKeyPath)
	}
	if !got.Backup.Encrypt || got.Backup.RetentionDays != 7 {
		t.Errorf("Backup = %+v, want Encrypt=true RetentionDays=7", got.Backup)
	}
	if got.Metrics.Addr != ":9090" {
		t.Errorf("Metrics.Addr = %q, want %q", got.Metrics.Addr, ":9090")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("inst-1", "/data/dms")

	if cfg.InstanceID != "inst-1" {
		t.Errorf("InstanceID = %q, want %q", cfg.InstanceID, "inst-1")
	}
	if cfg.BaseDir != "/data/dms" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/dms")
	}
	if cfg.LogDir != filepath.Join("/data/dms", "log") {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, filepath.Join("/data/dms", "log"))
	}
	if cfg.Storage.MaxFileSize <= 0 {
		t.Error("default MaxFileSize should be positive")
	}
	if cfg.Versioning.MaxVersions <= 0 {
		t.Error("default MaxVersions should be positive")
	}
	if cfg.Vault.Type != "filesystem" {
		t.Errorf("default Vault.Type = %q, want filesystem", cfg.Vault.Type)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conf", "dms.toml")
		cfg := NewConfig("inst-1", "/data/dms")

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.InstanceID != "inst-1" {
			t.Errorf("InstanceID = %q, want %q", got.InstanceID, "inst-1")
		}
	})

	t.Run("refuses to overwrite existing config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dms.toml")
		if err := os.WriteFile(path, []byte("instance_id = \"old\"\n"), 0644); err != nil {
			t.Fatal(err)
		}

		if err := Init(path, NewConfig("new", "/data")); err == nil {
			t.Error("Init() expected error for existing config file")
		}
	})

	t.Run("missing file returns error", func(t *testing.T) {
		if _, err := ReadFromFile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
			t.Error("ReadFromFile() expected error for missing file")
		}
	})
}
