package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for dms.
type Config struct {
	InstanceID string           `toml:"instance_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Storage    StorageConfig    `toml:"storage"`
	Versioning VersioningConfig `toml:"versioning"`
	Database   DatabaseConfig   `toml:"database"`
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
	Backup     BackupConfig     `toml:"backup"`
	Optimize   OptimizeConfig   `toml:"optimize"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// StorageConfig holds settings for the category-tree file store.
type StorageConfig struct {
	Root              string   `toml:"root"`
	MaxFileSize       int64    `toml:"max_file_size"` // bytes; must be positive, defaults to 50MB
	AllowedExtensions []string `toml:"allowed_extensions"`
	AllowedMimeTypes  []string `toml:"allowed_mime_types"`
	Thumbnails        bool     `toml:"thumbnails"`
	ThumbnailMaxPx    int      `toml:"thumbnail_max_px"` // longest edge; defaults to 256
}

// VersioningConfig controls document version retention.
type VersioningConfig struct {
	MaxVersions int `toml:"max_versions"` // versions kept per document; 0 keeps only the latest
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// VaultConfig represents configuration for the backup archive destination.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"` // empty uses the default credential chain
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for backup encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// BackupConfig holds defaults for backup runs.
type BackupConfig struct {
	RetentionDays int  `toml:"retention_days"` // completed backups older than this are pruned
	Encrypt       bool `toml:"encrypt"`
}

// OptimizeConfig controls the storage cleanup pass.
type OptimizeConfig struct {
	TempMaxAgeHours        int      `toml:"temp_max_age_hours"`       // temp files older than this are deleted
	LargeFileThreshold     int64    `toml:"large_file_threshold"`     // bytes; files above this are compression candidates
	CompressibleCategories []string `toml:"compressible_categories"`  // categories eligible for large-file compression
}

// MetricsConfig configures the Prometheus endpoint served by `dms serve`.
type MetricsConfig struct {
	Addr string `toml:"addr"` // listen address, e.g. ":9090"; empty disables the endpoint
}

// NewConfig creates a new Config with the provided values and sensible defaults.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Storage: StorageConfig{
			Root:           filepath.Join(baseDir, "storage"),
			MaxFileSize:    50 * 1024 * 1024,
			Thumbnails:     true,
			ThumbnailMaxPx: 256,
		},
		Versioning: VersioningConfig{MaxVersions: 10},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Vault: VaultConfig{
			Type:        "filesystem",
			Name:        "local",
			FSVaultRoot: filepath.Join(baseDir, "vault"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "dms.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "dms.key"),
		},
		Backup:   BackupConfig{RetentionDays: 30},
		Optimize: OptimizeConfig{TempMaxAgeHours: 24, LargeFileThreshold: 10 * 1024 * 1024},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Refuse to clobber an existing config
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
