// Package model defines the persistent records of the document management
// core. The structs map to the migrate-managed SQLite schema and are
// read/written through gorm.
package model

import "time"

// Document lifecycle statuses.
const (
	StatusActive  = "ACTIVE"
	StatusDeleted = "DELETED"
)

// Backup run statuses.
const (
	BackupPending   = "pending"
	BackupRunning   = "running"
	BackupCompleted = "completed"
	BackupFailed    = "failed"
)

// Document is the primary record for an uploaded file. Its Version field
// always equals the version number of the DocumentVersion row currently
// flagged is_latest.
type Document struct {
	ID          string    `gorm:"primaryKey"` // UUID
	Title       string    // Display title, defaults to the original file name
	Category    string    // Storage category, e.g. "documents", "evidence"
	FileName    string    // Original file name (sanitized)
	StoragePath string    // Path of the primary file, relative to the storage root
	MimeType    string
	Size        int64
	Checksum    string    // SHA-256 of the primary file
	Version     int64     // Number of the current latest version
	Status      string    // ACTIVE or DELETED
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentVersion is one numbered version of a Document. Exactly one row per
// document holds IsLatest at any time; the flip from the old holder to the
// new one happens inside a single transaction.
type DocumentVersion struct {
	ID           string    `gorm:"primaryKey"` // UUID
	DocumentID   string    `gorm:"index"`
	Version      int64     // Monotonically increasing; major versions jump to the next multiple of ten
	StoragePath  string    // Path of the version file, relative to the storage root
	Size         int64
	Checksum     string    // SHA-256 of the version content
	MimeType     string
	ChangeNote   string
	CreatedBy    string
	IsLatest     bool
	RestoredFrom *int64    // Version number this row was restored from, if any
	CreatedAt    time.Time
}

// BackupRecord tracks a single backup run through its state machine:
// pending -> running -> completed | failed.
type BackupRecord struct {
	ID          string `gorm:"primaryKey"` // UUID
	Status      string
	ArchiveName string // Object name in the vault
	Checksum    string // SHA-256 of the produced archive
	Size        int64  // Archive size in bytes
	FileCount   int64
	Encrypted   bool
	Error       string // Failure cause when Status is failed
	Warnings    string // Newline-joined non-fatal issues
	StartedAt   time.Time
	FinishedAt  *time.Time
	CreatedAt   time.Time
}

// BackupSchedule is a named recurring backup. NextRun is recomputed from the
// cron expression after every run; due schedules are claimed atomically so a
// restarted process cannot double-trigger a run.
type BackupSchedule struct {
	ID            string `gorm:"primaryKey"` // UUID
	Name          string
	CronExpr      string
	RetentionDays int
	Compress      bool
	Encrypt       bool
	Notify        bool
	IsActive      bool
	LastRun       *time.Time
	NextRun       time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuditLog records a mutation performed through the management facade.
type AuditLog struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Action     string // e.g. "upload", "version.create", "document.delete"
	Actor      string
	DocumentID string `gorm:"index"`
	Detail     string
	CreatedAt  time.Time
}
