package dms

import (
	"time"

	"dms-go/internal/model"
)

// Database provides an interface for metadata storage operations.
// Lookups return a nil record (not an error) when nothing matches.
// Multi-row mutations are implemented with appropriate transaction handling.
type Database interface {
	// Document operations

	// CreateDocumentWithVersion inserts a document and its initial version
	// in a single transaction.
	CreateDocumentWithVersion(doc *model.Document, version *model.DocumentVersion) error

	// FindDocumentByID returns a document by its ID.
	FindDocumentByID(id string) (*model.Document, error)

	// ListDocuments returns documents with the given status, newest first.
	// An empty status returns all documents. limit <= 0 means no limit.
	ListDocuments(status string, limit int) ([]*model.Document, error)

	// UpdateDocument persists changes to an existing document row.
	UpdateDocument(doc *model.Document) error

	// DeleteDocument removes a document and all of its version rows.
	DeleteDocument(id string) error

	// Version operations

	// FindVersionsForDocument returns all versions of a document,
	// ordered by version number ascending.
	FindVersionsForDocument(documentID string) ([]*model.DocumentVersion, error)

	// FindLatestVersion returns the version currently flagged is_latest.
	FindLatestVersion(documentID string) (*model.DocumentVersion, error)

	// FindVersionByNumber returns a specific version of a document.
	FindVersionByNumber(documentID string, version int64) (*model.DocumentVersion, error)

	// CreateVersionAndSetLatest inserts the version, clears the previous
	// is_latest holder, and updates the parent document row — all in one
	// transaction, so two concurrent writers cannot both claim latest.
	CreateVersionAndSetLatest(doc *model.Document, version *model.DocumentVersion) error

	// DeleteVersion removes a single version row.
	DeleteVersion(id string) error

	// Backup operations

	CreateBackupRecord(rec *model.BackupRecord) error
	UpdateBackupRecord(rec *model.BackupRecord) error
	FindBackupRecordByID(id string) (*model.BackupRecord, error)

	// ListBackupRecords returns backup runs, newest first. limit <= 0 means no limit.
	ListBackupRecords(limit int) ([]*model.BackupRecord, error)

	// FindLatestCompletedBackup returns the most recent successful backup.
	FindLatestCompletedBackup() (*model.BackupRecord, error)

	DeleteBackupRecord(id string) error

	// Schedule operations

	CreateBackupSchedule(s *model.BackupSchedule) error
	UpdateBackupSchedule(s *model.BackupSchedule) error
	FindBackupScheduleByID(id string) (*model.BackupSchedule, error)
	ListBackupSchedules(activeOnly bool) ([]*model.BackupSchedule, error)
	DeleteBackupSchedule(id string) error

	// ClaimDueBackupSchedules atomically claims active schedules whose
	// next_run is at or before now: inside one transaction each claimed
	// schedule gets last_run=now and next_run=nextRun(s). A concurrent
	// claimer therefore cannot pick up the same schedule.
	ClaimDueBackupSchedules(now time.Time, nextRun func(*model.BackupSchedule) time.Time) ([]*model.BackupSchedule, error)

	// Audit operations

	AppendAudit(entry *model.AuditLog) error
	ListAudit(limit int) ([]*model.AuditLog, error)

	// Close closes the database connection.
	Close() error
}
