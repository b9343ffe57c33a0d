package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dms-go/internal/database/migrations"
	"dms-go/internal/dms"
	"dms-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the dms.Database interface with gorm over a
// migrate-managed SQLite schema. The schema is owned by the SQL migrations;
// gorm is used strictly as the query layer.
type SQLiteDatabase struct {
	db   *sql.DB
	orm  *gorm.DB
	path string
}

var _ dms.Database = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens a SQLite database at path and wraps it with gorm.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteDatabaseFromDB(db, path)
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, path string) (*SQLiteDatabase, error) {
	orm, err := gorm.Open(gormsqlite.Dialector{Conn: db}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("initializing orm: %w", err)
	}

	return &SQLiteDatabase{db: db, orm: orm, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with
// appropriate PRAGMAs. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory SQLite database exists per connection; cap the pool at
	// one so every query sees the same database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// CheckMigrations verifies the schema is at the latest migration version.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// MigrateUp applies all pending schema migrations.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Document operations

func (s *SQLiteDatabase) CreateDocumentWithVersion(doc *model.Document, version *model.DocumentVersion) error {
	err := s.orm.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("inserting initial version: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLiteDatabase) FindDocumentByID(id string) (*model.Document, error) {
	var doc model.Document
	err := s.orm.Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding document by id: %w", err)
	}
	return &doc, nil
}

func (s *SQLiteDatabase) ListDocuments(status string, limit int) ([]*model.Document, error) {
	q := s.orm.Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var docs []*model.Document
	if err := q.Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

func (s *SQLiteDatabase) UpdateDocument(doc *model.Document) error {
	if err := s.orm.Save(doc).Error; err != nil {
		return fmt.Errorf("updating document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteDocument(id string) error {
	err := s.orm.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentVersion{}).Error; err != nil {
			return fmt.Errorf("deleting versions: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&model.Document{}).Error; err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

// Version operations

func (s *SQLiteDatabase) FindVersionsForDocument(documentID string) ([]*model.DocumentVersion, error) {
	var versions []*model.DocumentVersion
	err := s.orm.Where("document_id = ?", documentID).Order("version ASC").Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("finding versions: %w", err)
	}
	return versions, nil
}

func (s *SQLiteDatabase) FindLatestVersion(documentID string) (*model.DocumentVersion, error) {
	var v model.DocumentVersion
	err := s.orm.Where("document_id = ? AND is_latest = ?", documentID, true).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding latest version: %w", err)
	}
	return &v, nil
}

func (s *SQLiteDatabase) FindVersionByNumber(documentID string, version int64) (*model.DocumentVersion, error) {
	var v model.DocumentVersion
	err := s.orm.Where("document_id = ? AND version = ?", documentID, version).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding version by number: %w", err)
	}
	return &v, nil
}

// CreateVersionAndSetLatest clears the previous is_latest holder, inserts
// the new version, and saves the parent document, all in one transaction.
// The partial unique index on (document_id) WHERE is_latest rejects any
// interleaving that would produce two latest rows.
func (s *SQLiteDatabase) CreateVersionAndSetLatest(doc *model.Document, version *model.DocumentVersion) error {
	err := s.orm.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.DocumentVersion{}).
			Where("document_id = ? AND is_latest = ?", doc.ID, true).
			Update("is_latest", false).Error
		if err != nil {
			return fmt.Errorf("clearing previous latest: %w", err)
		}
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("inserting version: %w", err)
		}
		if err := tx.Save(doc).Error; err != nil {
			return fmt.Errorf("updating document: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording version %d for document %s: %w", version.Version, doc.ID, err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteVersion(id string) error {
	if err := s.orm.Where("id = ?", id).Delete(&model.DocumentVersion{}).Error; err != nil {
		return fmt.Errorf("deleting version %s: %w", id, err)
	}
	return nil
}

// Backup operations

func (s *SQLiteDatabase) CreateBackupRecord(rec *model.BackupRecord) error {
	if err := s.orm.Create(rec).Error; err != nil {
		return fmt.Errorf("creating backup record: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateBackupRecord(rec *model.BackupRecord) error {
	if err := s.orm.Save(rec).Error; err != nil {
		return fmt.Errorf("updating backup record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteDatabase) FindBackupRecordByID(id string) (*model.BackupRecord, error) {
	var rec model.BackupRecord
	err := s.orm.Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding backup record: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteDatabase) ListBackupRecords(limit int) ([]*model.BackupRecord, error) {
	q := s.orm.Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []*model.BackupRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing backup records: %w", err)
	}
	return recs, nil
}

func (s *SQLiteDatabase) FindLatestCompletedBackup() (*model.BackupRecord, error) {
	var rec model.BackupRecord
	err := s.orm.Where("status = ?", model.BackupCompleted).Order("started_at DESC").First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding latest completed backup: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteDatabase) DeleteBackupRecord(id string) error {
	if err := s.orm.Where("id = ?", id).Delete(&model.BackupRecord{}).Error; err != nil {
		return fmt.Errorf("deleting backup record %s: %w", id, err)
	}
	return nil
}

// Schedule operations

func (s *SQLiteDatabase) CreateBackupSchedule(sched *model.BackupSchedule) error {
	if err := s.orm.Create(sched).Error; err != nil {
		return fmt.Errorf("creating backup schedule: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateBackupSchedule(sched *model.BackupSchedule) error {
	if err := s.orm.Save(sched).Error; err != nil {
		return fmt.Errorf("updating backup schedule %s: %w", sched.ID, err)
	}
	return nil
}

func (s *SQLiteDatabase) FindBackupScheduleByID(id string) (*model.BackupSchedule, error) {
	var sched model.BackupSchedule
	err := s.orm.Where("id = ?", id).First(&sched).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding backup schedule: %w", err)
	}
	return &sched, nil
}

func (s *SQLiteDatabase) ListBackupSchedules(activeOnly bool) ([]*model.BackupSchedule, error) {
	q := s.orm.Order("name ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}

	var scheds []*model.BackupSchedule
	if err := q.Find(&scheds).Error; err != nil {
		return nil, fmt.Errorf("listing backup schedules: %w", err)
	}
	return scheds, nil
}

func (s *SQLiteDatabase) DeleteBackupSchedule(id string) error {
	if err := s.orm.Where("id = ?", id).Delete(&model.BackupSchedule{}).Error; err != nil {
		return fmt.Errorf("deleting backup schedule %s: %w", id, err)
	}
	return nil
}

// ClaimDueBackupSchedules selects active schedules with next_run <= now and
// advances their bookkeeping in the same transaction. A schedule is claimed
// exactly once per due time: a concurrent claimer sees the updated next_run.
func (s *SQLiteDatabase) ClaimDueBackupSchedules(now time.Time, nextRun func(*model.BackupSchedule) time.Time) ([]*model.BackupSchedule, error) {
	var claimed []*model.BackupSchedule

	err := s.orm.Transaction(func(tx *gorm.DB) error {
		var due []*model.BackupSchedule
		err := tx.Where("is_active = ? AND next_run <= ?", true, now).Find(&due).Error
		if err != nil {
			return fmt.Errorf("finding due schedules: %w", err)
		}

		for _, sched := range due {
			runAt := now
			sched.LastRun = &runAt
			sched.NextRun = nextRun(sched)
			sched.UpdatedAt = now

			err := tx.Model(&model.BackupSchedule{}).Where("id = ?", sched.ID).Updates(map[string]any{
				"last_run":   sched.LastRun,
				"next_run":   sched.NextRun,
				"updated_at": sched.UpdatedAt,
			}).Error
			if err != nil {
				return fmt.Errorf("claiming schedule %s: %w", sched.ID, err)
			}
			claimed = append(claimed, sched)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claiming due schedules: %w", err)
	}

	return claimed, nil
}

// Audit operations

func (s *SQLiteDatabase) AppendAudit(entry *model.AuditLog) error {
	if err := s.orm.Create(entry).Error; err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListAudit(limit int) ([]*model.AuditLog, error) {
	q := s.orm.Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []*model.AuditLog
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}
