package dms

import (
	"fmt"
	"path"

	"dms-go/internal/model"
)

// Service is the management facade that coordinates byte-level persistence
// (FileStore) with metadata rows (Database) for upload, versioning, and
// lifecycle operations needed by the CLI.
type Service struct {
	database    Database
	files       FileStore
	logger      Logger
	clock       Clock
	idgen       IDGenerator
	maxVersions int
}

// NewService creates a Service with the provided dependencies.
// maxVersions bounds the number of versions retained per document; values
// below 1 keep only the latest version.
func NewService(database Database, files FileStore, logger Logger, clock Clock, idgen IDGenerator, maxVersions int) *Service {
	return &Service{
		database:    database,
		files:       files,
		logger:      logger,
		clock:       clock,
		idgen:       idgen,
		maxVersions: maxVersions,
	}
}

// UploadDocumentOptions controls document creation.
type UploadDocumentOptions struct {
	Title     string
	Category  string // defaults to "documents"
	Actor     string
	Thumbnail bool
	Overwrite bool
}

// UploadDocument stores the file bytes and creates the Document row plus its
// initial version. Validation failures are reported in the returned
// UploadResult with a nil document; the file write and the row writes are
// not covered by one transaction, so a crash in between can leave an orphan
// file (surfaced by the optimizer, not reconciled here).
func (s *Service) UploadDocument(data []byte, originalName string, opts UploadDocumentOptions) (*model.Document, *UploadResult, error) {
	category := opts.Category
	if category == "" {
		category = "documents"
	}

	res, err := s.files.Upload(data, originalName, UploadOptions{
		Category:  category,
		Subdir:    "original",
		Overwrite: opts.Overwrite,
		Thumbnail: opts.Thumbnail,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("storing upload: %w", err)
	}
	if !res.Success {
		return nil, res, nil
	}

	title := opts.Title
	if title == "" {
		title = originalName
	}

	now := s.clock.Now()
	doc := &model.Document{
		ID:          s.idgen.New(),
		Title:       title,
		Category:    category,
		FileName:    path.Base(res.FilePath),
		StoragePath: res.FilePath,
		MimeType:    res.MimeType,
		Size:        res.Size,
		Checksum:    res.Checksum,
		Version:     1,
		Status:      model.StatusActive,
		CreatedBy:   opts.Actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Version rows get their own immutable copy; the primary file is
	// overwritten whenever a newer version lands.
	verName := fmt.Sprintf("v%03d_%s", 1, doc.FileName)
	verRes, err := s.files.Upload(data, verName, UploadOptions{
		Category: category,
		Subdir:   path.Join("versions", doc.ID),
		FileName: verName,
	})
	if err != nil {
		return nil, res, fmt.Errorf("storing initial version file: %w", err)
	}
	if !verRes.Success {
		return nil, res, fmt.Errorf("initial version file rejected: %v", verRes.Errors)
	}

	version := &model.DocumentVersion{
		ID:          s.idgen.New(),
		DocumentID:  doc.ID,
		Version:     1,
		StoragePath: verRes.FilePath,
		Size:        res.Size,
		Checksum:    res.Checksum,
		MimeType:    res.MimeType,
		ChangeNote:  "initial upload",
		CreatedBy:   opts.Actor,
		IsLatest:    true,
		CreatedAt:   now,
	}

	if err := s.database.CreateDocumentWithVersion(doc, version); err != nil {
		return nil, res, fmt.Errorf("recording document: %w", err)
	}

	s.audit("upload", opts.Actor, doc.ID, fmt.Sprintf("uploaded %s (%d bytes)", originalName, res.Size))
	s.logger.Info("document uploaded", "id", doc.ID, "path", res.FilePath, "size", res.Size)
	return doc, res, nil
}

// GetDocument returns a document by ID, or nil if it does not exist.
func (s *Service) GetDocument(id string) (*model.Document, error) {
	doc, err := s.database.FindDocumentByID(id)
	if err != nil {
		return nil, fmt.Errorf("finding document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns documents filtered by status, newest first.
func (s *Service) ListDocuments(status string, limit int) ([]*model.Document, error) {
	docs, err := s.database.ListDocuments(status, limit)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document. A soft delete flips the status to
// DELETED and keeps all bytes; a hard delete removes the version files, the
// primary file, and every row.
func (s *Service) DeleteDocument(id string, hard bool, actor string) error {
	doc, err := s.database.FindDocumentByID(id)
	if err != nil {
		return fmt.Errorf("finding document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", id)
	}

	if !hard {
		doc.Status = model.StatusDeleted
		doc.UpdatedAt = s.clock.Now()
		if err := s.database.UpdateDocument(doc); err != nil {
			return fmt.Errorf("marking document deleted: %w", err)
		}
		s.audit("document.delete", actor, id, "soft delete")
		s.logger.Info("document soft-deleted", "id", id)
		return nil
	}

	versions, err := s.database.FindVersionsForDocument(id)
	if err != nil {
		return fmt.Errorf("finding versions: %w", err)
	}
	for _, v := range versions {
		if v.StoragePath == doc.StoragePath {
			continue // primary file is removed below
		}
		if err := s.files.Delete(v.StoragePath); err != nil {
			s.logger.Warn("failed to delete version file", "path", v.StoragePath, "error", err)
		}
	}
	if err := s.files.Delete(doc.StoragePath); err != nil {
		s.logger.Warn("failed to delete primary file", "path", doc.StoragePath, "error", err)
	}

	if err := s.database.DeleteDocument(id); err != nil {
		return fmt.Errorf("deleting document rows: %w", err)
	}

	s.audit("document.delete", actor, id, "hard delete")
	s.logger.Info("document hard-deleted", "id", id)
	return nil
}

// audit appends an audit row. Audit failures are logged, never propagated:
// the primary mutation has already committed.
func (s *Service) audit(action, actor, documentID, detail string) {
	entry := &model.AuditLog{
		Action:     action,
		Actor:      actor,
		DocumentID: documentID,
		Detail:     detail,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.database.AppendAudit(entry); err != nil {
		s.logger.Warn("failed to append audit entry", "action", action, "error", err)
	}
}
