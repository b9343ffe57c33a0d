package dms

import (
	"errors"
	"fmt"
	"path"

	"dms-go/internal/checksum"
	"dms-go/internal/model"
)

// ErrDuplicateContent is returned when a new version's content is identical
// (by checksum) to the current latest version.
var ErrDuplicateContent = errors.New("content is identical to the latest version")

// VersionOptions controls version creation.
type VersionOptions struct {
	// Major rounds the new version number up to the next multiple of ten
	// instead of a plain increment.
	Major bool

	ChangeNote string
	Actor      string

	// RestoredFrom tags the new version with the version number it was
	// restored from. Set by RestoreVersion, not by callers.
	RestoredFrom *int64
}

// CreateVersion creates the next numbered version of a document from the
// given bytes. A buffer identical to the current latest is rejected with
// ErrDuplicateContent. The new version row, the is_latest flip, and the
// parent document update commit in one transaction; the primary file is then
// overwritten so the document's storage path always serves the latest
// content. Versions beyond the retention count are pruned oldest-first,
// never touching the new latest.
func (s *Service) CreateVersion(documentID string, data []byte, opts VersionOptions) (*model.DocumentVersion, error) {
	doc, err := s.database.FindDocumentByID(documentID)
	if err != nil {
		return nil, fmt.Errorf("finding document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document not found: %s", documentID)
	}
	if doc.Status == model.StatusDeleted {
		return nil, fmt.Errorf("document is deleted: %s", documentID)
	}

	latest, err := s.database.FindLatestVersion(documentID)
	if err != nil {
		return nil, fmt.Errorf("finding latest version: %w", err)
	}

	sum := checksum.Sum(data)
	if latest != nil && latest.Checksum == sum {
		return nil, ErrDuplicateContent
	}

	next := int64(1)
	if latest != nil {
		if opts.Major {
			next = (latest.Version/10 + 1) * 10
		} else {
			next = latest.Version + 1
		}
	}

	name := fmt.Sprintf("v%03d_%s", next, doc.FileName)
	res, err := s.files.Upload(data, name, UploadOptions{
		Category: doc.Category,
		Subdir:   path.Join("versions", doc.ID),
		FileName: name,
	})
	if err != nil {
		return nil, fmt.Errorf("storing version file: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("version file rejected: %v", res.Errors)
	}

	now := s.clock.Now()
	version := &model.DocumentVersion{
		ID:           s.idgen.New(),
		DocumentID:   doc.ID,
		Version:      next,
		StoragePath:  res.FilePath,
		Size:         res.Size,
		Checksum:     res.Checksum,
		MimeType:     res.MimeType,
		ChangeNote:   opts.ChangeNote,
		CreatedBy:    opts.Actor,
		IsLatest:     true,
		RestoredFrom: opts.RestoredFrom,
		CreatedAt:    now,
	}

	doc.Version = next
	doc.Size = res.Size
	doc.Checksum = res.Checksum
	doc.MimeType = res.MimeType
	doc.UpdatedAt = now

	if err := s.database.CreateVersionAndSetLatest(doc, version); err != nil {
		// The version file is now an orphan; the optimizer's duplicate
		// scan will surface it.
		return nil, fmt.Errorf("recording version: %w", err)
	}

	// Keep the primary file in sync with the latest version.
	if _, err := s.files.Upload(data, doc.FileName, UploadOptions{
		Category:  doc.Category,
		Subdir:    "original",
		FileName:  doc.FileName,
		Overwrite: true,
	}); err != nil {
		s.logger.Warn("failed to refresh primary file", "id", doc.ID, "error", err)
	}

	if err := s.pruneVersions(doc); err != nil {
		s.logger.Warn("version pruning failed", "id", doc.ID, "error", err)
	}

	s.audit("version.create", opts.Actor, doc.ID, fmt.Sprintf("version %d (%d bytes)", next, res.Size))
	s.logger.Info("version created", "id", doc.ID, "version", next)
	return version, nil
}

// RestoreOptions controls version restoration.
type RestoreOptions struct {
	// AsNew appends the restored content as a brand-new version instead of
	// rolling the primary file back in place.
	AsNew bool

	Actor string
}

// RestoreVersion brings back the content of an earlier version. With AsNew
// it is equivalent to CreateVersion with that content (tagged with
// provenance); otherwise the primary file and the document metadata are
// overwritten in place and no version row is written.
func (s *Service) RestoreVersion(documentID string, versionNumber int64, opts RestoreOptions) (*model.DocumentVersion, error) {
	doc, err := s.database.FindDocumentByID(documentID)
	if err != nil {
		return nil, fmt.Errorf("finding document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document not found: %s", documentID)
	}

	target, err := s.database.FindVersionByNumber(documentID, versionNumber)
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	if target == nil {
		return nil, fmt.Errorf("version %d not found for document %s", versionNumber, documentID)
	}

	data, sum, err := s.files.Download(target.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("reading version content: %w", err)
	}
	if sum != target.Checksum {
		return nil, fmt.Errorf("version %d content checksum mismatch (recorded %s, got %s)", versionNumber, target.Checksum, sum)
	}

	if opts.AsNew {
		restored := versionNumber
		return s.CreateVersion(documentID, data, VersionOptions{
			ChangeNote:   fmt.Sprintf("restored from version %d", versionNumber),
			Actor:        opts.Actor,
			RestoredFrom: &restored,
		})
	}

	// In-place rollback: overwrite the primary file and metadata, leaving
	// version rows untouched.
	if _, err := s.files.Upload(data, doc.FileName, UploadOptions{
		Category:  doc.Category,
		Subdir:    "original",
		FileName:  doc.FileName,
		Overwrite: true,
	}); err != nil {
		return nil, fmt.Errorf("overwriting primary file: %w", err)
	}

	doc.Size = target.Size
	doc.Checksum = target.Checksum
	doc.MimeType = target.MimeType
	doc.UpdatedAt = s.clock.Now()
	if err := s.database.UpdateDocument(doc); err != nil {
		return nil, fmt.Errorf("updating document metadata: %w", err)
	}

	s.audit("version.restore", opts.Actor, doc.ID, fmt.Sprintf("restoredFrom=%d restoredBy=%s in-place", versionNumber, opts.Actor))
	s.logger.Info("version restored in place", "id", doc.ID, "version", versionNumber)
	return target, nil
}

// ListVersions returns the version history of a document, newest first.
func (s *Service) ListVersions(documentID string) ([]*model.DocumentVersion, error) {
	versions, err := s.database.FindVersionsForDocument(documentID)
	if err != nil {
		return nil, fmt.Errorf("finding versions: %w", err)
	}
	// Reverse to newest first
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
	return versions, nil
}

// CleanupOldVersions prunes a document's versions beyond the retention
// count and returns how many were removed. Exposed for the optimizer.
func (s *Service) CleanupOldVersions(documentID string) (int, error) {
	doc, err := s.database.FindDocumentByID(documentID)
	if err != nil {
		return 0, fmt.Errorf("finding document: %w", err)
	}
	if doc == nil {
		return 0, fmt.Errorf("document not found: %s", documentID)
	}
	pruned, err := s.pruneVersionsCount(doc)
	if err != nil {
		return pruned, err
	}
	return pruned, nil
}

// PrunableVersions reports how many versions CleanupOldVersions would
// remove, without deleting anything. Used for dry-run optimization reports.
func (s *Service) PrunableVersions(documentID string) (int, error) {
	versions, err := s.database.FindVersionsForDocument(documentID)
	if err != nil {
		return 0, fmt.Errorf("finding versions: %w", err)
	}

	keep := s.maxVersions
	if keep < 1 {
		keep = 1
	}
	excess := len(versions) - keep
	if excess <= 0 {
		return 0, nil
	}
	return excess, nil
}

func (s *Service) pruneVersions(doc *model.Document) error {
	_, err := s.pruneVersionsCount(doc)
	return err
}

// pruneVersionsCount deletes the oldest versions beyond maxVersions,
// skipping the current latest regardless of the retention setting.
func (s *Service) pruneVersionsCount(doc *model.Document) (int, error) {
	versions, err := s.database.FindVersionsForDocument(doc.ID)
	if err != nil {
		return 0, fmt.Errorf("finding versions: %w", err)
	}

	keep := s.maxVersions
	if keep < 1 {
		keep = 1
	}
	excess := len(versions) - keep
	if excess <= 0 {
		return 0, nil
	}

	pruned := 0
	for _, v := range versions { // ascending, oldest first
		if pruned >= excess {
			break
		}
		if v.IsLatest {
			continue
		}
		if err := s.database.DeleteVersion(v.ID); err != nil {
			return pruned, fmt.Errorf("deleting version row %d: %w", v.Version, err)
		}
		if v.StoragePath != doc.StoragePath {
			if err := s.files.Delete(v.StoragePath); err != nil {
				s.logger.Warn("failed to delete pruned version file", "path", v.StoragePath, "error", err)
			}
		}
		pruned++
	}

	if pruned > 0 {
		s.logger.Debug("versions pruned", "id", doc.ID, "count", pruned)
	}
	return pruned, nil
}
