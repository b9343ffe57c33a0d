package dms

import "io"

// UploadOptions controls a single file-store upload.
type UploadOptions struct {
	// Category selects the top-level directory, e.g. "documents" or
	// "evidence". Defaults to "documents".
	Category string

	// Subdir is an optional path below the category, e.g. "versions/<docID>".
	Subdir string

	// FileName overrides the sanitized original name.
	FileName string

	// Overwrite allows replacing an existing file at the target path.
	// Without it, a path collision is a validation failure.
	Overwrite bool

	// Thumbnail requests thumbnail generation for image uploads.
	Thumbnail bool
}

// UploadResult is the structured outcome of an upload. Validation failures
// populate Errors and leave Success false without any I/O having happened;
// non-fatal findings go to Warnings.
type UploadResult struct {
	Success       bool
	FilePath      string // relative to the storage root
	ThumbnailPath string // relative to the storage root, empty if none
	Checksum      string
	Size          int64
	MimeType      string
	Warnings      []string
	Errors        []string
}

// FileStore provides byte-level persistence under a category directory tree.
// It never touches relational rows; callers record metadata separately.
type FileStore interface {
	// Upload validates and writes a file. A validation failure is reported
	// in the result, not as an error; errors are reserved for I/O failures.
	Upload(data []byte, originalName string, opts UploadOptions) (*UploadResult, error)

	// Download returns the file contents plus its current checksum for
	// optional caller-side verification.
	Download(relPath string) ([]byte, string, error)

	// OpenStream opens the file for streaming reads.
	OpenStream(relPath string) (io.ReadCloser, error)

	// Delete removes a file. Deleting a missing file is not an error.
	Delete(relPath string) error

	// Exists reports whether a file is present at the relative path.
	Exists(relPath string) bool

	// Root returns the absolute storage root directory.
	Root() string
}
