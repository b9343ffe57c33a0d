// Package storage provides byte-level persistence for document content under
// a category directory tree. It validates uploads before any I/O and never
// touches relational rows; callers record metadata separately.
package storage

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"dms-go/internal/checksum"
	"dms-go/internal/config"
	"dms-go/internal/dms"
)

const (
	// DefaultCategory is used when an upload names no category.
	DefaultCategory = "documents"

	// thumbnailDir is the subdirectory under each category holding thumbnails.
	thumbnailDir = "thumbnails"
)

// Store implements dms.FileStore on the local filesystem.
type Store struct {
	root        string
	maxFileSize int64
	allowedExt  map[string]bool
	allowedMime map[string]bool
	thumbnails  bool
	thumbMaxPx  int
	logger      dms.Logger
}

var _ dms.FileStore = (*Store)(nil)

// NewStore creates a Store rooted at cfg.Root, creating the directory if
// needed. Empty allow-lists permit any extension or MIME type.
func NewStore(cfg config.StorageConfig, logger dms.Logger) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("storage root not configured")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}

	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = 50 * 1024 * 1024
	}
	thumbMax := cfg.ThumbnailMaxPx
	if thumbMax <= 0 {
		thumbMax = 256
	}
	if logger == nil {
		logger = &dms.NopLogger{}
	}

	return &Store{
		root:        root,
		maxFileSize: maxSize,
		allowedExt:  toSet(cfg.AllowedExtensions),
		allowedMime: toSet(cfg.AllowedMimeTypes),
		thumbnails:  cfg.Thumbnails,
		thumbMaxPx:  thumbMax,
		logger:      logger,
	}, nil
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}

// Root returns the absolute storage root directory.
func (s *Store) Root() string {
	return s.root
}

// Upload validates and writes a file under category/subdir. Validation
// failures are reported in the result with Success=false and no bytes
// written; errors are reserved for I/O failures after validation passed.
func (s *Store) Upload(data []byte, originalName string, opts dms.UploadOptions) (*dms.UploadResult, error) {
	result := &dms.UploadResult{}

	name := opts.FileName
	if name == "" {
		name = originalName
	}
	name, err := sanitizeFileName(name)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	if len(data) == 0 {
		result.Errors = append(result.Errors, "file is empty")
	}
	if int64(len(data)) > s.maxFileSize {
		result.Errors = append(result.Errors,
			fmt.Sprintf("file size %d exceeds limit %d", len(data), s.maxFileSize))
	}

	ext := strings.ToLower(filepath.Ext(name))
	if s.allowedExt != nil && !s.allowedExt[ext] {
		result.Errors = append(result.Errors, fmt.Sprintf("extension %q not allowed", ext))
	}

	mimeType := detectMime(name, data)
	result.MimeType = mimeType
	if s.allowedMime != nil && !s.allowedMime[strings.ToLower(mimeType)] {
		result.Errors = append(result.Errors, fmt.Sprintf("mime type %q not allowed", mimeType))
	}

	category := opts.Category
	if category == "" {
		category = DefaultCategory
	}
	relPath, err := safeJoin(category, opts.Subdir, name)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	if len(result.Errors) > 0 {
		return result, nil
	}

	absPath := filepath.Join(s.root, filepath.FromSlash(relPath))
	if _, err := os.Stat(absPath); err == nil && !opts.Overwrite {
		result.Errors = append(result.Errors, fmt.Sprintf("file already exists: %s", relPath))
		return result, nil
	}

	if err := s.writeFile(absPath, data); err != nil {
		return nil, fmt.Errorf("writing %s: %w", relPath, err)
	}

	result.Success = true
	result.FilePath = relPath
	result.Checksum = checksum.Sum(data)
	result.Size = int64(len(data))

	if s.thumbnails && opts.Thumbnail && isImageMime(mimeType) {
		thumbRel, err := s.writeThumbnail(category, name, data)
		if err != nil {
			// Thumbnail failure is non-fatal; the primary file is in place.
			result.Warnings = append(result.Warnings, fmt.Sprintf("thumbnail generation failed: %v", err))
			s.logger.Warn("thumbnail generation failed", "file", relPath, "error", err)
		} else {
			result.ThumbnailPath = thumbRel
		}
	}

	return result, nil
}

// Download returns the file contents plus the checksum of what was read.
func (s *Store) Download(relPath string) ([]byte, string, error) {
	absPath, err := s.resolve(relPath)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", relPath, err)
	}
	return data, checksum.Sum(data), nil
}

// OpenStream opens the file for streaming reads.
func (s *Store) OpenStream(relPath string) (io.ReadCloser, error) {
	absPath, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", relPath, err)
	}
	return f, nil
}

// Delete removes a file. Deleting a missing file is not an error.
func (s *Store) Delete(relPath string) error {
	absPath, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", relPath, err)
	}
	return nil
}

// Exists reports whether a file is present at the relative path.
func (s *Store) Exists(relPath string) bool {
	absPath, err := s.resolve(relPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(absPath)
	return err == nil && !info.IsDir()
}

// resolve maps a relative path to an absolute path under the root, rejecting
// paths that would escape it.
func (s *Store) resolve(relPath string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(relPath, "\\", "/"))
	if cleaned == "." || strings.HasPrefix(cleaned, "../") || path.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid storage path: %s", relPath)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// writeFile writes data atomically via a temp file and rename.
func (s *Store) writeFile(absPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(absPath), ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, absPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// writeThumbnail decodes an image, scales it down to the configured longest
// edge, and writes it as PNG under the category's thumbnails directory.
func (s *Store) writeThumbnail(category, name string, data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}

	thumb := scaleDown(img, s.thumbMaxPx)

	base := strings.TrimSuffix(name, filepath.Ext(name)) + "_thumb.png"
	relPath, err := safeJoin(category, thumbnailDir, base)
	if err != nil {
		return "", err
	}
	absPath := filepath.Join(s.root, filepath.FromSlash(relPath))

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return "", fmt.Errorf("creating thumbnail directory: %w", err)
	}

	f, err := os.Create(absPath)
	if err != nil {
		return "", fmt.Errorf("creating thumbnail file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, thumb); err != nil {
		os.Remove(absPath)
		return "", fmt.Errorf("encoding thumbnail: %w", err)
	}
	return relPath, nil
}

// scaleDown resizes img so its longest edge is at most maxPx, using
// nearest-neighbor sampling. Images already within bounds are returned as-is.
func scaleDown(img image.Image, maxPx int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxPx && h <= maxPx {
		return img
	}

	scale := float64(maxPx) / float64(w)
	if h > w {
		scale = float64(maxPx) / float64(h)
	}
	tw := int(float64(w) * scale)
	th := int(float64(h) * scale)
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	for y := 0; y < th; y++ {
		sy := bounds.Min.Y + y*h/th
		for x := 0; x < tw; x++ {
			sx := bounds.Min.X + x*w/tw
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}

// sanitizeFileName reduces a client-supplied name to a safe basename.
func sanitizeFileName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.TrimSpace(name)

	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name")
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_' || r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.TrimLeft(b.String(), ".")
	if cleaned == "" {
		return "", fmt.Errorf("invalid file name")
	}
	return cleaned, nil
}

// safeJoin joins path segments into a forward-slash relative path, rejecting
// segments that would escape the storage root.
func safeJoin(segments ...string) (string, error) {
	var parts []string
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		seg = strings.ReplaceAll(seg, "\\", "/")
		cleaned := path.Clean(seg)
		if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			return "", fmt.Errorf("invalid path segment: %s", seg)
		}
		parts = append(parts, cleaned)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("empty path")
	}
	return path.Join(parts...), nil
}

// detectMime resolves a MIME type from the file extension, falling back to
// content sniffing for unknown extensions.
func detectMime(name string, data []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		if i := strings.Index(byExt, ";"); i >= 0 {
			byExt = byExt[:i]
		}
		return byExt
	}
	sniffed := http.DetectContentType(data)
	if i := strings.Index(sniffed, ";"); i >= 0 {
		sniffed = sniffed[:i]
	}
	return sniffed
}

func isImageMime(mimeType string) bool {
	switch mimeType {
	case "image/png", "image/jpeg", "image/gif":
		return true
	}
	return false
}
