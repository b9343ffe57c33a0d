// Package backup snapshots the storage tree into checksummed tar.gz
// archives, stores them in a vault with a JSON manifest, and restores
// them on demand. Runs walk a pending -> running -> completed|failed
// state machine recorded in the database.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"dms-go/internal/checksum"
)

// ManifestEntry records one file captured in an archive.
type ManifestEntry struct {
	Path     string `json:"path"` // forward-slash path relative to the storage root
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// Manifest describes a backup archive: what went in and the checksum of the
// produced (and possibly encrypted) archive bytes.
type Manifest struct {
	BackupID        string          `json:"backupId"`
	CreatedAt       time.Time       `json:"createdAt"`
	ArchiveName     string          `json:"archiveName"`
	ArchiveChecksum string          `json:"archiveChecksum"`
	ArchiveSize     int64           `json:"archiveSize"`
	Encrypted       bool            `json:"encrypted"`
	Files           []ManifestEntry `json:"files"`
}

// manifestName maps an archive object name to its manifest object name.
func manifestName(archiveName string) string {
	return archiveName + ".manifest.json"
}

// writeArchive walks root and writes a tar.gz of every regular file into w,
// returning a manifest entry per file. Hidden temp files from interrupted
// atomic writes are skipped.
func writeArchive(root string, w io.Writer) ([]ManifestEntry, error) {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	var entries []ManifestEntry
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", p, err)
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stating %s: %w", p, err)
		}

		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("opening %s: %w", p, err)
		}
		defer f.Close()

		hdr := &tar.Header{
			Name:    rel,
			Mode:    0644,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing tar header for %s: %w", rel, err)
		}

		sum, n, err := checksum.SumReader(io.TeeReader(f, tw))
		if err != nil {
			return fmt.Errorf("archiving %s: %w", rel, err)
		}
		if n != info.Size() {
			return fmt.Errorf("file %s changed while archiving", rel)
		}

		entries = append(entries, ManifestEntry{Path: rel, Size: n, Checksum: sum})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("finalizing gzip: %w", err)
	}
	return entries, nil
}

// extractEntry is invoked for each archive member during extraction. The
// returned writer receives the member's content; a nil writer skips it.
type extractEntry func(relPath string, size int64) (io.WriteCloser, error)

// readArchive streams a tar.gz archive, calling handle for each regular
// file. Entries whose path would escape the extraction root are rejected.
func readArchive(r io.Reader, handle extractEntry) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := path.Clean(strings.ReplaceAll(hdr.Name, "\\", "/"))
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return fmt.Errorf("archive entry escapes extraction root: %s", hdr.Name)
		}

		w, err := handle(name, hdr.Size)
		if err != nil {
			return err
		}
		if w == nil {
			continue
		}
		if _, err := io.Copy(w, tr); err != nil {
			w.Close()
			return fmt.Errorf("extracting %s: %w", name, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("finalizing %s: %w", name, err)
		}
	}
}

// encodeManifest serializes a manifest for vault storage.
func encodeManifest(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return data, nil
}
