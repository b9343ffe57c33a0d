// Package optimize scans the storage tree for reclaimable space: aged temp
// files, versions beyond retention, duplicate content, corrupted files, and
// large compressible files. Every pass can run as a dry run that produces
// the same report without touching anything.
package optimize

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dms-go/internal/checksum"
	"dms-go/internal/config"
	"dms-go/internal/dms"
	"dms-go/internal/model"
)

// Optimizer runs cleanup passes over the storage tree.
type Optimizer struct {
	files    dms.FileStore
	database dms.Database
	versions *dms.Service
	logger   dms.Logger
	clock    dms.Clock
	cfg      config.OptimizeConfig
	metrics  *Metrics
}

// NewOptimizer creates an Optimizer. metrics may be nil.
func NewOptimizer(files dms.FileStore, database dms.Database, versions *dms.Service, logger dms.Logger, clock dms.Clock, cfg config.OptimizeConfig, metrics *Metrics) *Optimizer {
	if logger == nil {
		logger = &dms.NopLogger{}
	}
	return &Optimizer{
		files:    files,
		database: database,
		versions: versions,
		logger:   logger,
		clock:    clock,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// Options selects which passes run.
type Options struct {
	DryRun bool

	CleanTempFiles   bool
	PruneVersions    bool
	DetectDuplicates bool
	DetectCorrupted  bool
	CompressLarge    bool
}

// AllSteps returns Options with every pass enabled.
func AllSteps(dryRun bool) Options {
	return Options{
		DryRun:           dryRun,
		CleanTempFiles:   true,
		PruneVersions:    true,
		DetectDuplicates: true,
		DetectCorrupted:  true,
		CompressLarge:    true,
	}
}

// Report accumulates the outcome of an optimization run.
type Report struct {
	DryRun bool

	FilesScanned     int
	TempFilesDeleted int
	VersionsPruned   int
	DuplicateGroups  int
	DuplicateFiles   int
	DuplicateBytes   int64 // bytes held by redundant copies
	CorruptedFiles   []string
	FilesCompressed  int
	SpaceFreed       int64
	Warnings         []string
}

type scannedFile struct {
	relPath string
	size    int64
	modTime time.Time
}

// PerformOptimization runs the enabled passes and returns a combined report.
// With DryRun set, the report is computed identically but nothing is
// deleted, pruned, or rewritten.
func (o *Optimizer) PerformOptimization(opts Options) (*Report, error) {
	report := &Report{DryRun: opts.DryRun}

	files, err := o.scan()
	if err != nil {
		return nil, fmt.Errorf("scanning storage tree: %w", err)
	}
	report.FilesScanned = len(files)

	if opts.CleanTempFiles {
		o.cleanTempFiles(files, opts.DryRun, report)
	}
	if opts.PruneVersions {
		o.pruneStaleVersions(opts.DryRun, report)
	}
	if opts.DetectDuplicates {
		o.detectDuplicates(files, report)
	}
	if opts.DetectCorrupted {
		o.detectCorrupted(files, report)
	}
	if opts.CompressLarge {
		o.compressLargeFiles(files, opts.DryRun, report)
	}

	o.logger.Info("optimization complete",
		"dryRun", opts.DryRun,
		"scanned", report.FilesScanned,
		"tempDeleted", report.TempFilesDeleted,
		"versionsPruned", report.VersionsPruned,
		"compressed", report.FilesCompressed,
		"spaceFreed", report.SpaceFreed)
	return report, nil
}

// scan inventories every regular file under the storage root.
func (o *Optimizer) scan() ([]scannedFile, error) {
	root := o.files.Root()

	var files []scannedFile
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stating %s: %w", p, err)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", p, err)
		}
		files = append(files, scannedFile{
			relPath: filepath.ToSlash(rel),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// isTempFile recognizes leftovers from interrupted atomic writes.
func isTempFile(relPath string) bool {
	base := filepath.Base(relPath)
	return strings.HasPrefix(base, ".upload-") || strings.HasSuffix(base, ".tmp")
}

func (o *Optimizer) cleanTempFiles(files []scannedFile, dryRun bool, report *Report) {
	maxAge := time.Duration(o.cfg.TempMaxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cutoff := o.clock.Now().Add(-maxAge)

	for _, f := range files {
		if !isTempFile(f.relPath) || f.modTime.After(cutoff) {
			continue
		}
		if !dryRun {
			if err := o.files.Delete(f.relPath); err != nil {
				report.Warnings = append(report.Warnings, fmt.Sprintf("deleting temp file %s: %v", f.relPath, err))
				continue
			}
		}
		report.TempFilesDeleted++
		report.SpaceFreed += f.size
	}
}

func (o *Optimizer) pruneStaleVersions(dryRun bool, report *Report) {
	docs, err := o.database.ListDocuments(model.StatusActive, 0)
	if err != nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("listing documents: %v", err))
		return
	}

	for _, doc := range docs {
		var pruned int
		var err error
		if dryRun {
			pruned, err = o.versions.PrunableVersions(doc.ID)
		} else {
			pruned, err = o.versions.CleanupOldVersions(doc.ID)
		}
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("pruning versions of %s: %v", doc.ID, err))
			continue
		}
		report.VersionsPruned += pruned
	}
}

// detectDuplicates groups files by content checksum. Thumbnails are excluded;
// a document and its latest version legitimately share content, so only
// groups of three or more, or pairs outside the versions tree, would be
// actionable — the report counts every redundant copy and lets the operator
// decide.
func (o *Optimizer) detectDuplicates(files []scannedFile, report *Report) {
	byChecksum := make(map[string][]scannedFile)
	for _, f := range files {
		if isTempFile(f.relPath) || strings.Contains(f.relPath, "/thumbnails/") {
			continue
		}
		sum, err := checksum.SumFile(filepath.Join(o.files.Root(), filepath.FromSlash(f.relPath)))
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("hashing %s: %v", f.relPath, err))
			continue
		}
		byChecksum[sum] = append(byChecksum[sum], f)
	}

	for _, group := range byChecksum {
		if len(group) < 2 {
			continue
		}
		report.DuplicateGroups++
		report.DuplicateFiles += len(group) - 1
		for _, f := range group[1:] {
			report.DuplicateBytes += f.size
		}
	}
}

// magicHeaders maps extensions to their expected leading bytes.
var magicHeaders = map[string][]byte{
	".png": {0x89, 'P', 'N', 'G'},
	".jpg": {0xff, 0xd8, 0xff},
	".gif": {'G', 'I', 'F', '8'},
	".pdf": {'%', 'P', 'D', 'F'},
	".zip": {'P', 'K'},
	".gz":  {0x1f, 0x8b},
}

// detectCorrupted flags zero-byte files and files whose leading bytes
// contradict their extension. Findings are reported, never auto-deleted.
func (o *Optimizer) detectCorrupted(files []scannedFile, report *Report) {
	for _, f := range files {
		if isTempFile(f.relPath) {
			continue
		}
		if f.size == 0 {
			report.CorruptedFiles = append(report.CorruptedFiles, f.relPath)
			continue
		}

		magic, ok := magicHeaders[strings.ToLower(filepath.Ext(f.relPath))]
		if !ok {
			continue
		}
		head := make([]byte, len(magic))
		fh, err := os.Open(filepath.Join(o.files.Root(), filepath.FromSlash(f.relPath)))
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("opening %s: %v", f.relPath, err))
			continue
		}
		_, err = io.ReadFull(fh, head)
		fh.Close()
		if err != nil || !bytes.Equal(head, magic) {
			report.CorruptedFiles = append(report.CorruptedFiles, f.relPath)
		}
	}
}

// compressLargeFiles gzips files above the size threshold in compressible
// categories, replacing the original with a .gz sibling.
func (o *Optimizer) compressLargeFiles(files []scannedFile, dryRun bool, report *Report) {
	threshold := o.cfg.LargeFileThreshold
	if threshold <= 0 {
		return
	}
	categories := make(map[string]bool, len(o.cfg.CompressibleCategories))
	for _, c := range o.cfg.CompressibleCategories {
		categories[c] = true
	}
	if len(categories) == 0 {
		return
	}

	for _, f := range files {
		if f.size < threshold || strings.HasSuffix(f.relPath, ".gz") || isTempFile(f.relPath) {
			continue
		}
		category := strings.SplitN(f.relPath, "/", 2)[0]
		if !categories[category] {
			continue
		}

		if dryRun {
			report.FilesCompressed++
			continue
		}

		saved, err := o.gzipFile(f.relPath)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("compressing %s: %v", f.relPath, err))
			continue
		}
		if saved > 0 {
			report.FilesCompressed++
			report.SpaceFreed += saved
		}
	}
}

// gzipFile compresses relPath to relPath+".gz" and removes the original,
// returning the bytes saved. A compression that grows the file is undone.
func (o *Optimizer) gzipFile(relPath string) (int64, error) {
	root := o.files.Root()
	src := filepath.Join(root, filepath.FromSlash(relPath))
	dst := src + ".gz"

	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("creating target: %w", err)
	}

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		out.Close()
		os.Remove(dst)
		return 0, fmt.Errorf("compressing: %w", err)
	}
	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return 0, fmt.Errorf("finalizing gzip: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return 0, fmt.Errorf("closing target: %w", err)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stating source: %w", err)
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("stating target: %w", err)
	}
	if dstInfo.Size() >= srcInfo.Size() {
		os.Remove(dst)
		return 0, nil
	}

	if err := os.Remove(src); err != nil {
		os.Remove(dst)
		return 0, fmt.Errorf("removing original: %w", err)
	}
	return srcInfo.Size() - dstInfo.Size(), nil
}
