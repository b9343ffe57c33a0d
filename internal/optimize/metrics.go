package optimize

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"dms-go/internal/checksum"
)

// CategoryStat summarizes one top-level storage category.
type CategoryStat struct {
	Files int
	Bytes int64
}

// StorageMetrics is a point-in-time view of the storage tree, recomputed on
// demand from a filesystem walk and never persisted.
type StorageMetrics struct {
	TotalBytes     int64
	FileCount      int
	Categories     map[string]CategoryStat
	DuplicateRatio float64 // redundant copies / total files
	CorruptedRatio float64
	HealthScore    int // 0-100; duplicates and corruption pull it down
}

// GetStorageMetrics walks the tree and computes sizes, per-category
// breakdowns, duplicate and corruption ratios, and the health score.
func (o *Optimizer) GetStorageMetrics() (*StorageMetrics, error) {
	files, err := o.scan()
	if err != nil {
		return nil, fmt.Errorf("scanning storage tree: %w", err)
	}

	m := &StorageMetrics{Categories: make(map[string]CategoryStat)}

	byChecksum := make(map[string]int)
	corrupted := 0
	for _, f := range files {
		if isTempFile(f.relPath) {
			continue
		}
		m.FileCount++
		m.TotalBytes += f.size

		category := strings.SplitN(f.relPath, "/", 2)[0]
		stat := m.Categories[category]
		stat.Files++
		stat.Bytes += f.size
		m.Categories[category] = stat

		if f.size == 0 {
			corrupted++
			continue
		}
		sum, err := checksum.SumFile(filepath.Join(o.files.Root(), filepath.FromSlash(f.relPath)))
		if err != nil {
			corrupted++
			continue
		}
		byChecksum[sum]++
	}

	duplicates := 0
	for _, count := range byChecksum {
		if count > 1 {
			duplicates += count - 1
		}
	}

	if m.FileCount > 0 {
		m.DuplicateRatio = float64(duplicates) / float64(m.FileCount)
		m.CorruptedRatio = float64(corrupted) / float64(m.FileCount)
	}
	m.HealthScore = healthScore(m.DuplicateRatio, m.CorruptedRatio)

	if o.metrics != nil {
		o.metrics.ObserveStorage(m)
	}
	return m, nil
}

// healthScore maps duplicate and corruption ratios to 0-100. Corruption
// weighs twice as heavily as duplication; each penalty is capped at 50.
func healthScore(duplicateRatio, corruptedRatio float64) int {
	dupPenalty := duplicateRatio * 100
	if dupPenalty > 50 {
		dupPenalty = 50
	}
	corruptPenalty := corruptedRatio * 200
	if corruptPenalty > 50 {
		corruptPenalty = 50
	}

	score := 100 - int(dupPenalty) - int(corruptPenalty)
	if score < 0 {
		score = 0
	}
	return score
}

// Metrics contains Prometheus metrics for the storage tree.
type Metrics struct {
	totalBytes  prometheus.Gauge
	fileCount   prometheus.Gauge
	healthScore prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		totalBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dms_storage_total_bytes",
				Help: "Total bytes under the storage root",
			},
		),
		fileCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dms_storage_file_count",
				Help: "Number of files under the storage root",
			},
		),
		healthScore: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dms_storage_health_score",
				Help: "Storage health score from 0 (bad) to 100 (clean)",
			},
		),
	}
}

// ObserveStorage publishes the latest storage scan.
func (m *Metrics) ObserveStorage(s *StorageMetrics) {
	m.totalBytes.Set(float64(s.TotalBytes))
	m.fileCount.Set(float64(s.FileCount))
	m.healthScore.Set(float64(s.HealthScore))
}
