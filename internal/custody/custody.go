// Package custody maintains per-evidence chain-of-custody ledgers. Each
// evidence item gets an append-only JSON sidecar of custody entries linked by
// a SHA-256 hash chain, so any after-the-fact edit to an entry breaks the
// chain and is reported as tampering.
package custody

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dms-go/internal/dms"
)

// ledgerDir is the subdirectory under the storage root holding ledgers.
const ledgerDir = "evidence/custody"

// maxGap is the inter-entry spacing above which a gap advisory is raised.
const maxGap = 24 * time.Hour

// Entry is one custody event. Once written it is never mutated; Hash covers
// the entry's fields plus the previous entry's hash.
type Entry struct {
	Seq       int       `json:"seq"`
	Action    string    `json:"action"`
	Performer string    `json:"performer"`
	Location  string    `json:"location,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Signature string    `json:"signature,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	PrevHash  string    `json:"prevHash"`
	Hash      string    `json:"hash"`
}

// EntryInput is the caller-supplied part of a custody event.
type EntryInput struct {
	Action    string
	Performer string
	Location  string
	Notes     string
	Signature string
}

// ledger is the on-disk sidecar document.
type ledger struct {
	EvidenceID string  `json:"evidenceId"`
	Entries    []Entry `json:"entries"`
}

// Service reads and appends custody ledgers under the storage root.
type Service struct {
	files  dms.FileStore
	logger dms.Logger
	clock  dms.Clock
}

// NewService creates a custody Service.
func NewService(files dms.FileStore, logger dms.Logger, clock dms.Clock) *Service {
	if logger == nil {
		logger = &dms.NopLogger{}
	}
	return &Service{files: files, logger: logger, clock: clock}
}

// ledgerPath maps an evidence ID to its sidecar file.
func (s *Service) ledgerPath(evidenceID string) (string, error) {
	if evidenceID == "" || strings.ContainsAny(evidenceID, "/\\") {
		return "", fmt.Errorf("invalid evidence id: %q", evidenceID)
	}
	return filepath.Join(s.files.Root(), filepath.FromSlash(ledgerDir), evidenceID+".json"), nil
}

// entryHash computes the chain hash of an entry: SHA-256 over the canonical
// JSON of the entry with its Hash field cleared.
func entryHash(e Entry) (string, error) {
	e.Hash = ""
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encoding entry for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Append adds a custody event to the evidence item's ledger, creating the
// ledger on first use. The new entry links to the previous entry's hash.
func (s *Service) Append(evidenceID string, in EntryInput) (*Entry, error) {
	if in.Action == "" {
		return nil, fmt.Errorf("custody entry requires an action")
	}
	if in.Performer == "" {
		return nil, fmt.Errorf("custody entry requires a performer")
	}

	path, err := s.ledgerPath(evidenceID)
	if err != nil {
		return nil, err
	}

	led, err := s.readLedger(path, evidenceID)
	if err != nil {
		return nil, err
	}

	prevHash := ""
	if n := len(led.Entries); n > 0 {
		prevHash = led.Entries[n-1].Hash
	}

	entry := Entry{
		Seq:       len(led.Entries) + 1,
		Action:    in.Action,
		Performer: in.Performer,
		Location:  in.Location,
		Notes:     in.Notes,
		Signature: in.Signature,
		Timestamp: s.clock.Now(),
		PrevHash:  prevHash,
	}
	entry.Hash, err = entryHash(entry)
	if err != nil {
		return nil, err
	}

	led.Entries = append(led.Entries, entry)
	if err := s.writeLedger(path, led); err != nil {
		return nil, err
	}

	s.logger.Info("custody entry appended", "evidence", evidenceID,
		"seq", entry.Seq, "action", entry.Action)
	return &entry, nil
}

// Entries returns the full custody history for an evidence item. A missing
// ledger yields an empty history, not an error.
func (s *Service) Entries(evidenceID string) ([]Entry, error) {
	path, err := s.ledgerPath(evidenceID)
	if err != nil {
		return nil, err
	}
	led, err := s.readLedger(path, evidenceID)
	if err != nil {
		return nil, err
	}
	return led.Entries, nil
}

func (s *Service) readLedger(path, evidenceID string) (*ledger, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ledger{EvidenceID: evidenceID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading custody ledger: %w", err)
	}

	var led ledger
	if err := json.Unmarshal(data, &led); err != nil {
		return nil, fmt.Errorf("decoding custody ledger: %w", err)
	}
	return &led, nil
}

// writeLedger persists the ledger atomically via temp file and rename.
func (s *Service) writeLedger(path string, led *ledger) error {
	data, err := json.MarshalIndent(led, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding custody ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating custody directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".custody-*")
	if err != nil {
		return fmt.Errorf("creating temp ledger: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}
