package custody

import (
	"fmt"
	"os"
	"path/filepath"
)

// VerificationResult is the integrity verdict for one evidence item.
// Issues flip IsValid to false; Advisories are informational findings that
// leave the verdict intact.
type VerificationResult struct {
	EvidenceID             string
	IsValid                bool
	ChainOfCustodyComplete bool
	Entries                int
	Issues                 []string
	Advisories             []string
}

// Verify checks an evidence item's stored file and custody ledger.
// It fails closed: a missing or zero-length evidence file is invalid
// regardless of what the ledger says. An empty ledger marks the chain
// incomplete. A broken hash chain is reported as tampering. Gaps longer
// than 24 hours between consecutive entries are advisory only.
func (s *Service) Verify(evidenceID, evidenceRelPath string) (*VerificationResult, error) {
	result := &VerificationResult{EvidenceID: evidenceID, IsValid: true}

	// Evidence file check, before anything else.
	abs := filepath.Join(s.files.Root(), filepath.FromSlash(evidenceRelPath))
	info, err := os.Stat(abs)
	switch {
	case os.IsNotExist(err):
		result.IsValid = false
		result.Issues = append(result.Issues, fmt.Sprintf("evidence file missing: %s", evidenceRelPath))
	case err != nil:
		return nil, fmt.Errorf("stating evidence file: %w", err)
	case info.Size() == 0:
		result.IsValid = false
		result.Issues = append(result.Issues, fmt.Sprintf("evidence file is empty: %s", evidenceRelPath))
	}

	entries, err := s.Entries(evidenceID)
	if err != nil {
		return nil, err
	}
	result.Entries = len(entries)

	if len(entries) == 0 {
		result.ChainOfCustodyComplete = false
		result.Advisories = append(result.Advisories, "no custody entries recorded")
		return result, nil
	}
	result.ChainOfCustodyComplete = true

	prevHash := ""
	for i, e := range entries {
		want, err := entryHash(e)
		if err != nil {
			return nil, err
		}
		if e.Hash != want {
			result.IsValid = false
			result.ChainOfCustodyComplete = false
			result.Issues = append(result.Issues,
				fmt.Sprintf("entry %d hash mismatch: possible tampering", e.Seq))
		}
		if e.PrevHash != prevHash {
			result.IsValid = false
			result.ChainOfCustodyComplete = false
			result.Issues = append(result.Issues,
				fmt.Sprintf("entry %d chain link broken: possible tampering", e.Seq))
		}
		prevHash = e.Hash

		if i > 0 {
			gap := e.Timestamp.Sub(entries[i-1].Timestamp)
			if gap > maxGap {
				result.Advisories = append(result.Advisories,
					fmt.Sprintf("gap of %s between entries %d and %d", gap, entries[i-1].Seq, e.Seq))
			}
		}
	}

	return result, nil
}
