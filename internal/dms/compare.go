package dms

import (
	"fmt"
	"strings"
)

// maxDiffBytes bounds the text comparison input. Beyond this the comparison
// degrades to the binary checksum path.
const maxDiffBytes = 1 << 20 // 1MB

// maxDiffLines bounds the quadratic line DP after identical leading and
// trailing lines have been trimmed away. A changed region larger than this
// gets an estimated similarity and no per-line diff.
const maxDiffLines = 2000

// LineChange is a single added or removed line.
type LineChange struct {
	Line int // 1-based line number in the version the change belongs to
	Text string
}

// ModifiedLine pairs a removed line with the added line that replaced it.
type ModifiedLine struct {
	Line int
	Old  string
	New  string
}

// VersionComparison is the outcome of comparing two versions of a document.
// For text content, Similarity is 1 - lineEditDistance/lineCount over the
// full text; for binary content it collapses to checksum equality (0.0 or
// 1.0).
type VersionComparison struct {
	DocumentID string
	VersionA   int64
	VersionB   int64
	MimeType   string
	Binary     bool
	Identical  bool
	Similarity float64
	SizeDelta  int64
	Added      []LineChange
	Removed    []LineChange
	Modified   []ModifiedLine
	Notes      []string
}

// CompareVersions diffs two versions of a document. Comparing a version to
// itself yields similarity 1.0 and an empty diff.
func (s *Service) CompareVersions(documentID string, a, b int64) (*VersionComparison, error) {
	va, err := s.database.FindVersionByNumber(documentID, a)
	if err != nil {
		return nil, fmt.Errorf("finding version %d: %w", a, err)
	}
	if va == nil {
		return nil, fmt.Errorf("version %d not found for document %s", a, documentID)
	}
	vb, err := s.database.FindVersionByNumber(documentID, b)
	if err != nil {
		return nil, fmt.Errorf("finding version %d: %w", b, err)
	}
	if vb == nil {
		return nil, fmt.Errorf("version %d not found for document %s", b, documentID)
	}

	cmp := &VersionComparison{
		DocumentID: documentID,
		VersionA:   a,
		VersionB:   b,
		MimeType:   vb.MimeType,
		SizeDelta:  vb.Size - va.Size,
	}

	if va.Checksum == vb.Checksum {
		cmp.Identical = true
		cmp.Similarity = 1.0
		return cmp, nil
	}

	if !isTextMime(va.MimeType) || !isTextMime(vb.MimeType) || va.Size > maxDiffBytes || vb.Size > maxDiffBytes {
		cmp.Binary = true
		cmp.Similarity = 0.0
		cmp.Notes = append(cmp.Notes, fmt.Sprintf("binary comparison: checksums differ, size delta %+d bytes", cmp.SizeDelta))
		return cmp, nil
	}

	dataA, _, err := s.files.Download(va.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("reading version %d: %w", a, err)
	}
	dataB, _, err := s.files.Download(vb.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("reading version %d: %w", b, err)
	}

	linesA := splitLines(string(dataA))
	linesB := splitLines(string(dataB))
	total := len(linesA)
	if len(linesB) > total {
		total = len(linesB)
	}
	if total == 0 {
		cmp.Similarity = 1.0
		return cmp, nil
	}

	// Identical leading and trailing lines cost nothing in edit distance,
	// so the DP only has to see the changed region in the middle.
	pre := commonPrefixLines(linesA, linesB)
	ta, tb := linesA[pre:], linesB[pre:]
	suf := commonSuffixLines(ta, tb)
	ta, tb = ta[:len(ta)-suf], tb[:len(tb)-suf]

	if len(ta) > maxDiffLines || len(tb) > maxDiffLines {
		changed := len(ta)
		if len(tb) > changed {
			changed = len(tb)
		}
		// Every remaining line counts as changed; that bounds the real
		// edit distance from above.
		cmp.Similarity = clampSimilarity(1.0 - float64(changed)/float64(total))
		cmp.Notes = append(cmp.Notes,
			fmt.Sprintf("changed region of %d lines exceeds the diff limit; similarity estimated, line diff omitted", changed))
		return cmp, nil
	}

	d := levenshteinLines(ta, tb)
	cmp.Similarity = clampSimilarity(1.0 - float64(d)/float64(total))

	added, removed, modified := diffLines(ta, tb)
	for i := range added {
		added[i].Line += pre
	}
	for i := range removed {
		removed[i].Line += pre
	}
	for i := range modified {
		modified[i].Line += pre
	}
	cmp.Added, cmp.Removed, cmp.Modified = added, removed, modified
	return cmp, nil
}

// isTextMime reports whether the MIME type is treated as line-diffable text.
func isTextMime(mime string) bool {
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	switch mime {
	case "application/json", "application/xml", "application/javascript",
		"application/x-yaml", "application/sql", "application/csv":
		return true
	}
	return false
}

// commonPrefixLines returns how many leading lines a and b share.
func commonPrefixLines(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// commonSuffixLines returns how many trailing lines a and b share.
func commonSuffixLines(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}

func clampSimilarity(sim float64) float64 {
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// levenshteinLines computes line-level edit distance with the two-row DP
// formulation.
func levenshteinLines(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// splitLines splits on \n, dropping a single trailing empty line so that
// "a\nb\n" and "a\nb" compare equal line-wise.
func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// diffLines computes a line-oriented diff via longest common subsequence.
// Adjacent removed/added pairs are folded into modifications.
func diffLines(a, b []string) (added []LineChange, removed []LineChange, modified []ModifiedLine) {
	// LCS length table.
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	// Walk the table collecting raw removals/additions.
	var rawRemoved []LineChange
	var rawAdded []LineChange
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			rawRemoved = append(rawRemoved, LineChange{Line: i + 1, Text: a[i]})
			i++
		default:
			rawAdded = append(rawAdded, LineChange{Line: j + 1, Text: b[j]})
			j++
		}
	}
	for ; i < len(a); i++ {
		rawRemoved = append(rawRemoved, LineChange{Line: i + 1, Text: a[i]})
	}
	for ; j < len(b); j++ {
		rawAdded = append(rawAdded, LineChange{Line: j + 1, Text: b[j]})
	}

	// Pair up removals and additions at matching positions as modifications.
	usedAdd := make([]bool, len(rawAdded))
	for _, rem := range rawRemoved {
		paired := false
		for k, add := range rawAdded {
			if usedAdd[k] {
				continue
			}
			if add.Line == rem.Line {
				modified = append(modified, ModifiedLine{Line: rem.Line, Old: rem.Text, New: add.Text})
				usedAdd[k] = true
				paired = true
				break
			}
		}
		if !paired {
			removed = append(removed, rem)
		}
	}
	for k, add := range rawAdded {
		if !usedAdd[k] {
			added = append(added, add)
		}
	}
	return added, removed, modified
}
