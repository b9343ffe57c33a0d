// Package checksum provides SHA-256 content hashing used for integrity
// tagging and deduplication across the storage, version, backup, and
// custody components.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Sum returns the SHA-256 checksum of data as a lowercase hex string.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString hashes a string and returns the hex-encoded SHA-256 checksum.
func SumString(s string) string {
	return Sum([]byte(s))
}

// SumReader streams r through SHA-256 and returns the hex checksum and the
// number of bytes read.
func SumReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// SumFile computes the SHA-256 checksum of the file at path without loading
// it entirely into memory.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file for hashing: %w", err)
	}
	defer f.Close()

	sum, _, err := SumReader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return sum, nil
}
