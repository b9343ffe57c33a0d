package dms

import "io"

// Vault provides an interface for backup archive destinations.
// All operations use io.Reader/io.Writer for streaming to support large
// archives without loading them entirely into memory.
type Vault interface {
	// Put stores an object under name. size is the number of bytes that
	// will be read from r; a short or long read is an error.
	Put(name string, r io.Reader, size int64) error

	// Get retrieves an object by name and writes it to w.
	Get(name string, w io.Writer) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(name string) error

	// List returns the names of all stored objects.
	List() ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
