package testutil

import (
	"dms-go/internal/dms"
	"dms-go/internal/encryption"
)

// NewTestEncryptor creates a deterministic encryptor for testing.
func NewTestEncryptor() dms.Encryptor {
	return encryption.NewTestEncryptor()
}
