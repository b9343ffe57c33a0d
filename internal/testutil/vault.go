package testutil

import (
	"dms-go/internal/dms"
	"dms-go/internal/vault"
)

// NewTestVault creates an in-memory vault for testing.
func NewTestVault() dms.Vault {
	return vault.NewMemoryVault("test")
}
