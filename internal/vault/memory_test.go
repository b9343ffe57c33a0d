package vault

import (
	"bytes"
	"strings"
	"testing"

	"dms-go/internal/config"
)

func configFor(vaultType string) config.VaultConfig {
	return config.VaultConfig{Type: vaultType, Name: "test"}
}

func TestMemoryVault(t *testing.T) {
	v := NewMemoryVault("test")

	t.Run("round trips an object", func(t *testing.T) {
		data := []byte("payload")
		if err := v.Put("obj", bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		var buf bytes.Buffer
		if err := v.Get("obj", &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if buf.String() != "payload" {
			t.Errorf("Get() = %q, want %q", buf.String(), "payload")
		}
	})

	t.Run("rejects size mismatch", func(t *testing.T) {
		if err := v.Put("bad", strings.NewReader("abc"), 99); err == nil {
			t.Error("Put() expected error for size mismatch")
		}
	})

	t.Run("missing object returns error", func(t *testing.T) {
		var buf bytes.Buffer
		if err := v.Get("absent", &buf); err == nil {
			t.Error("Get() expected error for missing object")
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		if err := v.Delete("obj"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := v.Delete("obj"); err != nil {
			t.Errorf("second Delete() error = %v", err)
		}
	})
}

func TestNewVaultFromConfig(t *testing.T) {
	t.Run("unknown type fails", func(t *testing.T) {
		_, err := NewVaultFromConfig(configFor("bogus"))
		if err == nil {
			t.Error("expected error for unknown vault type")
		}
	})

	t.Run("filesystem requires root", func(t *testing.T) {
		_, err := NewVaultFromConfig(configFor("filesystem"))
		if err == nil {
			t.Error("expected error for filesystem vault without root")
		}
	})

	t.Run("memory succeeds", func(t *testing.T) {
		v, err := NewVaultFromConfig(configFor("memory"))
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if v == nil {
			t.Error("expected vault instance")
		}
	})
}
