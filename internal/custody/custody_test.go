package custody_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dms-go/internal/config"
	"dms-go/internal/custody"
	"dms-go/internal/dms"
	"dms-go/internal/storage"
	"dms-go/internal/testutil"
)

type fixture struct {
	files   dms.FileStore
	clock   *testutil.StubClock
	service *custody.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files, err := storage.NewStore(config.StorageConfig{Root: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	clock := testutil.FixedClock()
	return &fixture{files: files, clock: clock, service: custody.NewService(files, nil, clock)}
}

func (f *fixture) seedEvidence(t *testing.T, name, content string) string {
	t.Helper()
	res, err := f.files.Upload([]byte(content), name, dms.UploadOptions{Category: "evidence", Subdir: "original"})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("Upload() failed: %v", res.Errors)
	}
	return res.FilePath
}

func TestService_Append(t *testing.T) {
	t.Run("builds a linked chain", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.service.Append("ev-1", custody.EntryInput{Action: "collected", Performer: "officer-a"})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if first.Seq != 1 || first.PrevHash != "" {
			t.Errorf("first entry = %+v, want seq 1 with empty prevHash", first)
		}
		if first.Hash == "" {
			t.Error("first entry has no hash")
		}

		f.clock.Advance(time.Hour)
		second, err := f.service.Append("ev-1", custody.EntryInput{Action: "transferred", Performer: "clerk-b", Location: "records room"})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if second.Seq != 2 {
			t.Errorf("Seq = %d, want 2", second.Seq)
		}
		if second.PrevHash != first.Hash {
			t.Error("second entry does not link to first")
		}

		entries, err := f.service.Entries("ev-1")
		if err != nil {
			t.Fatalf("Entries() error = %v", err)
		}
		if len(entries) != 2 {
			t.Errorf("entries = %d, want 2", len(entries))
		}
	})

	t.Run("requires action and performer", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.service.Append("ev-1", custody.EntryInput{Performer: "x"}); err == nil {
			t.Error("Append() without action expected error")
		}
		if _, err := f.service.Append("ev-1", custody.EntryInput{Action: "collected"}); err == nil {
			t.Error("Append() without performer expected error")
		}
	})

	t.Run("rejects path-like evidence ids", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.service.Append("../escape", custody.EntryInput{Action: "a", Performer: "p"}); err == nil {
			t.Error("Append() accepted path-like id")
		}
	})

	t.Run("missing ledger yields empty history", func(t *testing.T) {
		f := newFixture(t)
		entries, err := f.service.Entries("never-seen")
		if err != nil {
			t.Fatalf("Entries() error = %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("entries = %d, want 0", len(entries))
		}
	})
}

func TestService_Verify(t *testing.T) {
	t.Run("intact chain is valid", func(t *testing.T) {
		f := newFixture(t)
		path := f.seedEvidence(t, "photo.bin", "evidence bytes")

		for _, action := range []string{"collected", "transferred", "analyzed"} {
			if _, err := f.service.Append("ev-1", custody.EntryInput{Action: action, Performer: "officer-a"}); err != nil {
				t.Fatalf("Append(%s) error = %v", action, err)
			}
			f.clock.Advance(time.Hour)
		}

		res, err := f.service.Verify("ev-1", path)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if !res.IsValid {
			t.Errorf("IsValid = false, issues = %v", res.Issues)
		}
		if !res.ChainOfCustodyComplete {
			t.Error("ChainOfCustodyComplete = false")
		}
		if len(res.Advisories) != 0 {
			t.Errorf("Advisories = %v, want none", res.Advisories)
		}
	})

	t.Run("missing evidence file fails closed", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.service.Append("ev-1", custody.EntryInput{Action: "collected", Performer: "officer-a"}); err != nil {
			t.Fatal(err)
		}

		res, err := f.service.Verify("ev-1", "evidence/original/absent.bin")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if res.IsValid {
			t.Error("IsValid = true for missing evidence file")
		}
	})

	t.Run("empty evidence file fails closed", func(t *testing.T) {
		f := newFixture(t)
		abs := filepath.Join(f.files.Root(), "evidence", "original", "empty.bin")
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, nil, 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := f.service.Append("ev-1", custody.EntryInput{Action: "collected", Performer: "officer-a"}); err != nil {
			t.Fatal(err)
		}

		res, err := f.service.Verify("ev-1", "evidence/original/empty.bin")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if res.IsValid {
			t.Error("IsValid = true for empty evidence file")
		}
		found := false
		for _, issue := range res.Issues {
			if strings.Contains(issue, "empty") {
				found = true
			}
		}
		if !found {
			t.Errorf("Issues = %v, want an empty-file issue", res.Issues)
		}
	})

	t.Run("empty ledger marks chain incomplete", func(t *testing.T) {
		f := newFixture(t)
		path := f.seedEvidence(t, "photo.bin", "evidence bytes")

		res, err := f.service.Verify("ev-1", path)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if !res.IsValid {
			t.Errorf("IsValid = false, issues = %v", res.Issues)
		}
		if res.ChainOfCustodyComplete {
			t.Error("ChainOfCustodyComplete = true for empty ledger")
		}
	})

	t.Run("tampered entry breaks the chain", func(t *testing.T) {
		f := newFixture(t)
		path := f.seedEvidence(t, "photo.bin", "evidence bytes")

		f.service.Append("ev-1", custody.EntryInput{Action: "collected", Performer: "officer-a"})
		f.service.Append("ev-1", custody.EntryInput{Action: "transferred", Performer: "clerk-b"})

		// Edit the first entry's action directly in the sidecar.
		ledgerPath := filepath.Join(f.files.Root(), "evidence", "custody", "ev-1.json")
		raw, err := os.ReadFile(ledgerPath)
		if err != nil {
			t.Fatal(err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatal(err)
		}
		entries := doc["entries"].([]any)
		entries[0].(map[string]any)["action"] = "destroyed"
		edited, err := json.Marshal(doc)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(ledgerPath, edited, 0644); err != nil {
			t.Fatal(err)
		}

		res, err := f.service.Verify("ev-1", path)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if res.IsValid {
			t.Error("IsValid = true for tampered ledger")
		}
		found := false
		for _, issue := range res.Issues {
			if strings.Contains(issue, "tampering") {
				found = true
			}
		}
		if !found {
			t.Errorf("Issues = %v, want a tampering issue", res.Issues)
		}
	})

	t.Run("long gaps are advisory only", func(t *testing.T) {
		f := newFixture(t)
		path := f.seedEvidence(t, "photo.bin", "evidence bytes")

		f.service.Append("ev-1", custody.EntryInput{Action: "collected", Performer: "officer-a"})
		f.clock.Advance(72 * time.Hour)
		f.service.Append("ev-1", custody.EntryInput{Action: "transferred", Performer: "clerk-b"})

		res, err := f.service.Verify("ev-1", path)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if !res.IsValid {
			t.Errorf("IsValid = false, issues = %v", res.Issues)
		}
		if len(res.Advisories) == 0 {
			t.Error("expected a gap advisory")
		}
	})
}
