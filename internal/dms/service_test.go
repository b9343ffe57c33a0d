package dms_test

import (
	"testing"

	"dms-go/internal/config"
	"dms-go/internal/dms"
	"dms-go/internal/model"
	"dms-go/internal/storage"
	"dms-go/internal/testutil"
)

type fixture struct {
	db      dms.Database
	files   dms.FileStore
	clock   *testutil.StubClock
	service *dms.Service
}

func newFixture(t *testing.T, maxVersions int) *fixture {
	t.Helper()

	db := testutil.NewTestDatabase(t)
	files, err := storage.NewStore(config.StorageConfig{Root: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	clock := testutil.FixedClock()
	svc := dms.NewService(db, files, &dms.NopLogger{}, clock, testutil.NewStubIDGenerator(), maxVersions)
	return &fixture{db: db, files: files, clock: clock, service: svc}
}

func TestService_UploadDocument(t *testing.T) {
	t.Run("creates document and initial version", func(t *testing.T) {
		f := newFixture(t, 10)

		doc, res, err := f.service.UploadDocument([]byte("contract body"), "contract.txt", dms.UploadDocumentOptions{
			Title: "Retainer agreement",
			Actor: "paralegal-1",
		})
		if err != nil {
			t.Fatalf("UploadDocument() error = %v", err)
		}
		if !res.Success {
			t.Fatalf("upload failed: %v", res.Errors)
		}

		if doc.Title != "Retainer agreement" {
			t.Errorf("Title = %q", doc.Title)
		}
		if doc.Version != 1 {
			t.Errorf("Version = %d, want 1", doc.Version)
		}
		if doc.Status != model.StatusActive {
			t.Errorf("Status = %q, want ACTIVE", doc.Status)
		}
		if doc.StoragePath != "documents/original/contract.txt" {
			t.Errorf("StoragePath = %q", doc.StoragePath)
		}

		versions, err := f.service.ListVersions(doc.ID)
		if err != nil {
			t.Fatalf("ListVersions() error = %v", err)
		}
		if len(versions) != 1 {
			t.Fatalf("versions = %d, want 1", len(versions))
		}
		if !versions[0].IsLatest {
			t.Error("initial version not flagged latest")
		}
		if versions[0].Checksum != doc.Checksum {
			t.Error("version checksum disagrees with document")
		}
	})

	t.Run("validation failure returns result without document", func(t *testing.T) {
		f := newFixture(t, 10)

		doc, res, err := f.service.UploadDocument(nil, "empty.txt", dms.UploadDocumentOptions{})
		if err != nil {
			t.Fatalf("UploadDocument() error = %v", err)
		}
		if doc != nil {
			t.Error("document created for invalid upload")
		}
		if res.Success || len(res.Errors) == 0 {
			t.Errorf("result = %+v, want failure with errors", res)
		}

		docs, err := f.service.ListDocuments("", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(docs) != 0 {
			t.Errorf("documents = %d, want 0", len(docs))
		}
	})

	t.Run("get returns nil for unknown id", func(t *testing.T) {
		f := newFixture(t, 10)
		doc, err := f.service.GetDocument("missing")
		if err != nil {
			t.Fatalf("GetDocument() error = %v", err)
		}
		if doc != nil {
			t.Errorf("GetDocument() = %+v, want nil", doc)
		}
	})
}

func TestService_DeleteDocument(t *testing.T) {
	t.Run("soft delete keeps bytes and rows", func(t *testing.T) {
		f := newFixture(t, 10)
		doc, _, err := f.service.UploadDocument([]byte("body"), "a.txt", dms.UploadDocumentOptions{})
		if err != nil {
			t.Fatal(err)
		}

		if err := f.service.DeleteDocument(doc.ID, false, "admin"); err != nil {
			t.Fatalf("DeleteDocument() error = %v", err)
		}

		got, err := f.service.GetDocument(doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || got.Status != model.StatusDeleted {
			t.Errorf("document = %+v, want status DELETED", got)
		}
		if !f.files.Exists(doc.StoragePath) {
			t.Error("soft delete removed the file")
		}
	})

	t.Run("hard delete removes files and rows", func(t *testing.T) {
		f := newFixture(t, 10)
		doc, _, err := f.service.UploadDocument([]byte("body"), "a.txt", dms.UploadDocumentOptions{})
		if err != nil {
			t.Fatal(err)
		}
		v2, err := f.service.CreateVersion(doc.ID, []byte("body v2"), dms.VersionOptions{})
		if err != nil {
			t.Fatal(err)
		}

		if err := f.service.DeleteDocument(doc.ID, true, "admin"); err != nil {
			t.Fatalf("DeleteDocument() error = %v", err)
		}

		got, err := f.service.GetDocument(doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Error("document row survived hard delete")
		}
		if f.files.Exists(doc.StoragePath) {
			t.Error("primary file survived hard delete")
		}
		if f.files.Exists(v2.StoragePath) {
			t.Error("version file survived hard delete")
		}
	})

	t.Run("deleting unknown document fails", func(t *testing.T) {
		f := newFixture(t, 10)
		if err := f.service.DeleteDocument("missing", false, "admin"); err == nil {
			t.Error("DeleteDocument() expected error")
		}
	})
}

func TestService_Audit(t *testing.T) {
	f := newFixture(t, 10)
	doc, _, err := f.service.UploadDocument([]byte("body"), "a.txt", dms.UploadDocumentOptions{Actor: "clerk"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.service.DeleteDocument(doc.ID, false, "admin"); err != nil {
		t.Fatal(err)
	}

	entries, err := f.db.ListAudit(0)
	if err != nil {
		t.Fatalf("ListAudit() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
}
