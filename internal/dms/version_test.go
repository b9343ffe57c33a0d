package dms_test

import (
	"errors"
	"testing"

	"dms-go/internal/dms"
)

func TestService_CreateVersion(t *testing.T) {
	t.Run("increments and flips latest", func(t *testing.T) {
		f := newFixture(t, 10)
		doc, _, err := f.service.UploadDocument([]byte("v1"), "a.txt", dms.UploadDocumentOptions{})
		if err != nil {
			t.Fatal(err)
		}

		v2, err := f.service.CreateVersion(doc.ID, []byte("v2"), dms.VersionOptions{ChangeNote: "second draft"})
		if err != nil {
			t.Fatalf("CreateVersion() error = %v", err)
		}
		if v2.Version != 2 {
			t.Errorf("Version = %d, want 2", v2.Version)
		}
		if !v2.IsLatest {
			t.Error("new version not latest")
		}

		versions, err := f.service.ListVersions(doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		latestCount := 0
		for _, v := range versions {
			if v.IsLatest {
				latestCount++
			}
		}
		if latestCount != 1 {
			t.Errorf("is_latest holders = %d, want exactly 1", latestCount)
		}

		got, err := f.service.GetDocument(doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Version != 2 {
			t.Errorf("document Version = %d, want 2", got.Version)
		}
		if got.Checksum != v2.Checksum {
			t.Error("document checksum not updated to latest")
		}

		// Primary file serves the latest content.
		data, _, err := f.files.Download(got.StoragePath)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "v2" {
			t.Errorf("primary file = %q, want v2", data)
		}
	})

	t.Run("rejects identical content", func(t *testing.T) {
		f := newFixture(t, 10)
		doc, _, err := f.service.UploadDocument([]byte("same"), "a.txt", dms.UploadDocumentOptions{})
		if err != nil {
			t.Fatal(err)
		}

		_, err = f.service.CreateVersion(doc.ID, []byte("same"), dms.VersionOptions{})
		if !errors.Is(err, dms.ErrDuplicateContent) {
			t.Errorf("error = %v, want ErrDuplicateContent", err)
		}

		versions, _ := f.service.ListVersions(doc.ID)
		if len(versions) != 1 {
			t.Errorf("versions = %d, want 1", len(versions))
		}
	})

	t.Run("major version jumps to next multiple of ten", func(t *testing.T) {
		f := newFixture(t, 20)
		doc, _, err := f.service.UploadDocument([]byte("v1"), "a.txt", dms.UploadDocumentOptions{})
		if err != nil {
			t.Fatal(err)
		}

		v, err := f.service.CreateVersion(doc.ID, []byte("major rewrite"), dms.VersionOptions{Major: true})
		if err != nil {
			t.Fatalf("CreateVersion() error = %v", err)
		}
		if v.Version != 10 {
			t.Errorf("Version = %d, want 10", v.Version)
		}

		v, err = f.service.CreateVersion(doc.ID, []byte("minor fix"), dms.VersionOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if v.Version != 11 {
			t.Errorf("Version = %d, want 11", v.Version)
		}

		v, err = f.service.CreateVersion(doc.ID, []byte("another major"), dms.VersionOptions{Major: true})
		if err != nil {
			t.Fatal(err)
		}
		if v.Version != 20 {
			t.Errorf("Version = %d, want 20", v.Version)
		}
	})

	t.Run("rejects versions on deleted documents", func(t *testing.T) {
		f := newFixture(t, 10)
		doc, _, err := f.service.UploadDocument([]byte("v1"), "a.txt", dms.UploadDocumentOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if err := f.service.DeleteDocument(doc.ID, false, "admin"); err != nil {
			t.Fatal(err)
		}

		if _, err := f.service.CreateVersion(doc.ID, []byte("v2"), dms.VersionOptions{}); err == nil {
			t.Error("CreateVersion() on deleted document expected error")
		}
	})

	t.Run("prunes oldest beyond retention but keeps latest", func(t *testing.T) {
		f := newFixture(t, 2)
		doc, _, err := f.service.UploadDocument([]byte("v1"), "a.txt", dms.UploadDocumentOptions{})
		if err != nil {
			t.Fatal(err)
		}
		for _, content := range []string{"v2", "v3", "v4"} {
			if _, err := f.service.CreateVersion(doc.ID, []byte(content), dms.VersionOptions{}); err != nil {
				t.Fatal(err)
			}
		}

		versions, err := f.service.ListVersions(doc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(versions) != 2 {
			t.Fatalf("versions = %d, want 2", len(versions))
		}
		// Newest first: v4 (latest) and v3.
		if versions[0].Version != 4 || !versions[0].IsLatest {
			t.Errorf("versions[0] = %+v, want latest v4", versions[0])
		}
		if versions[1].Version != 3 {
			t.Errorf("versions[1].Version = %d, want 3", versions[1].Version)
		}
	})
}

func TestService_RestoreVersion(t *testing.T) {
	t.Run("as new appends exactly one version with provenance", func(t *testing.T) {
		f := newFixture(t, 10)
		doc, _, err := f.service.UploadDocument([]byte("v1 content"), "a.txt", dms.UploadDocumentOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.service.CreateVersion(doc.ID, []byte("v2 content"), dms.VersionOptions{}); err != nil {
			t.Fatal(err)
		}

		restored, err := f.service.RestoreVersion(doc.ID, 1, dms.RestoreOptions{AsNew: true, Actor: "partner"})
		if err != nil {
			t.Fatalf("RestoreVersion() error = %v", err)
		}
		if restored.Version != 3 {
			t.Errorf("Version = %d, want 3", restored.Version)
		}
		if restored.RestoredFrom == nil || *restored.RestoredFrom != 1 {
			t.Errorf("RestoredFrom = %v, want 1", restored.RestoredFrom)
		}

		versions, _ := f.service.ListVersions(doc.ID)
		if len(versions) != 3 {
			t.Errorf("versions = %d, want 3", len(versions))
		}
	})

	t.Run("in place overwrites primary without a new row", func(t *testing.T) {
		f := newFixture(t, 10)
		doc, _, err := f.service.UploadDocument([]byte("v1 content"), "a.txt", dms.UploadDocumentOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.service.CreateVersion(doc.ID, []byte("v2 content"), dms.VersionOptions{}); err != nil {
			t.Fatal(err)
		}

		if _, err := f.service.RestoreVersion(doc.ID, 1, dms.RestoreOptions{Actor: "partner"}); err != nil {
			t.Fatalf("RestoreVersion() error = %v", err)
		}

		versions, _ := f.service.ListVersions(doc.ID)
		if len(versions) != 2 {
			t.Errorf("versions = %d, want 2 (no new row)", len(versions))
		}

		got, _ := f.service.GetDocument(doc.ID)
		data, _, err := f.files.Download(got.StoragePath)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "v1 content" {
			t.Errorf("primary file = %q, want v1 content", data)
		}
	})

	t.Run("unknown version fails", func(t *testing.T) {
		f := newFixture(t, 10)
		doc, _, err := f.service.UploadDocument([]byte("v1"), "a.txt", dms.UploadDocumentOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.service.RestoreVersion(doc.ID, 99, dms.RestoreOptions{}); err == nil {
			t.Error("RestoreVersion() expected error for unknown version")
		}
	})
}
