package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFilesystemRoundtrip(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore failed: %v", err)
	}
	ctx := context.Background()

	path := "raw/prc_hicp_midx/geo=LU/coicop=CP00/ts=20260801_120000.json"
	payload := []byte(`{"meta": {}, "data": {}}`)
	if err := store.Upload(ctx, path, payload, "application/json"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	got, err := store.Download(ctx, path)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Download = %q, want %q", got, payload)
	}
}

func TestFilesystemDownloadMissing(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore failed: %v", err)
	}
	if _, err := store.Download(context.Background(), "raw/missing.json"); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestFilesystemListFiltersPrefix(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore failed: %v", err)
	}
	ctx := context.Background()

	paths := []string{
		"raw/prc_hicp_midx/geo=LU/coicop=CP00/ts=20260801_120000.json",
		"raw/prc_hicp_midx/geo=LU/coicop=CP00/ts=20260802_120000.json",
		"processed/prc_hicp_midx/geo=LU/coicop=CP00/ts=20260802_120500.json",
	}
	for _, p := range paths {
		if err := store.Upload(ctx, p, []byte("{}"), "application/json"); err != nil {
			t.Fatalf("Upload %s failed: %v", p, err)
		}
	}

	objects, err := store.List(ctx, "raw/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("List returned %d objects, want 2", len(objects))
	}
	for _, obj := range objects {
		if obj.LastModified.IsZero() {
			t.Errorf("object %s has zero LastModified", obj.Path)
		}
	}
}

func TestLatestPicksNewestObject(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystemStore(dir)
	if err != nil {
		t.Fatalf("NewFilesystemStore failed: %v", err)
	}
	ctx := context.Background()

	older := "raw/ts=20260801_120000.json"
	newer := "raw/ts=20260802_120000.json"
	for _, p := range []string{older, newer} {
		if err := store.Upload(ctx, p, []byte("{}"), "application/json"); err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
	}

	// Make the modification times unambiguous.
	base := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(dir, filepath.FromSlash(older)), base, base); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	latest, err := Latest(ctx, store, "raw/")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.Path != newer {
		t.Errorf("Latest = %s, want %s", latest.Path, newer)
	}
}

func TestLatestEmptyPrefix(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore failed: %v", err)
	}
	if _, err := Latest(context.Background(), store, "raw/"); err == nil {
		t.Fatal("expected error for empty prefix")
	}
}
