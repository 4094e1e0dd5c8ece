package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/local/pageset/internal/storage"
)

type fakeS3 struct {
	bucket, key string
	data        []byte
}

func (f *fakeS3) Download(_ context.Context, bucket, key string) ([]byte, *storage.FileMetadata, error) {
	f.bucket, f.key = bucket, key
	return f.data, &storage.FileMetadata{}, nil
}

func TestFetchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}
	f := &Fetcher{}
	for _, ref := range []string{path, "file://" + path, path + "#page=2"} {
		data, err := f.Fetch(context.Background(), ref)
		if err != nil || string(data) != "%PDF-1.4" {
			t.Errorf("Fetch(%q) = %q, %v", ref, data, err)
		}
	}
	if _, err := f.Fetch(context.Background(), filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("Fetch of a missing file succeeded")
	}
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	f := &Fetcher{HTTP: srv.Client()}
	data, err := f.Fetch(context.Background(), srv.URL+"/doc.pdf")
	if err != nil || string(data) != "0123456789" {
		t.Fatalf("Fetch = %q, %v", data, err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("Fetch of a 404 succeeded")
	}

	f.MaxBytes = 5
	if _, err := f.Fetch(context.Background(), srv.URL+"/doc.pdf"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Fetch over limit = %v, want ErrTooLarge", err)
	}
}

func TestFetchS3(t *testing.T) {
	s3 := &fakeS3{data: []byte("pdf")}
	f := &Fetcher{S3: s3}
	data, err := f.Fetch(context.Background(), "s3://bucket/dir/doc.pdf")
	if err != nil || string(data) != "pdf" {
		t.Fatalf("Fetch = %q, %v", data, err)
	}
	if s3.bucket != "bucket" || s3.key != "dir/doc.pdf" {
		t.Errorf("downloaded %s/%s", s3.bucket, s3.key)
	}

	for _, ref := range []string{"s3://bucket", "s3://bucket/", "s3:///key"} {
		if _, err := f.Fetch(context.Background(), ref); err == nil {
			t.Errorf("Fetch(%q) succeeded", ref)
		}
	}
	if _, err := (&Fetcher{}).Fetch(context.Background(), "s3://b/k"); err == nil {
		t.Error("Fetch without storage succeeded")
	}
}
