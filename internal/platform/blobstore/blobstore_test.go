package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestInMemoryUploadDownload(t *testing.T) {
	store := NewInMemoryBlobStore()
	ctx := context.Background()

	meta, err := store.Upload(ctx, BlobMetadata{
		FileName:    "P12_LEFT_fundus.jpg",
		ContentType: "image/jpeg",
		PatientRef:  "P12",
		CreatedBy:   "dr-smith",
	}, strings.NewReader("fake image bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if meta.ID == "" {
		t.Fatal("expected generated ID")
	}
	if meta.Size != int64(len("fake image bytes")) {
		t.Fatalf("size = %d", meta.Size)
	}
	if meta.Hash == "" {
		t.Fatal("expected content hash")
	}
	if meta.URL == "" {
		t.Fatal("expected URL")
	}

	rc, got, err := store.Download(ctx, meta.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "fake image bytes" {
		t.Fatalf("content = %q", data)
	}
	if got.FileName != "P12_LEFT_fundus.jpg" {
		t.Fatalf("file name = %q", got.FileName)
	}
}

func TestInMemoryUploadValidation(t *testing.T) {
	store := NewInMemoryBlobStore()
	ctx := context.Background()

	_, err := store.Upload(ctx, BlobMetadata{ContentType: "image/png"}, strings.NewReader("x"))
	if !errors.Is(err, ErrMissingFileName) {
		t.Fatalf("expected ErrMissingFileName, got %v", err)
	}

	_, err = store.Upload(ctx, BlobMetadata{
		FileName:    "report.pdf",
		ContentType: "application/pdf",
	}, strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidContentType) {
		t.Fatalf("expected ErrInvalidContentType, got %v", err)
	}
}

func TestInMemoryDelete(t *testing.T) {
	store := NewInMemoryBlobStore()
	ctx := context.Background()

	meta, err := store.Upload(ctx, BlobMetadata{
		FileName:    "P3_RIGHT_scan.png",
		ContentType: "image/png",
	}, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if err := store.Delete(ctx, meta.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := store.Download(ctx, meta.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
	if err := store.Delete(ctx, meta.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound on second delete, got %v", err)
	}
}

func TestS3KeyFromURL(t *testing.T) {
	s := &S3BlobStore{cfg: S3Config{
		Bucket:        "oculoflow-images",
		Region:        "eu-west-1",
		PublicBaseURL: "https://images.example.org",
	}}

	key := s.KeyFromURL("https://images.example.org/P12/abc/P12_LEFT_f.jpg")
	if key != "P12/abc/P12_LEFT_f.jpg" {
		t.Fatalf("key = %q", key)
	}

	// Unrecognized URLs pass through untouched.
	if got := s.KeyFromURL("P12/abc/x.png"); got != "P12/abc/x.png" {
		t.Fatalf("key = %q", got)
	}
}

func TestS3PublicURL(t *testing.T) {
	s := &S3BlobStore{cfg: S3Config{Bucket: "oculoflow-images", Region: "eu-west-1"}}
	got := s.publicURL("P1/id/f.jpg")
	want := "https://oculoflow-images.s3.eu-west-1.amazonaws.com/P1/id/f.jpg"
	if got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}
}
