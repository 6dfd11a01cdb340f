package storage

import (
	"context"
	"errors"
	"testing"

	gcs "cloud.google.com/go/storage"
)

type fakeBucket struct {
	objects   map[string][]byte
	types     map[string]string
	removeErr error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (b *fakeBucket) Upload(_ context.Context, objectName, contentType string, data []byte) error {
	b.objects[objectName] = data
	b.types[objectName] = contentType
	return nil
}

func (b *fakeBucket) Remove(_ context.Context, objectName string) error {
	if b.removeErr != nil {
		return b.removeErr
	}
	if _, ok := b.objects[objectName]; !ok {
		return gcs.ErrObjectNotExist
	}
	delete(b.objects, objectName)
	return nil
}

func TestUploadFileReturnsObjectReference(t *testing.T) {
	bucket := newFakeBucket()
	store, err := NewFileStore(bucket)
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}

	ref, err := store.UploadFile(context.Background(), "portfolios/op_1/deck.pdf", "application/pdf", []byte("pdf-bytes"))
	if err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}
	if ref != "portfolios/op_1/deck.pdf" {
		t.Fatalf("unexpected reference %s", ref)
	}
	if bucket.types[ref] != "application/pdf" {
		t.Fatalf("expected content type recorded, got %q", bucket.types[ref])
	}
}

func TestUploadFileValidatesInputs(t *testing.T) {
	store, _ := NewFileStore(newFakeBucket())

	if _, err := store.UploadFile(context.Background(), "  ", "application/pdf", nil); err == nil {
		t.Fatal("expected error for blank object name")
	}
	if _, err := store.UploadFile(context.Background(), "obj", "", nil); err == nil {
		t.Fatal("expected error for missing content type")
	}
}

func TestDeleteFileIsIdempotent(t *testing.T) {
	bucket := newFakeBucket()
	store, _ := NewFileStore(bucket)

	if _, err := store.UploadFile(context.Background(), "obj", "image/png", []byte{0x89}); err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}
	if err := store.DeleteFile(context.Background(), "obj"); err != nil {
		t.Fatalf("DeleteFile returned error: %v", err)
	}
	// Second delete hits an absent object and must still succeed.
	if err := store.DeleteFile(context.Background(), "obj"); err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}
}

func TestDeleteFilePropagatesOtherErrors(t *testing.T) {
	bucket := newFakeBucket()
	bucket.removeErr = errors.New("permission denied")
	store, _ := NewFileStore(bucket)

	if err := store.DeleteFile(context.Background(), "obj"); err == nil {
		t.Fatal("expected error propagated")
	}
}
