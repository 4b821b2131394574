package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"montero/internal/platform/crypto"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestPutGetPlain(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ref, err := store.Put(ctx, Meta{Mime: "application/pdf", Filename: "CERT-123.pdf", JobID: "job-1"}, []byte("%PDF-1.3 test"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	art, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(art.Bytes) != "%PDF-1.3 test" || art.Mime != "application/pdf" || art.Filename != "CERT-123.pdf" {
		t.Fatalf("unexpected artifact %+v", art)
	}
	if art.Size != int64(len("%PDF-1.3 test")) || art.SHA256 == "" || art.Sealed {
		t.Fatalf("unexpected metadata %+v", art)
	}
}

func TestPutDefaultsMime(t *testing.T) {
	ctx := context.Background()
	store, _ := NewFileStore(t.TempDir(), nil)
	ref, err := store.Put(ctx, Meta{}, []byte("x"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	art, _ := store.Get(ctx, ref)
	if art.Mime != "application/octet-stream" {
		t.Fatalf("expected default mime, got %q", art.Mime)
	}
}

func TestSealedAtRest(t *testing.T) {
	ctx := context.Background()
	cipher, err := crypto.New(testKey, "")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	dir := t.TempDir()
	store, _ := NewFileStore(dir, cipher)

	ref, err := store.Put(ctx, Meta{Mime: "application/pdf"}, []byte("confidential"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, ref+".bin"))
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(raw) == "confidential" || !crypto.IsTagged(raw) {
		t.Fatal("blob is not sealed on disk")
	}

	art, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(art.Bytes) != "confidential" || !art.Sealed {
		t.Fatalf("unexpected artifact %+v", art)
	}

	plainReader := &FileStore{Dir: dir}
	if _, err := plainReader.Get(ctx, ref); !errors.Is(err, ErrCorruptArtifact) {
		t.Fatalf("expected ErrCorruptArtifact without key, got %v", err)
	}
}

func TestGetUnknownAndInvalidRef(t *testing.T) {
	ctx := context.Background()
	store, _ := NewFileStore(t.TempDir(), nil)

	if _, err := store.Get(ctx, "6f1c3f8e-2f55-4d4c-9a43-1b0f3b8b1d11"); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	for _, ref := range []string{"", "../../etc/passwd", "abc"} {
		if _, err := store.Get(ctx, ref); !errors.Is(err, ErrInvalidRef) {
			t.Fatalf("ref %q: expected ErrInvalidRef, got %v", ref, err)
		}
	}
}

func TestWriteOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.bin")
	if err := writeOnce(path, []byte("a")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := writeOnce(path, []byte("b")); !errors.Is(err, ErrArtifactExists) {
		t.Fatalf("expected ErrArtifactExists, got %v", err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "a" {
		t.Fatalf("blob overwritten: %q", raw)
	}
}

func TestTamperedBlobDetected(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, _ := NewFileStore(dir, nil)
	ref, _ := store.Put(ctx, Meta{Mime: "text/plain"}, []byte("original"))

	if err := os.WriteFile(filepath.Join(dir, ref+".bin"), []byte("tampered"), 0o640); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := store.Get(ctx, ref); !errors.Is(err, ErrCorruptArtifact) {
		t.Fatalf("expected ErrCorruptArtifact, got %v", err)
	}
}
