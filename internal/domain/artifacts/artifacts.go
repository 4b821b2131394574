package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"montero/internal/platform/crypto"
)

var (
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrInvalidRef       = errors.New("invalid artifact ref")
	ErrArtifactExists   = errors.New("artifact already exists")
	ErrCorruptArtifact  = errors.New("artifact failed integrity check")
)

// Meta describes a blob at write time.
type Meta struct {
	Mime     string `json:"mime"`
	Filename string `json:"filename,omitempty"`
	JobID    string `json:"jobId,omitempty"`
}

type Artifact struct {
	Ref       string    `json:"ref"`
	Mime      string    `json:"mime"`
	Filename  string    `json:"filename,omitempty"`
	JobID     string    `json:"jobId,omitempty"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"`
	Sealed    bool      `json:"sealed"`
	CreatedAt time.Time `json:"createdAt"`
	Bytes     []byte    `json:"-"`
}

type Reader interface {
	Get(ctx context.Context, ref string) (Artifact, error)
}

type Writer interface {
	Put(ctx context.Context, meta Meta, data []byte) (string, error)
}

// FileStore keeps one write-once blob per ref under Dir with a JSON sidecar.
// When Cipher is set, blobs are sealed with the ref as associated data.
type FileStore struct {
	Dir    string
	Cipher *crypto.Service
	now    func() time.Time
}

func NewFileStore(dir string, cipher *crypto.Service) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("artifacts dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	return &FileStore{Dir: dir, Cipher: cipher, now: time.Now}, nil
}

func (s *FileStore) Put(ctx context.Context, meta Meta, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := uuid.NewString()
	sum := sha256.Sum256(data)
	art := Artifact{
		Ref:       ref,
		Mime:      meta.Mime,
		Filename:  meta.Filename,
		JobID:     meta.JobID,
		Size:      int64(len(data)),
		SHA256:    hex.EncodeToString(sum[:]),
		CreatedAt: s.now().UTC(),
	}
	if art.Mime == "" {
		art.Mime = "application/octet-stream"
	}

	body := data
	if s.Cipher != nil {
		sealed, err := s.Cipher.Seal(data, aad(ref))
		if err != nil {
			return "", err
		}
		body = sealed
		art.Sealed = true
	}

	if err := writeOnce(s.blobPath(ref), body); err != nil {
		return "", err
	}
	sidecar, err := json.Marshal(art)
	if err != nil {
		return "", err
	}
	if err := writeOnce(s.metaPath(ref), sidecar); err != nil {
		_ = os.Remove(s.blobPath(ref))
		return "", err
	}
	return ref, nil
}

func (s *FileStore) Get(ctx context.Context, ref string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if _, err := uuid.Parse(ref); err != nil {
		return Artifact{}, ErrInvalidRef
	}

	raw, err := os.ReadFile(s.metaPath(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return Artifact{}, ErrArtifactNotFound
	}
	if err != nil {
		return Artifact{}, err
	}
	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}

	body, err := os.ReadFile(s.blobPath(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return Artifact{}, ErrArtifactNotFound
	}
	if err != nil {
		return Artifact{}, err
	}
	if art.Sealed {
		if s.Cipher == nil {
			return Artifact{}, fmt.Errorf("%w: sealed artifact and no key configured", ErrCorruptArtifact)
		}
		body, err = s.Cipher.Open(body, aad(ref))
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
		}
	}
	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != art.SHA256 {
		return Artifact{}, ErrCorruptArtifact
	}
	art.Bytes = body
	return art, nil
}

func (s *FileStore) blobPath(ref string) string { return filepath.Join(s.Dir, ref+".bin") }

func (s *FileStore) metaPath(ref string) string { return filepath.Join(s.Dir, ref+".json") }

func aad(ref string) []byte { return []byte("montero/artifact/" + ref) }

func writeOnce(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if errors.Is(err, fs.ErrExist) {
		return ErrArtifactExists
	}
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
