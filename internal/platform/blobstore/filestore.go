package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// metaSuffix names the sidecar file holding a blob's metadata.
const metaSuffix = ".meta.json"

// FileBlobStore keeps each blob as a file in a single directory, with its
// metadata in a JSON sidecar. Writes go through a temp file and rename so
// readers never observe a partial artifact.
type FileBlobStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileBlobStore creates dir if needed and returns a store rooted there.
func NewFileBlobStore(dir string) (*FileBlobStore, error) {
	if dir == "" {
		return nil, errors.New("blobstore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create %s: %w", dir, err)
	}
	return &FileBlobStore{dir: dir, now: time.Now}, nil
}

// Dir returns the store's root directory.
func (s *FileBlobStore) Dir() string { return s.dir }

func (s *FileBlobStore) path(key string) string { return filepath.Join(s.dir, key) }

// Put writes content under meta.Key, replacing any previous blob.
func (s *FileBlobStore) Put(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	data, err := readContent(&meta, content)
	if err != nil {
		return nil, err
	}
	meta.CreatedAt = s.now().UTC()

	sidecar, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.dir, meta.Key, data); err != nil {
		return nil, err
	}
	if err := writeAtomic(s.dir, meta.Key+metaSuffix, sidecar); err != nil {
		return nil, err
	}

	out := meta
	return &out, nil
}

// Get opens the blob for reading. The caller closes the reader.
func (s *FileBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return f, meta, nil
}

// Stat returns the blob's metadata. Files placed in the directory without a
// sidecar get metadata derived from the file itself.
func (s *FileBlobStore) Stat(_ context.Context, key string) (*BlobMetadata, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if strings.HasSuffix(key, metaSuffix) {
		return nil, ErrBlobNotFound
	}

	info, err := os.Stat(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("stat blob: %w", err)
	}
	if info.IsDir() {
		return nil, ErrBlobNotFound
	}

	raw, err := os.ReadFile(s.path(key + metaSuffix))
	if err == nil {
		var meta BlobMetadata
		if jerr := json.Unmarshal(raw, &meta); jerr == nil && meta.Key == key {
			return &meta, nil
		}
	}
	return s.derive(key, info)
}

func (s *FileBlobStore) derive(key string, info fs.FileInfo) (*BlobMetadata, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	ct := mime.TypeByExtension(filepath.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &BlobMetadata{
		Key:         key,
		ContentType: ct,
		Size:        info.Size(),
		Hash:        fmt.Sprintf("%x", sha256.Sum256(data)),
		CreatedAt:   info.ModTime().UTC(),
	}, nil
}

// Delete removes the blob and its sidecar.
func (s *FileBlobStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if strings.HasSuffix(key, metaSuffix) {
		return ErrBlobNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	if err := os.Remove(s.path(key + metaSuffix)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob metadata: %w", err)
	}
	return nil
}

// List returns blobs whose key starts with prefix, sorted by key.
func (s *FileBlobStore) List(ctx context.Context, prefix string, limit, offset int) ([]*BlobMetadata, int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, 0, fmt.Errorf("list blobs: %w", err)
	}

	var matched []*BlobMetadata
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, metaSuffix) {
			continue
		}
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		meta, err := s.Stat(ctx, name)
		if errors.Is(err, ErrBlobNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		matched = append(matched, meta)
	}

	sortByKey(matched)
	return paginate(matched, limit, offset), len(matched), nil
}

func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
