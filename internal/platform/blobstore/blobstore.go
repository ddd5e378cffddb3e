// Package blobstore stores generated report artifacts. It defines the
// BlobStore interface, an in-memory implementation for tests and
// development, a directory-backed implementation, and Echo handlers for
// listing, inspecting and removing artifacts.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrInvalidKey         = errors.New("invalid blob key")
)

// ---------------------------------------------------------------------------
// Validation constants
// ---------------------------------------------------------------------------

// MaxFileSize is the maximum allowed blob size in bytes (50 MB).
const MaxFileSize = 50 * 1024 * 1024

// AllowedContentTypes lists the artifact types the service produces.
var AllowedContentTypes = map[string]bool{
	"application/pdf":  true,
	"text/html":        true,
	"application/json": true,
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// BlobMetadata describes a stored artifact.
type BlobMetadata struct {
	Key         string            `json:"key"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Hash        string            `json:"hash"`
	CreatedAt   time.Time         `json:"created_at"`
	CreatedBy   string            `json:"created_by,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// ---------------------------------------------------------------------------
// BlobStore interface
// ---------------------------------------------------------------------------

// BlobStore is a key-addressed artifact store. Put replaces any existing
// blob under the same key.
type BlobStore interface {
	Put(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *BlobMetadata, error)
	Stat(ctx context.Context, key string) (*BlobMetadata, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string, limit, offset int) ([]*BlobMetadata, int, error)
}

// ValidateKey rejects keys that are empty or could escape a flat namespace.
func ValidateKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return ErrInvalidKey
	case strings.HasPrefix(key, "."):
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsAny(key, `/\`+"\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// baseContentType strips parameters such as "; charset=utf-8".
func baseContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}

// readContent validates meta and reads content, filling in size and hash.
func readContent(meta *BlobMetadata, content io.Reader) ([]byte, error) {
	if err := ValidateKey(meta.Key); err != nil {
		return nil, err
	}
	if !AllowedContentTypes[baseContentType(meta.ContentType)] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentType, meta.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	return data, nil
}

func paginate(items []*BlobMetadata, limit, offset int) []*BlobMetadata {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func sortByKey(items []*BlobMetadata) {
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for testing/dev.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
	now   func() time.Time
}

// NewInMemoryBlobStore returns a ready-to-use InMemoryBlobStore.
func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string]*storedBlob),
		now:   time.Now,
	}
}

// Put stores content under meta.Key, replacing any previous blob.
func (s *InMemoryBlobStore) Put(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	data, err := readContent(&meta, content)
	if err != nil {
		return nil, err
	}
	meta.CreatedAt = s.now().UTC()
	meta.Tags = copyTags(meta.Tags)

	s.mu.Lock()
	s.blobs[meta.Key] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	out.Tags = copyTags(meta.Tags)
	return &out, nil
}

// Get returns a reader over the blob content and its metadata.
func (s *InMemoryBlobStore) Get(_ context.Context, key string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata
	meta.Tags = copyTags(blob.metadata.Tags)
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

// Stat returns blob metadata without content.
func (s *InMemoryBlobStore) Stat(_ context.Context, key string) (*BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrBlobNotFound
	}

	meta := blob.metadata
	meta.Tags = copyTags(blob.metadata.Tags)
	return &meta, nil
}

// Delete removes a blob by key.
func (s *InMemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// List returns blobs whose key starts with prefix, sorted by key, along with
// the total match count.
func (s *InMemoryBlobStore) List(_ context.Context, prefix string, limit, offset int) ([]*BlobMetadata, int, error) {
	s.mu.RLock()
	matched := make([]*BlobMetadata, 0, len(s.blobs))
	for key, b := range s.blobs {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		m := b.metadata
		m.Tags = copyTags(b.metadata.Tags)
		matched = append(matched, &m)
	}
	s.mu.RUnlock()

	sortByKey(matched)
	return paginate(matched, limit, offset), len(matched), nil
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// listResponse is the JSON envelope returned by the list endpoint.
type listResponse struct {
	Items []*BlobMetadata `json:"items"`
	Total int             `json:"total"`
}

// BlobHandler exposes artifact administration over HTTP.
type BlobHandler struct {
	store BlobStore
}

// NewBlobHandler creates a new BlobHandler.
func NewBlobHandler(store BlobStore) *BlobHandler {
	return &BlobHandler{store: store}
}

// RegisterRoutes mounts artifact routes on the supplied Echo group.
func (h *BlobHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/artifacts", h.handleList)
	g.GET("/artifacts/:key/metadata", h.handleStat)
	g.GET("/artifacts/:key", h.handleGet)
	g.DELETE("/artifacts/:key", h.handleDelete)
}

func (h *BlobHandler) handleGet(c echo.Context) error {
	rc, meta, err := h.store.Get(c.Request().Context(), c.Param("key"))
	if err != nil {
		return blobError(err)
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.Key))
	c.Response().Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *BlobHandler) handleStat(c echo.Context) error {
	meta, err := h.store.Stat(c.Request().Context(), c.Param("key"))
	if err != nil {
		return blobError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *BlobHandler) handleDelete(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("key")); err != nil {
		return blobError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *BlobHandler) handleList(c echo.Context) error {
	limit := intParam(c, "limit", 20)
	offset := intParam(c, "offset", 0)

	items, total, err := h.store.List(c.Request().Context(), c.QueryParam("prefix"), limit, offset)
	if err != nil {
		return blobError(err)
	}
	if items == nil {
		items = []*BlobMetadata{}
	}
	return c.JSON(http.StatusOK, listResponse{Items: items, Total: total})
}

func blobError(err error) error {
	switch {
	case errors.Is(err, ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidKey):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func intParam(c echo.Context, name string, defaultVal int) int {
	v := c.QueryParam(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
