package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func seedBlob(t *testing.T, store BlobStore, key, content string) *BlobMetadata {
	t.Helper()
	meta := BlobMetadata{
		Key:         key,
		ContentType: "application/pdf",
		CreatedBy:   "test-user",
		Tags:        map[string]string{"source": "unit-test"},
	}
	result, err := store.Put(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

func newFileStore(t *testing.T) *FileBlobStore {
	t.Helper()
	store, err := NewFileBlobStore(filepath.Join(t.TempDir(), "reports"))
	if err != nil {
		t.Fatalf("NewFileBlobStore: %v", err)
	}
	return store
}

// stores runs a subtest against every implementation.
func stores(t *testing.T, fn func(t *testing.T, store BlobStore)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewInMemoryBlobStore()) })
	t.Run("file", func(t *testing.T) { fn(t, newFileStore(t)) })
}

// ---------------------------------------------------------------------------
// Store tests
// ---------------------------------------------------------------------------

func TestBlobStore_PutAndGet(t *testing.T) {
	stores(t, func(t *testing.T, store BlobStore) {
		content := "%PDF-1.4 report"
		result := seedBlob(t, store, "s1.pdf", content)

		if result.Key != "s1.pdf" {
			t.Errorf("expected key s1.pdf, got %s", result.Key)
		}
		if result.Size != int64(len(content)) {
			t.Errorf("expected size %d, got %d", len(content), result.Size)
		}
		want := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
		if result.Hash != want {
			t.Errorf("expected hash %s, got %s", want, result.Hash)
		}
		if result.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}

		rc, meta, err := store.Get(context.Background(), "s1.pdf")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		defer rc.Close()
		data, _ := io.ReadAll(rc)
		if string(data) != content {
			t.Errorf("expected %q, got %q", content, data)
		}
		if meta.ContentType != "application/pdf" {
			t.Errorf("expected application/pdf, got %s", meta.ContentType)
		}
		if meta.CreatedBy != "test-user" {
			t.Errorf("expected created_by test-user, got %s", meta.CreatedBy)
		}
	})
}

func TestBlobStore_PutOverwrites(t *testing.T) {
	stores(t, func(t *testing.T, store BlobStore) {
		seedBlob(t, store, "s1.pdf", "first")
		seedBlob(t, store, "s1.pdf", "second version")

		rc, meta, err := store.Get(context.Background(), "s1.pdf")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		defer rc.Close()
		data, _ := io.ReadAll(rc)
		if string(data) != "second version" {
			t.Errorf("expected overwritten content, got %q", data)
		}
		if meta.Size != int64(len("second version")) {
			t.Errorf("expected size to follow content, got %d", meta.Size)
		}

		_, total, _ := store.List(context.Background(), "", 10, 0)
		if total != 1 {
			t.Errorf("expected 1 blob, got %d", total)
		}
	})
}

func TestBlobStore_NotFound(t *testing.T) {
	stores(t, func(t *testing.T, store BlobStore) {
		ctx := context.Background()
		if _, _, err := store.Get(ctx, "missing.pdf"); !errors.Is(err, ErrBlobNotFound) {
			t.Errorf("Get: expected ErrBlobNotFound, got %v", err)
		}
		if _, err := store.Stat(ctx, "missing.pdf"); !errors.Is(err, ErrBlobNotFound) {
			t.Errorf("Stat: expected ErrBlobNotFound, got %v", err)
		}
		if err := store.Delete(ctx, "missing.pdf"); !errors.Is(err, ErrBlobNotFound) {
			t.Errorf("Delete: expected ErrBlobNotFound, got %v", err)
		}
	})
}

func TestBlobStore_Delete(t *testing.T) {
	stores(t, func(t *testing.T, store BlobStore) {
		seedBlob(t, store, "s1.pdf", "data")
		if err := store.Delete(context.Background(), "s1.pdf"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := store.Stat(context.Background(), "s1.pdf"); !errors.Is(err, ErrBlobNotFound) {
			t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
		}
	})
}

func TestBlobStore_ListPrefixAndPaging(t *testing.T) {
	stores(t, func(t *testing.T, store BlobStore) {
		for _, k := range []string{"s3.pdf", "s1.pdf", "s2.pdf", "other.pdf"} {
			seedBlob(t, store, k, k)
		}

		items, total, err := store.List(context.Background(), "s", 2, 0)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 3 {
			t.Errorf("expected total 3, got %d", total)
		}
		if len(items) != 2 || items[0].Key != "s1.pdf" || items[1].Key != "s2.pdf" {
			t.Errorf("unexpected first page: %+v", items)
		}

		items, _, _ = store.List(context.Background(), "s", 2, 2)
		if len(items) != 1 || items[0].Key != "s3.pdf" {
			t.Errorf("unexpected second page: %+v", items)
		}

		items, _, _ = store.List(context.Background(), "s", 2, 10)
		if len(items) != 0 {
			t.Errorf("expected empty page past the end, got %d", len(items))
		}
	})
}

func TestBlobStore_Validation(t *testing.T) {
	stores(t, func(t *testing.T, store BlobStore) {
		ctx := context.Background()
		for _, key := range []string{"", ".", "..", "../escape.pdf", "a/b.pdf", `a\b.pdf`, ".hidden"} {
			_, err := store.Put(ctx, BlobMetadata{Key: key, ContentType: "application/pdf"}, strings.NewReader("x"))
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("key %q: expected ErrInvalidKey, got %v", key, err)
			}
		}

		_, err := store.Put(ctx, BlobMetadata{Key: "a.exe", ContentType: "application/x-msdownload"}, strings.NewReader("x"))
		if !errors.Is(err, ErrInvalidContentType) {
			t.Errorf("expected ErrInvalidContentType, got %v", err)
		}

		if _, err := store.Put(ctx, BlobMetadata{Key: "a.html", ContentType: "text/html; charset=utf-8"}, strings.NewReader("<p>")); err != nil {
			t.Errorf("expected content type parameters to be accepted, got %v", err)
		}
	})
}

func TestBlobStore_FileTooLarge(t *testing.T) {
	store := NewInMemoryBlobStore()
	big := io.LimitReader(zeroReader{}, MaxFileSize+1)
	_, err := store.Put(context.Background(), BlobMetadata{Key: "big.pdf", ContentType: "application/pdf"}, big)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestInMemoryBlobStore_TagsAreCopied(t *testing.T) {
	store := NewInMemoryBlobStore()
	result := seedBlob(t, store, "s1.pdf", "data")
	result.Tags["source"] = "mutated"

	meta, _ := store.Stat(context.Background(), "s1.pdf")
	if meta.Tags["source"] != "unit-test" {
		t.Errorf("expected stored tags to be isolated, got %v", meta.Tags)
	}
}

func TestInMemoryBlobStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryBlobStore()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("s%d.pdf", n%10)
			_, err := store.Put(context.Background(), BlobMetadata{Key: key, ContentType: "application/pdf"}, strings.NewReader(key))
			if err != nil {
				t.Errorf("Put: %v", err)
				return
			}
			if _, err := store.Stat(context.Background(), key); err != nil {
				t.Errorf("Stat: %v", err)
			}
			store.List(context.Background(), "", 100, 0)
		}(i)
	}
	wg.Wait()

	_, total, _ := store.List(context.Background(), "", 100, 0)
	if total != 10 {
		t.Errorf("expected 10 distinct keys, got %d", total)
	}
}

func TestFileBlobStore_SidecarAndDerivedMetadata(t *testing.T) {
	store := newFileStore(t)
	seedBlob(t, store, "s1.pdf", "data")

	if _, err := os.Stat(filepath.Join(store.Dir(), "s1.pdf"+metaSuffix)); err != nil {
		t.Fatalf("expected metadata sidecar: %v", err)
	}

	// A report dropped into the directory by hand has no sidecar.
	if err := os.WriteFile(filepath.Join(store.Dir(), "manual.pdf"), []byte("manual"), 0o644); err != nil {
		t.Fatal(err)
	}
	meta, err := store.Stat(context.Background(), "manual.pdf")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if meta.ContentType != "application/pdf" {
		t.Errorf("expected content type from extension, got %s", meta.ContentType)
	}
	if meta.Size != 6 {
		t.Errorf("expected size 6, got %d", meta.Size)
	}

	items, total, _ := store.List(context.Background(), "", 10, 0)
	if total != 2 {
		t.Errorf("expected sidecars to be hidden from listing, got %d items: %+v", total, items)
	}

	if _, err := store.Stat(context.Background(), "s1.pdf"+metaSuffix); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected sidecar not to be addressable, got %v", err)
	}

	if err := store.Delete(context.Background(), "s1.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), "s1.pdf"+metaSuffix)); !os.IsNotExist(err) {
		t.Errorf("expected sidecar removed, got %v", err)
	}
}

func TestNewFileBlobStore_RequiresDir(t *testing.T) {
	if _, err := NewFileBlobStore(""); err == nil {
		t.Error("expected error for empty directory")
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func newTestHandler() (*InMemoryBlobStore, *echo.Echo) {
	store := NewInMemoryBlobStore()
	h := NewBlobHandler(store)
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return store, e
}

func TestBlobHandler_Get(t *testing.T) {
	store, e := newTestHandler()
	seedBlob(t, store, "s1.pdf", "%PDF")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/s1.pdf", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "%PDF" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="s1.pdf"` {
		t.Errorf("unexpected Content-Disposition %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("unexpected Content-Type %q", got)
	}
}

func TestBlobHandler_StatAndDelete(t *testing.T) {
	store, e := newTestHandler()
	seedBlob(t, store, "s1.pdf", "%PDF")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/s1.pdf/metadata", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Key != "s1.pdf" || meta.Size != 4 {
		t.Errorf("unexpected metadata %+v", meta)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/artifacts/s1.pdf", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/artifacts/s1.pdf", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBlobHandler_List(t *testing.T) {
	store, e := newTestHandler()
	seedBlob(t, store, "s1.pdf", "a")
	seedBlob(t, store, "s2.pdf", "b")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/artifacts?limit=1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Items) != 1 {
		t.Errorf("expected 1 of 2 items, got %d of %d", len(resp.Items), resp.Total)
	}
}

func TestBlobHandler_GetNotFound(t *testing.T) {
	_, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/none.pdf", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
