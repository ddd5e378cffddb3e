package session

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

//go:embed fixtures/sessions.json
var sampleSessions []byte

// MemoryRepo is a thread-safe in-process Repository. Records are listed in
// insertion order.
type MemoryRepo struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
	now     func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[string]*Record), now: time.Now}
}

// NewSampleRepo returns a repository holding the bundled sample sessions.
func NewSampleRepo() (*MemoryRepo, error) {
	recs, err := DecodeRecords(sampleSessions)
	if err != nil {
		return nil, fmt.Errorf("sample sessions: %w", err)
	}
	return seeded(recs)
}

// NewFileRepo returns a repository seeded from a JSON file holding either an
// array of session documents or an object keyed by session id.
func NewFileRepo(path string) (*MemoryRepo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sessions file: %w", err)
	}
	recs, err := DecodeRecords(raw)
	if err != nil {
		return nil, fmt.Errorf("sessions file %s: %w", path, err)
	}
	return seeded(recs)
}

func seeded(recs []*Record) (*MemoryRepo, error) {
	repo := NewMemoryRepo()
	for _, rec := range recs {
		if err := repo.Create(context.Background(), rec); err != nil {
			return nil, fmt.Errorf("seed %s: %w", rec.SessionID, err)
		}
	}
	return repo, nil
}

// DecodeRecords parses an array of documents or an object of documents.
// Objects are ordered by key so seeding is deterministic.
func DecodeRecords(raw []byte) ([]*Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	var docs []map[string]interface{}
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
	} else {
		var keyed map[string]map[string]interface{}
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		keys := make([]string, 0, len(keyed))
		for k := range keyed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			docs = append(docs, keyed[k])
		}
	}

	recs := make([]*Record, 0, len(docs))
	for i, doc := range docs {
		rec, err := NewRecord(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (m *MemoryRepo) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.SessionID]; ok {
		return ErrSessionExists
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now().UTC()
	}
	m.records[rec.SessionID] = rec
	m.order = append(m.order, rec.SessionID)
	return nil
}

func (m *MemoryRepo) GetBySessionID(_ context.Context, sessionID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return rec, nil
}

func (m *MemoryRepo) List(_ context.Context, limit, offset int) ([]Summary, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := len(m.order)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	items := make([]Summary, 0, end-offset)
	for _, id := range m.order[offset:end] {
		items = append(items, m.records[id].Summary())
	}
	return items, total, nil
}

func (m *MemoryRepo) ListAll(ctx context.Context) ([]Summary, error) {
	items, _, err := m.List(ctx, 0, 0)
	return items, err
}
