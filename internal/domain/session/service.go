package session

import (
	"context"
	"fmt"
	"strings"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the session with the given id.
func (s *Service) Get(ctx context.Context, sessionID string) (*Record, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidRecord)
	}
	return s.repo.GetBySessionID(ctx, sessionID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Summary, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListAll(ctx context.Context) ([]Summary, error) {
	return s.repo.ListAll(ctx)
}

// Ingest validates and stores a raw session document.
func (s *Service) Ingest(ctx context.Context, raw []byte) (*Record, error) {
	rec, err := ParseRecord(raw)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
