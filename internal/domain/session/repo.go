package session

import "context"

type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetBySessionID(ctx context.Context, sessionID string) (*Record, error)
	List(ctx context.Context, limit, offset int) ([]Summary, int, error)
	ListAll(ctx context.Context) ([]Summary, error)
}
