package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo keeps users in process, keyed by normalized email.
type MemoryRepo struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: make(map[string]*User)}
}

func (m *MemoryRepo) Create(_ context.Context, u *User) error {
	key := NormalizeEmail(u.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[key]; ok {
		return ErrUserExists
	}
	u.CreatedAt = time.Now().UTC()
	stored := *u
	stored.Roles = append([]string(nil), u.Roles...)
	m.users[key] = &stored
	return nil
}

func (m *MemoryRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	return &cp, nil
}
