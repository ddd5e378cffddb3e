package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ehr/assessmentreport/internal/platform/auth"
)

type Service struct {
	repo   Repository
	tokens *auth.TokenIssuer
	cost   int
	roles  []string
}

// NewService returns a service that registers users with the clinician role
// and signs their tokens with tokens.
func NewService(repo Repository, tokens *auth.TokenIssuer) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		roles:  []string{auth.RoleClinician},
	}
}

func (s *Service) Register(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, fmt.Errorf("name, email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Roles:        append([]string(nil), s.roles...),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Login verifies the password and returns a fresh token. Unknown addresses
// and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	u, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

func (s *Service) issue(u *User) (*AuthResponse, error) {
	token, exp, err := s.tokens.Issue(u.ID.String(), u.Email, u.Name, u.Roles)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResponse{Token: token, ExpiresAt: exp, User: u}, nil
}
