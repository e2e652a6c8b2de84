package service

import (
	"context"
	"sync"
	"time"

	"github.com/pipelinecrm/crm-auth-service/internal/security"
)

type TokenPurpose string

const (
	PurposeVerifyEmail   TokenPurpose = "verify-email"
	PurposeResetPassword TokenPurpose = "reset-password"
)

// ActionToken binds a single-use token value to an identity, a purpose and
// an expiry. Unlike the bearer token it is stateful on purpose: consuming it
// must invalidate every other copy.
type ActionToken struct {
	Token     string       `json:"token"`
	UserID    uint         `json:"user_id"`
	Email     string       `json:"email"`
	Purpose   TokenPurpose `json:"purpose"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// ActionTokenStore issues and consumes verification and reset tokens.
// Consume is atomic single-use: a second call with the same token fails.
type ActionTokenStore interface {
	Issue(ctx context.Context, purpose TokenPurpose, userID uint, email string, ttl time.Duration) (string, error)
	Consume(ctx context.Context, purpose TokenPurpose, token string) (*ActionToken, error)
}

type InMemoryActionTokenStore struct {
	mu    sync.Mutex
	store map[string]ActionToken
}

func NewInMemoryActionTokenStore() *InMemoryActionTokenStore {
	return &InMemoryActionTokenStore{store: make(map[string]ActionToken)}
}

func (s *InMemoryActionTokenStore) Issue(_ context.Context, purpose TokenPurpose, userID uint, email string, ttl time.Duration) (string, error) {
	token, err := security.NewActionToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key(purpose, token)] = ActionToken{
		Token:     token,
		UserID:    userID,
		Email:     email,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(ttl),
	}
	return token, nil
}

func (s *InMemoryActionTokenStore) Consume(_ context.Context, purpose TokenPurpose, token string) (*ActionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(purpose, token)
	record, ok := s.store[k]
	if !ok {
		return nil, ErrInvalidActionToken
	}
	delete(s.store, k)
	if time.Now().After(record.ExpiresAt) {
		return nil, ErrInvalidActionToken
	}
	return &record, nil
}

func key(purpose TokenPurpose, token string) string {
	return string(purpose) + ":" + token
}
