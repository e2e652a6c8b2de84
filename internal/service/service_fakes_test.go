package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
	"github.com/pipelinecrm/crm-auth-service/internal/notify"
	"github.com/pipelinecrm/crm-auth-service/internal/repository"
	"github.com/pipelinecrm/crm-auth-service/internal/security"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	seq   uint
	users map[uint]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uint]*domain.User)}
}

func (f *fakeUserRepo) Create(user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	f.seq++
	user.ID = f.seq
	user.CreatedAt = time.Now()
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeUserRepo) CreateWithProfile(user *domain.User, profile *domain.Profile) error {
	if err := f.Create(user); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	profile.UserID = user.ID
	p := *profile
	f.users[user.ID].Profile = &p
	return nil
}

func (f *fakeUserRepo) FindByID(id uint) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUserRepo) FindByEmail(email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) EmailExists(email string) (bool, error) {
	_, err := f.FindByEmail(email)
	if err == repository.ErrUserNotFound {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeUserRepo) List() ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUserRepo) ListPaged(req repository.PageRequest) (repository.PageResult[domain.User], error) {
	users, _ := f.List()
	return repository.PageResult[domain.User]{
		Items:      users,
		Total:      int64(len(users)),
		Page:       1,
		PageSize:   len(users),
		TotalPages: 1,
	}, nil
}

func (f *fakeUserRepo) UpdatePasswordHash(id uint, hash string) error {
	return f.update(id, func(u *domain.User) { u.PasswordHash = hash })
}

func (f *fakeUserRepo) UpdateRole(id uint, role domain.Role) error {
	return f.update(id, func(u *domain.User) { u.Role = role })
}

func (f *fakeUserRepo) MarkEmailVerified(id uint) error {
	return f.update(id, func(u *domain.User) { u.EmailVerified = true })
}

func (f *fakeUserRepo) StampLastLogin(id uint) error {
	now := time.Now()
	return f.update(id, func(u *domain.User) { u.LastLoginAt = &now })
}

func (f *fakeUserRepo) DeleteByID(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if u.IsSystem {
		return repository.ErrSystemAccount
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) update(id uint, fn func(*domain.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	fn(u)
	return nil
}

type fakeSessionRepo struct {
	mu         sync.Mutex
	seq        uint
	sessions   []*domain.Session
	createErr  error
	deactErr   error
	listErr    error
	expiredErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{}
}

func (f *fakeSessionRepo) Create(s *domain.Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	s.ID = f.seq
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	clone := *s
	f.sessions = append(f.sessions, &clone)
	return nil
}

func (f *fakeSessionRepo) FindByTokenHash(hash string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.TokenHash == hash {
			clone := *s
			return &clone, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (f *fakeSessionRepo) ListActiveByUserID(userID uint) ([]domain.Session, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	now := time.Now()
	for _, s := range f.sessions {
		if s.UserID == userID && s.Active && s.ExpiresAt.After(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) DeactivateAllByUserID(userID uint) (int64, error) {
	if f.deactErr != nil {
		return 0, f.deactErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.sessions {
		if s.UserID == userID && s.Active {
			s.Active = false
			s.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionRepo) DeleteExpired(now time.Time) (int64, error) {
	if f.expiredErr != nil {
		return 0, f.expiredErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.sessions[:0]
	var n int64
	for _, s := range f.sessions {
		if !s.ExpiresAt.After(now) {
			n++
			continue
		}
		kept = append(kept, s)
	}
	f.sessions = kept
	return n, nil
}

func (f *fakeSessionRepo) DeleteInactiveBefore(cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.sessions[:0]
	var n int64
	for _, s := range f.sessions {
		if !s.Active && s.UpdatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, s)
	}
	f.sessions = kept
	return n, nil
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (c *captureNotifier) Send(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureNotifier) messages() []notify.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Message(nil), c.sent...)
}

type authFixture struct {
	svc      *AuthService
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	tokens   *InMemoryActionTokenStore
	notifier *captureNotifier
	jwtMgr   *security.JWTManager
}

func newAuthFixture() *authFixture {
	users := newFakeUserRepo()
	sessions := newFakeSessionRepo()
	tokens := NewInMemoryActionTokenStore()
	notifier := &captureNotifier{}
	jwtMgr := security.NewJWTManager("test", "test", "abcdefghijklmnopqrstuvwxyz123456", time.Hour)
	svc := NewAuthService(AuthServiceParams{
		Users:         users,
		Sessions:      sessions,
		JWTManager:    jwtMgr,
		Tokens:        tokens,
		Notifier:      notifier,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		SessionPepper: "test-pepper",
		VerifyTTL:     time.Hour,
		ResetTTL:      time.Hour,
		NotifyTimeout: time.Second,
		BaseURL:       "http://localhost:8080",
	})
	return &authFixture{svc: svc, users: users, sessions: sessions, tokens: tokens, notifier: notifier, jwtMgr: jwtMgr}
}
