package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
)

func TestSessionRepositoryListActiveByUserID(t *testing.T) {
	repo := newSessionRepoForTest(t)

	active := &domain.Session{UserID: 1, TokenHash: "h1", Active: true, ExpiresAt: time.Now().Add(2 * time.Hour)}
	inactive := &domain.Session{UserID: 1, TokenHash: "h2", Active: false, ExpiresAt: time.Now().Add(2 * time.Hour)}
	expired := &domain.Session{UserID: 1, TokenHash: "h3", Active: true, ExpiresAt: time.Now().Add(-time.Hour)}
	otherUser := &domain.Session{UserID: 2, TokenHash: "h4", Active: true, ExpiresAt: time.Now().Add(2 * time.Hour)}

	for _, s := range []*domain.Session{active, inactive, expired, otherUser} {
		if err := repo.Create(s); err != nil {
			t.Fatalf("create %s: %v", s.TokenHash, err)
		}
	}

	sessions, err := repo.ListActiveByUserID(1)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(sessions))
	}
	if sessions[0].TokenHash != "h1" {
		t.Fatalf("unexpected active session: %+v", sessions[0])
	}
}

func TestSessionRepositoryDeactivateAllByUserID(t *testing.T) {
	repo := newSessionRepoForTest(t)

	for i := 0; i < 3; i++ {
		s := &domain.Session{UserID: 7, TokenHash: fmt.Sprintf("u7-%d", i), Active: true, ExpiresAt: time.Now().Add(time.Hour)}
		if err := repo.Create(s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	other := &domain.Session{UserID: 8, TokenHash: "u8-0", Active: true, ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(other); err != nil {
		t.Fatalf("create other: %v", err)
	}

	count, err := repo.DeactivateAllByUserID(7)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 deactivated, got %d", count)
	}

	remaining, err := repo.ListActiveByUserID(7)
	if err != nil {
		t.Fatalf("list after deactivate: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(remaining))
	}

	othersRemaining, err := repo.ListActiveByUserID(8)
	if err != nil {
		t.Fatalf("list other user: %v", err)
	}
	if len(othersRemaining) != 1 {
		t.Fatalf("other user's session must survive, got %d", len(othersRemaining))
	}

	again, err := repo.DeactivateAllByUserID(7)
	if err != nil {
		t.Fatalf("idempotent deactivate: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected 0 on second deactivate, got %d", again)
	}
}

func TestSessionRepositoryCleanupScopes(t *testing.T) {
	repo := newSessionRepoForTest(t)
	now := time.Now()

	expired := &domain.Session{UserID: 1, TokenHash: "expired", Active: true, ExpiresAt: now.Add(-time.Minute)}
	liveActive := &domain.Session{UserID: 1, TokenHash: "live", Active: true, ExpiresAt: now.Add(time.Hour)}
	recentInactive := &domain.Session{UserID: 1, TokenHash: "recent-off", Active: false, ExpiresAt: now.Add(time.Hour)}

	for _, s := range []*domain.Session{expired, liveActive, recentInactive} {
		if err := repo.Create(s); err != nil {
			t.Fatalf("create %s: %v", s.TokenHash, err)
		}
	}

	removed, err := repo.DeleteExpired(now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 expired removed, got %d", removed)
	}

	stale, err := repo.DeleteInactiveBefore(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("delete inactive: %v", err)
	}
	if stale != 0 {
		t.Fatalf("recently deactivated session must be retained, got %d removed", stale)
	}

	stale, err = repo.DeleteInactiveBefore(now.Add(time.Minute))
	if err != nil {
		t.Fatalf("delete inactive with future cutoff: %v", err)
	}
	if stale != 1 {
		t.Fatalf("expected 1 stale inactive removed, got %d", stale)
	}

	if _, err := repo.FindByTokenHash("live"); err != nil {
		t.Fatalf("active unexpired session must survive cleanup: %v", err)
	}
}

func TestSessionRepositoryFindByTokenHash(t *testing.T) {
	repo := newSessionRepoForTest(t)

	s := &domain.Session{UserID: 3, TokenHash: "findme", Active: true, ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(s); err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := repo.FindByTokenHash("findme")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.UserID != 3 {
		t.Fatalf("unexpected session: %+v", found)
	}

	if _, err := repo.FindByTokenHash("missing"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func newSessionRepoForTest(t *testing.T) SessionRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Session{}); err != nil {
		t.Fatalf("migrate session: %v", err)
	}
	return NewSessionRepository(db)
}
