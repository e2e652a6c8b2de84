package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/pipelinecrm/crm-auth-service/internal/observability"
	"github.com/pipelinecrm/crm-auth-service/internal/repository"
	"github.com/pipelinecrm/crm-auth-service/internal/security"
)

type SessionView struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	IsCurrent bool      `json:"is_current"`
}

type CleanupResult struct {
	Expired       int64 `json:"expired_removed"`
	StaleInactive int64 `json:"stale_inactive_removed"`
}

type SessionService struct {
	sessions  repository.SessionRepository
	logger    *slog.Logger
	pepper    string
	retention time.Duration
}

func NewSessionService(sessions repository.SessionRepository, logger *slog.Logger, pepper string, retention time.Duration) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &SessionService{sessions: sessions, logger: logger, pepper: pepper, retention: retention}
}

// ListActive returns the bearer's live sessions, newest first. A ledger
// failure degrades to an empty list rather than an error: the ledger is
// advisory and the caller is already authenticated.
func (s *SessionService) ListActive(ctx context.Context, userID uint, currentToken string) []SessionView {
	sessions, err := s.sessions.ListActiveByUserID(userID)
	if err != nil {
		s.logger.WarnContext(ctx, "session list failed", "user_id", userID, "error", err)
		return []SessionView{}
	}
	currentHash := security.HashSessionToken(currentToken, s.pepper)
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:        session.ID,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
			IP:        session.IP,
			UserAgent: session.UserAgent,
			IsCurrent: session.TokenHash == currentHash,
		})
	}
	return views
}

// Cleanup removes sessions past their expiry and inactive sessions older
// than the retention window. Active, unexpired rows are never touched.
func (s *SessionService) Cleanup(ctx context.Context) (CleanupResult, error) {
	now := time.Now()
	expired, err := s.sessions.DeleteExpired(now)
	if err != nil {
		return CleanupResult{}, err
	}
	stale, err := s.sessions.DeleteInactiveBefore(now.Add(-s.retention))
	if err != nil {
		return CleanupResult{Expired: expired}, err
	}
	observability.RecordSessionCleanup("expired", expired)
	observability.RecordSessionCleanup("stale_inactive", stale)
	s.logger.InfoContext(ctx, "session cleanup finished", "expired_removed", expired, "stale_inactive_removed", stale)
	return CleanupResult{Expired: expired, StaleInactive: stale}, nil
}
