package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
	"github.com/pipelinecrm/crm-auth-service/internal/observability"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(s *domain.Session) error
	FindByTokenHash(hash string) (*domain.Session, error)
	ListActiveByUserID(userID uint) ([]domain.Session, error)
	DeactivateAllByUserID(userID uint) (int64, error)
	DeleteExpired(now time.Time) (int64, error)
	DeleteInactiveBefore(cutoff time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(s *domain.Session) error {
	err := r.db.Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByTokenHash(hash string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Where("token_hash = ?", hash).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_by_token_hash", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_by_token_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_by_token_hash", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(userID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.Where("user_id = ? AND active = ? AND expires_at > ?", userID, true, time.Now()).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "list_active_by_user_id", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "list_active_by_user_id", "success")
	return sessions, nil
}

// DeactivateAllByUserID flips every active session for the identity; used by
// signout. Returns the number of rows touched.
func (r *GormSessionRepository) DeactivateAllByUserID(userID uint) (int64, error) {
	res := r.db.Model(&domain.Session{}).
		Where("user_id = ? AND active = ?", userID, true).
		Update("active", false)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "deactivate_all", "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "deactivate_all", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", now).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "delete_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "delete_expired", "success")
	return res.RowsAffected, nil
}

// DeleteInactiveBefore removes deactivated sessions whose last update is
// older than the retention cutoff. Active, unexpired rows are never touched.
func (r *GormSessionRepository) DeleteInactiveBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("active = ? AND updated_at < ?", false, cutoff).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "delete_inactive_before", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "delete_inactive_before", "success")
	return res.RowsAffected, nil
}
