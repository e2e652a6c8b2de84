package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
	"github.com/pipelinecrm/crm-auth-service/internal/observability"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrSystemAccount  = errors.New("system account cannot be deleted")
)

type UserRepository interface {
	Create(user *domain.User) error
	CreateWithProfile(user *domain.User, profile *domain.Profile) error
	FindByID(id uint) (*domain.User, error)
	FindByEmail(email string) (*domain.User, error)
	EmailExists(email string) (bool, error)
	List() ([]domain.User, error)
	ListPaged(req PageRequest) (PageResult[domain.User], error)
	UpdatePasswordHash(id uint, hash string) error
	UpdateRole(id uint, role domain.Role) error
	MarkEmailVerified(id uint) error
	StampLastLogin(id uint) error
	DeleteByID(id uint) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) Create(user *domain.User) error {
	err := r.db.Create(user).Error
	if err != nil {
		if isDuplicateKey(err) {
			observability.RecordRepositoryOperation(context.Background(), "user", "create", "duplicate")
			return ErrDuplicateEmail
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "create", "success")
	return nil
}

// CreateWithProfile writes the identity and its profile in one transaction:
// both land or neither does.
func (r *GormUserRepository) CreateWithProfile(user *domain.User, profile *domain.Profile) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		profile.UserID = user.ID
		return tx.Create(profile).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			observability.RecordRepositoryOperation(context.Background(), "user", "create_with_profile", "duplicate")
			return ErrDuplicateEmail
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "create_with_profile", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "create_with_profile", "success")
	return nil
}

func (r *GormUserRepository) FindByID(id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.Preload("Profile").First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "success")
	return &u, nil
}

func (r *GormUserRepository) FindByEmail(email string) (*domain.User, error) {
	var u domain.User
	err := r.db.Preload("Profile").Where("email = ?", normalizeEmail(email)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_by_email", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_by_email", "success")
	return &u, nil
}

func (r *GormUserRepository) EmailExists(email string) (bool, error) {
	var count int64
	err := r.db.Model(&domain.User{}).Where("email = ?", normalizeEmail(email)).Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "email_exists", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "email_exists", "success")
	return count > 0, nil
}

func (r *GormUserRepository) List() ([]domain.User, error) {
	var users []domain.User
	err := r.db.Preload("Profile").Order("created_at DESC").Find(&users).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "list", "error")
		return users, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "list", "success")
	return users, nil
}

func (r *GormUserRepository) ListPaged(req PageRequest) (PageResult[domain.User], error) {
	req = normalizePageRequest(req)
	result := PageResult[domain.User]{Page: req.Page, PageSize: req.PageSize}

	if err := r.db.Model(&domain.User{}).Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "list_paged", "error")
		return PageResult[domain.User]{}, err
	}
	offset := (req.Page - 1) * req.PageSize
	err := r.db.Preload("Profile").
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).Limit(req.PageSize).
		Find(&result.Items).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "list_paged", "error")
		return PageResult[domain.User]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(context.Background(), "user", "list_paged", "success")
	return result, nil
}

func (r *GormUserRepository) UpdatePasswordHash(id uint, hash string) error {
	return r.updateColumns(id, "update_password_hash", map[string]any{"password_hash": hash})
}

func (r *GormUserRepository) UpdateRole(id uint, role domain.Role) error {
	return r.updateColumns(id, "update_role", map[string]any{"role": role})
}

func (r *GormUserRepository) MarkEmailVerified(id uint) error {
	return r.updateColumns(id, "mark_email_verified", map[string]any{"email_verified": true})
}

func (r *GormUserRepository) StampLastLogin(id uint) error {
	return r.updateColumns(id, "stamp_last_login", map[string]any{"last_login_at": gorm.Expr("CURRENT_TIMESTAMP")})
}

// DeleteByID hard-deletes the identity along with its profile and session
// rows. The distinguished system administrator is refused here as well as at
// the workflow layer.
func (r *GormUserRepository) DeleteByID(id uint) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var u domain.User
		if err := tx.First(&u, id).Error; err != nil {
			return err
		}
		if u.IsSystem {
			return ErrSystemAccount
		}
		if err := tx.Where("user_id = ?", id).Delete(&domain.Profile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&domain.Session{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.User{}, id).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			observability.RecordRepositoryOperation(context.Background(), "user", "delete", "not_found")
			return ErrUserNotFound
		case errors.Is(err, ErrSystemAccount):
			observability.RecordRepositoryOperation(context.Background(), "user", "delete", "forbidden")
			return ErrSystemAccount
		default:
			observability.RecordRepositoryOperation(context.Background(), "user", "delete", "error")
			return err
		}
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "delete", "success")
	return nil
}

func (r *GormUserRepository) updateColumns(id uint, op string, updates map[string]any) error {
	res := r.db.Model(&domain.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", op, "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "user", op, "not_found")
		return ErrUserNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "user", op, "success")
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
