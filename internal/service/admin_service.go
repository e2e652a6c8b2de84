package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
	"github.com/pipelinecrm/crm-auth-service/internal/notify"
	"github.com/pipelinecrm/crm-auth-service/internal/observability"
	"github.com/pipelinecrm/crm-auth-service/internal/repository"
	"github.com/pipelinecrm/crm-auth-service/internal/security"
)

const tempPasswordLength = 12

// AdminService implements the role-gated user lifecycle operations. The
// admin check itself lives in middleware; these methods assume a vetted
// caller and still keep the system-account guard as defense in depth.
type AdminService struct {
	users         repository.UserRepository
	notifier      notify.Notifier
	logger        *slog.Logger
	notifyTimeout time.Duration
}

func NewAdminService(users repository.UserRepository, notifier notify.Notifier, logger *slog.Logger, notifyTimeout time.Duration) *AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	if notifyTimeout <= 0 {
		notifyTimeout = 8 * time.Second
	}
	return &AdminService{users: users, notifier: notifier, logger: logger, notifyTimeout: notifyTimeout}
}

func (s *AdminService) ListUsers(_ context.Context, req repository.PageRequest) (repository.PageResult[domain.User], error) {
	result, err := s.users.ListPaged(req)
	if err != nil {
		observability.RecordAdminOperation("list_users", "error")
		return result, err
	}
	observability.RecordAdminOperation("list_users", "success")
	return result, nil
}

type CreateUserInput struct {
	Email         string
	DisplayName   string
	Role          string
	Password      string
	ContactNumber string
	Department    string
	Designation   string
}

type CreateUserResult struct {
	User *domain.User
	// TempPassword is only set when the password was generated. It is
	// returned exactly once for the admin to relay and never persisted.
	TempPassword string
}

func (s *AdminService) CreateUser(ctx context.Context, in CreateUserInput) (*CreateUserResult, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		observability.RecordAdminOperation("create_user", "invalid_input")
		return nil, err
	}
	if strings.TrimSpace(in.DisplayName) == "" {
		observability.RecordAdminOperation("create_user", "invalid_input")
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		observability.RecordAdminOperation("create_user", "invalid_input")
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	exists, err := s.users.EmailExists(email)
	if err != nil {
		observability.RecordAdminOperation("create_user", "error")
		return nil, err
	}
	if exists {
		observability.RecordAdminOperation("create_user", "duplicate")
		return nil, ErrDuplicateEmail
	}

	password := in.Password
	tempPassword := ""
	if password == "" {
		tempPassword, err = security.GeneratePassword(tempPasswordLength)
		if err != nil {
			observability.RecordAdminOperation("create_user", "error")
			return nil, err
		}
		password = tempPassword
	} else if err := validatePassword(password); err != nil {
		observability.RecordAdminOperation("create_user", "invalid_input")
		return nil, err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		observability.RecordAdminOperation("create_user", "error")
		return nil, err
	}
	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Role:         role,
	}
	profile := &domain.Profile{
		ContactNumber: strings.TrimSpace(in.ContactNumber),
		Department:    strings.TrimSpace(in.Department),
		Designation:   strings.TrimSpace(in.Designation),
	}
	if err := s.users.CreateWithProfile(user, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			observability.RecordAdminOperation("create_user", "duplicate")
			return nil, ErrDuplicateEmail
		}
		observability.RecordAdminOperation("create_user", "error")
		return nil, err
	}
	user.Profile = profile

	if tempPassword != "" {
		// Welcome mail carries the temporary credential. Best-effort: user
		// creation already committed and must not roll back on mail trouble.
		sendCtx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		msg := notify.ProvisionedAccountMessage(user.Email, user.DisplayName, tempPassword)
		go func() {
			defer cancel()
			if err := s.notifier.Send(sendCtx, msg); err != nil {
				s.logger.Warn("provisioning mail failed", "user_id", user.ID, "error", err)
			}
		}()
	}

	observability.RecordAdminOperation("create_user", "success")
	return &CreateUserResult{User: user, TempPassword: tempPassword}, nil
}

func (s *AdminService) DeleteUser(_ context.Context, id uint) error {
	err := s.users.DeleteByID(id)
	switch {
	case err == nil:
		observability.RecordAdminOperation("delete_user", "success")
		return nil
	case errors.Is(err, repository.ErrUserNotFound):
		observability.RecordAdminOperation("delete_user", "not_found")
		return ErrNotFound
	case errors.Is(err, repository.ErrSystemAccount):
		observability.RecordAdminOperation("delete_user", "forbidden")
		return ErrForbidden
	default:
		observability.RecordAdminOperation("delete_user", "error")
		return err
	}
}

func (s *AdminService) UpdateRole(_ context.Context, id uint, rawRole string) (*domain.User, error) {
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		observability.RecordAdminOperation("update_role", "invalid_input")
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.users.UpdateRole(id, role); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAdminOperation("update_role", "not_found")
			return nil, ErrNotFound
		}
		observability.RecordAdminOperation("update_role", "error")
		return nil, err
	}
	user, err := s.users.FindByID(id)
	if err != nil {
		observability.RecordAdminOperation("update_role", "error")
		return nil, err
	}
	observability.RecordAdminOperation("update_role", "success")
	return user, nil
}
