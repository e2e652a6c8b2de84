package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
	"github.com/pipelinecrm/crm-auth-service/internal/repository"
	"github.com/pipelinecrm/crm-auth-service/internal/security"
)

// EnsureSystemAdmin seeds the distinguished administrator account if it does
// not exist yet. The account is flagged so the delete path can refuse it
// regardless of who asks. Runs as part of `migrate`.
func EnsureSystemAdmin(ctx context.Context, users repository.UserRepository, logger *slog.Logger, email, password, displayName string) error {
	if logger == nil {
		logger = slog.Default()
	}
	normalized, err := validateEmail(email)
	if err != nil {
		return fmt.Errorf("system admin email: %w", err)
	}

	existing, err := users.FindByEmail(normalized)
	if err == nil {
		if !existing.IsSystem || existing.Role != domain.RoleAdmin {
			return fmt.Errorf("account %s exists but is not the system administrator", normalized)
		}
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	generated := false
	if password == "" {
		password, err = security.GeneratePassword(16)
		if err != nil {
			return err
		}
		generated = true
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &domain.User{
		Email:         normalized,
		PasswordHash:  hash,
		DisplayName:   displayName,
		Role:          domain.RoleAdmin,
		EmailVerified: true,
		IsSystem:      true,
	}
	if err := users.Create(admin); err != nil {
		return err
	}
	if generated {
		// Printed once at seed time; there is no other way to hand over the
		// initial credential.
		logger.Warn("system administrator created with generated password",
			"email", normalized, "password", password)
	} else {
		logger.Info("system administrator created", "email", normalized)
	}
	return nil
}
