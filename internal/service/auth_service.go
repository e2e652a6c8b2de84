package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/pipelinecrm/crm-auth-service/internal/domain"
	"github.com/pipelinecrm/crm-auth-service/internal/notify"
	"github.com/pipelinecrm/crm-auth-service/internal/observability"
	"github.com/pipelinecrm/crm-auth-service/internal/repository"
	"github.com/pipelinecrm/crm-auth-service/internal/security"
)

const minPasswordLength = 8

type AuthService struct {
	users         repository.UserRepository
	sessions      repository.SessionRepository
	jwtMgr        *security.JWTManager
	tokens        ActionTokenStore
	notifier      notify.Notifier
	logger        *slog.Logger
	pepper        string
	verifyTTL     time.Duration
	resetTTL      time.Duration
	notifyTimeout time.Duration
	baseURL       string
}

type AuthServiceParams struct {
	Users         repository.UserRepository
	Sessions      repository.SessionRepository
	JWTManager    *security.JWTManager
	Tokens        ActionTokenStore
	Notifier      notify.Notifier
	Logger        *slog.Logger
	SessionPepper string
	VerifyTTL     time.Duration
	ResetTTL      time.Duration
	NotifyTimeout time.Duration
	BaseURL       string
}

func NewAuthService(p AuthServiceParams) *AuthService {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.VerifyTTL <= 0 {
		p.VerifyTTL = 24 * time.Hour
	}
	if p.ResetTTL <= 0 {
		p.ResetTTL = time.Hour
	}
	if p.NotifyTimeout <= 0 {
		p.NotifyTimeout = 8 * time.Second
	}
	return &AuthService{
		users:         p.Users,
		sessions:      p.Sessions,
		jwtMgr:        p.JWTManager,
		tokens:        p.Tokens,
		notifier:      p.Notifier,
		logger:        p.Logger,
		pepper:        p.SessionPepper,
		verifyTTL:     p.VerifyTTL,
		resetTTL:      p.ResetTTL,
		notifyTimeout: p.NotifyTimeout,
		baseURL:       strings.TrimRight(p.BaseURL, "/"),
	}
}

type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

type AuthResult struct {
	User  *domain.User
	Token string
}

// SignUp registers a self-service identity and logs it in immediately. The
// welcome mail with the verification link is fire-and-forget.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput, ip, userAgent string) (*AuthResult, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		observability.RecordAuthOperation("signup", "invalid_input")
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		observability.RecordAuthOperation("signup", "invalid_input")
		return nil, err
	}
	if strings.TrimSpace(in.DisplayName) == "" {
		observability.RecordAuthOperation("signup", "invalid_input")
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		observability.RecordAuthOperation("signup", "error")
		return nil, err
	}
	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Role:         domain.RoleUser,
	}
	if err := s.users.Create(user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			observability.RecordAuthOperation("signup", "duplicate")
			return nil, ErrDuplicateEmail
		}
		observability.RecordAuthOperation("signup", "error")
		return nil, err
	}

	token, err := s.jwtMgr.Sign(user)
	if err != nil {
		observability.RecordAuthOperation("signup", "error")
		return nil, err
	}
	s.recordSessionBestEffort(ctx, user.ID, token, ip, userAgent)
	s.dispatchWelcome(user)

	observability.RecordAuthOperation("signup", "success")
	return &AuthResult{User: user, Token: token}, nil
}

// SignIn authenticates by email and password. Unknown email and wrong
// password produce the same error so callers cannot enumerate accounts.
func (s *AuthService) SignIn(ctx context.Context, email, password, ip, userAgent string) (*AuthResult, error) {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthOperation("signin", "invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		observability.RecordAuthOperation("signin", "error")
		return nil, err
	}
	if !security.VerifyPassword(user.PasswordHash, password) {
		observability.RecordAuthOperation("signin", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if err := s.users.StampLastLogin(user.ID); err != nil {
		s.logger.WarnContext(ctx, "last-login stamp failed", "user_id", user.ID, "error", err)
	}
	token, err := s.jwtMgr.Sign(user)
	if err != nil {
		observability.RecordAuthOperation("signin", "error")
		return nil, err
	}
	s.recordSessionBestEffort(ctx, user.ID, token, ip, userAgent)
	s.dispatchAsync(notify.LoginAlertMessage(user.Email, user.DisplayName, ip))

	observability.RecordAuthOperation("signin", "success")
	return &AuthResult{User: user, Token: token}, nil
}

// SignOut deactivates every active session for the bearer. Idempotent: a
// second call simply deactivates zero rows.
func (s *AuthService) SignOut(ctx context.Context, userID uint) (int64, error) {
	count, err := s.sessions.DeactivateAllByUserID(userID)
	if err != nil {
		// Ledger trouble must not block signout; the stateless token will
		// expire on its own.
		s.logger.WarnContext(ctx, "session deactivation failed", "user_id", userID, "error", err)
		observability.RecordAuthOperation("signout", "ledger_error")
		return 0, nil
	}
	observability.RecordAuthOperation("signout", "success")
	return count, nil
}

func (s *AuthService) ValidateToken(token string) (*security.Claims, error) {
	claims, err := s.jwtMgr.Parse(token)
	if err != nil {
		observability.RecordAccessTokenValidation(context.Background(), "invalid")
		return nil, ErrInvalidActionToken
	}
	observability.RecordAccessTokenValidation(context.Background(), "valid")
	return claims, nil
}

// VerifyEmail consumes a verification token and flips the verified flag.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	record, err := s.tokens.Consume(ctx, PurposeVerifyEmail, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, ErrInvalidActionToken) {
			observability.RecordAuthOperation("verify_email", "invalid_token")
			return ErrInvalidActionToken
		}
		observability.RecordAuthOperation("verify_email", "error")
		return err
	}
	if err := s.users.MarkEmailVerified(record.UserID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthOperation("verify_email", "invalid_token")
			return ErrInvalidActionToken
		}
		observability.RecordAuthOperation("verify_email", "error")
		return err
	}
	observability.RecordAuthOperation("verify_email", "success")
	return nil
}

// RequestPasswordReset is always success-shaped for unknown emails so the
// endpoint cannot be used to probe registrations. Dispatch failure for a
// known identity is the one notification error that propagates, because
// sending the mail is the entire point of the operation.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthOperation("request_password_reset", "unknown_email")
			return nil
		}
		observability.RecordAuthOperation("request_password_reset", "error")
		return err
	}

	token, err := s.tokens.Issue(ctx, PurposeResetPassword, user.ID, user.Email, s.resetTTL)
	if err != nil {
		observability.RecordAuthOperation("request_password_reset", "error")
		return err
	}
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)

	sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	if err := s.notifier.Send(sendCtx, notify.PasswordResetMessage(user.Email, user.DisplayName, resetURL)); err != nil {
		s.logger.ErrorContext(ctx, "password reset mail failed", "user_id", user.ID, "error", err)
		observability.RecordAuthOperation("request_password_reset", "notify_error")
		return fmt.Errorf("%w: %v", ErrNotificationFailure, err)
	}
	observability.RecordAuthOperation("request_password_reset", "success")
	return nil
}

// ResetPassword consumes a reset token and replaces the hash. All sessions
// for the identity are deactivated afterwards; an attacker holding an old
// token keeps only its stateless remainder.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		observability.RecordAuthOperation("reset_password", "invalid_input")
		return err
	}
	record, err := s.tokens.Consume(ctx, PurposeResetPassword, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, ErrInvalidActionToken) {
			observability.RecordAuthOperation("reset_password", "invalid_token")
			return ErrInvalidActionToken
		}
		observability.RecordAuthOperation("reset_password", "error")
		return err
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		observability.RecordAuthOperation("reset_password", "error")
		return err
	}
	if err := s.users.UpdatePasswordHash(record.UserID, hash); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthOperation("reset_password", "invalid_token")
			return ErrInvalidActionToken
		}
		observability.RecordAuthOperation("reset_password", "error")
		return err
	}
	if _, err := s.sessions.DeactivateAllByUserID(record.UserID); err != nil {
		s.logger.WarnContext(ctx, "session deactivation after reset failed", "user_id", record.UserID, "error", err)
	}
	observability.RecordAuthOperation("reset_password", "success")
	return nil
}

// ChangePassword re-verifies the current password before replacing it.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		observability.RecordAuthOperation("change_password", "invalid_input")
		return err
	}
	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthOperation("change_password", "unauthorized")
			return ErrUnauthorized
		}
		observability.RecordAuthOperation("change_password", "error")
		return err
	}
	if !security.VerifyPassword(user.PasswordHash, currentPassword) {
		observability.RecordAuthOperation("change_password", "invalid_credentials")
		return ErrInvalidCredentials
	}
	hash, err := security.HashPassword(newPassword)
	if err != nil {
		observability.RecordAuthOperation("change_password", "error")
		return err
	}
	if err := s.users.UpdatePasswordHash(userID, hash); err != nil {
		observability.RecordAuthOperation("change_password", "error")
		return err
	}
	observability.RecordAuthOperation("change_password", "success")
	return nil
}

func (s *AuthService) Me(_ context.Context, userID uint) (*domain.User, error) {
	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// recordSessionBestEffort appends the ledger row for a freshly issued
// token. The error is deliberately discarded after logging: the ledger is
// an audit trail, not the authentication gate.
func (s *AuthService) recordSessionBestEffort(ctx context.Context, userID uint, token, ip, userAgent string) {
	err := s.sessions.Create(&domain.Session{
		UserID:    userID,
		TokenHash: security.HashSessionToken(token, s.pepper),
		IP:        ip,
		UserAgent: userAgent,
		ExpiresAt: time.Now().Add(s.jwtMgr.TTL()),
		Active:    true,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "session ledger write failed", "user_id", userID, "error", err)
	}
}

func (s *AuthService) dispatchWelcome(user *domain.User) {
	ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
	token, err := s.tokens.Issue(ctx, PurposeVerifyEmail, user.ID, user.Email, s.verifyTTL)
	if err != nil {
		cancel()
		s.logger.Warn("verification token issue failed", "user_id", user.ID, "error", err)
		return
	}
	verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)
	msg := notify.WelcomeMessage(user.Email, user.DisplayName, verifyURL)
	go func() {
		defer cancel()
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("welcome mail failed", "user_id", user.ID, "error", err)
		}
	}()
}

func (s *AuthService) dispatchAsync(msg notify.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
	go func() {
		defer cancel()
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("notification dispatch failed", "kind", msg.Kind, "error", err)
		}
	}()
}

func validateEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	return nil
}
