package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pipelinecrm/crm-auth-service/internal/observability"
)

// Message is one outbound email. Bodies are plain text; template rendering
// belongs to the web tier, not this service.
type Message struct {
	To      string
	Subject string
	Body    string
	Kind    string
}

// Notifier dispatches a message to the identity's email address. Callers in
// the auth workflows treat dispatch as best-effort: a returned error is
// logged and discarded unless the operation exists only to send the message
// (password reset requests).
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier is the development fallback when no SMTP relay is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification dispatched (log only)",
		"kind", msg.Kind,
		"to", msg.To,
		"subject", msg.Subject,
	)
	observability.RecordNotificationDispatch(msg.Kind, "logged")
	return nil
}

func WelcomeMessage(to, displayName, verificationURL string) Message {
	return Message{
		To:      to,
		Kind:    "welcome",
		Subject: "Welcome to the CRM",
		Body: fmt.Sprintf("Hi %s,\n\nYour account is ready. Verify your email address:\n%s\n\nThe link expires in 24 hours.\n",
			displayName, verificationURL),
	}
}

func LoginAlertMessage(to, displayName, ip string) Message {
	return Message{
		To:      to,
		Kind:    "login_alert",
		Subject: "New sign-in to your CRM account",
		Body: fmt.Sprintf("Hi %s,\n\nA new sign-in to your account was recorded from %s. If this was not you, reset your password now.\n",
			displayName, ip),
	}
}

func PasswordResetMessage(to, displayName, resetURL string) Message {
	return Message{
		To:      to,
		Kind:    "password_reset",
		Subject: "Reset your CRM password",
		Body: fmt.Sprintf("Hi %s,\n\nUse the link below to choose a new password:\n%s\n\nThe link expires in 1 hour. If you did not request this, you can ignore it.\n",
			displayName, resetURL),
	}
}

func ProvisionedAccountMessage(to, displayName, tempPassword string) Message {
	return Message{
		To:      to,
		Kind:    "provisioned",
		Subject: "Your CRM account",
		Body: fmt.Sprintf("Hi %s,\n\nAn administrator created a CRM account for you. Sign in with this temporary password and change it right away:\n\n%s\n",
			displayName, tempPassword),
	}
}
