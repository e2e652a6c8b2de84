package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/pipelinecrm/crm-auth-service/internal/observability"
)

// SMTPNotifier delivers mail through a plain SMTP relay. Dial and delivery
// share one deadline so an unreachable relay cannot hang a request past the
// configured notify timeout.
type SMTPNotifier struct {
	Addr     string
	From     string
	Username string
	Password string
	Timeout  time.Duration
}

func NewSMTPNotifier(addr, from, username, password string, timeout time.Duration) *SMTPNotifier {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &SMTPNotifier{Addr: addr, From: from, Username: username, Password: password, Timeout: timeout}
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	err := n.send(ctx, msg)
	if err != nil {
		observability.RecordNotificationDispatch(msg.Kind, "error")
		return err
	}
	observability.RecordNotificationDispatch(msg.Kind, "success")
	return nil
}

func (n *SMTPNotifier) send(ctx context.Context, msg Message) error {
	deadline := time.Now().Add(n.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn, err := net.DialTimeout("tcp", n.Addr, time.Until(deadline))
	if err != nil {
		return fmt.Errorf("dial smtp relay: %w", err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return fmt.Errorf("set smtp deadline: %w", err)
	}

	host := n.Addr
	if h, _, splitErr := net.SplitHostPort(n.Addr); splitErr == nil {
		host = h
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = client.Close() }()

	if n.Username != "" {
		auth := smtp.PlainAuth("", n.Username, n.Password, host)
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := client.Mail(n.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(formatMail(n.From, msg))); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}
	return client.Quit()
}

func formatMail(from string, msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.String()
}
