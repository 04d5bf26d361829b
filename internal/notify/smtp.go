package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string

	// BaseURL is the public API address used in confirmation links.
	BaseURL string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier emails confirmation links.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send sendFunc
}

// NewSMTPNotifier creates a new SMTPNotifier.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail}
}

// SendConfirmation emails the confirmation link to c.Email.
func (n *SMTPNotifier) SendConfirmation(ctx context.Context, c Confirmation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildMessage(n.cfg.From, c, ConfirmURL(n.cfg.BaseURL, c.Token))
	addr := n.cfg.Host + ":" + n.cfg.Port

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := n.send(addr, auth, n.cfg.From, []string{c.Email}, msg); err != nil {
		return fmt.Errorf("sending confirmation: %w", err)
	}
	return nil
}

func buildMessage(from string, c Confirmation, link string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", c.Email)
	fmt.Fprintf(&b, "Subject: Confirm your %s request\r\n", c.Type)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "We received a %s request for this address.\r\n\r\n", c.Type)
	fmt.Fprintf(&b, "To confirm it, open:\r\n%s\r\n\r\n", link)
	fmt.Fprintf(&b, "The link expires on %s. If you did not make this request, ignore this message.\r\n",
		c.ExpiresAt.UTC().Format("2 January 2006 15:04 MST"))
	return []byte(b.String())
}
