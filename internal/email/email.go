// Package email delivers verification and welcome mail. Delivery is
// fire-and-forget from the caller's perspective: failures are logged,
// never surfaced to clients.
package email

import (
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
)

// Gateway sends outbound mail.
type Gateway interface {
	SendVerificationCode(to, code string) error
	SendWelcome(to, username string) error
}

// SMTPGateway sends mail through an SMTP relay with plain auth.
type SMTPGateway struct {
	host     string
	port     int
	username string
	password string
	from     string
	logger   *slog.Logger
}

// SMTPOptions holds relay settings for NewSMTPGateway.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewSMTPGateway creates a gateway for the given relay.
func NewSMTPGateway(opts SMTPOptions, logger *slog.Logger) *SMTPGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPGateway{
		host:     opts.Host,
		port:     opts.Port,
		username: opts.Username,
		password: opts.Password,
		from:     opts.From,
		logger:   logger,
	}
}

// SendVerificationCode mails a registration code.
func (g *SMTPGateway) SendVerificationCode(to, code string) error {
	subject := "Your verification code"
	body := fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code)
	return g.send(to, subject, body)
}

// SendWelcome mails a post-registration greeting.
func (g *SMTPGateway) SendWelcome(to, username string) error {
	subject := "Welcome"
	body := fmt.Sprintf("Welcome, %s! Your account is ready.", username)
	return g.send(to, subject, body)
}

func (g *SMTPGateway) send(to, subject, body string) error {
	addr := net.JoinHostPort(g.host, strconv.Itoa(g.port))
	msg := []byte("From: " + g.from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n")

	var auth smtp.Auth
	if g.username != "" {
		auth = smtp.PlainAuth("", g.username, g.password, g.host)
	}

	if err := smtp.SendMail(addr, auth, g.from, []string{to}, msg); err != nil {
		g.logger.Error("sending mail failed", "to", to, "error", err.Error())
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}

// NoopGateway logs instead of sending. Used in tests and dev setups
// without an SMTP relay.
type NoopGateway struct {
	logger *slog.Logger
}

// NewNoopGateway creates a logging-only gateway.
func NewNoopGateway(logger *slog.Logger) *NoopGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopGateway{logger: logger}
}

// SendVerificationCode logs the code instead of mailing it.
func (g *NoopGateway) SendVerificationCode(to, code string) error {
	g.logger.Info("email disabled, verification code not sent", "to", to, "code", code)
	return nil
}

// SendWelcome logs instead of mailing.
func (g *NoopGateway) SendWelcome(to, username string) error {
	g.logger.Info("email disabled, welcome mail not sent", "to", to)
	return nil
}
