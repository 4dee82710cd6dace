package service

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/util"
)

// Mailer delivers one-time codes.
type Mailer interface {
	SendCode(ctx context.Context, email, code string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewMailer returns an SMTP mailer, or a mailer that only logs when no SMTP
// host is configured.
func NewMailer(cfg SMTPConfig) Mailer {
	if cfg.Host == "" {
		return &logMailer{logger: util.GetLogger()}
	}
	return &smtpMailer{cfg: cfg}
}

type smtpMailer struct {
	cfg SMTPConfig
}

func (m *smtpMailer) SendCode(_ context.Context, email, code string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + email,
		"Subject: Your login code",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		fmt.Sprintf("Your one-time login code: %s", code),
		"",
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send code to %s: %w", email, err)
	}
	return nil
}

type logMailer struct {
	logger *zap.Logger
}

func (m *logMailer) SendCode(_ context.Context, email, code string) error {
	m.logger.Info("SMTP not configured, login code logged instead",
		zap.String("email", email),
		zap.String("code", code))
	return nil
}
