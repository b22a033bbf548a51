package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"leaveflow/internal/platform/config"
)

// Mailer delivers a plain-text message. It satisfies the mail interfaces
// declared by the auth and notifications packages.
type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

var ErrInvalidAddress = errors.New("invalid email address")

const defaultTimeout = 10 * time.Second

// New returns an SMTP mailer when email is enabled, otherwise a mailer that
// only logs what would have been sent.
func New(cfg config.Config) Mailer {
	if !cfg.EmailEnabled || cfg.SMTPHost == "" {
		return logMailer{}
	}
	return &SMTPMailer{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		UseTLS:   cfg.SMTPUseTLS,
		Timeout:  defaultTimeout,
	}
}

type logMailer struct{}

func (logMailer) Send(ctx context.Context, from, to, subject, body string) error {
	slog.Debug("email disabled, message not sent", "to", to, "subject", subject, "bytes", len(body))
	return nil
}

type SMTPMailer struct {
	Host     string
	Port     int
	User     string
	Password string
	UseTLS   bool

	// Timeout bounds the dial and the whole SMTP exchange.
	Timeout time.Duration
}

func (s *SMTPMailer) Send(ctx context.Context, from, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return nil
	}
	msg, err := buildMessage(from, to, subject, body, time.Now())
	if err != nil {
		return err
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("smtp deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if s.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.User != "" {
		if err := client.Auth(smtp.PlainAuth("", s.User, s.Password, s.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(bareAddress(from)); err != nil {
		return err
	}
	if err := client.Rcpt(bareAddress(to)); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string, now time.Time) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("%w: from %q", ErrInvalidAddress, from)
	}
	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("%w: to %q", ErrInvalidAddress, to)
	}
	subject = strings.NewReplacer("\r", " ", "\n", " ").Replace(subject)

	headers := []string{
		"From: " + fromAddr.String(),
		"To: " + toAddr.String(),
		"Subject: " + subject,
		"Date: " + now.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n" + body), nil
}

func bareAddress(raw string) string {
	if addr, err := mail.ParseAddress(raw); err == nil {
		return addr.Address
	}
	return raw
}
