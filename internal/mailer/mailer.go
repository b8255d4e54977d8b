// Package mailer delivers password reset links via SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/url"
	"strings"
	"text/template"
	"time"

	"golang.org/x/time/rate"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const resetSubject = "Reset your DodoCare password"

// Config holds mailer configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	// ResetURL is the page that accepts the reset token as the "token" query parameter.
	ResetURL string
	// ResetTTL is shown to the recipient as the link lifetime.
	ResetTTL time.Duration
	// RatePerMinute caps outgoing messages. Zero means unlimited.
	RatePerMinute int
}

// transport delivers one message to its recipients.
type transport func(ctx context.Context, recipients []string, msg []byte) error

// Mailer sends password reset messages.
type Mailer struct {
	config   Config
	auth     smtp.Auth
	template *template.Template
	limiter  *rate.Limiter
	send     transport
}

// New creates a new mailer.
// Returns error if enabled but required config is missing.
func New(config Config) (*Mailer, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("mailer: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("mailer: from address is required when enabled")
		}
		if config.ResetURL == "" {
			return nil, errors.New("mailer: reset URL is required when enabled")
		}
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	if config.ResetTTL == 0 {
		config.ResetTTL = time.Hour
	}

	tmpl, err := template.ParseFS(templatesFS, "templates/password_reset.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	limit := rate.Inf
	if config.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(config.RatePerMinute))
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	slog.Info("mailer configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
		"rate_per_minute", config.RatePerMinute,
	)

	m := &Mailer{
		config:   config,
		auth:     auth,
		template: tmpl,
		limiter:  rate.NewLimiter(limit, 1),
	}
	m.send = m.sendWithSTARTTLS
	return m, nil
}

// SendPasswordReset mails a reset link carrying token to the given address.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string) error {
	if !m.config.Enabled {
		slog.Warn("mailer disabled, skipping password reset message")
		return nil
	}

	body, err := m.renderReset(to, token)
	if err != nil {
		return err
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}

	if err := m.send(ctx, []string{to}, m.buildMessage(to, resetSubject, body)); err != nil {
		return fmt.Errorf("send password reset: %w", err)
	}

	slog.Info("password reset message sent")
	return nil
}

func (m *Mailer) renderReset(to, token string) (string, error) {
	link, err := url.Parse(m.config.ResetURL)
	if err != nil {
		return "", fmt.Errorf("parse reset url: %w", err)
	}
	q := link.Query()
	q.Set("token", token)
	link.RawQuery = q.Encode()

	var buf bytes.Buffer
	err = m.template.ExecuteTemplate(&buf, "password_reset.tmpl", struct {
		Email     string
		Link      string
		ExpiresIn string
	}{
		Email:     to,
		Link:      link.String(),
		ExpiresIn: m.config.ResetTTL.String(),
	})
	if err != nil {
		return "", fmt.Errorf("render password reset: %w", err)
	}
	return buf.String(), nil
}

// buildMessage constructs the email message with headers.
func (m *Mailer) buildMessage(to, subject, body string) []byte {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s\r\n", m.config.FromAddress))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return []byte(msg.String())
}

// sendWithSTARTTLS sends a message, upgrading to TLS when the server offers it.
func (m *Mailer) sendWithSTARTTLS(ctx context.Context, recipients []string, msg []byte) error {
	addr := net.JoinHostPort(m.config.SMTPHost, fmt.Sprint(m.config.SMTPPort))

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			ServerName: m.config.SMTPHost,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if m.auth != nil {
		if err := client.Auth(m.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(extractEmail(m.config.FromAddress)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}

	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// extractEmail extracts the email address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}
