// Package smtp sends plain and HTML email through an SMTP relay.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned when no SMTP host is set.
var ErrNotConfigured = errors.New("SMTP server not configured")

// Config holds relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Message is a single email.
type Message struct {
	To      []string
	Subject string
	Body    string
	HTML    bool
	Headers map[string]string
}

// Mailer sends messages through the configured relay.
type Mailer struct {
	config Config
	logger *slog.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer creates a Mailer. Port defaults to 587 and Timeout to 30s.
func NewMailer(config Config, logger *slog.Logger) (*Mailer, error) {
	if config.Host == "" {
		return nil, ErrNotConfigured
	}
	if config.From == "" {
		return nil, errors.New("SMTP sender address not configured")
	}
	if config.Port == 0 {
		config.Port = 587
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Mailer{
		config: config,
		logger: logger.With("component", "smtp_mailer"),
	}
	if config.Port == 465 {
		m.send = m.sendTLS
	} else {
		m.send = smtp.SendMail
	}
	return m, nil
}

// Send delivers msg and returns the generated Message-ID.
func (m *Mailer) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", errors.New("email has no recipients")
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.config.Host)
	raw := m.buildMIMEMessage(msg, messageID)

	var auth smtp.Auth
	if m.config.Username != "" && m.config.Password != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}
	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))

	done := make(chan error, 1)
	go func() {
		done <- m.send(addr, auth, m.config.From, msg.To, []byte(raw))
	}()

	timer := time.NewTimer(m.config.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("failed to send email: %w", err)
		}
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("failed to send email: timeout after %s", m.config.Timeout)
	}

	m.logger.Info("email sent",
		"message_id", messageID,
		"recipients", len(msg.To))
	return messageID, nil
}

// sendTLS delivers over an implicit TLS connection (port 465).
func (m *Mailer) sendTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{ServerName: m.config.Host, MinVersion: tls.VersionTLS12}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Quit()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set recipient: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return w.Close()
}

func (m *Mailer) buildMIMEMessage(msg Message, messageID string) string {
	var b strings.Builder

	contentType := "text/plain; charset=UTF-8"
	if msg.HTML {
		contentType = "text/html; charset=UTF-8"
	}

	fmt.Fprintf(&b, "From: %s\r\n", m.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	b.WriteString("MIME-Version: 1.0\r\n")
	for key, value := range msg.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", key, value)
	}
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return b.String()
}
