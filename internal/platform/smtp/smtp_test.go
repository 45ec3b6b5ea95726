package smtp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewMailer(t *testing.T) {
	t.Parallel()

	_, err := NewMailer(Config{}, testLogger())
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewMailer(Config{Host: "smtp.example.com"}, testLogger())
	assert.Error(t, err)

	m, err := NewMailer(Config{Host: "smtp.example.com", From: "agent@example.com"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 587, m.config.Port)
	assert.Equal(t, 30*time.Second, m.config.Timeout)
}

func TestMailerSend(t *testing.T) {
	t.Parallel()

	m, err := NewMailer(Config{
		Host:     "smtp.example.com",
		From:     "agent@example.com",
		Username: "agent",
		Password: "pw",
	}, testLogger())
	require.NoError(t, err)

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.NotNil(t, a)
		assert.Equal(t, "agent@example.com", from)
		return nil
	}

	id, err := m.Send(context.Background(), Message{
		To:      []string{"asha@example.com"},
		Subject: "Your Login Credentials",
		Body:    "<p>Hi</p>",
		HTML:    true,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(id, "@smtp.example.com>"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"asha@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Your Login Credentials\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.Contains(t, gotMsg, "Message-ID: "+id+"\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\n<p>Hi</p>"))
}

func TestMailerSendErrors(t *testing.T) {
	t.Parallel()

	m, err := NewMailer(Config{Host: "smtp.example.com", From: "agent@example.com"}, testLogger())
	require.NoError(t, err)

	_, err = m.Send(context.Background(), Message{Subject: "x"})
	assert.Error(t, err)

	relayErr := errors.New("550 mailbox unavailable")
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return relayErr }
	_, err = m.Send(context.Background(), Message{To: []string{"a@example.com"}})
	assert.ErrorIs(t, err, relayErr)

	block := make(chan struct{})
	defer close(block)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		<-block
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Send(ctx, Message{To: []string{"a@example.com"}})
	assert.ErrorIs(t, err, context.Canceled)
}
