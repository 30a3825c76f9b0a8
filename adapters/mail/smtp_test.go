package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSMTPMailer_SendPasswordReset(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPConfig{
		Host:     "smtp.example.com",
		Username: "noreply@example.com",
		Password: "secret",
	}, "24 hours", discardLogger())
	require.NoError(t, err)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	mailer.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	err = mailer.SendPasswordReset(context.Background(), "alice@example.com", "http://localhost:3000/reset-password-confirm?token=abc")
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Password Reset Instructions\r\n")
	assert.Contains(t, string(gotMsg), `href="http://localhost:3000/reset-password-confirm?token=abc"`)
	assert.Contains(t, string(gotMsg), "expire in 24 hours")
}

func TestSMTPMailer_SendError(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 25}, "24 hours", discardLogger())
	require.NoError(t, err)
	boom := errors.New("connection refused")
	mailer.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		assert.Nil(t, a)
		return boom
	}
	err = mailer.SendPasswordReset(context.Background(), "bob@example.com", "link")
	assert.ErrorIs(t, err, boom)
}

func TestSMTPMailer_RejectsHeaderInjection(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com"}, "24 hours", discardLogger())
	require.NoError(t, err)
	mailer.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("mail must not be sent")
		return nil
	}
	err = mailer.SendPasswordReset(context.Background(), "a@example.com\r\nBcc: x@example.com", "link")
	assert.Error(t, err)
}

func TestNewSMTPMailer_MissingHost(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{}, "24 hours", nil)
	assert.Error(t, err)
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, NewLogMailer(discardLogger()).SendPasswordReset(context.Background(), "a@example.com", "link"))
}
