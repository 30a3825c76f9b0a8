package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer 透過 SMTP 寄信，伺服器支援時會以 STARTTLS 加密
type SMTPMailer struct {
	config    SMTPConfig
	expiresIn string
	send      sendFunc
	logger    *slog.Logger
}

func NewSMTPMailer(config SMTPConfig, expiresIn string, logger *slog.Logger) (*SMTPMailer, error) {
	if config.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if config.Port == 0 {
		config.Port = 587
	}
	if config.From == "" {
		config.From = config.Username
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPMailer{
		config:    config,
		expiresIn: expiresIn,
		send:      smtp.SendMail,
		logger:    logger.With(slog.String("caller", "SMTPMailer")),
	}, nil
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	const op = "SMTPMailer.SendPasswordReset"
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("[%s] Invalid recipient %q", op, to)
	}
	body, err := renderReset(link, m.expiresIn)
	if err != nil {
		return fmt.Errorf("[%s] Fail to render mail, err=%w", op, err)
	}

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}
	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))

	// smtp.SendMail 不支援 context，逾時由呼叫端處理
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.send(addr, auth, m.config.From, []string{to}, buildMessage(m.config.From, to, resetSubject, body))
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("[%s] Fail to send mail, err=%w", op, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("[%s] %w", op, ctx.Err())
	}
	m.logger.Info("Password reset mail sent", slog.String("op", op), slog.String("to", to))
	return nil
}

// LogMailer 未設定 SMTP 時使用，只把連結寫進日誌
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger.With(slog.String("caller", "LogMailer"))}
}

func (m *LogMailer) SendPasswordReset(_ context.Context, to, link string) error {
	m.logger.Warn("SMTP is not configured, password reset link is only logged",
		slog.String("to", to), slog.String("link", link))
	return nil
}
