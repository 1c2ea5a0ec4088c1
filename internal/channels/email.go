// Package channels holds one sender per delivery medium. Senders perform a
// single attempt and carry no retry logic; retries belong to the delivery
// queue.
package channels

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	config "github.com/DKorytin/Herald/internal/config/worker"
	"github.com/DKorytin/Herald/internal/domain/notification"
	"github.com/DKorytin/Herald/internal/domain/recipient"
	"go.uber.org/zap"
)

var _ notification.Sender = (*Email)(nil)

// Email delivers over SMTP. The recipient address comes from the intent's
// meta["email"] when present, otherwise from the recipient directory.
type Email struct {
	addr       string
	auth       smtp.Auth
	useTLS     bool
	timeout    time.Duration
	from       string
	subjPrefix string

	dir recipient.Repo
	log *zap.Logger
}

func NewEmail(cfg config.SMTP, dir recipient.Repo, log *zap.Logger) *Email {
	var auth smtp.Auth
	if cfg.User != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, smtpHost(cfg.Addr))
	}
	return &Email{
		addr:       cfg.Addr,
		auth:       auth,
		useTLS:     cfg.UseTLS,
		timeout:    cfg.Timeout,
		from:       cfg.From,
		subjPrefix: cfg.SubjPrefix,
		dir:        dir,
		log:        log.With(zap.String("component", "channel.email")),
	}
}

func (e *Email) Send(ctx context.Context, userID, title, body string, meta map[string]any) error {
	to, err := e.resolveAddress(ctx, userID, meta)
	if err != nil {
		return err
	}

	subj := strings.TrimSpace(e.subjPrefix + " " + title)
	msg := []byte(
		"From: " + e.from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subj + "\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" + body + "\r\n")

	start := time.Now()
	log := e.log.With(
		zap.String("smtp_addr", e.addr),
		zap.Bool("tls", e.useTLS),
		zap.String("to", to),
		zap.String("subject", subj),
	)

	if e.useTLS {
		if err := e.sendTLS(to, msg); err != nil {
			log.Error("smtp send failed", zap.Error(err))
			return err
		}
	} else {
		if err := smtp.SendMail(e.addr, e.auth, e.from, []string{to}, msg); err != nil {
			log.Error("sendmail failed", zap.Error(err))
			return err
		}
	}
	log.Info("email sent", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (e *Email) resolveAddress(ctx context.Context, userID string, meta map[string]any) (string, error) {
	if v, ok := meta["email"].(string); ok && v != "" {
		return v, nil
	}
	rec, err := e.dir.GetByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve email for user %s: %w", userID, err)
	}
	if rec.Email == "" {
		return "", fmt.Errorf("user %s has no email address", userID)
	}
	return rec.Email, nil
}

func (e *Email) sendTLS(to string, msg []byte) error {
	dialer := net.Dialer{Timeout: e.timeout}
	conn, err := tls.DialWithDialer(&dialer, "tcp", e.addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		return fmt.Errorf("tls dial: %w", err)
	}
	c, err := smtp.NewClient(conn, smtpHost(e.addr))
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if e.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(e.auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := c.Mail(e.from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}

func smtpHost(addr string) string {
	if i := strings.Index(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}
