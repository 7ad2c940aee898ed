package email

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"time"

	"github.com/agora/internal/config"
)

type Sender struct {
	cfg *config.SMTPConfig
}

func NewSender(cfg *config.SMTPConfig) *Sender {
	return &Sender{cfg: cfg}
}

func (s *Sender) send(ctx context.Context, to, subject, body string) error {
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return fmt.Errorf("email: SMTP not configured")
	}
	from := s.cfg.FromEmail
	if from == "" {
		from = s.cfg.Username
	}
	var buf bytes.Buffer
	buf.WriteString("From: " + s.cfg.FromName + " <" + from + ">\r\n")
	buf.WriteString("To: " + to + "\r\n")
	buf.WriteString("Subject: " + subject + "\r\n")
	buf.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(body)
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	done := make(chan error, 1)
	go func() { done <- smtp.SendMail(addr, auth, from, []string{to}, buf.Bytes()) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// SendVerification mails the account-activation link after registration.
func (s *Sender) SendVerification(ctx context.Context, to, link string) error {
	body := fmt.Sprintf("Welcome!\n\nConfirm your email to activate your account:\n\n%s\n\nIf you did not register, ignore this message.", link)
	return s.send(ctx, to, "Confirm your email", body)
}

// SendPasswordReset mails the reset link. The link expires quickly.
func (s *Sender) SendPasswordReset(ctx context.Context, to, link string) error {
	body := fmt.Sprintf("A password reset was requested for your account.\n\nReset it here:\n\n%s\n\nThe link expires in 30 minutes. If you did not request this, ignore this message.", link)
	return s.send(ctx, to, "Reset your password", body)
}

// SendTest sends a probe mail to verify SMTP settings.
func (s *Sender) SendTest(ctx context.Context, to string) error {
	return s.send(ctx, to, "SMTP test", fmt.Sprintf("Test message sent at %s.", time.Now().Format(time.RFC1123Z)))
}
