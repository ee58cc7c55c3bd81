// Package email is the primary notification transport.
package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/smallbiznis/payline/internal/config"
)

type Provider interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPProvider struct {
	cfg config.EmailConfig
}

func NewSMTP(cfg config.Config) Provider {
	return &SMTPProvider{cfg: cfg.Email}
}

func (p *SMTPProvider) Send(ctx context.Context, to, subject, body string) error {
	auth := smtp.PlainAuth("", p.cfg.SMTPUsername, p.cfg.SMTPPassword, p.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", p.cfg.SMTPHost, p.cfg.SMTPPort)

	mime := "MIME-version: 1.0;\nContent-Type: text/plain; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", to, subject, mime, body))

	return smtp.SendMail(addr, auth, p.cfg.SMTPFrom, []string{to}, msg)
}
