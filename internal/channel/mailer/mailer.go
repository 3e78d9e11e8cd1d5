// Package mailer adapts SMTP delivery to the channel contract. It is
// outbound only; the inbound email side is out of scope, so Subscribe
// returns nil.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"twind/internal/types"
)

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sendFunc matches smtp.SendMail; swapped out in tests.
type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Adapter sends notification email over SMTP.
type Adapter struct {
	cfg  Config
	send sendFunc
	log  *zap.Logger
}

// New creates the adapter.
func New(cfg Config, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		cfg:  cfg,
		send: smtp.SendMail,
		log:  log.Named("mailer"),
	}
}

// Name implements channel.Adapter.
func (a *Adapter) Name() string { return "email" }

// Subscribe implements channel.Adapter. Email has no inbound stream.
func (a *Adapter) Subscribe() <-chan types.ActivityEvent { return nil }

// Close implements channel.Adapter.
func (a *Adapter) Close() error { return nil }

// Send delivers text to the target address. The first line of text that
// looks like a subject marker ("Subject: ...") is promoted to the subject;
// otherwise a generic twin subject is used.
func (a *Adapter) Send(ctx context.Context, target, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	subject := "Digital Twin notification"
	body := text
	if rest, ok := strings.CutPrefix(text, "Subject: "); ok {
		if line, remainder, found := strings.Cut(rest, "\n"); found {
			subject = line
			body = remainder
		}
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		a.cfg.From, target, subject, body)

	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}

	if err := a.send(addr, auth, a.cfg.From, []string{target}, []byte(msg)); err != nil {
		return "", fmt.Errorf("smtp send to %s failed: %w", target, err)
	}

	a.log.Debug("sent mail", zap.String("to", target), zap.String("subject", subject))
	return fmt.Sprintf("sent to %s", target), nil
}
