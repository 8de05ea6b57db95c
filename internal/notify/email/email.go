// Package email delivers notifications over SMTP with STARTTLS.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"

	"github.com/JakeFAU/gameresult-crawler/internal/notify"
)

// Name identifies the channel.
const Name = "email"

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// StartTLS upgrades the connection before authenticating. Disable only
	// for local relays.
	StartTLS bool
}

type sendFunc func(e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error

// Channel sends plain-text mail.
type Channel struct {
	cfg  Config
	send sendFunc
}

// New builds a Channel.
func New(cfg Config) *Channel {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Channel{cfg: cfg, send: deliver}
}

// Name implements notify.Channel.
func (c *Channel) Name() string { return Name }

// Configured implements notify.Channel.
func (c *Channel) Configured() bool {
	return c.cfg.Host != "" && len(c.cfg.To) > 0
}

// Send mails msg with its Markdown stripped. net/smtp has no context
// support, so a canceled ctx abandons the send rather than interrupting it.
func (c *Channel) Send(ctx context.Context, msg notify.Message) error {
	mail := c.build(msg)
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	var tlsConfig *tls.Config
	if c.cfg.StartTLS {
		tlsConfig = &tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12}
	}

	done := make(chan error, 1)
	go func() {
		done <- c.sendWithFallback(mail, addr, tlsConfig)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	}
}

func (c *Channel) build(msg notify.Message) *email.Email {
	mail := email.NewEmail()
	mail.From = c.cfg.From
	mail.To = append([]string(nil), c.cfg.To...)
	mail.Subject = msg.Subject
	mail.Text = []byte(notify.PlainText(msg.Text))
	return mail
}

func (c *Channel) sendWithFallback(mail *email.Email, addr string, tlsConfig *tls.Config) error {
	var auth smtp.Auth
	if c.cfg.Username != "" && c.cfg.Password != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}
	err := c.send(mail, addr, auth, tlsConfig)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = c.send(mail, addr, nil, tlsConfig)
	}
	return err
}

func deliver(e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error {
	if tlsConfig != nil {
		return e.SendWithStartTLS(addr, auth, tlsConfig)
	}
	return e.Send(addr, auth)
}
