package relay

import (
	"context"
	"net"
	"net/smtp"
	"strconv"

	"github.com/jordan-wright/email"
)

// SMTPConfig carries mail-relay credentials and addressing.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	SSL  bool
	From string
	To   string
}

// SMTPRelay delivers notifications as plain-text e-mail. It is the alternate
// Notifier for deployments without a Telegram bot.
type SMTPRelay struct {
	cfg SMTPConfig
}

// NewSMTPRelay creates an SMTPRelay with the given configuration.
func NewSMTPRelay(cfg SMTPConfig) *SMTPRelay {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &SMTPRelay{cfg: cfg}
}

var _ Notifier = (*SMTPRelay)(nil)

// Send composes and sends the message. The ctx deadline is not honored by
// the underlying SMTP dial; connection setup has its own network timeouts.
func (r *SMTPRelay) Send(ctx context.Context, msg Message) error {
	if r.cfg.Host == "" || r.cfg.To == "" {
		return ErrNotConfigured
	}

	e := email.NewEmail()
	e.From = r.cfg.From
	e.To = []string{r.cfg.To}
	e.Subject = msg.Subject
	if e.Subject == "" {
		e.Subject = "New contact form submission"
	}
	e.Text = []byte(msg.Text)

	addr := net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.cfg.Port))
	auth := smtp.PlainAuth("", r.cfg.User, r.cfg.Pass, r.cfg.Host)
	if r.cfg.SSL {
		return e.SendWithTLS(addr, auth, nil)
	}
	return e.Send(addr, auth)
}
