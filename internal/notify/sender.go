package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crashify360/totalloss/internal/resilience"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg}
}

// Send delivers msg. SMTP 4xx replies are returned as transient errors.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	body, err := msg.Bytes()
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return eris.Wrapf(err, "notify: dial %s", addr)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return smtpError(err, "greeting")
	}
	defer func() { _ = c.Close() }()

	if s.cfg.UseTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return eris.Errorf("notify: %s does not support STARTTLS", addr)
		}
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return smtpError(err, "starttls")
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return smtpError(err, "auth")
		}
	}

	if err := c.Mail(msg.From); err != nil {
		return smtpError(err, "mail from")
	}
	for _, rcpt := range msg.Recipients() {
		if err := c.Rcpt(rcpt); err != nil {
			return smtpError(err, "rcpt "+rcpt)
		}
	}
	w, err := c.Data()
	if err != nil {
		return smtpError(err, "data")
	}
	if _, err := w.Write(body); err != nil {
		return smtpError(err, "write body")
	}
	if err := w.Close(); err != nil {
		return smtpError(err, "end data")
	}
	return smtpError(c.Quit(), "quit")
}

// smtpError wraps err, marking 4xx replies transient.
func smtpError(err error, step string) error {
	if err == nil {
		return nil
	}
	var tp *textproto.Error
	if errors.As(err, &tp) && tp.Code >= 400 && tp.Code < 500 {
		err = resilience.NewTransientError(err, tp.Code)
	}
	return eris.Wrapf(err, "notify: smtp %s", step)
}

// LogSender logs messages instead of sending them. Used for dry runs.
type LogSender struct{}

// Send logs msg and returns nil.
func (LogSender) Send(_ context.Context, msg *Message) error {
	zap.L().Info("notify: dry run, message not sent",
		zap.String("from", msg.From),
		zap.Strings("to", msg.To),
		zap.Strings("cc", msg.Cc),
		zap.String("subject", msg.Subject),
		zap.String("template", msg.Template),
	)
	return nil
}
