package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/config/configs"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
)

// SMTPTransport delivers through an authenticated SMTP relay. Every Send
// opens its own connection and closes it before returning.
type SMTPTransport struct {
	cfg       configs.SMTP
	sender    configs.Sender
	tlsConfig *tls.Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewSMTPTransport(cfg configs.SMTP, sender configs.Sender, logger *zap.Logger) *SMTPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPTransport{
		cfg:       cfg,
		sender:    sender,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		logger:    logger,
		now:       time.Now,
	}
}

func (t *SMTPTransport) Name() string { return "smtp" }

func (t *SMTPTransport) Send(ctx context.Context, to, subject, body string) Outcome {
	if err := t.deliver(ctx, to, subject, body); err != nil {
		err = appErrors.NewSendError(t.Name(), to, err)
		t.logger.Error("send failed", zap.String("transport", t.Name()), zap.String("to", to), zap.Error(err))
		return rejected(err)
	}
	t.logger.Info("email accepted", zap.String("transport", t.Name()), zap.String("to", to))
	return Outcome{Accepted: true}
}

func (t *SMTPTransport) deliver(ctx context.Context, to, subject, body string) error {
	msg, err := BuildMessage(t.sender, to, subject, body, t.now())
	if err != nil {
		return err
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if t.cfg.Timeout > 0 {
		_ = conn.SetDeadline(t.now().Add(t.cfg.Timeout))
	}

	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	defer c.Close()

	if !t.cfg.UseSSL {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("server does not support STARTTLS")
		}
		if err := c.StartTLS(t.tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if t.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(t.sender.Email); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish body: %w", err)
	}
	return c.Quit()
}

func (t *SMTPTransport) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	if t.cfg.UseSSL {
		td := &tls.Dialer{NetDialer: dialer, Config: t.tlsConfig}
		return td.DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

// BuildMessage renders a multipart/alternative message with a plain-text
// part and an HTML part derived from it.
func BuildMessage(sender configs.Sender, to, subject, body string, now time.Time) ([]byte, error) {
	if _, err := mail.ParseAddress(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	from := (&mail.Address{Name: sender.Name, Address: sender.Email}).String()
	headers := []struct{ k, v string }{
		{"From", from},
		{"To", to},
		{"Reply-To", sender.Email},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"Date", now.Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "multipart/alternative; boundary=" + mw.Boundary()},
	}
	var head bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&head, "%s: %s\r\n", h.k, h.v)
	}
	head.WriteString("\r\n")

	for _, part := range []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", body},
		{"text/html; charset=utf-8", ToHTML(body)},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(part.content)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	return append(head.Bytes(), buf.Bytes()...), nil
}
