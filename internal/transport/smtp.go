package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/notifyhub/scribe-dispatch/internal/config"
	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

// SMTP delivers messages through a mail relay using STARTTLS and AUTH PLAIN.
// Every Send opens its own session; sessions are never pooled.
type SMTP struct {
	host       string
	port       int
	username   string
	password   string
	requireTLS bool
	timeout    time.Duration
	tlsConfig  *tls.Config
}

func NewSMTP(cfg config.SMTPConfig) *SMTP {
	return &SMTP{
		host:       cfg.Host,
		port:       cfg.Port,
		username:   cfg.Username,
		password:   cfg.Password,
		requireTLS: cfg.RequireTLS,
		timeout:    cfg.Timeout,
		tlsConfig:  &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}
}

// Configured is true once a relay host is set. Missing credentials are
// reported per delivery so the job is logged and dropped by the dispatcher.
func (s *SMTP) Configured() bool {
	return s.host != ""
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if !s.Configured() {
		return domain.ErrTransportUnconfigured
	}
	if s.username == "" || s.password == "" {
		return fmt.Errorf("%w: smtp credentials missing", domain.ErrTransportUnconfigured)
	}
	if len(msg.To) == 0 {
		return domain.ErrNoRecipients
	}

	raw, err := buildMessage(msg, time.Now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(s.tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	} else if s.requireTLS {
		return errors.New("smtp server does not support STARTTLS")
	}

	if err := client.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return client.Quit()
}

// buildMessage renders the RFC 5322 text for msg. All recipients share one
// To header so a single transaction reaches every address.
func buildMessage(msg Message, now time.Time) ([]byte, error) {
	from := mail.Address{Name: msg.FromName, Address: msg.From}
	to := make([]string, 0, len(msg.To))
	for _, rcpt := range msg.To {
		addr, err := mail.ParseAddress(rcpt)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", rcpt, err)
		}
		to = append(to, addr.String())
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes(), nil
}

var _ Transport = (*SMTP)(nil)
