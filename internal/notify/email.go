package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"memwatch/internal/config"
	apperrors "memwatch/internal/errors"
	"memwatch/internal/security"
)

// EmailNotifier sends notifications via email using SMTP.
type EmailNotifier struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	to       []string
	enabled  bool
	now      func() time.Time
}

// NewEmailNotifier creates a new EmailNotifier. The sender defaults to the
// SMTP username and To may list several comma-separated addresses.
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &EmailNotifier{
		smtpHost: cfg.SMTPHost,
		smtpPort: cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     from,
		to:       splitAddresses(cfg.To),
		enabled:  cfg.Enabled,
		now:      time.Now,
	}
}

// Name returns the name of the notifier.
func (e *EmailNotifier) Name() string {
	return "email"
}

// IsEnabled returns whether the notifier is enabled.
func (e *EmailNotifier) IsEnabled() bool {
	return e.enabled
}

// Configured reports whether the server, credentials and recipients are set.
func (e *EmailNotifier) Configured() bool {
	return e.smtpHost != "" && e.username != "" && e.password != "" && e.from != "" && len(e.to) > 0
}

// Send sends a notification via email.
func (e *EmailNotifier) Send(ctx context.Context, n Notification) error {
	if !e.enabled {
		return nil
	}
	if !e.Configured() {
		return fmt.Errorf("email: set SMTP_EMAIL, SMTP_PASSWORD and RECIPIENT_EMAIL: %w", apperrors.ErrNotifierNotConfigured)
	}

	msg, err := e.buildMessage(n)
	if err != nil {
		return err
	}
	return security.MaskError(e.deliver(ctx, msg), e.password)
}

// buildMessage renders n as an RFC 5322 message. Notifications with an HTML
// body become multipart/alternative with the text part first.
func (e *EmailNotifier) buildMessage(n Notification) ([]byte, error) {
	ts := n.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}

	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", (&mail.Address{Name: "Memory Price Monitor", Address: e.from}).String())
	header("To", strings.Join(e.to, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", n.Title))
	header("Date", ts.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(e.from)))
	header("MIME-Version", "1.0")

	if n.HTML == "" {
		header("Content-Type", "text/plain; charset=UTF-8")
		header("Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQuotedPrintable(&buf, n.Message); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	for _, part := range []struct{ contentType, body string }{
		{"text/plain; charset=UTF-8", n.Message},
		{"text/html; charset=UTF-8", n.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, fmt.Errorf("creating mime part: %w", err)
		}
		if err := writeQuotedPrintable(w, part.body); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing mime message: %w", err)
	}
	return buf.Bytes(), nil
}

// deliver sends msg over implicit TLS on port 465 and over STARTTLS, when
// the server offers it, on any other port.
func (e *EmailNotifier) deliver(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(e.smtpHost, strconv.Itoa(e.smtpPort))
	tlsConfig := &tls.Config{ServerName: e.smtpHost}

	var conn net.Conn
	var err error
	if e.smtpPort == 465 {
		dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: 15 * time.Second}, Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		dialer := &net.Dialer{Timeout: 15 * time.Second}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, e.smtpHost)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if e.smtpPort != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("SMTP STARTTLS failed: %w", err)
			}
		}
	}

	if err := client.Auth(smtp.PlainAuth("", e.username, e.password, e.smtpHost)); err != nil {
		return fmt.Errorf("SMTP auth failed: %w", err)
	}

	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("SMTP MAIL command failed: %w", err)
	}
	for _, rcpt := range e.to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT command failed for %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}

func writeQuotedPrintable(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("encoding email body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("encoding email body: %w", err)
	}
	return nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, addr := range strings.Split(s, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func domainOf(addr string) string {
	if _, domain, ok := strings.Cut(addr, "@"); ok && domain != "" {
		return domain
	}
	return "memwatch.local"
}
