package alerts

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// ErrNoRecipients is returned when an email has nobody to go to.
var ErrNoRecipients = errors.New("no email recipients")

// SMTPConfig configures outbound mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// UseTLS dials implicit TLS (port 465) instead of plain SMTP with STARTTLS.
	UseTLS bool
	// Timeout bounds one SMTP session, dial included. Zero means DefaultSMTPTimeout.
	Timeout time.Duration
}

// DefaultSMTPTimeout bounds an SMTP session when SMTPConfig.Timeout is unset.
const DefaultSMTPTimeout = 30 * time.Second

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier delivers alerts and reports over SMTP.
type EmailNotifier struct {
	cfg      SMTPConfig
	to       []string
	sendMail SendMailFunc
}

// NewEmailNotifier creates an SMTP notifier sending alerts to the given recipients.
func NewEmailNotifier(cfg SMTPConfig, to []string) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, to: to}
}

// WithSendMail replaces the SMTP transport; used by tests.
func (e *EmailNotifier) WithSendMail(fn SendMailFunc) *EmailNotifier {
	e.sendMail = fn
	return e
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Send(ctx context.Context, alert Alert) error {
	subject := fmt.Sprintf("[AI Spend Guardian] %s exceeded its %s threshold", alert.ProjectName, alert.ThresholdType)

	var b strings.Builder
	fmt.Fprintf(&b, "Project:       %s\r\n", alert.ProjectName)
	fmt.Fprintf(&b, "Window:        %s\r\n", alert.ThresholdType)
	fmt.Fprintf(&b, "Current cost:  $%s\r\n", alert.CurrentCost.StringFixed(2))
	fmt.Fprintf(&b, "Threshold:     $%s\r\n", alert.Threshold.StringFixed(2))
	fmt.Fprintf(&b, "Over by:       %s%%\r\n", alert.PercentOver.String())

	return e.deliver(ctx, e.to, subject, "text/plain", b.String())
}

// SendReport emails an HTML report to the given recipients.
func (e *EmailNotifier) SendReport(ctx context.Context, to []string, subject, htmlBody string) error {
	return e.deliver(ctx, to, subject, "text/html", htmlBody)
}

func (e *EmailNotifier) deliver(ctx context.Context, to []string, subject, contentType, body string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildMessage(e.cfg.From, to, subject, contentType, body)
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	send := e.sendMail
	if send == nil {
		send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
			return e.dial(ctx, addr, auth, from, to, msg)
		}
	}
	if err := send(addr, auth, e.cfg.From, to, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// dial runs one SMTP session bounded by ctx and the notifier's timeout.
func (e *EmailNotifier) dial(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	timeout := e.cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSMTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if e.cfg.UseTLS {
		d := &tls.Dialer{Config: &tls.Config{ServerName: e.cfg.Host}}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("dial %s: %w", addr, ctxErr)
		}
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	// Unblock in-flight reads and writes when ctx is cancelled early.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	err = e.session(conn, auth, from, to, msg)
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func (e *EmailNotifier) session(conn net.Conn, auth smtp.Auth, from string, to []string, msg []byte) error {
	client, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close()

	if !e.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: e.cfg.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("set rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return client.Quit()
}

// headerSanitizer drops line breaks so a value cannot start a new header.
var headerSanitizer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func headerValue(v string) string {
	return strings.TrimSpace(headerSanitizer.Replace(v))
}

// buildMessage renders RFC 5322 headers in a fixed order followed by body.
// Header values are single-line; the subject is Q-encoded when not plain ASCII.
func buildMessage(from string, to []string, subject, contentType, body string) []byte {
	rcpts := make([]string, len(to))
	for i, addr := range to {
		rcpts[i] = headerValue(addr)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", headerValue(from))
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(rcpts, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerValue(subject)))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s; charset=UTF-8\r\n", contentType)
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
