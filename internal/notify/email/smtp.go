package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SMTPConfig holds SMTP server settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// SMTPProvider sends through an SMTP relay. Port 465 uses implicit TLS,
// other ports upgrade with STARTTLS when UseTLS is set.
type SMTPProvider struct {
	cfg SMTPConfig
}

// NewSMTPProvider creates the provider
func NewSMTPProvider(cfg SMTPConfig) *SMTPProvider {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPProvider{cfg: cfg}
}

// Name returns the provider name
func (p *SMTPProvider) Name() string { return "smtp" }

// IsConfigured reports whether a host was given
func (p *SMTPProvider) IsConfigured() bool { return p.cfg.Host != "" }

// Send sends one email
func (p *SMTPProvider) Send(ctx context.Context, req *Request) error {
	if !p.IsConfigured() {
		return fmt.Errorf("SMTP host not configured")
	}

	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	msg := BuildMessage(req)

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}

	errCh := make(chan error, 1)
	go func() {
		if p.cfg.Port == 465 {
			errCh <- p.sendWithTLS(addr, auth, req, msg)
			return
		}
		errCh <- p.sendPlain(addr, auth, req, msg)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("SMTP send failed: %w", err)
		}
		zap.L().Debug("Email: sent via SMTP", zap.Strings("to", req.To))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *SMTPProvider) sendPlain(addr string, auth smtp.Auth, req *Request, msg []byte) error {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	client, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("client: %w", err)
	}
	defer client.Close()

	if p.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: p.cfg.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	return deliver(client, auth, req, msg)
}

func (p *SMTPProvider) sendWithTLS(addr string, auth smtp.Auth, req *Request, msg []byte) error {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: p.cfg.Host})
	if err != nil {
		return fmt.Errorf("TLS dial: %w", err)
	}
	client, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("client: %w", err)
	}
	defer client.Close()
	return deliver(client, auth, req, msg)
}

func deliver(client *smtp.Client, auth smtp.Auth, req *Request, msg []byte) error {
	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}
	if err := client.Mail(req.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, to := range req.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("rcpt %s: %w", to, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return client.Quit()
}

// BuildMessage renders the RFC 5322 message, multipart when HTML is set
func BuildMessage(req *Request) []byte {
	var b strings.Builder
	b.WriteString("From: " + req.From + "\r\n")
	b.WriteString("To: " + strings.Join(req.To, ", ") + "\r\n")
	b.WriteString("Subject: " + req.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if req.HTML == "" {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(req.Body)
		return []byte(b.String())
	}

	const boundary = "responder-alt-boundary"
	b.WriteString("Content-Type: multipart/alternative; boundary=\"" + boundary + "\"\r\n\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(req.Body + "\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(req.HTML + "\r\n")
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}
