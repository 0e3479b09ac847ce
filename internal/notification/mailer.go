// Package notification はウェルカムメール等の通知送信を提供する。
package notification

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

const welcomeSubject = "Welcome to PoliSync - Your Insurance Simplified"

// welcomeTemplate はウェルカムメールのHTML本文。
const welcomeTemplate = `
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #0f4c81;">Welcome to PoliSync!</h2>
  <p>Hello {{.Name}},</p>
  <p>Thanks for signing up to use the PoliSync app! You've taken the first step toward simplifying your insurance management.</p>
  <p><strong>With PoliSync, you can now:</strong></p>
  <ul>
    <li>Organize all your insurance policies in one place</li>
    <li>Track policy details and renewal dates</li>
    <li>Access your insurance information anytime, anywhere</li>
  </ul>
  <p>In the coming days, we'll guide you through adding your first policies and getting the most out of the app. Stay tuned for helpful tips on organizing your insurance portfolio.</p>
  <p>Have questions? Simply reply to this email, and our support team will be happy to help.</p>
  <p>Best regards,<br>The PoliSync Team</p>
  <div style="margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666;">
    <p>PoliSync - Your Insurance, Simplified</p>
  </div>
</div>`

// SMTPMailer はSTARTTLS経由でウェルカムメールを送信する。
type SMTPMailer struct {
	host         string
	port         int
	username     string
	password     string
	mailFrom     string
	mailFromName string
	tmpl         *template.Template
}

// NewSMTPMailer はSMTPMailerを生成する。
func NewSMTPMailer(host string, port int, username, password, mailFrom, mailFromName string) (*SMTPMailer, error) {
	if host == "" || mailFrom == "" {
		return nil, fmt.Errorf("SMTP host and mail-from address are required")
	}

	tmpl, err := template.New("welcome").Parse(welcomeTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse welcome template: %w", err)
	}

	return &SMTPMailer{
		host:         host,
		port:         port,
		username:     username,
		password:     password,
		mailFrom:     mailFrom,
		mailFromName: mailFromName,
		tmpl:         tmpl,
	}, nil
}

// SendWelcome は新規ユーザーにウェルカムメールを送信する。
func (m *SMTPMailer) SendWelcome(ctx context.Context, to, name string) error {
	htmlBody, err := m.renderWelcome(name)
	if err != nil {
		return err
	}

	msg := m.buildMessage(to, welcomeSubject, htmlBody)

	slog.Info("sending welcome email",
		slog.String("to", to),
		slog.String("smtp_host", m.host),
	)

	if err := m.sendWithTimeout(ctx, to, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}

	slog.Info("welcome email sent", slog.String("to", to))
	return nil
}

func (m *SMTPMailer) renderWelcome(name string) (string, error) {
	var buf bytes.Buffer
	if err := m.tmpl.Execute(&buf, map[string]string{"Name": name}); err != nil {
		return "", fmt.Errorf("failed to render welcome template: %w", err)
	}
	return buf.String(), nil
}

// buildMessage はヘッダー付きのRFC 5322メッセージを組み立てる。
func (m *SMTPMailer) buildMessage(to, subject, htmlBody string) string {
	fromHeader := m.mailFrom
	if m.mailFromName != "" {
		fromHeader = fmt.Sprintf("%s <%s>", m.mailFromName, m.mailFrom)
	}

	return strings.Join([]string{
		fmt.Sprintf("From: %s", fromHeader),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		htmlBody,
	}, "\r\n")
}

func (m *SMTPMailer) sendWithTimeout(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.host, fmt.Sprintf("%d", m.port))

	dialer := net.Dialer{Timeout: 8 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	// 接続全体のハング防止
	deadline := time.Now().Add(15 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return err
	}
	defer func() { _ = c.Quit() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return err
		}
	}

	if m.username != "" {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := c.Auth(auth); err != nil {
			return err
		}
	}

	if err := c.Mail(m.mailFrom); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// NopMailer は何も送信しないWelcomeMailer。SMTPが未設定の環境で使う。
type NopMailer struct{}

// SendWelcome は送信をスキップした旨をログに残す。
func (NopMailer) SendWelcome(_ context.Context, to, _ string) error {
	slog.Debug("mail delivery disabled, skipping welcome email", slog.String("to", to))
	return nil
}
