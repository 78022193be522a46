package services

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Divyansh2602/pdf-agent/internal/config"
)

const defaultSMTPTimeout = 30 * time.Second

// Mailer sends a rendered artifact as an email attachment over STARTTLS
// SMTP. Missing credentials make delivery a skipped feature, never a fault.
type Mailer struct {
	host     string
	port     string
	username string
	password string
	from     string
	to       string
	timeout  time.Duration
}

func NewMailer(cfg config.Config) *Mailer {
	timeout := cfg.SMTPTimeout
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
		to:       cfg.SMTPTo,
		timeout:  timeout,
	}
}

// Configured reports whether the required credential set is present.
func (m *Mailer) Configured() bool {
	return strings.TrimSpace(m.username) != "" &&
		strings.TrimSpace(m.password) != "" &&
		strings.TrimSpace(m.to) != ""
}

// Send delivers artifactPath as an attachment. recipient overrides the
// configured destination for this send only; the override is never stored.
// The returned warning is non-empty when delivery was skipped or failed.
func (m *Mailer) Send(artifactPath, subject, recipient string) (sent bool, warning string) {
	if !m.Configured() {
		return false, "email configuration incomplete, skipping email"
	}

	to := m.to
	if strings.TrimSpace(recipient) != "" {
		to = recipient
	}

	from := m.from
	if from == "" {
		from = m.username
	}

	message, err := buildMessage(from, to, subject, artifactPath)
	if err != nil {
		return false, fmt.Sprintf("email delivery failed: %v", err)
	}

	addr := fmt.Sprintf("%s:%s", m.host, m.port)
	if err := m.sendMail(addr, from, to, message); err != nil {
		return false, fmt.Sprintf("email delivery failed: %v", err)
	}

	return true, ""
}

// sendMail speaks SMTP over a connection with an absolute deadline so a
// stalled server cannot hold the conversion goroutine open.
func (m *Mailer) sendMail(addr, from, to string, message []byte) error {
	conn, err := net.DialTimeout("tcp", addr, m.timeout)
	if err != nil {
		return fmt.Errorf("dial smtp server: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(m.timeout)); err != nil {
		return fmt.Errorf("set smtp deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if ok, _ := client.Extension("AUTH"); ok {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}

	return client.Quit()
}

// buildMessage assembles a MIME multipart message with a plain-text body and
// the artifact as a base64 binary attachment.
func buildMessage(from, to, subject, artifactPath string) ([]byte, error) {
	attachment, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	filename := filepath.Base(artifactPath)
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	boundary := "pdf-agent-boundary"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%q\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=utf-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please find the attached PDF document generated from %s\r\n", stem)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: application/octet-stream\r\n")
	fmt.Fprintf(&msg, "Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&msg, "Content-Disposition: attachment; filename=%q\r\n", filename)
	fmt.Fprintf(&msg, "\r\n")

	encoded := base64.StdEncoding.EncodeToString(attachment)
	for len(encoded) > 0 {
		n := len(encoded)
		if n > 76 {
			n = 76
		}
		msg.WriteString(encoded[:n])
		msg.WriteString("\r\n")
		encoded = encoded[n:]
	}

	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return msg.Bytes(), nil
}
