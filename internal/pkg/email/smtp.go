// internal/pkg/email/smtp.go
package email

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

// sendSMTPEmail delivers a message over SMTP, with an explicit-TLS path for
// providers that refuse STARTTLS upgrades.
func (s *EmailService) sendSMTPEmail(email *Email) error {
	cfg := s.config.External.Email
	if cfg.SMTPHost == "" || cfg.SMTPUsername == "" {
		return fmt.Errorf("SMTP configuration incomplete: missing host or username")
	}

	auth := smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	msg := buildMIMEMessage(cfg.FromName, cfg.FromEmail, cfg.ReplyTo, email)

	if cfg.SMTPUseTLS {
		return s.sendOverTLS(addr, auth, cfg.FromEmail, email.To, msg)
	}
	return smtp.SendMail(addr, auth, cfg.FromEmail, email.To, msg)
}

// buildMIMEMessage assembles headers and the HTML body into a wire message.
func buildMIMEMessage(fromName, fromEmail, replyTo string, email *Email) []byte {
	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}

	var b strings.Builder
	write := func(key, value string) {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}
	write("From", from)
	write("To", strings.Join(email.To, ", "))
	write("Subject", email.Subject)
	if replyTo != "" {
		write("Reply-To", replyTo)
	}
	write("MIME-Version", "1.0")
	write("Content-Type", `text/html; charset="utf-8"`)
	b.WriteString("\r\n")
	b.WriteString(email.HTMLContent)
	return []byte(b.String())
}

func (s *EmailService) sendOverTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host := s.config.External.Email.SMTPHost

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("failed to create TLS connection: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Quit()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", recipient, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to send DATA command: %w", err)
	}
	defer writer.Close()

	if _, err := writer.Write(msg); err != nil {
		return fmt.Errorf("failed to write email content: %w", err)
	}
	return nil
}
