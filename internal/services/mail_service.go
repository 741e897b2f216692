package services

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Mailer delivers notification and password-reset mail. Delivery is
// best-effort everywhere in this system: implementations log failures and
// never return them.
type Mailer interface {
	Send(subject, htmlBody string, to []string)
}

type smtpMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPMailer builds a Mailer over a plain SMTP relay.
func NewSMTPMailer(host string, port int, username, password, from string) Mailer {
	return &smtpMailer{host: host, port: port, username: username, password: password, from: from}
}

func (m *smtpMailer) Send(subject, htmlBody string, to []string) {
	if len(to) == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	if err := smtp.SendMail(addr, auth, m.from, to, []byte(b.String())); err != nil {
		log.Printf("WARN: failed to send mail %q to %v: %v", subject, to, err)
	}
}

type logMailer struct{}

// NewLogMailer returns a Mailer that only logs, for deployments without an
// SMTP relay configured.
func NewLogMailer() Mailer {
	return logMailer{}
}

func (logMailer) Send(subject, htmlBody string, to []string) {
	log.Printf("DEBUG: mail delivery disabled, dropping %q to %v", subject, to)
}
