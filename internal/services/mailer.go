package services

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
)

// Mailer delivers the OTP code out of band. Sends are fire-and-forget from
// the saga's point of view: a failure is logged by the caller and never
// fails the event that triggered it.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	msg := []byte("From: " + m.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n")

	if err := smtp.SendMail(addr, auth, m.From, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %v", to, err)
	}
	return nil
}

// LogMailer stands in when SMTP is not configured. It logs the recipient
// only; the body carries the OTP code and must not reach the logs.
type LogMailer struct{}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	log.Printf("Mail suppressed (SMTP not configured): to=%s subject=%q", to, subject)
	return nil
}
