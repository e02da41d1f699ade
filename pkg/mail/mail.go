// Package mail provides the outbound notification channel used for
// email-hook provisioning, operator failure alerts and invitation
// messages.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Message is one outbound notification.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender delivers notification messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPSender sends messages through an SMTP relay.
type SMTPSender struct {
	config SMTPConfig
	log    *logrus.Entry
}

// NewSMTPSender creates a new SMTPSender
func NewSMTPSender(config SMTPConfig, log *logrus.Entry) *SMTPSender {
	return &SMTPSender{config: config, log: log}
}

// Send delivers a message over SMTP. Plain-auth is used only when a
// username is configured.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	addr := s.config.Host + ":" + s.config.Port
	if err := smtp.SendMail(addr, auth, s.config.From, msg.To, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", strings.Join(msg.To, ", "), err)
	}

	s.log.WithFields(logrus.Fields{
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
	}).Debug("mail sent")
	return nil
}

// RecordingSender captures messages in memory. Used in tests and as a
// safe default when no SMTP relay is configured.
type RecordingSender struct {
	mutex    sync.Mutex
	messages []Message
}

// NewRecordingSender creates a new RecordingSender
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

// Send records the message
func (s *RecordingSender) Send(_ context.Context, msg Message) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy of everything sent so far
func (s *RecordingSender) Messages() []Message {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
