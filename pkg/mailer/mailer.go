// Package mailer sends receipt emails through SMTP. It is the notification
// collaborator boundary: the core hands over a rendered document and moves on.
package mailer

import (
	"fmt"
	"io"

	"gopkg.in/gomail.v2"
)

// Config holds the SMTP connection details.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends receipt emails with the rendered PDF attached.
type Mailer struct {
	cfg Config
}

// NewMailer creates a Mailer from SMTP config.
func NewMailer(cfg Config) *Mailer {
	return &Mailer{cfg: cfg}
}

// SendReceipt mails the rendered receipt PDF to the given address.
func (m *Mailer) SendReceipt(toAddress, subject string, pdf []byte) error {
	if toAddress == "" {
		return fmt.Errorf("recipient address is empty")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", toAddress)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", "Takk for besøket! Kvitteringen ligger vedlagt.")
	msg.Attach("kvittering.pdf", gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(pdf)
		return err
	}))

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send receipt email to %s: %w", toAddress, err)
	}
	return nil
}
