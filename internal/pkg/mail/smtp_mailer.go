package mail

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/smtp"

	"github.com/gofiber/template/html/v2"
	"github.com/google/uuid"
	"github.com/mpellerin42/subsync/internal/pkg/env"
)

// SMTPMailer renders named HTML templates and sends them via SMTP.
type SMTPMailer struct {
	engine *html.Engine
}

// NewSMTPMailer loads the mail templates from templateDir (e.g. "views/mails").
func NewSMTPMailer(templateDir string) (*SMTPMailer, error) {
	engine := html.New(templateDir, ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load mail templates: %w", err)
	}
	return &SMTPMailer{engine: engine}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	_ = ctx // net/smtp has no context support

	var body bytes.Buffer
	if err := m.engine.Render(&body, msg.Template.Name, msg.Template.Data); err != nil {
		return fmt.Errorf("render mail template %q: %w", msg.Template.Name, err)
	}

	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	// Bcc recipients go on the envelope only, never into the headers.
	rcpts := []string{msg.To}
	if msg.Bcc != "" {
		rcpts = append(rcpts, msg.Bcc)
	}

	payload := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, msg.To, msg.Subject) +
			fmt.Sprintf("Message-ID: <%s@%s>\r\n", uuid.NewString(), host) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body.String(),
	)

	err := smtp.SendMail(addr, auth, sender, rcpts, payload)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", msg.To, addr)
	}
	return err
}
