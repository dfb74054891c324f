package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/MarkusWeidner/ImmoFox/internal/pkg/env"
)

// SendMail delivers one HTML mail over SMTP. Notification delivery treats a
// returned error as "not sent"; the outbox worker retries on its next tick.
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "587")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", env.GetEnv("APP_DOMAIN", "immofox.local"))
		log.Printf("[Mail] SMTP_SENDER not set, using %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: ImmoFox <%s>\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("[Mail] send to %s failed: %v", to, err)
		return err
	}
	log.Printf("[Mail] sent to %s via %s", to, addr)
	return nil
}
