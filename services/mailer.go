package services

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"

	"github.com/rpupo63/realestate-site-backend/config"
	"github.com/rpupo63/realestate-site-backend/models"
)

// MailDialer is satisfied by *gomail.Dialer.
type MailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Mailer struct {
	dialer     MailDialer
	from       string
	recipients []string
}

// NewMailer returns nil when SMTP is not configured; a nil *Mailer sends nothing.
func NewMailer(settings config.SMTPSettings) *Mailer {
	if !settings.Enabled() {
		log.Info().Msg("SMTP not configured, contact emails disabled")
		return nil
	}
	return NewMailerWithDialer(
		gomail.NewDialer(settings.Host, settings.Port, settings.User, settings.Password),
		settings.From,
		settings.NotifyTo,
	)
}

func NewMailerWithDialer(dialer MailDialer, from string, recipients []string) *Mailer {
	return &Mailer{dialer: dialer, from: from, recipients: recipients}
}

// SendEmail sends an HTML email to recipients.
func (m *Mailer) SendEmail(subject, body string, recipients []string) error {
	if m == nil {
		return nil
	}
	if len(recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipients...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email %q: %w", subject, err)
	}
	log.Info().Str("subject", subject).Int("recipients", len(recipients)).Msg("Successfully sent email")
	return nil
}

var contactEmailTemplate = template.Must(template.New("contact").Parse(`<h2>New enquiry from {{.Name}}</h2>
<p><strong>Email:</strong> {{.Email}}</p>
{{if .Phone}}<p><strong>Phone:</strong> {{.Phone}}</p>{{end}}
{{if .Subject}}<p><strong>Subject:</strong> {{.Subject}}</p>{{end}}
{{if .ProjectID}}<p><strong>Project:</strong> {{.ProjectID}}</p>{{end}}
<p>{{.Message}}</p>
<p><small>Received {{.CreatedAt.Format "2006-01-02 15:04 MST"}} from {{.IPAddress}}</small></p>
`))

// NotifyContact emails the configured recipients about a new contact submission.
func (m *Mailer) NotifyContact(_ context.Context, contact *models.Contact) error {
	if m == nil {
		return nil
	}
	var body strings.Builder
	if err := contactEmailTemplate.Execute(&body, contact); err != nil {
		return fmt.Errorf("render contact email: %w", err)
	}
	subject := "New contact enquiry"
	if contact.Subject != "" {
		subject += ": " + contact.Subject
	}
	return m.SendEmail(subject, body.String(), m.recipients)
}
