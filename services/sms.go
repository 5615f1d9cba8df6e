package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/rpupo63/realestate-site-backend/config"
	"github.com/rpupo63/realestate-site-backend/models"
)

// MessageCreator is satisfied by the twilio Api client.
type MessageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

type SMSSender struct {
	client MessageCreator
	from   string
	to     string
}

// NewSMSSender returns nil when Twilio is not configured; a nil *SMSSender sends nothing.
func NewSMSSender(settings config.TwilioSettings) *SMSSender {
	if !settings.Enabled() {
		log.Info().Msg("Twilio not configured, contact SMS disabled")
		return nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: settings.AccountSID,
		Password: settings.AuthToken,
	})
	return NewSMSSenderWithClient(client.Api, settings.FromNumber, settings.NotifyTo)
}

func NewSMSSenderWithClient(client MessageCreator, from, to string) *SMSSender {
	return &SMSSender{client: client, from: from, to: to}
}

func (s *SMSSender) Send(body string) error {
	if s == nil {
		return nil
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(s.to)
	params.SetFrom(s.from)
	params.SetBody(body)

	msg, err := s.client.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if msg != nil && msg.Sid != nil {
		log.Info().Str("sid", *msg.Sid).Msg("Successfully sent SMS")
	}
	return nil
}

// NotifyContact texts a one-line summary of a new contact submission.
func (s *SMSSender) NotifyContact(_ context.Context, contact *models.Contact) error {
	if s == nil {
		return nil
	}
	body := fmt.Sprintf("New enquiry from %s <%s>", contact.Name, contact.Email)
	if contact.Phone != "" {
		body += " " + contact.Phone
	}
	if contact.Subject != "" {
		body += ": " + contact.Subject
	}
	if runes := []rune(body); len(runes) > 300 {
		body = string(runes[:300])
	}
	return s.Send(body)
}
