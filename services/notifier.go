package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/rpupo63/realestate-site-backend/models"
)

// ContactNotifier announces a new contact submission on one channel.
type ContactNotifier interface {
	NotifyContact(ctx context.Context, contact *models.Contact) error
}

type notifierChannel struct {
	name     string
	notifier ContactNotifier
}

// Notifier fans a contact out to every configured channel. A failing channel does not stop the
// others; all failures are returned joined.
type Notifier struct {
	channels []notifierChannel
}

func NewNotifier(mailer *Mailer, sms *SMSSender) *Notifier {
	n := &Notifier{}
	if mailer != nil {
		n.Add("email", mailer)
	}
	if sms != nil {
		n.Add("sms", sms)
	}
	return n
}

func (n *Notifier) Add(name string, notifier ContactNotifier) {
	n.channels = append(n.channels, notifierChannel{name: name, notifier: notifier})
}

func (n *Notifier) NotifyContact(ctx context.Context, contact *models.Contact) error {
	if n == nil {
		return nil
	}
	var errs []error
	for _, ch := range n.channels {
		if err := ch.notifier.NotifyContact(ctx, contact); err != nil {
			log.Error().Err(err).Str("channel", ch.name).Str("contactId", contact.ID.String()).Msg("Failed to send contact notification")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
