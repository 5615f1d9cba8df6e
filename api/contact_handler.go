package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rpupo63/realestate-site-backend/database"
	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/metrics"
	"github.com/rpupo63/realestate-site-backend/models"
	"github.com/rpupo63/realestate-site-backend/services"
)

const notifyTimeout = 30 * time.Second

type contactHandler struct {
	responder Responder
	logger    zerolog.Logger
	contacts  *database.ContactRepo
	notifier  services.ContactNotifier
	// pending counts notifications still in flight.
	pending *sync.WaitGroup
}

func newContactHandler(responder Responder, contacts *database.ContactRepo, notifier services.ContactNotifier) contactHandler {
	return contactHandler{
		responder: responder,
		logger:    log.With().Str("handlerName", "contactHandler").Logger(),
		contacts:  contacts,
		notifier:  notifier,
		pending:   &sync.WaitGroup{},
	}
}

// createContact stores a public enquiry and notifies staff in the background.
func (h contactHandler) createContact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createContactRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		contact := models.Contact{
			Name:      strings.TrimSpace(req.Name),
			Email:     strings.TrimSpace(req.Email),
			Phone:     strings.TrimSpace(req.Phone),
			Subject:   strings.TrimSpace(req.Subject),
			Message:   strings.TrimSpace(req.Message),
			ProjectID: req.ProjectID,
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
		}
		if err := h.contacts.Add(r.Context(), &contact); err != nil {
			h.responder.WriteError(w, wrapDatabaseError("create", "contact", err))
			return
		}
		metrics.ContactsSubmitted.Inc()

		h.notify(r.Context(), contact)
		h.responder.WriteCreated(w, map[string]any{"id": contact.ID})
	}
}

func (h contactHandler) notify(reqCtx context.Context, contact models.Contact) {
	if h.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), notifyTimeout)
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		defer cancel()
		if err := h.notifier.NotifyContact(ctx, &contact); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			h.logger.Error().Err(err).Str("contactId", contact.ID.String()).Msg("Contact notification failed")
			return
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}()
}

// wait blocks until every background notification has finished or ctx is done.
func (h contactHandler) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// listContacts filters: isRead, isReplied, projectId, search.
func (h contactHandler) listContacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := database.ContactFilter{
			IsRead:    queryBool(r, "isRead", "is_read"),
			IsReplied: queryBool(r, "isReplied", "is_replied"),
			Search:    queryString(r, "search", "q"),
		}
		if raw := queryString(r, "projectId", "project_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				h.responder.WriteError(w, errs.NewInvalidFieldError("projectId", "must be a UUID"))
				return
			}
			filter.ProjectID = &id
		}

		page, err := h.contacts.FindAll(r.Context(), filter, paginationFromQuery(r))
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("list", "contacts", err))
			return
		}
		h.responder.WriteJSON(w, page)
	}
}

func (h contactHandler) getContact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		contact, err := h.contacts.FindByID(r.Context(), id)
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("find", "contact", err))
			return
		}
		h.responder.WriteJSON(w, contact)
	}
}

// markRead sets is_read; the body {"value": false} marks it unread again.
func (h contactHandler) markRead() http.HandlerFunc {
	return h.setFlag("read", h.contacts.MarkRead)
}

func (h contactHandler) markReplied() http.HandlerFunc {
	return h.setFlag("replied", h.contacts.MarkReplied)
}

type contactFlagSetter func(ctx context.Context, id uuid.UUID, value bool) (*models.Contact, error)

func (h contactHandler) setFlag(name string, set contactFlagSetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		value := true
		if r.ContentLength > 0 {
			var req contactFlagRequest
			if err := decodeJSON(w, r, &req); err != nil {
				h.responder.WriteError(w, err)
				return
			}
			if req.Value != nil {
				value = *req.Value
			}
		}

		contact, err := set(r.Context(), id, value)
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("mark "+name, "contact", err))
			return
		}
		h.responder.WriteJSON(w, contact)
	}
}

func (h contactHandler) deleteContact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if err := h.contacts.Delete(r.Context(), id); err != nil {
			h.responder.WriteError(w, wrapDatabaseError("delete", "contact", err))
			return
		}
		h.responder.WriteMessage(w, "contact deleted", nil)
	}
}
