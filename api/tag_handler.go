package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rpupo63/realestate-site-backend/database"
	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/models"
)

type tagHandler struct {
	responder Responder
	logger    zerolog.Logger
	tags      *database.TagRepo
}

func newTagHandler(responder Responder, tags *database.TagRepo) tagHandler {
	return tagHandler{
		responder: responder,
		logger:    log.With().Str("handlerName", "tagHandler").Logger(),
		tags:      tags,
	}
}

func (h tagHandler) listTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := h.tags.FindAll(r.Context())
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("list", "tags", err))
			return
		}
		if tags == nil {
			tags = []models.TagWithCount{}
		}
		h.responder.WriteJSON(w, tags)
	}
}

func (h tagHandler) createTag() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTagRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		tag, err := h.tags.Create(r.Context(), req.Name)
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				h.responder.WriteError(w, errs.NewAlreadyExists("tag"))
				return
			}
			h.responder.WriteError(w, wrapDatabaseError("create", "tag", err))
			return
		}
		h.responder.WriteCreated(w, tag)
	}
}

func (h tagHandler) deleteTag() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if err := h.tags.Delete(r.Context(), id); err != nil {
			h.responder.WriteError(w, wrapDatabaseError("delete", "tag", err))
			return
		}
		h.responder.WriteMessage(w, "tag deleted", nil)
	}
}
