package api

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rpupo63/realestate-site-backend/database"
)

const (
	defaultTopProjects  = 5
	defaultContactsDays = 30
)

type statisticsHandler struct {
	responder Responder
	logger    zerolog.Logger
	stats     *database.StatisticsRepo
}

func newStatisticsHandler(responder Responder, stats *database.StatisticsRepo) statisticsHandler {
	return statisticsHandler{
		responder: responder,
		logger:    log.With().Str("handlerName", "statisticsHandler").Logger(),
		stats:     stats,
	}
}

func (h statisticsHandler) overview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overview, err := h.stats.Overview(r.Context())
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("compute", "overview statistics", err))
			return
		}
		h.responder.WriteJSON(w, overview)
	}
}

func (h statisticsHandler) projects() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		top := queryInt(r, "top", defaultTopProjects)
		if top < 1 || top > 50 {
			top = defaultTopProjects
		}
		stats, err := h.stats.Projects(r.Context(), top)
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("compute", "project statistics", err))
			return
		}
		h.responder.WriteJSON(w, stats)
	}
}

func (h statisticsHandler) contacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := queryInt(r, "days", defaultContactsDays)
		if days < 1 || days > 365 {
			days = defaultContactsDays
		}
		stats, err := h.stats.Contacts(r.Context(), days)
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("compute", "contact statistics", err))
			return
		}
		h.responder.WriteJSON(w, stats)
	}
}
