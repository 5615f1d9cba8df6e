package api

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/rpupo63/realestate-site-backend/errs"
)

const maxResponseSize = 10 * 1024 * 1024 // 10MB

type Responder struct {
	logger zerolog.Logger
	debug  bool
}

// NewResponder returns a responder. With debug set, error bodies include the cause chain and a stack.
func NewResponder(logger zerolog.Logger, debug bool) Responder {
	return Responder{logger: logger, debug: debug}
}

func (r Responder) WriteJSON(w http.ResponseWriter, data any) {
	r.write(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func (r Responder) WriteCreated(w http.ResponseWriter, data any) {
	r.write(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

func (r Responder) WriteMessage(w http.ResponseWriter, message string, data any) {
	r.write(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

func (r Responder) write(w http.ResponseWriter, status int, body Envelope) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		r.logger.Error().Err(err).Msg("error marshaling response data")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if len(jsonData) > maxResponseSize {
		r.logger.Error().
			Int("responseSize", len(jsonData)).
			Int("maxSize", maxResponseSize).
			Msg("response too large")
		status = http.StatusInternalServerError
		jsonData, _ = json.Marshal(Envelope{
			Message: "The requested data exceeds the maximum response size",
			Error:   &ErrorBody{Code: errs.CodeInternal},
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(jsonData); err != nil {
		r.logger.Error().Err(err).Msg("error writing response")
	}
}

// WriteError classifies err and writes the error envelope with the matching status.
func (r Responder) WriteError(w http.ResponseWriter, err error) {
	apiErr := errs.Classify(err)

	if apiErr.StatusCode >= http.StatusInternalServerError {
		r.logger.Error().Err(err).Str("code", string(apiErr.Code)).Msg(apiErr.GetFullError())
	}

	body := &ErrorBody{
		Code:    apiErr.Code,
		Field:   apiErr.Field,
		Details: apiErr.Details,
	}
	if r.debug {
		if apiErr.Cause != nil {
			body.Cause = apiErr.GetFullError()
		}
		if apiErr.StatusCode >= http.StatusInternalServerError {
			body.Stack = string(debug.Stack())
		}
	}

	r.write(w, apiErr.StatusCode, Envelope{Message: apiErr.Message(), Error: body})
}

// wrapDatabaseError wraps a database error with context information
func wrapDatabaseError(operation, entity string, cause error) error {
	return errs.NewDatabaseError(operation, entity, cause)
}
