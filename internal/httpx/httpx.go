// Package httpx holds the JSON response helpers the REST handlers share.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"buddychat/internal/apperr"
	"buddychat/internal/middleware"
)

type errorBody struct {
	Error   apperr.Kind `json:"error"`
	Message string      `json:"message"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes err as a structured body. Internal failures are logged here
// since their cause is not shown to the client.
func Error(w http.ResponseWriter, log zerolog.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.Error().Err(err).Msg("request failed")
	}
	JSON(w, apperr.HTTPStatus(kind), errorBody{Error: kind, Message: apperr.Message(err)})
}

// PathID parses an int64 chi URL parameter.
func PathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidPayload("invalid " + name)
	}
	return id, nil
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidPayload("malformed JSON body")
	}
	return nil
}

// Caller is the authenticated user; routes using it sit behind the auth middleware.
func Caller(r *http.Request) (int64, error) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		return 0, apperr.Unauthorized("no authenticated user")
	}
	return id, nil
}
