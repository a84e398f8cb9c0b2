package presence

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"buddychat/internal/apperr"
	"buddychat/internal/httpx"
)

type Handler struct {
	tracker Tracker
	log     zerolog.Logger
}

func NewHandler(tracker Tracker, log zerolog.Logger) *Handler {
	return &Handler{tracker: tracker, log: log}
}

// Routes mounts under /presence.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/{userId}", h.GetPresence)
}

func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.PathID(r, "userId")
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	online, err := h.tracker.Online(r.Context(), userID)
	if err != nil {
		httpx.Error(w, h.log, apperr.Internal("reading presence", err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"userId": userID, "online": online})
}
