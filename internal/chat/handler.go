package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"buddychat/internal/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ChatRoutes mounts under /chat.
func (h *Handler) ChatRoutes(r chi.Router) {
	r.Get("/messages/{matchId}", h.GetMessages)
	r.Post("/send", h.SendMessage)
	r.Get("/unread/{matchId}", h.GetUnreadCount)
}

// MatchRoutes mounts under /matches.
func (h *Handler) MatchRoutes(r chi.Router) {
	r.Get("/", h.ListMatches)
	r.Put("/{matchId}/status", h.SetStatus)
}

// InternalRoutes mounts under /internal behind middleware.InternalOnly. The
// like flow records mutual matches here.
func (h *Handler) InternalRoutes(r chi.Router) {
	r.Post("/matches", h.RecordMatch)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	matchID, err := httpx.PathID(r, "matchId")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	msgs, err := h.svc.History(r.Context(), matchID, userID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msgs)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	var body sendBody
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	msg, err := h.svc.Send(r.Context(), SendRequest{
		MatchID:   body.MatchID,
		SenderID:  userID,
		Content:   body.Content,
		MediaURL:  body.MediaURL,
		MediaType: body.MediaType,
	})
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msg)
}

func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	matchID, err := httpx.PathID(r, "matchId")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	n, err := h.svc.UnreadCount(r.Context(), matchID, userID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"unreadCount": n})
}

func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	list, err := h.svc.ListMatches(r.Context(), userID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) RecordMatch(w http.ResponseWriter, r *http.Request) {
	var body recordMatchBody
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	m, created, err := h.svc.RecordMatch(r.Context(), body.User1ID, body.User2ID, body.CompatibilityScore)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, m)
}

func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	matchID, err := httpx.PathID(r, "matchId")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	var body statusBody
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	if err := h.svc.SetStatus(r.Context(), matchID, userID, body.Status); err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
