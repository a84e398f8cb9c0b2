package notification

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

// Routes mounts under /notifications; all of them need an authenticated user.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/unread", h.Unread)
	r.Get("/unread/count", h.UnreadCount)
	r.Put("/read-all", h.MarkAllRead)
	r.Put("/{id}/read", h.MarkRead)
	r.Delete("/{id}", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	list, err := h.svc.Unread(r.Context(), userID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	n, err := h.svc.UnreadCount(r.Context(), userID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	n, err := h.svc.MarkRead(r.Context(), id, userID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	if err := h.svc.MarkAllRead(r.Context(), userID); err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "All notifications marked as read"})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id, userID); err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Notification deleted"})
}
