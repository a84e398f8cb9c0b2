package group

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

// Routes mounts under /group-chat. Room lookups, history and member lists are
// public; everything else goes through auth.
func (h *Handler) Routes(auth func(http.Handler) http.Handler) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/rooms/by-activity/{activityId}", h.GetRoomByActivity)
		r.Get("/rooms/{roomId}/messages", h.GetMessages)
		r.Get("/rooms/{roomId}/members", h.GetMembers)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Get("/rooms/me", h.GetMyRooms)
			r.Post("/rooms", h.CreateRoom)
			r.Post("/rooms/{roomId}/join", h.JoinRoom)
			r.Post("/rooms/{roomId}/leave", h.LeaveRoom)
			r.Post("/rooms/{roomId}/messages", h.SendMessage)
			r.Post("/rooms/by-activity/{activityId}/join", h.JoinByActivity)
			r.Delete("/rooms/by-activity/{activityId}", h.DeleteByActivity)
		})
	}
}

func (h *Handler) GetRoomByActivity(w http.ResponseWriter, r *http.Request) {
	activityID, err := httpx.PathID(r, "activityId")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	info, err := h.svc.RoomByActivity(r.Context(), activityID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, info)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID, err := httpx.PathID(r, "roomId")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	msgs, err := h.svc.History(r.Context(), roomID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msgs)
}

func (h *Handler) GetMembers(w http.ResponseWriter, r *http.Request) {
	roomID, err := httpx.PathID(r, "roomId")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	members, err := h.svc.Members(r.Context(), roomID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, members)
}

func (h *Handler) GetMyRooms(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	rooms, err := h.svc.ListRoomsForUser(r.Context(), userID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rooms)
}

func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	var body createRoomBody
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	info, err := h.svc.CreateRoom(r.Context(), body.ActivityID, userID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, info)
}

func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	roomID, err := httpx.PathID(r, "roomId")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	if err := h.svc.Join(r.Context(), roomID, userID); err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	roomID, err := httpx.PathID(r, "roomId")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	if err := h.svc.Leave(r.Context(), roomID, userID); err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	roomID, err := httpx.PathID(r, "roomId")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	var body sendBody
	if err := httpx.Decode(r, &body); err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	msg, err := h.svc.Send(r.Context(), SendRequest{RoomID: roomID, SenderID: userID, Content: body.Content})
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msg)
}

func (h *Handler) JoinByActivity(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	activityID, err := httpx.PathID(r, "activityId")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	info, err := h.svc.JoinByActivity(r.Context(), activityID, userID)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, info)
}

func (h *Handler) DeleteByActivity(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.Caller(r)
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	activityID, err := httpx.PathID(r, "activityId")
	if err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	if err := h.svc.DeleteRoomForActivity(r.Context(), activityID, userID); err != nil {
		httpx.Error(w, h.svc.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
