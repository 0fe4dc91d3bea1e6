package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pokerplan/planning-poker-backend/internal/config"
	"github.com/pokerplan/planning-poker-backend/internal/engine"
	"github.com/pokerplan/planning-poker-backend/internal/hub"
	"github.com/pokerplan/planning-poker-backend/internal/protocol"
	"github.com/pokerplan/planning-poker-backend/internal/session"
)

type createRoomRequest struct {
	Name      string `json:"name"`
	OwnerName string `json:"ownerName"`
}

type createRoomResponse struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	RoomName  string `json:"roomName"`
	ShareLink string `json:"shareLink"`
}

type roomResponse struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	OwnerID           string            `json:"ownerId"`
	Users             []engine.User     `json:"users"`
	Activities        []engine.Activity `json:"activities"`
	CurrentActivityID *string           `json:"currentActivityId"`
}

// CreateRoom handles POST /api/rooms: mints the room and its owner identity.
// The owner still joins over the event channel like everyone else.
func CreateRoom(h *hub.Hub, cfg config.Config, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.OwnerName = strings.TrimSpace(req.OwnerName)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if req.OwnerName == "" {
			writeError(w, http.StatusBadRequest, "ownerName is required")
			return
		}

		roomID := uuid.NewString()
		ownerID := uuid.NewString()
		state := engine.NewState(roomID, req.Name, ownerID, engine.Rules{AllowRevote: cfg.AllowRevote})

		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.CreateRoom{RoomID: roomID, State: state, Reply: reply}
		if <-reply == nil {
			writeError(w, http.StatusInternalServerError, "failed to create room")
			return
		}

		log.Info("room created", zap.String("roomId", roomID), zap.String("ownerId", ownerID))
		writeJSON(w, http.StatusCreated, createRoomResponse{
			RoomID:    roomID,
			UserID:    ownerID,
			RoomName:  req.Name,
			ShareLink: strings.TrimRight(cfg.ShareLinkBase, "/") + "/room/" + roomID,
		})
	}
}

// GetRoom handles GET /api/rooms/{roomId}.
func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.GetRoom{RoomID: roomID, Reply: reply}
		sess := <-reply
		if sess == nil {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}

		viewReply := make(chan session.View, 1)
		sess.Inbox() <- session.GetView{Reply: viewReply}
		view := <-viewReply
		if view.Closed {
			// The sweep got to the room between the lookup and the read.
			writeError(w, http.StatusNotFound, "room not found")
			return
		}

		snap := protocol.Snapshot(view.State)
		writeJSON(w, http.StatusOK, roomResponse{
			ID:                snap.Room.ID,
			Name:              snap.Room.Name,
			OwnerID:           snap.Room.OwnerID,
			Users:             snap.Users,
			Activities:        snap.Activities,
			CurrentActivityID: snap.CurrentActivityID,
		})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
