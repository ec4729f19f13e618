package live

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Handler upgrades watch requests for existing sessions.
type Handler struct {
	hub     *Hub
	exists  func(sessionID string) bool
	origins []string
}

// NewHandler serves /ws/sessions/{sessionId}. exists rejects unknown ids
// before the upgrade; origins are host patterns accepted cross-origin.
func NewHandler(hub *Hub, exists func(string) bool, origins []string) *Handler {
	return &Handler{hub: hub, exists: exists, origins: origins}
}

func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	if h.exists != nil && !h.exists(sessionID) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	client := NewClient(h.hub, conn, sessionID, uuid.New().String())
	h.hub.Register(client)

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}
