package gallery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/typeid"
)

// Sessions is the editing-session side of saving and loading designs.
type Sessions interface {
	Snapshot(sessionID, designID, name string) (design.Design, error)
	Capture(ctx context.Context, sessionID string) ([]byte, error)
	Load(sessionID string, d design.Design) error
}

type Handler struct {
	repo     Repository
	sessions Sessions
}

func NewHandler(repo Repository, sessions Sessions) *Handler {
	return &Handler{repo: repo, sessions: sessions}
}

type saveRequest struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	// ID overwrites an existing design when set.
	ID string `json:"id,omitempty"`
}

type loadRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	designs, err := h.repo.List(r.Context())
	if err != nil {
		slog.Error("list designs failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, designs)
}

// Save snapshots a session, renders its thumbnail and stores both.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and sessionId are required"})
		return
	}
	if req.ID == "" {
		req.ID = typeid.NewDesignID()
	} else if err := typeid.Validate(req.ID, typeid.PrefixDesign); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	d, err := h.sessions.Snapshot(req.SessionID, req.ID, req.Name)
	if err != nil {
		handleError(w, err)
		return
	}
	if png, err := h.sessions.Capture(r.Context(), req.SessionID); err != nil {
		slog.Warn("capture thumbnail", "error", err, "session", req.SessionID)
	} else {
		d.Thumbnail = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}

	if err := h.repo.Save(r.Context(), d); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summaryOf(d))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.repo.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Load replaces a session's contents with a saved design.
func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
		return
	}
	d, err := h.repo.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, err)
		return
	}
	if err := h.sessions.Load(req.SessionID, d); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, design.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, design.ErrInvalidRoom), errors.Is(err, design.ErrInvalidFurniture):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		slog.Error("gallery error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
