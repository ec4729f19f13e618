package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/engine"
	"github.com/furnivision/furnivision/internal/geom"
	"github.com/furnivision/furnivision/internal/interact"
	"github.com/furnivision/furnivision/internal/typeid"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// State is the JSON view of a session.
type State struct {
	ID               string                   `json:"id"`
	Revision         uint64                   `json:"revision"`
	Room             design.Room              `json:"room"`
	Furniture        []design.Furniture       `json:"furniture"`
	SelectedID       int                      `json:"selectedId,omitempty"`
	Backgrounds      []design.BackgroundImage `json:"backgrounds"`
	ActiveBackground string                   `json:"activeBackground,omitempty"`
	Models           []design.FurnitureModel  `json:"models"`
	Mode             engine.Mode              `json:"mode"`
	Gesture          string                   `json:"gesture"`
	Zoom             float64                  `json:"zoom"`
}

func stateOf(id string, e *engine.Engine) State {
	s := e.Store()
	st := State{
		ID:          id,
		Revision:    s.Revision(),
		Room:        s.Room(),
		Furniture:   s.Furniture(),
		SelectedID:  s.SelectedID(),
		Backgrounds: s.Backgrounds(),
		Models:      s.Models(),
		Mode:        e.Mode(),
		Gesture:     e.Gesture().String(),
		Zoom:        e.Renderer().Zoom(),
	}
	if bg, ok := s.ActiveBackground(); ok {
		st.ActiveBackground = bg.ID
	}
	if st.Furniture == nil {
		st.Furniture = []design.Furniture{}
	}
	return st
}

type Handler struct {
	sessions *Manager
}

func NewHandler(sessions *Manager) *Handler {
	return &Handler{sessions: sessions}
}

// Mount registers the session routes under /api.
func (h *Handler) Mount(api *mux.Router) {
	api.HandleFunc("/catalog", h.Catalog).Methods("GET")
	api.HandleFunc("/sessions", h.Create).Methods("POST")
	api.HandleFunc("/sessions/{id}", h.Get).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.Delete).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/room", h.UpdateRoom).Methods("PUT")
	api.HandleFunc("/sessions/{id}/furniture", h.AddFurniture).Methods("POST")
	api.HandleFunc("/sessions/{id}/furniture/{fid}", h.UpdateFurniture).Methods("PUT")
	api.HandleFunc("/sessions/{id}/furniture/{fid}", h.DeleteFurniture).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/select", h.Select).Methods("POST")
	api.HandleFunc("/sessions/{id}/pointer", h.Pointer).Methods("POST")
	api.HandleFunc("/sessions/{id}/nudge", h.Nudge).Methods("POST")
	api.HandleFunc("/sessions/{id}/zoom", h.Zoom).Methods("POST")
	api.HandleFunc("/sessions/{id}/mode", h.SetMode).Methods("PUT")
	api.HandleFunc("/sessions/{id}/frame", h.Frame).Methods("GET")
	api.HandleFunc("/sessions/{id}/backgrounds", h.AddBackground).Methods("POST")
	api.HandleFunc("/sessions/{id}/backgrounds/active", h.SetActiveBackground).Methods("PUT")
	api.HandleFunc("/sessions/{id}/backgrounds/{bid}", h.DeleteBackground).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/models", h.RegisterModel).Methods("POST")
}

type createRequest struct {
	Room *design.RoomPatch `json:"room,omitempty"`
}

type addFurnitureRequest struct {
	// Name picks a catalog template; Template is used when Name is empty.
	Name     string           `json:"name,omitempty"`
	Template *design.Template `json:"template,omitempty"`
}

type selectRequest struct {
	ID int `json:"id"`
}

type pointerRequest struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type pointerResponse struct {
	Gesture    string `json:"gesture"`
	SelectedID int    `json:"selectedId,omitempty"`
	Revision   uint64 `json:"revision"`
}

type actionRequest struct {
	Action string `json:"action"`
}

type modeRequest struct {
	Mode engine.Mode `json:"mode"`
}

type activeBackgroundRequest struct {
	ID string `json:"id"`
}

func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Catalog())
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeOptional(r, &req); err != nil {
		handleError(w, err)
		return
	}
	s, err := h.sessions.Create(req.Room)
	if err != nil {
		handleError(w, err)
		return
	}
	var st State
	_ = s.Do(func(e *engine.Engine) error {
		st = stateOf(s.ID, e)
		return nil
	})
	writeJSON(w, http.StatusCreated, st)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.respondState(w, r, http.StatusOK, nil)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(mux.Vars(r)["id"]); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	var patch design.RoomPatch
	if err := decodeBody(r, &patch); err != nil {
		handleError(w, err)
		return
	}
	h.respondState(w, r, http.StatusOK, func(e *engine.Engine) error {
		return e.Store().UpdateRoom(patch)
	})
}

func (h *Handler) AddFurniture(w http.ResponseWriter, r *http.Request) {
	var req addFurnitureRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	var tmpl design.Template
	switch {
	case req.Name != "":
		t, ok := h.sessions.Catalog().Find(req.Name)
		if !ok {
			handleError(w, badRequest("no catalog entry named %q", req.Name))
			return
		}
		tmpl = t
	case req.Template != nil:
		tmpl = *req.Template
	default:
		handleError(w, badRequest("name or template is required"))
		return
	}

	var item design.Furniture
	err := h.sessions.Do(mux.Vars(r)["id"], func(e *engine.Engine) error {
		var err error
		item, err = e.Store().AddFurniture(tmpl)
		return err
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) UpdateFurniture(w http.ResponseWriter, r *http.Request) {
	fid, err := furnitureID(r)
	if err != nil {
		handleError(w, err)
		return
	}
	var item design.Furniture
	if err := decodeBody(r, &item); err != nil {
		handleError(w, err)
		return
	}
	item.ID = fid
	h.respondState(w, r, http.StatusOK, func(e *engine.Engine) error {
		return e.Store().UpdateFurniture(item)
	})
}

func (h *Handler) DeleteFurniture(w http.ResponseWriter, r *http.Request) {
	fid, err := furnitureID(r)
	if err != nil {
		handleError(w, err)
		return
	}
	h.respondState(w, r, http.StatusOK, func(e *engine.Engine) error {
		return e.Store().RemoveFurniture(fid)
	})
}

// Select selects an item; id 0 clears the selection.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	h.respondState(w, r, http.StatusOK, func(e *engine.Engine) error {
		if req.ID == 0 {
			e.Store().ClearSelection()
			return nil
		}
		return e.Store().Select(req.ID)
	})
}

// Pointer feeds one pointer event, in viewport pixels, to the active view.
func (h *Handler) Pointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	p := geom.Point{X: req.X, Y: req.Y}

	var resp pointerResponse
	err := h.sessions.Do(mux.Vars(r)["id"], func(e *engine.Engine) error {
		switch req.Type {
		case "down":
			e.PointerDown(p)
		case "move":
			e.PointerMove(p)
		case "up":
			e.PointerUp(p)
		case "leave":
			e.PointerLeave()
		default:
			return badRequest("unknown pointer event %q", req.Type)
		}
		resp = pointerResponse{
			Gesture:    e.Gesture().String(),
			SelectedID: e.Store().SelectedID(),
			Revision:   e.Store().Revision(),
		}
		return nil
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Nudge(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	var applied bool
	err := h.sessions.Do(mux.Vars(r)["id"], func(e *engine.Engine) error {
		var err error
		applied, err = e.Nudge(interact.Nudge(req.Action))
		return err
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
}

func (h *Handler) Zoom(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	var zoom float64
	err := h.sessions.Do(mux.Vars(r)["id"], func(e *engine.Engine) error {
		switch req.Action {
		case "in":
			zoom = e.ZoomIn()
		case "out":
			zoom = e.ZoomOut()
		case "reset":
			zoom = e.ResetZoom()
		default:
			return badRequest("unknown zoom action %q", req.Action)
		}
		return nil
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"zoom": zoom})
}

func (h *Handler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	h.respondState(w, r, http.StatusOK, func(e *engine.Engine) error {
		if req.Mode != engine.Mode2D && req.Mode != engine.Mode3D {
			return badRequest("unknown mode %q", req.Mode)
		}
		return e.SetMode(req.Mode)
	})
}

// Frame returns the 3D draw list of a session in 3D mode.
func (h *Handler) Frame(w http.ResponseWriter, r *http.Request) {
	var frame engine.Frame3D
	err := h.sessions.Do(mux.Vars(r)["id"], func(e *engine.Engine) error {
		var err error
		frame, err = e.Frame3D()
		return err
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

func (h *Handler) AddBackground(w http.ResponseWriter, r *http.Request) {
	var bg design.BackgroundImage
	if err := decodeBody(r, &bg); err != nil {
		handleError(w, err)
		return
	}
	if bg.URL == "" {
		handleError(w, badRequest("url is required"))
		return
	}
	if bg.ID == "" {
		bg.ID = typeid.NewBackgroundID()
	}
	h.respondState(w, r, http.StatusCreated, func(e *engine.Engine) error {
		e.Store().AddBackground(bg)
		return nil
	})
}

// SetActiveBackground activates a background; an empty id shows none.
func (h *Handler) SetActiveBackground(w http.ResponseWriter, r *http.Request) {
	var req activeBackgroundRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	h.respondState(w, r, http.StatusOK, func(e *engine.Engine) error {
		return e.Store().SetActiveBackground(req.ID)
	})
}

func (h *Handler) DeleteBackground(w http.ResponseWriter, r *http.Request) {
	bid := mux.Vars(r)["bid"]
	h.respondState(w, r, http.StatusOK, func(e *engine.Engine) error {
		return e.Store().RemoveBackground(bid)
	})
}

func (h *Handler) RegisterModel(w http.ResponseWriter, r *http.Request) {
	var m design.FurnitureModel
	if err := decodeBody(r, &m); err != nil {
		handleError(w, err)
		return
	}
	if m.URL == "" {
		handleError(w, badRequest("url is required"))
		return
	}
	if m.ID == "" {
		m.ID = typeid.NewModelID()
	}
	err := h.sessions.Do(mux.Vars(r)["id"], func(e *engine.Engine) error {
		e.Store().RegisterModel(m)
		return nil
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// respondState applies fn, if any, and writes the resulting session state.
func (h *Handler) respondState(w http.ResponseWriter, r *http.Request, status int, fn func(e *engine.Engine) error) {
	id := mux.Vars(r)["id"]
	var st State
	err := h.sessions.Do(id, func(e *engine.Engine) error {
		if fn != nil {
			if err := fn(e); err != nil {
				return err
			}
		}
		st = stateOf(id, e)
		return nil
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, status, st)
}

func furnitureID(r *http.Request) (int, error) {
	fid, err := strconv.Atoi(mux.Vars(r)["fid"])
	if err != nil || fid <= 0 {
		return 0, badRequest("invalid furniture id %q", mux.Vars(r)["fid"])
	}
	return fid, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid request body")
	}
	return nil
}

// decodeOptional is decodeBody that accepts an empty body.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return badRequest("invalid request body")
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, design.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, engine.ErrNot3D):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, design.ErrInvalidRoom), errors.Is(err, design.ErrInvalidFurniture):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		slog.Error("session error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
