package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
)

const maxDimension = 4096

// Renderer draws a session's elevation as PNG. A zero viewport means the
// session's own size.
type Renderer interface {
	Render(ctx context.Context, sessionID string, vp geom.Viewport) ([]byte, error)
}

type Handler struct {
	renderer Renderer
}

func NewHandler(renderer Renderer) *Handler {
	return &Handler{renderer: renderer}
}

// RenderPNG serves GET /api/sessions/{id}/render.png. Optional width and
// height override the viewport; name turns the response into a download.
func (h *Handler) RenderPNG(w http.ResponseWriter, r *http.Request) {
	vp, err := viewportFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	png, err := h.renderer.Render(r.Context(), mux.Vars(r)["id"], vp)
	if err != nil {
		if errors.Is(err, design.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		slog.Error("render failed", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	if name := r.URL.Query().Get("name"); name != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.png"`, sanitize(name)))
	}
	w.Write(png)
}

func viewportFrom(r *http.Request) (geom.Viewport, error) {
	q := r.URL.Query()
	ws, hs := q.Get("width"), q.Get("height")
	if ws == "" && hs == "" {
		return geom.Viewport{}, nil
	}
	width, err := strconv.Atoi(ws)
	if err != nil || width <= 0 || width > maxDimension {
		return geom.Viewport{}, fmt.Errorf("invalid width: must be 1-%d", maxDimension)
	}
	height, err := strconv.Atoi(hs)
	if err != nil || height <= 0 || height > maxDimension {
		return geom.Viewport{}, fmt.Errorf("invalid height: must be 1-%d", maxDimension)
	}
	return geom.Viewport{Width: float64(width), Height: float64(height)}, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, name)
}
