package export

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

type fakeRenderer struct {
	last geom.Viewport
}

func (f *fakeRenderer) Render(_ context.Context, sessionID string, vp geom.Viewport) ([]byte, error) {
	if sessionID != "s1" {
		return nil, fmt.Errorf("session %s: %w", sessionID, design.ErrNotFound)
	}
	f.last = vp
	return append([]byte(nil), pngMagic...), nil
}

func serve(t *testing.T, h *Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/api/sessions/{id}/render.png", h.RenderPNG).Methods("GET")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestRenderPNG(t *testing.T) {
	f := &fakeRenderer{}
	h := NewHandler(f)

	rec := serve(t, h, "/api/sessions/s1/render.png")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("content type = %q", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), pngMagic) {
		t.Fatal("body is not a PNG")
	}
	if f.last != (geom.Viewport{}) {
		t.Fatalf("viewport = %+v, want session default", f.last)
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Fatal("unexpected attachment header")
	}
}

func TestRenderPNGSizeAndName(t *testing.T) {
	f := &fakeRenderer{}
	h := NewHandler(f)

	rec := serve(t, h, "/api/sessions/s1/render.png?width=320&height=240&name=my%20room")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.last != (geom.Viewport{Width: 320, Height: 240}) {
		t.Fatalf("viewport = %+v", f.last)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="my-room.png"` {
		t.Fatalf("disposition = %q", got)
	}
}

func TestRenderPNGErrors(t *testing.T) {
	h := NewHandler(&fakeRenderer{})

	tests := []struct {
		url  string
		want int
	}{
		{"/api/sessions/missing/render.png", http.StatusNotFound},
		{"/api/sessions/s1/render.png?width=320", http.StatusBadRequest},
		{"/api/sessions/s1/render.png?width=0&height=10", http.StatusBadRequest},
		{"/api/sessions/s1/render.png?width=10&height=99999", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := serve(t, h, tt.url); rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.url, rec.Code, tt.want)
		}
	}
}
