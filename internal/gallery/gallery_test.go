package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/furnivision/furnivision/internal/design"
)

func sampleDesign(id string, at time.Time) design.Design {
	return design.Design{
		ID:        id,
		Name:      "Living room",
		Timestamp: at,
		Room:      design.DefaultRoom(),
		Furniture: []design.Furniture{
			design.Furniture{ID: 1, Type: "sofa", Name: "Sofa", Width: 2.2, Depth: 0.95, Height: 0.9, Color: "#708090"}.
				WithPosition(design.Position{X: 2.5, Z: 1}),
		},
		Thumbnail: "data:image/png;base64," + strings.Repeat("A", 4096),
	}
}

func TestCodecRoundTripCompresses(t *testing.T) {
	d := sampleDesign("design_1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	data, err := EncodeDesign(d)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(d)
	if len(data) >= len(raw) {
		t.Fatalf("compressed %d bytes, raw %d", len(data), len(raw))
	}
	got, err := DecodeDesign(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != d.ID || !got.Timestamp.Equal(d.Timestamp) || len(got.Furniture) != 1 || got.Furniture[0].Position.X != 2.5 {
		t.Fatalf("decoded = %+v", got)
	}
	if _, err := DecodeDesign([]byte("plain text")); err == nil {
		t.Fatal("garbage should not decode")
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = r.Save(ctx, sampleDesign("design_a", base))
	_ = r.Save(ctx, sampleDesign("design_b", base.Add(time.Hour)))

	list, _ := r.List(ctx)
	if len(list) != 2 || list[0].ID != "design_b" || list[0].ItemCount != 1 {
		t.Fatalf("list = %+v, want newest first", list)
	}
	if _, err := r.Get(ctx, "design_x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: err = %v", err)
	}
	if err := r.Delete(ctx, "design_a"); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, "design_a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
}

type fakeSessions struct {
	stores map[string]*design.Store
}

func (f *fakeSessions) store(id string) (*design.Store, error) {
	s, ok := f.stores[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, design.ErrNotFound)
	}
	return s, nil
}

func (f *fakeSessions) Snapshot(sessionID, designID, name string) (design.Design, error) {
	s, err := f.store(sessionID)
	if err != nil {
		return design.Design{}, err
	}
	return s.Snapshot(designID, name), nil
}

func (f *fakeSessions) Capture(_ context.Context, sessionID string) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (f *fakeSessions) Load(sessionID string, d design.Design) error {
	s, err := f.store(sessionID)
	if err != nil {
		return err
	}
	return s.Load(d)
}

func router(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/designs", h.List).Methods("GET")
	r.HandleFunc("/api/designs", h.Save).Methods("POST")
	r.HandleFunc("/api/designs/{id}", h.Get).Methods("GET")
	r.HandleFunc("/api/designs/{id}", h.Delete).Methods("DELETE")
	r.HandleFunc("/api/designs/{id}/load", h.Load).Methods("POST")
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestSaveAndLoadThroughHandler(t *testing.T) {
	src := design.NewStore()
	tpl, _ := design.DefaultCatalog().Find("Coffee Table")
	_, _ = src.AddFurniture(tpl)
	dst := design.NewStore()
	sessions := &fakeSessions{stores: map[string]*design.Store{"s1": src, "s2": dst}}
	h := router(NewHandler(NewMemoryRepository(), sessions))

	rec := do(t, h, "POST", "/api/designs", map[string]string{"sessionId": "s1", "name": "Lounge"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("save: %d %s", rec.Code, rec.Body)
	}
	var saved Summary
	_ = json.Unmarshal(rec.Body.Bytes(), &saved)
	if !strings.HasPrefix(saved.ID, "design_") || !strings.HasPrefix(saved.Thumbnail, "data:image/png;base64,") {
		t.Fatalf("saved = %+v", saved)
	}

	rec = do(t, h, "POST", "/api/designs/"+saved.ID+"/load", map[string]string{"sessionId": "s2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("load: %d %s", rec.Code, rec.Body)
	}
	if got := dst.Furniture(); len(got) != 1 || got[0].Name != "Coffee Table" {
		t.Fatalf("loaded furniture = %+v", got)
	}
	if dst.SelectedID() != 0 {
		t.Fatal("loading should clear the selection")
	}

	if rec := do(t, h, "GET", "/api/designs", nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), saved.ID) {
		t.Fatalf("list: %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, "DELETE", "/api/designs/"+saved.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/designs/"+saved.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: %d", rec.Code)
	}
}

func TestSaveValidation(t *testing.T) {
	sessions := &fakeSessions{stores: map[string]*design.Store{}}
	h := router(NewHandler(NewMemoryRepository(), sessions))

	if rec := do(t, h, "POST", "/api/designs", map[string]string{"sessionId": "s1"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing name: %d", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/designs", map[string]string{"sessionId": "nope", "name": "x"}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: %d", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/designs", map[string]string{"sessionId": "s1", "name": "x", "id": "proj_123"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", rec.Code)
	}
}
