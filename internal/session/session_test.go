package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/furnivision/furnivision/internal/canvas"
	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/engine"
	"github.com/furnivision/furnivision/internal/geom"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes map[string][]design.Change
	closed  []string
}

func (p *recordingPublisher) Publish(id string, c design.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.changes == nil {
		p.changes = make(map[string][]design.Change)
	}
	p.changes[id] = append(p.changes[id], c)
}

func (p *recordingPublisher) Closed(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, id)
}

func testOptions() Options {
	opts := canvas.DefaultOptions()
	opts.BaseScale = 100
	return Options{
		Engine: engine.Config{
			Canvas:   opts,
			Viewport: geom.Viewport{Width: 1000, Height: 600},
		},
	}
}

func newManager(t *testing.T, pub Publisher) *Manager {
	t.Helper()
	m := NewManager(design.DefaultCatalog(), testOptions(), pub)
	t.Cleanup(m.CloseAll)
	return m
}

func TestManagerLifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	m := newManager(t, pub)

	width := 6.0
	s, err := m.Create(&design.RoomPatch{Width: &width})
	if err != nil {
		t.Fatal(err)
	}
	if !m.Exists(s.ID) || m.Len() != 1 {
		t.Fatal("session should be registered")
	}

	err = m.Do(s.ID, func(e *engine.Engine) error {
		if e.Store().Room().Width != 6 {
			t.Errorf("room width = %g, want 6", e.Store().Room().Width)
		}
		_, err := e.Store().AddFurniture(design.DefaultCatalog().Templates[0])
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	pub.mu.Lock()
	got := pub.changes[s.ID]
	pub.mu.Unlock()
	if len(got) != 1 || got[0].Kind != design.ChangeAdded || got[0].FurnitureID != 1 {
		t.Fatalf("published = %+v", got)
	}

	if err := m.Close(s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, design.ErrNotFound) {
		t.Fatalf("get after close = %v", err)
	}
	if err := m.Close(s.ID); !errors.Is(err, design.ErrNotFound) {
		t.Fatalf("second close = %v", err)
	}
	if len(pub.closed) != 1 || pub.closed[0] != s.ID {
		t.Fatalf("closed = %v", pub.closed)
	}
}

func TestCreateRejectsInvalidRoom(t *testing.T) {
	m := newManager(t, nil)
	zero := 0.0
	if _, err := m.Create(&design.RoomPatch{Height: &zero}); !errors.Is(err, design.ErrInvalidRoom) {
		t.Fatalf("err = %v, want ErrInvalidRoom", err)
	}
	if m.Len() != 0 {
		t.Fatal("failed create should not register a session")
	}
}

func TestSnapshotLoadAndCapture(t *testing.T) {
	m := newManager(t, nil)
	a, _ := m.Create(nil)
	b, _ := m.Create(nil)

	_ = a.Do(func(e *engine.Engine) error {
		_, err := e.Store().AddFurniture(design.DefaultCatalog().Templates[5])
		return err
	})
	d, err := m.Snapshot(a.ID, "design_x", "Lounge")
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "Lounge" || len(d.Furniture) != 1 {
		t.Fatalf("snapshot = %+v", d)
	}

	if err := m.Load(b.ID, d); err != nil {
		t.Fatal(err)
	}
	_ = b.Do(func(e *engine.Engine) error {
		items := e.Store().Furniture()
		if len(items) != 1 || items[0].Name != "3-Seater Sofa" {
			t.Errorf("loaded furniture = %+v", items)
		}
		if e.Store().SelectedID() != 0 {
			t.Error("load should clear the selection")
		}
		return nil
	})

	png, err := m.Capture(context.Background(), b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("capture is not a PNG")
	}
	small, err := m.Render(context.Background(), b.ID, geom.Viewport{Width: 200, Height: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(small) >= len(png) {
		t.Fatalf("200x100 render (%d bytes) should be smaller than 1000x600 (%d bytes)", len(small), len(png))
	}

	if _, err := m.Snapshot("nope", "design_x", "x"); !errors.Is(err, design.ErrNotFound) {
		t.Fatalf("snapshot of unknown session = %v", err)
	}
}

// heldLoader blocks every image load until release is closed.
type heldLoader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newHeldLoader(t *testing.T) *heldLoader {
	l := &heldLoader{started: make(chan struct{}), release: make(chan struct{})}
	t.Cleanup(l.unblock)
	return l
}

func (l *heldLoader) unblock() { l.once.Do(func() { close(l.release) }) }

func (l *heldLoader) LoadImage(ctx context.Context, _ string) (image.Image, error) {
	select {
	case l.started <- struct{}{}:
	default:
	}
	select {
	case <-l.release:
		return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newHeldSession(t *testing.T, wait time.Duration) (*Manager, *Session, *heldLoader) {
	t.Helper()
	loader := newHeldLoader(t)
	opts := testOptions()
	opts.Loaders.Images = loader
	opts.CaptureWait = wait
	m := NewManager(design.DefaultCatalog(), opts, nil)
	t.Cleanup(m.CloseAll)

	s, err := m.Create(nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Do(func(e *engine.Engine) error {
		e.Store().AddBackground(design.BackgroundImage{ID: "bg_1", URL: "mem://slow"})
		return nil
	})
	return m, s, loader
}

func TestCaptureReleasesSessionWhileWaiting(t *testing.T) {
	m, s, loader := newHeldSession(t, 5*time.Second)

	rendered := make(chan error, 1)
	go func() {
		_, err := m.Capture(context.Background(), s.ID)
		rendered <- err
	}()
	select {
	case <-loader.started:
	case <-time.After(2 * time.Second):
		t.Fatal("capture never started the image load")
	}

	edited := make(chan error, 1)
	go func() {
		edited <- m.Do(s.ID, func(e *engine.Engine) error {
			_, err := e.Store().AddFurniture(design.DefaultCatalog().Templates[0])
			return err
		})
	}()
	select {
	case err := <-edited:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("edit blocked behind a pending capture")
	}

	loader.unblock()
	select {
	case err := <-rendered:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not finish after the image loaded")
	}
}

func TestCaptureWaitIsBounded(t *testing.T) {
	m, s, _ := newHeldSession(t, 50*time.Millisecond)

	start := time.Now()
	png, err := m.Capture(context.Background(), s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("capture is not a PNG")
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("capture took %v with a stuck image", d)
	}
}

func TestSweepClosesIdleSessions(t *testing.T) {
	m := newManager(t, nil)
	old, _ := m.Create(nil)
	fresh, _ := m.Create(nil)
	old.mu.Lock()
	old.lastUsed = time.Now().Add(-2 * time.Hour)
	old.mu.Unlock()

	if n := m.Sweep(time.Hour); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if m.Exists(old.ID) || !m.Exists(fresh.ID) {
		t.Fatal("only the idle session should be closed")
	}
}

type api struct {
	t      *testing.T
	router *mux.Router
}

func newAPI(t *testing.T) (*api, *Manager) {
	m := newManager(t, nil)
	r := mux.NewRouter()
	NewHandler(m).Mount(r.PathPrefix("/api").Subrouter())
	return &api{t: t, router: r}, m
}

func (a *api) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatal(err)
		}
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v", v, err)
	}
	return v
}

func TestHandlerEditingFlow(t *testing.T) {
	a, _ := newAPI(t)

	rec := a.do("POST", "/api/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	st := decode[State](t, rec)
	if st.ID == "" || st.Mode != engine.Mode2D || st.Zoom != 1 || len(st.Furniture) != 0 {
		t.Fatalf("new state = %+v", st)
	}
	base := "/api/sessions/" + st.ID

	rec = a.do("POST", base+"/furniture", map[string]string{"name": "Dining Chair"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d: %s", rec.Code, rec.Body)
	}
	chair := decode[design.Furniture](t, rec)
	if chair.ID != 1 || chair.Position.X != 2.5 {
		t.Fatalf("chair = %+v", chair)
	}

	// Room 5x3 at 100 px/m centred in 1000x600: the chair spans x 475..525
	// and y 150..240.
	for _, ev := range []pointerRequest{
		{Type: "down", X: 500, Y: 195},
		{Type: "move", X: 550, Y: 195},
	} {
		rec = a.do("POST", base+"/pointer", ev)
		if rec.Code != http.StatusOK {
			t.Fatalf("pointer %s status = %d", ev.Type, rec.Code)
		}
	}
	if got := decode[pointerResponse](t, rec); got.Gesture != "dragging" || got.SelectedID != 1 {
		t.Fatalf("pointer response = %+v", got)
	}
	rec = a.do("POST", base+"/pointer", pointerRequest{Type: "up", X: 550, Y: 195})
	if got := decode[pointerResponse](t, rec); got.Gesture != "idle" {
		t.Fatalf("after up = %+v", got)
	}

	st = decode[State](t, a.do("GET", base, nil))
	if len(st.Furniture) != 1 || st.Furniture[0].Position.X != 3 || st.Furniture[0].Position.Y != 0 {
		t.Fatalf("dragged furniture = %+v", st.Furniture)
	}

	if got := decode[map[string]float64](t, a.do("POST", base+"/zoom", actionRequest{Action: "in"})); got["zoom"] != 1.1 {
		t.Fatalf("zoom = %v", got)
	}
	if got := decode[map[string]bool](t, a.do("POST", base+"/nudge", actionRequest{Action: "rotate"})); !got["applied"] {
		t.Fatal("nudge should apply to the selected chair")
	}

	st = decode[State](t, a.do("POST", base+"/select", selectRequest{ID: 0}))
	if st.SelectedID != 0 {
		t.Fatalf("selection = %d", st.SelectedID)
	}

	rec = a.do("PUT", base+"/furniture/1", design.Furniture{Type: "chair", Name: "Chair", Width: 1, Depth: 1, Height: 1, Color: "#000000"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	if st := decode[State](t, rec); st.Furniture[0].Width != 1 || st.Furniture[0].Position != nil {
		t.Fatalf("updated = %+v", st.Furniture[0])
	}

	rec = a.do("DELETE", base+"/furniture/1", nil)
	if st := decode[State](t, rec); len(st.Furniture) != 0 {
		t.Fatalf("after delete = %+v", st.Furniture)
	}
	if rec := a.do("DELETE", base+"/furniture/1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}

	if rec := a.do("DELETE", base, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("close status = %d", rec.Code)
	}
	if rec := a.do("GET", base, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get closed status = %d", rec.Code)
	}
}

func TestHandlerRoomAndBackgrounds(t *testing.T) {
	a, _ := newAPI(t)
	st := decode[State](t, a.do("POST", "/api/sessions", `{"room":{"wallColor":"#FFFFFF"}}`))
	base := "/api/sessions/" + st.ID
	if st.Room.WallColor != "#FFFFFF" {
		t.Fatalf("wall color = %q", st.Room.WallColor)
	}

	rec := a.do("PUT", base+"/room", `{"width":7}`)
	if st := decode[State](t, rec); st.Room.Width != 7 || st.Room.Length != 5 {
		t.Fatalf("room = %+v", st.Room)
	}
	if rec := a.do("PUT", base+"/room", `{"height":-1}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad room status = %d", rec.Code)
	}

	rec = a.do("POST", base+"/backgrounds", design.BackgroundImage{Name: "Brick", URL: "/assets/brick.png"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("background status = %d", rec.Code)
	}
	st = decode[State](t, rec)
	if len(st.Backgrounds) != 1 || !strings.HasPrefix(st.ActiveBackground, "bg_") {
		t.Fatalf("backgrounds = %+v active %q", st.Backgrounds, st.ActiveBackground)
	}
	bid := st.ActiveBackground

	if st := decode[State](t, a.do("PUT", base+"/backgrounds/active", activeBackgroundRequest{})); st.ActiveBackground != "" {
		t.Fatalf("active after clear = %q", st.ActiveBackground)
	}
	if rec := a.do("PUT", base+"/backgrounds/active", activeBackgroundRequest{ID: "bg_missing"}); rec.Code != http.StatusNotFound {
		t.Fatalf("activate missing status = %d", rec.Code)
	}
	if st := decode[State](t, a.do("DELETE", base+"/backgrounds/"+bid, nil)); len(st.Backgrounds) != 0 {
		t.Fatalf("backgrounds after delete = %+v", st.Backgrounds)
	}

	rec = a.do("POST", base+"/models", design.FurnitureModel{Name: "Lamp", URL: "/assets/lamp.glb", Format: design.FormatGLB})
	if m := decode[design.FurnitureModel](t, rec); !strings.HasPrefix(m.ID, "model_") {
		t.Fatalf("model id = %q", m.ID)
	}
}

func TestHandler3DFrame(t *testing.T) {
	a, _ := newAPI(t)
	st := decode[State](t, a.do("POST", "/api/sessions", nil))
	base := "/api/sessions/" + st.ID

	if rec := a.do("GET", base+"/frame", nil); rec.Code != http.StatusConflict {
		t.Fatalf("frame in 2d status = %d", rec.Code)
	}
	a.do("POST", base+"/furniture", map[string]string{"name": "Side Table"})

	if st := decode[State](t, a.do("PUT", base+"/mode", modeRequest{Mode: engine.Mode3D})); st.Mode != engine.Mode3D {
		t.Fatalf("mode = %q", st.Mode)
	}
	frame := decode[engine.Frame3D](t, a.do("GET", base+"/frame", nil))
	var placeholders int
	for _, c := range frame.Commands {
		if c.FurnitureID == 1 {
			placeholders++
		}
	}
	if placeholders == 0 {
		t.Fatalf("frame has no commands for the table: %+v", frame.Commands)
	}

	if rec := a.do("PUT", base+"/mode", modeRequest{Mode: "4d"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d", rec.Code)
	}
}

func TestHandlerBadRequests(t *testing.T) {
	a, _ := newAPI(t)
	st := decode[State](t, a.do("POST", "/api/sessions", nil))
	base := "/api/sessions/" + st.ID

	tests := []struct {
		method, path string
		body         any
		want         int
	}{
		{"POST", base + "/furniture", map[string]string{"name": "Throne"}, http.StatusBadRequest},
		{"POST", base + "/furniture", `{}`, http.StatusBadRequest},
		{"POST", base + "/furniture", `not json`, http.StatusBadRequest},
		{"PUT", base + "/furniture/abc", `{}`, http.StatusBadRequest},
		{"POST", base + "/pointer", pointerRequest{Type: "hover"}, http.StatusBadRequest},
		{"POST", base + "/zoom", actionRequest{Action: "sideways"}, http.StatusBadRequest},
		{"POST", base + "/nudge", actionRequest{Action: "jump"}, http.StatusOK},
		{"POST", "/api/sessions/missing/select", selectRequest{ID: 1}, http.StatusNotFound},
		{"POST", base + "/select", selectRequest{ID: 42}, http.StatusNotFound},
		{"POST", "/api/sessions", `{"room":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := a.do(tt.method, tt.path, tt.body); rec.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.want, rec.Body)
		}
	}
}

func TestCatalogRoute(t *testing.T) {
	a, _ := newAPI(t)
	c := decode[design.Catalog](t, a.do("GET", "/api/catalog", nil))
	if len(c.Templates) != 6 {
		t.Fatalf("catalog has %d templates", len(c.Templates))
	}
}
