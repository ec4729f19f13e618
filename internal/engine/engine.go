package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/furnivision/furnivision/internal/canvas"
	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
	"github.com/furnivision/furnivision/internal/interact"
	"github.com/furnivision/furnivision/internal/scene"
)

// ErrNot3D is returned by 3D-only queries while the 2D view is active.
var ErrNot3D = errors.New("3d view is not active")

// Mode selects which view receives input and renders.
type Mode string

const (
	Mode2D Mode = "2d"
	Mode3D Mode = "3d"
)

// Loaders bundles the asset collaborators. Either may be nil, in which case
// placeholders and solid backgrounds are used.
type Loaders struct {
	Geometry GeometryLoader
	Images   canvas.ImageLoader
}

type Config struct {
	Canvas   canvas.Options
	Viewport geom.Viewport
	Logger   *slog.Logger
}

// Engine owns both views of one design store and routes input to whichever
// is active. It is driven from a single thread; only load completions
// arrive from other goroutines, and they just mark the engine dirty.
type Engine struct {
	store    *design.Store
	geometry GeometryLoader
	logger   *slog.Logger

	renderer *canvas.Renderer
	view2D   *canvas.View
	ctrl2D   *interact.Controller

	rc         *RenderContext
	reconciler *Reconciler
	ctrl3D     *interact.Controller

	mode     Mode
	viewport geom.Viewport

	dirty       atomic.Bool
	shellDirty  atomic.Bool
	invalidate  atomic.Pointer[func()]
	unsubscribe func()
}

func New(store *design.Store, loaders Loaders, cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Viewport.Valid() {
		return nil, fmt.Errorf("new engine: invalid viewport %gx%g", cfg.Viewport.Width, cfg.Viewport.Height)
	}
	renderer, err := canvas.NewRenderer(cfg.Canvas, loaders.Images, logger)
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}

	e := &Engine{
		store:    store,
		geometry: loaders.Geometry,
		logger:   logger,
		renderer: renderer,
		mode:     Mode2D,
		viewport: cfg.Viewport,
	}
	e.view2D = canvas.NewView(renderer, store, cfg.Viewport)
	e.view2D.OnInvalidate(e.requestFrame)
	e.ctrl2D = interact.NewController(store, e.view2D, logger)
	renderer.Images().OnReady(func(string) { e.requestFrame() })

	e.unsubscribe = store.Subscribe(e.onChange)
	e.dirty.Store(true)
	return e, nil
}

func (e *Engine) onChange(c design.Change) {
	switch c.Kind {
	case design.ChangeRoom, design.ChangeBackground:
		e.shellDirty.Store(true)
	case design.ChangeLoaded:
		e.shellDirty.Store(true)
		e.pruneScales()
	case design.ChangeRemoved:
		e.renderer.Scales().Delete(c.FurnitureID)
	}
	e.requestFrame()
}

func (e *Engine) pruneScales() {
	live := make(map[int]bool)
	for _, it := range e.store.Furniture() {
		live[it.ID] = true
	}
	e.renderer.Scales().Prune(live)
}

// OnInvalidate sets a callback fired whenever a new frame should be drawn.
// It may be called from any goroutine.
func (e *Engine) OnInvalidate(fn func()) {
	e.invalidate.Store(&fn)
}

func (e *Engine) requestFrame() {
	e.dirty.Store(true)
	if fn := e.invalidate.Load(); fn != nil && *fn != nil {
		(*fn)()
	}
}

func (e *Engine) Store() *design.Store { return e.store }

func (e *Engine) Mode() Mode { return e.mode }

func (e *Engine) Renderer() *canvas.Renderer { return e.renderer }

// RenderContext returns the live 3D context, or nil in 2D mode.
func (e *Engine) RenderContext() *RenderContext { return e.rc }

// SetMode switches views. Leaving 3D disposes the render context and
// cancels outstanding model loads.
func (e *Engine) SetMode(m Mode) error {
	if m == e.mode {
		return nil
	}
	switch m {
	case Mode3D:
		e.ctrl2D.Cancel()
		e.open3D()
	case Mode2D:
		e.close3D()
	default:
		return fmt.Errorf("set mode: unknown mode %q", m)
	}
	e.mode = m
	e.requestFrame()
	return nil
}

func (e *Engine) open3D() {
	e.rc = NewRenderContext(e.store.Room(), e.viewport, e.backgroundURL())
	e.reconciler = NewReconciler(e.rc, e.geometry, e.store, e.logger)
	e.reconciler.OnResult(e.requestFrame)
	e.ctrl3D = interact.NewController(e.store, NewView3D(e.rc), e.logger)
	e.shellDirty.Store(false)
	e.dirty.Store(true)
	e.Tick()
}

func (e *Engine) close3D() {
	if e.rc == nil {
		return
	}
	e.ctrl3D.Cancel()
	e.reconciler.Close()
	e.rc.Dispose()
	e.ctrl3D = nil
	e.reconciler = nil
	e.rc = nil
}

func (e *Engine) backgroundURL() string {
	if bg, ok := e.store.ActiveBackground(); ok {
		return bg.URL
	}
	return ""
}

// Tick installs finished model loads and reconciles the 3D scene when the
// store has changed. It does nothing in 2D mode.
func (e *Engine) Tick() ReconcileStats {
	if e.rc == nil {
		e.dirty.Store(false)
		return ReconcileStats{}
	}
	e.reconciler.ApplyLoaded()
	if e.shellDirty.Swap(false) {
		e.rc.RebuildShell(e.store.Room(), e.backgroundURL())
	}
	if !e.dirty.Swap(false) {
		return ReconcileStats{}
	}
	return e.reconciler.Reconcile(e.store.Furniture(), e.store.SelectedID())
}

func (e *Engine) controller() *interact.Controller {
	if e.mode == Mode3D && e.ctrl3D != nil {
		return e.ctrl3D
	}
	return e.ctrl2D
}

func (e *Engine) PointerDown(p geom.Point) {
	if e.mode == Mode3D {
		// Picking must see the latest store state.
		e.Tick()
	}
	e.controller().PointerDown(p)
}

func (e *Engine) PointerMove(p geom.Point) { e.controller().PointerMove(p) }

func (e *Engine) PointerUp(p geom.Point) { e.controller().PointerUp(p) }

func (e *Engine) PointerLeave() { e.controller().PointerLeave() }

// Gesture reports the active controller's mode.
func (e *Engine) Gesture() interact.Mode { return e.controller().Mode() }

func (e *Engine) Nudge(n interact.Nudge) (bool, error) {
	return interact.ApplyNudge(e.store, n)
}

func (e *Engine) ZoomIn() float64 {
	defer e.requestFrame()
	return e.renderer.ZoomIn()
}

func (e *Engine) ZoomOut() float64 {
	defer e.requestFrame()
	return e.renderer.ZoomOut()
}

func (e *Engine) ResetZoom() float64 {
	defer e.requestFrame()
	return e.renderer.ResetZoom()
}

// ResetCamera returns the 3D camera to its default pose.
func (e *Engine) ResetCamera() {
	if e.rc != nil {
		e.rc.ResetCamera(e.store.Room())
		e.requestFrame()
	}
}

func (e *Engine) Viewport() geom.Viewport { return e.viewport }

func (e *Engine) Resize(vp geom.Viewport) {
	if !vp.Valid() {
		return
	}
	e.viewport = vp
	e.view2D.SetViewport(vp)
	if e.rc != nil {
		e.rc.Resize(vp)
	}
	e.requestFrame()
}

// Render draws the elevation at the current viewport and encodes it as PNG
// without waiting for images. The invalidate callback fires once they load.
func (e *Engine) Render() ([]byte, error) {
	return e.renderer.RenderPNG(canvas.FrameOf(e.store), e.viewport)
}

// Capture renders the elevation at the current viewport and encodes it as
// PNG, waiting for pending images until ctx is done.
func (e *Engine) Capture(ctx context.Context) ([]byte, error) {
	return e.PrepareCapture(geom.Viewport{})(ctx)
}

// PrepareCapture reads the current frame and returns a function that
// renders it at vp, or at the engine's viewport when vp is zero. The
// returned function does not touch the engine and may run after the
// caller has released it.
func (e *Engine) PrepareCapture(vp geom.Viewport) func(ctx context.Context) ([]byte, error) {
	if vp == (geom.Viewport{}) {
		vp = e.viewport
	}
	f := canvas.FrameOf(e.store)
	r := e.renderer
	return func(ctx context.Context) ([]byte, error) {
		return r.CapturePNG(ctx, f, vp)
	}
}

// Frame3D reconciles and returns the current 3D draw list.
func (e *Engine) Frame3D() (Frame3D, error) {
	if e.rc == nil {
		return Frame3D{}, ErrNot3D
	}
	e.Tick()
	return CompileFrame(e.rc), nil
}

// ResourceStats reports live 3D resources, or zero in 2D mode.
func (e *Engine) ResourceStats() scene.Stats {
	if e.rc == nil {
		return scene.Stats{}
	}
	return e.rc.Resources.Stats()
}

// Close tears down the 3D view and detaches from the store.
func (e *Engine) Close() {
	e.close3D()
	e.mode = Mode2D
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}
