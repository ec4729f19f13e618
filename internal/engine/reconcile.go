package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
	"github.com/furnivision/furnivision/internal/scene"
)

const (
	selectedEmissive uint32 = 0x666666
	degenerateEps           = 1e-9
)

// itemState is what the reconciler remembers about one item's node.
type itemState struct {
	root *scene.Node
	body *scene.Node
	// applied is the item as last written to the node.
	applied design.Furniture
	// groundOffset lifts the node's origin so its lowest point rests on
	// the floor. It is computed once per geometry.
	groundOffset float64
	native       geom.Box3
	loaded       bool
	selected     bool
}

// ReconcileStats counts what a pass changed.
type ReconcileStats struct {
	Created int `json:"created"`
	Removed int `json:"removed"`
	Updated int `json:"updated"`
}

// Reconciler keeps a RenderContext's scene graph in step with the furniture
// list. All methods except the load goroutines run on the UI thread.
type Reconciler struct {
	rc     *RenderContext
	loader GeometryLoader
	models ModelSource
	logger *slog.Logger

	items    map[int]*itemState
	inflight map[int]context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	results  []loadResult
	closed   bool
	onResult func()
}

func NewReconciler(rc *RenderContext, loader GeometryLoader, models ModelSource, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		rc:       rc,
		loader:   loader,
		models:   models,
		logger:   logger,
		items:    make(map[int]*itemState),
		inflight: make(map[int]context.CancelFunc),
	}
}

// OnResult sets a callback fired from a load goroutine once its result is
// queued. Use it to schedule a follow-up ApplyLoaded.
func (r *Reconciler) OnResult(fn func()) {
	r.mu.Lock()
	r.onResult = fn
	r.mu.Unlock()
}

// Reconcile brings the scene in line with items. Calling it again with the
// same input is a no-op.
func (r *Reconciler) Reconcile(items []design.Furniture, selectedID int) ReconcileStats {
	var stats ReconcileStats
	if r.rc.Disposed() {
		return stats
	}

	present := make(map[int]bool, len(items))
	for _, it := range items {
		if it.Placed() {
			present[it.ID] = true
		}
	}

	// Removal runs before creation.
	for id := range r.items {
		if !present[id] {
			r.remove(id)
			stats.Removed++
		}
	}

	var selected *design.Furniture
	for _, it := range items {
		if !it.Placed() {
			continue
		}
		st, ok := r.items[it.ID]
		if ok && st.applied.ModelID != it.ModelID {
			r.remove(it.ID)
			stats.Removed++
			ok = false
		}
		if !ok {
			st = r.create(it)
			stats.Created++
		}
		if r.update(st, it, it.ID == selectedID) {
			stats.Updated++
		}
		if it.ID == selectedID {
			sel := it
			selected = &sel
		}
	}

	if selected != nil {
		r.rc.gizmo.Follow(*selected)
	} else {
		r.rc.gizmo.Hide()
	}
	return stats
}

// create inserts a placeholder box immediately and starts loading the
// item's model, if it has one.
func (r *Reconciler) create(it design.Furniture) *itemState {
	root := scene.NewNode("furniture")
	root.FurnitureID = it.ID
	st := &itemState{root: root}
	r.setPlaceholder(st, it)
	r.rc.Graph.Attach(root)
	r.items[it.ID] = st

	if it.ModelID != "" {
		r.requestLoad(it)
	}
	return st
}

func (r *Reconciler) setPlaceholder(st *itemState, it design.Furniture) {
	res := r.rc.Resources
	body := scene.NewMeshNode("placeholder", res.NewBox(it.Width, it.Height, it.Depth), res.NewMaterial(it.Color))
	r.swapBody(st, body)
	st.loaded = false
	st.native = geom.Box3{}
	st.groundOffset = it.Height / 2
}

func (r *Reconciler) swapBody(st *itemState, body *scene.Node) {
	if st.body != nil {
		st.root.Remove(st.body)
		st.body.Dispose()
	}
	st.body = body
	st.root.Add(body)
}

func (r *Reconciler) remove(id int) {
	if cancel, ok := r.inflight[id]; ok {
		cancel()
		delete(r.inflight, id)
	}
	st, ok := r.items[id]
	if !ok {
		return
	}
	delete(r.items, id)
	r.rc.Graph.Detach(id)
	st.root.Dispose()
}

// update writes transform, size, color and selection tint. It reports
// whether anything changed.
func (r *Reconciler) update(st *itemState, it design.Furniture, selected bool) bool {
	prev := st.applied
	first := prev.ID == 0
	changed := first

	if !first && (prev.Width != it.Width || prev.Height != it.Height || prev.Depth != it.Depth) {
		if st.loaded {
			r.fitLoaded(st, it)
		} else {
			r.setPlaceholder(st, it)
		}
		changed = true
	}

	if first || prev.Color != it.Color || st.selected != selected || changed {
		emissive := uint32(0)
		if selected {
			emissive = selectedEmissive
		}
		for _, m := range st.body.Materials() {
			m.Color = it.Color
			m.Emissive = emissive
		}
		if prev.Color != it.Color || st.selected != selected {
			changed = true
		}
		st.selected = selected
	}

	pos := mgl64.Vec3{it.Position.X, st.groundOffset, it.Position.Z}
	if st.root.Position != pos || st.root.RotationY != it.Rotation {
		st.root.Position = pos
		st.root.RotationY = it.Rotation
		changed = true
	}

	st.applied = it.Clone()
	return changed
}

func (r *Reconciler) requestLoad(it design.Furniture) {
	model, ok := r.models.Model(it.ModelID)
	if !ok {
		r.logger.Warn("model not found, keeping placeholder", "item", it.ID, "model", it.ModelID)
		return
	}
	if r.loader == nil {
		return
	}

	ctx, cancel := context.WithCancel(r.rc.Context())
	r.inflight[it.ID] = cancel
	gen := r.rc.Generation()
	res := r.rc.Resources

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		node, err := r.loader.LoadGeometry(ctx, model, res)

		r.mu.Lock()
		if r.closed || ctx.Err() != nil {
			r.mu.Unlock()
			if node != nil {
				node.Dispose()
			}
			return
		}
		r.results = append(r.results, loadResult{itemID: it.ID, modelID: model.ID, generation: gen, node: node, err: err})
		fn := r.onResult
		r.mu.Unlock()

		if fn != nil {
			fn()
		}
	}()
}

// ApplyLoaded installs every queued load result that still belongs to the
// current scene and returns how many were installed.
func (r *Reconciler) ApplyLoaded() int {
	r.mu.Lock()
	queued := r.results
	r.results = nil
	r.mu.Unlock()

	applied := 0
	for _, res := range queued {
		if r.apply(res) {
			applied++
		}
	}
	return applied
}

func (r *Reconciler) apply(res loadResult) bool {
	discard := func(reason string) bool {
		if res.node != nil {
			res.node.Dispose()
		}
		r.logger.Debug("discard load result", "item", res.itemID, "model", res.modelID, "reason", reason)
		return false
	}

	if r.rc.Disposed() || res.generation != r.rc.Generation() {
		return discard("stale generation")
	}
	st, ok := r.items[res.itemID]
	if !ok || st.applied.ModelID != res.modelID || st.loaded {
		return discard("item changed")
	}
	delete(r.inflight, res.itemID)

	if res.err != nil {
		r.logger.Warn("load geometry, keeping placeholder", "item", res.itemID, "model", res.modelID, "error", res.err)
		return discard("load failed")
	}
	if res.node == nil {
		return discard("empty geometry")
	}

	// Loaded materials are replaced by one tinted with the item color.
	mat := r.rc.Resources.NewMaterial(st.applied.Color)
	var originals []*scene.Material
	for _, n := range res.node.Meshes() {
		originals = append(originals, n.Mesh.Material)
		n.Mesh.Material = mat
	}
	for _, m := range originals {
		if m != mat {
			m.Dispose()
		}
	}

	scaler := scene.NewNode("model")
	scaler.Add(res.node)
	st.native = res.node.Bounds()
	r.swapBody(st, scaler)
	st.loaded = true
	r.fitLoaded(st, st.applied)

	it := st.applied
	selected := st.selected
	st.applied = design.Furniture{}
	st.selected = false
	r.update(st, it, selected)
	return true
}

// fitLoaded scales the loaded model to the item's nominal size and rests it
// on the floor, centred on the item's position.
func (r *Reconciler) fitLoaded(st *itemState, it design.Furniture) {
	scaler := st.body
	if st.native.Empty() || st.native.Degenerate(degenerateEps) {
		scaler.Scale = mgl64.Vec3{it.Width, it.Height, it.Depth}
		scaler.Position = mgl64.Vec3{}
		st.groundOffset = it.Height / 2
		return
	}
	size := st.native.Size()
	s := mgl64.Vec3{it.Width / size.X(), it.Height / size.Y(), it.Depth / size.Z()}
	c := st.native.Center()
	scaler.Scale = s
	scaler.Position = mgl64.Vec3{-c.X() * s.X(), 0, -c.Z() * s.Z()}
	st.groundOffset = -st.native.Min.Y() * s.Y()
}

// Node returns the root node for an item, for inspection.
func (r *Reconciler) Node(id int) (*scene.Node, bool) {
	st, ok := r.items[id]
	if !ok {
		return nil, false
	}
	return st.root, true
}

// Loaded reports whether item id shows its loaded model.
func (r *Reconciler) Loaded(id int) bool {
	st, ok := r.items[id]
	return ok && st.loaded
}

// Pending is the number of loads still in flight or queued.
func (r *Reconciler) Pending() int {
	return len(r.inflight)
}

// WaitIdle blocks until every load goroutine has finished.
func (r *Reconciler) WaitIdle() {
	r.wg.Wait()
}

// Close cancels outstanding loads and drops queued results without waiting
// for the load goroutines; a load finishing later disposes its own result.
// The render context is left for the caller to dispose.
func (r *Reconciler) Close() {
	for id, cancel := range r.inflight {
		cancel()
		delete(r.inflight, id)
	}

	r.mu.Lock()
	r.closed = true
	queued := r.results
	r.results = nil
	r.mu.Unlock()

	for _, res := range queued {
		if res.node != nil {
			res.node.Dispose()
		}
	}
}
