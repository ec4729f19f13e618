package engine

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
	"github.com/furnivision/furnivision/internal/scene"
)

// Light describes one scene light for the frontend renderer.
type Light struct {
	Kind       string     `json:"kind"`
	Color      uint32     `json:"color"`
	Intensity  float64    `json:"intensity"`
	Position   mgl64.Vec3 `json:"position,omitempty"`
	CastShadow bool       `json:"castShadow,omitempty"`
	ShadowMap  int        `json:"shadowMap,omitempty"`
}

const sceneBackground uint32 = 0xf0f0f0

// RenderContext owns everything the 3D view keeps alive between frames:
// the scene graph, the room shell, the camera and the gizmo. It is created
// when the 3D view opens and disposed when it closes.
type RenderContext struct {
	Graph     *scene.Graph
	Resources *scene.Resources
	Camera    geom.Camera
	Viewport  geom.Viewport
	Lights    []Light

	shell      *scene.Node
	gizmo      *Gizmo
	navigation bool

	generation atomic.Uint64
	disposed   atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewRenderContext(room design.Room, vp geom.Viewport, background string) *RenderContext {
	res := scene.NewResources()
	ctx, cancel := context.WithCancel(context.Background())
	rc := &RenderContext{
		Graph:      scene.NewGraph(res),
		Resources:  res,
		Camera:     geom.DefaultCamera(room, vp),
		Viewport:   vp,
		navigation: true,
		ctx:        ctx,
		cancel:     cancel,
	}
	rc.generation.Store(1)
	rc.gizmo = newGizmo(res)
	rc.RebuildShell(room, background)
	return rc
}

// Generation identifies the current lifetime of the context. Async results
// tagged with another generation are discarded.
func (rc *RenderContext) Generation() uint64 { return rc.generation.Load() }

func (rc *RenderContext) Disposed() bool { return rc.disposed.Load() }

// Context is cancelled when the render context is disposed.
func (rc *RenderContext) Context() context.Context { return rc.ctx }

func (rc *RenderContext) Gizmo() *Gizmo { return rc.gizmo }

func (rc *RenderContext) Shell() *scene.Node { return rc.shell }

func (rc *RenderContext) NavigationEnabled() bool { return rc.navigation }

func (rc *RenderContext) SetNavigationEnabled(enabled bool) { rc.navigation = enabled }

// Resize updates the viewport and the camera aspect.
func (rc *RenderContext) Resize(vp geom.Viewport) {
	if !vp.Valid() {
		return
	}
	rc.Viewport = vp
	rc.Camera.Aspect = vp.Aspect()
}

// ResetCamera points the camera back at the room from its default corner.
func (rc *RenderContext) ResetCamera(room design.Room) {
	rc.Camera = geom.DefaultCamera(room, rc.Viewport)
}

// RebuildShell replaces the floor, walls and lights for room. A non-empty
// background is used as the wall texture.
func (rc *RenderContext) RebuildShell(room design.Room, background string) {
	if rc.shell != nil {
		rc.shell.Dispose()
	}
	res := rc.Resources
	shell := scene.NewNode("room")

	floor := scene.NewMeshNode("floor",
		res.NewGeometry("plane", geom.CenteredBox(room.Width, 0, room.Length)),
		res.NewMaterial(room.FloorColor))
	floor.Position = mgl64.Vec3{room.Width / 2, 0, room.Length / 2}
	shell.Add(floor)

	wall := func(name string, width float64) *scene.Node {
		m := res.NewMaterial(room.WallColor)
		m.Texture = background
		return scene.NewMeshNode(name, res.NewGeometry("plane", geom.CenteredBox(width, room.Height, 0)), m)
	}
	back := wall("wall-back", room.Width)
	back.Position = mgl64.Vec3{room.Width / 2, room.Height / 2, 0}
	shell.Add(back)

	left := wall("wall-left", room.Length)
	left.Position = mgl64.Vec3{0, room.Height / 2, room.Length / 2}
	left.RotationY = math.Pi / 2
	shell.Add(left)

	rc.shell = shell
	rc.Lights = []Light{
		{Kind: "ambient", Color: 0xffffff, Intensity: 0.6},
		{
			Kind:       "directional",
			Color:      0xffffff,
			Intensity:  0.6,
			Position:   mgl64.Vec3{room.Width / 2, room.Height * 2, room.Length / 2},
			CastShadow: true,
			ShadowMap:  2048,
		},
	}
}

// Dispose releases every graphics resource and invalidates outstanding
// async work. It is safe to call more than once.
func (rc *RenderContext) Dispose() {
	if rc.disposed.Swap(true) {
		return
	}
	rc.generation.Add(1)
	rc.cancel()
	rc.Graph.Clear()
	if rc.shell != nil {
		rc.shell.Dispose()
		rc.shell = nil
	}
	rc.gizmo.dispose()
}
