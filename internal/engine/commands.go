package engine

import (
	"encoding/json"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/furnivision/furnivision/internal/scene"
)

// DrawCommand is one mesh for the frontend to draw. Meshes are listed in
// tree order; depth testing handles overlap.
type DrawCommand struct {
	Op          string     `json:"op"`
	Name        string     `json:"name,omitempty"`
	FurnitureID int        `json:"furnitureId,omitempty"` // For hit correlation
	Geometry    string     `json:"geometry"`
	Matrix      []float64  `json:"matrix"` // column-major 4x4 world matrix
	Min         mgl64.Vec3 `json:"min"`
	Max         mgl64.Vec3 `json:"max"`
	Color       string     `json:"color,omitempty"`
	Emissive    uint32     `json:"emissive,omitempty"`
	Opacity     float64    `json:"opacity,omitempty"`
	Texture     string     `json:"texture,omitempty"`
}

// CameraState is the camera as the frontend needs it.
type CameraState struct {
	Position   mgl64.Vec3 `json:"position"`
	Target     mgl64.Vec3 `json:"target"`
	FovY       float64    `json:"fov"`
	Near       float64    `json:"near"`
	Far        float64    `json:"far"`
	Aspect     float64    `json:"aspect"`
	Navigation bool       `json:"navigation"`
}

// Frame3D is one complete 3D frame.
type Frame3D struct {
	Background uint32        `json:"background"`
	Camera     CameraState   `json:"camera"`
	Lights     []Light       `json:"lights"`
	Commands   []DrawCommand `json:"commands"`
}

// CompileFrame walks the room shell, the items and the gizmo.
func CompileFrame(rc *RenderContext) Frame3D {
	f := Frame3D{
		Background: sceneBackground,
		Camera: CameraState{
			Position:   rc.Camera.Position,
			Target:     rc.Camera.Target,
			FovY:       rc.Camera.FovY,
			Near:       rc.Camera.Near,
			Far:        rc.Camera.Far,
			Aspect:     rc.Camera.Aspect,
			Navigation: rc.navigation,
		},
		Lights: rc.Lights,
	}
	if rc.Disposed() {
		return f
	}
	if rc.shell != nil {
		compileNode(rc.shell, mgl64.Ident4(), 0, &f.Commands)
	}
	compileNode(rc.Graph.Root, mgl64.Ident4(), 0, &f.Commands)
	compileNode(rc.gizmo.node, mgl64.Ident4(), 0, &f.Commands)
	return f
}

// compileNode recursively emits draw commands for a node and its children.
func compileNode(n *scene.Node, parent mgl64.Mat4, owner int, out *[]DrawCommand) {
	if n == nil || !n.Visible {
		return
	}
	world := parent.Mul4(n.LocalMatrix())
	if n.FurnitureID != 0 {
		owner = n.FurnitureID
	}

	if n.Mesh != nil && n.Mesh.Geometry != nil {
		cmd := DrawCommand{
			Op:          "mesh",
			Name:        n.Name,
			FurnitureID: owner,
			Geometry:    n.Mesh.Geometry.Kind,
			Matrix:      world[:],
			Min:         n.Mesh.Geometry.Bounds.Min,
			Max:         n.Mesh.Geometry.Bounds.Max,
		}
		if m := n.Mesh.Material; m != nil {
			cmd.Color = m.Color
			cmd.Emissive = m.Emissive
			cmd.Opacity = m.Opacity
			cmd.Texture = m.Texture
		}
		*out = append(*out, cmd)
	}

	for _, c := range n.Children {
		compileNode(c, world, owner, out)
	}
}

// FrameToJSON serializes a frame.
func FrameToJSON(f Frame3D) (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "{}", err
	}
	return string(data), nil
}
