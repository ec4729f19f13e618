//go:build js && wasm

package main

import (
	"encoding/json"
	"log/slog"
	"syscall/js"

	"github.com/furnivision/furnivision/internal/asset"
	"github.com/furnivision/furnivision/internal/canvas"
	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/engine"
	"github.com/furnivision/furnivision/internal/geom"
	"github.com/furnivision/furnivision/internal/interact"
)

var (
	eng     *engine.Engine
	catalog = design.DefaultCatalog()
)

func main() {
	resolver := asset.NewResolver("", slog.Default())
	// Remote fetches run in the browser here, under its own origin rules.
	resolver.AllowRemote("*")
	var err error
	eng, err = engine.New(design.NewStore(), engine.Loaders{Geometry: resolver, Images: resolver}, engine.Config{
		Canvas:   canvas.DefaultOptions(),
		Viewport: geom.Viewport{Width: 1200, Height: 800},
	})
	if err != nil {
		panic(err)
	}

	// Create the engine API object
	api := js.Global().Get("Object").New()

	// --- Commands (frontend → engine) ---
	api.Set("loadDesign", js.FuncOf(loadDesign))
	api.Set("updateRoom", js.FuncOf(updateRoom))
	api.Set("addFurniture", js.FuncOf(addFurniture))
	api.Set("updateFurniture", js.FuncOf(updateFurniture))
	api.Set("removeFurniture", js.FuncOf(removeFurniture))
	api.Set("select", js.FuncOf(selectItem))
	api.Set("addBackground", js.FuncOf(addBackground))
	api.Set("setActiveBackground", js.FuncOf(setActiveBackground))
	api.Set("registerModel", js.FuncOf(registerModel))
	api.Set("setMode", js.FuncOf(setMode))
	api.Set("resize", js.FuncOf(resize))
	api.Set("pointerDown", js.FuncOf(pointer(eng.PointerDown)))
	api.Set("pointerMove", js.FuncOf(pointer(eng.PointerMove)))
	api.Set("pointerUp", js.FuncOf(pointer(eng.PointerUp)))
	api.Set("pointerLeave", js.FuncOf(pointerLeave))
	api.Set("nudge", js.FuncOf(nudge))
	api.Set("zoomIn", js.FuncOf(func(js.Value, []js.Value) interface{} { return js.ValueOf(eng.ZoomIn()) }))
	api.Set("zoomOut", js.FuncOf(func(js.Value, []js.Value) interface{} { return js.ValueOf(eng.ZoomOut()) }))
	api.Set("resetZoom", js.FuncOf(func(js.Value, []js.Value) interface{} { return js.ValueOf(eng.ResetZoom()) }))
	api.Set("resetCamera", js.FuncOf(resetCamera))
	api.Set("tick", js.FuncOf(tick))
	api.Set("onInvalidate", js.FuncOf(onInvalidate))
	api.Set("onChange", js.FuncOf(onChange))

	// --- Queries (frontend ← engine) ---
	api.Set("render", js.FuncOf(render))
	api.Set("getFrame3D", js.FuncOf(getFrame3D))
	api.Set("getState", js.FuncOf(getState))
	api.Set("snapshot", js.FuncOf(snapshot))
	api.Set("getCatalog", js.FuncOf(getCatalog))
	api.Set("getGesture", js.FuncOf(func(js.Value, []js.Value) interface{} { return js.ValueOf(eng.Gesture().String()) }))

	js.Global().Set("furnivisionEngine", api)
	js.Global().Set("furnivisionWasmReady", js.ValueOf(true))

	// Keep Go runtime alive
	select {}
}

func ok() interface{} {
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func fail(err error) interface{} {
	return js.ValueOf(map[string]interface{}{"error": err.Error()})
}

func missing(what string) interface{} {
	return js.ValueOf(map[string]interface{}{"error": "missing " + what})
}

func decodeArg(args []js.Value, v any) error {
	return json.Unmarshal([]byte(args[0].String()), v)
}

func toJSON(v any) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return fail(err)
	}
	return js.ValueOf(string(data))
}

// --- Command Handlers ---

func loadDesign(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("design JSON")
	}
	var d design.Design
	if err := decodeArg(args, &d); err != nil {
		return fail(err)
	}
	if err := eng.Store().Load(d); err != nil {
		return fail(err)
	}
	return ok()
}

func updateRoom(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("room patch JSON")
	}
	var p design.RoomPatch
	if err := decodeArg(args, &p); err != nil {
		return fail(err)
	}
	if err := eng.Store().UpdateRoom(p); err != nil {
		return fail(err)
	}
	return ok()
}

// addFurniture takes a catalog name or a template JSON object.
func addFurniture(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("template")
	}
	t, found := catalog.Find(args[0].String())
	if !found {
		if err := decodeArg(args, &t); err != nil {
			return fail(err)
		}
	}
	item, err := eng.Store().AddFurniture(t)
	if err != nil {
		return fail(err)
	}
	return js.ValueOf(item.ID)
}

func updateFurniture(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("furniture JSON")
	}
	var f design.Furniture
	if err := decodeArg(args, &f); err != nil {
		return fail(err)
	}
	if err := eng.Store().UpdateFurniture(f); err != nil {
		return fail(err)
	}
	return ok()
}

func removeFurniture(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("furniture id")
	}
	if err := eng.Store().RemoveFurniture(args[0].Int()); err != nil {
		return fail(err)
	}
	return ok()
}

func selectItem(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].IsNull() || args[0].IsUndefined() || args[0].Int() == 0 {
		eng.Store().ClearSelection()
		return ok()
	}
	if err := eng.Store().Select(args[0].Int()); err != nil {
		return fail(err)
	}
	return ok()
}

func addBackground(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("background JSON")
	}
	var bg design.BackgroundImage
	if err := decodeArg(args, &bg); err != nil {
		return fail(err)
	}
	eng.Store().AddBackground(bg)
	return ok()
}

func setActiveBackground(this js.Value, args []js.Value) interface{} {
	id := ""
	if len(args) > 0 && args[0].Type() == js.TypeString {
		id = args[0].String()
	}
	if err := eng.Store().SetActiveBackground(id); err != nil {
		return fail(err)
	}
	return ok()
}

func registerModel(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("model JSON")
	}
	var m design.FurnitureModel
	if err := decodeArg(args, &m); err != nil {
		return fail(err)
	}
	eng.Store().RegisterModel(m)
	return ok()
}

func setMode(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("mode")
	}
	if err := eng.SetMode(engine.Mode(args[0].String())); err != nil {
		return fail(err)
	}
	return ok()
}

func resize(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return missing("width and height")
	}
	eng.Resize(geom.Viewport{Width: args[0].Float(), Height: args[1].Float()})
	return nil
}

func pointer(fn func(geom.Point)) func(js.Value, []js.Value) interface{} {
	return func(this js.Value, args []js.Value) interface{} {
		if len(args) < 2 {
			return nil
		}
		fn(geom.Point{X: args[0].Float(), Y: args[1].Float()})
		return js.ValueOf(eng.Gesture().String())
	}
}

func pointerLeave(this js.Value, args []js.Value) interface{} {
	eng.PointerLeave()
	return js.ValueOf(eng.Gesture().String())
}

func nudge(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return missing("nudge")
	}
	applied, err := eng.Nudge(interact.Nudge(args[0].String()))
	if err != nil {
		return fail(err)
	}
	return js.ValueOf(applied)
}

func resetCamera(this js.Value, args []js.Value) interface{} {
	eng.ResetCamera()
	return nil
}

func tick(this js.Value, args []js.Value) interface{} {
	return toJSON(eng.Tick())
}

// onInvalidate registers a JS callback fired when a redraw is due.
func onInvalidate(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeFunction {
		eng.OnInvalidate(nil)
		return nil
	}
	cb := args[0]
	eng.OnInvalidate(func() { cb.Invoke() })
	return nil
}

// onChange registers a JS callback receiving each store change as JSON.
// It returns a function that removes the subscription.
func onChange(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeFunction {
		return missing("callback")
	}
	cb := args[0]
	unsubscribe := eng.Store().Subscribe(func(c design.Change) {
		data, _ := json.Marshal(c)
		cb.Invoke(string(data))
	})
	var release js.Func
	release = js.FuncOf(func(js.Value, []js.Value) interface{} {
		unsubscribe()
		release.Release()
		return nil
	})
	return release
}

// --- Query Handlers ---

// render returns the 2D elevation as PNG bytes in a Uint8Array. Images that
// are still loading are drawn as their fallback; onInvalidate fires when
// they land.
func render(this js.Value, args []js.Value) interface{} {
	png, err := eng.Render()
	if err != nil {
		return fail(err)
	}
	out := js.Global().Get("Uint8Array").New(len(png))
	js.CopyBytesToJS(out, png)
	return out
}

func getFrame3D(this js.Value, args []js.Value) interface{} {
	f, err := eng.Frame3D()
	if err != nil {
		return fail(err)
	}
	s, err := engine.FrameToJSON(f)
	if err != nil {
		return fail(err)
	}
	return js.ValueOf(s)
}

type state struct {
	Revision    uint64                   `json:"revision"`
	Room        design.Room              `json:"room"`
	Furniture   []design.Furniture       `json:"furniture"`
	SelectedID  int                      `json:"selectedId,omitempty"`
	Backgrounds []design.BackgroundImage `json:"backgrounds"`
	Models      []design.FurnitureModel  `json:"models"`
	Mode        engine.Mode              `json:"mode"`
	Zoom        float64                  `json:"zoom"`
}

func getState(this js.Value, args []js.Value) interface{} {
	s := eng.Store()
	return toJSON(state{
		Revision:    s.Revision(),
		Room:        s.Room(),
		Furniture:   s.Furniture(),
		SelectedID:  s.SelectedID(),
		Backgrounds: s.Backgrounds(),
		Models:      s.Models(),
		Mode:        eng.Mode(),
		Zoom:        eng.Renderer().Zoom(),
	})
}

func snapshot(this js.Value, args []js.Value) interface{} {
	id, name := "", "Untitled"
	if len(args) > 0 && args[0].Type() == js.TypeString {
		id = args[0].String()
	}
	if len(args) > 1 && args[1].Type() == js.TypeString {
		name = args[1].String()
	}
	return toJSON(eng.Store().Snapshot(id, name))
}

func getCatalog(this js.Value, args []js.Value) interface{} {
	return toJSON(catalog)
}
