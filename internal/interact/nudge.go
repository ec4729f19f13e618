package interact

import (
	"fmt"
	"math"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/geom"
)

// Nudge is a discrete edit of the selected item.
type Nudge string

const (
	NudgeLeft      Nudge = "left"
	NudgeRight     Nudge = "right"
	NudgeForward   Nudge = "forward"
	NudgeBackward  Nudge = "backward"
	NudgeRotate    Nudge = "rotate"
	NudgeWider     Nudge = "wider"
	NudgeNarrower  Nudge = "narrower"
	NudgeTaller    Nudge = "taller"
	NudgeShorter   Nudge = "shorter"
	NudgeDeeper    Nudge = "deeper"
	NudgeShallower Nudge = "shallower"
)

const (
	nudgeStep   = 0.1
	resizeStep  = 0.05
	minItemSize = 0.2
)

// ApplyNudge edits the selected item in floor coordinates and clamps it to
// the room. It returns false when nothing is selected.
func ApplyNudge(store Store, n Nudge) (bool, error) {
	id := store.SelectedID()
	if id == 0 {
		return false, nil
	}
	item, ok := store.Item(id)
	if !ok || !item.Placed() {
		return false, nil
	}

	p := *item.Position
	switch n {
	case NudgeLeft:
		p.X -= nudgeStep
	case NudgeRight:
		p.X += nudgeStep
	case NudgeForward:
		p.Z -= nudgeStep
	case NudgeBackward:
		p.Z += nudgeStep
	case NudgeRotate:
		item.Rotation = geom.WrapAngle(item.Rotation + math.Pi/4)
	case NudgeWider:
		item.Width += resizeStep
	case NudgeNarrower:
		item.Width = math.Max(minItemSize, item.Width-resizeStep)
	case NudgeTaller:
		item.Height += resizeStep
	case NudgeShorter:
		item.Height = math.Max(minItemSize, item.Height-resizeStep)
	case NudgeDeeper:
		item.Depth += resizeStep
	case NudgeShallower:
		item.Depth = math.Max(minItemSize, item.Depth-resizeStep)
	default:
		return false, fmt.Errorf("unknown nudge %q: %w", n, design.ErrInvalidFurniture)
	}
	item.Position = &p

	item = geom.ClampFloor(store.Room(), item)
	if err := store.UpdateFurniture(item); err != nil {
		return false, err
	}
	return true, nil
}
