package engine

import (
	"context"

	"github.com/furnivision/furnivision/internal/design"
	"github.com/furnivision/furnivision/internal/scene"
)

// GeometryLoader resolves a model reference into a geometry tree whose
// resources are allocated from res.
type GeometryLoader interface {
	LoadGeometry(ctx context.Context, m design.FurnitureModel, res *scene.Resources) (*scene.Node, error)
}

// ModelSource looks up model references by ID.
type ModelSource interface {
	Model(id string) (design.FurnitureModel, bool)
}

// loadResult is delivered from a load goroutine back to the UI thread.
type loadResult struct {
	itemID     int
	modelID    string
	generation uint64
	node       *scene.Node
	err        error
}
