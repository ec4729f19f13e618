package design

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Template is a catalog entry that AddFurniture instantiates.
type Template struct {
	Type    string  `yaml:"type" json:"type"`
	Name    string  `yaml:"name" json:"name"`
	Width   float64 `yaml:"width" json:"width"`
	Depth   float64 `yaml:"depth" json:"depth"`
	Height  float64 `yaml:"height" json:"height"`
	Color   string  `yaml:"color" json:"color"`
	ModelID string  `yaml:"modelId,omitempty" json:"modelId,omitempty"`
}

type Catalog struct {
	Templates []Template `yaml:"templates" json:"templates"`
}

func DefaultCatalog() Catalog {
	return Catalog{Templates: []Template{
		{Type: "chair", Name: "Dining Chair", Width: 0.5, Depth: 0.5, Height: 0.9, Color: "#8B4513"},
		{Type: "chair", Name: "Armchair", Width: 0.8, Depth: 0.9, Height: 1.0, Color: "#A0522D"},
		{Type: "table", Name: "Dining Table", Width: 1.6, Depth: 0.9, Height: 0.75, Color: "#D2B48C"},
		{Type: "table", Name: "Coffee Table", Width: 1.2, Depth: 0.6, Height: 0.45, Color: "#DEB887"},
		{Type: "table", Name: "Side Table", Width: 0.5, Depth: 0.5, Height: 0.6, Color: "#F5DEB3"},
		{Type: "sofa", Name: "3-Seater Sofa", Width: 2.2, Depth: 0.95, Height: 0.9, Color: "#708090"},
	}}
}

// LoadCatalog reads a YAML catalog. An empty path yields the built-in one.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	for i, t := range c.Templates {
		if t.Width <= 0 || t.Depth <= 0 || t.Height <= 0 {
			return Catalog{}, fmt.Errorf("catalog entry %d (%s): %w", i, t.Name, ErrInvalidFurniture)
		}
	}
	return c, nil
}

// Find returns the first template with the given name.
func (c Catalog) Find(name string) (Template, bool) {
	for _, t := range c.Templates {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

// ByType returns the templates of one furniture type in catalog order.
func (c Catalog) ByType(typ string) []Template {
	var out []Template
	for _, t := range c.Templates {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}
