package typeid

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

const (
	PrefixDesign     = "design"
	PrefixModel      = "model"
	PrefixBackground = "bg"
	PrefixAsset      = "asset"
)

func New(prefix string) string {
	id := typeid.MustGenerate(prefix)
	return id.String()
}

func NewDesignID() string     { return New(PrefixDesign) }
func NewModelID() string      { return New(PrefixModel) }
func NewBackgroundID() string { return New(PrefixBackground) }
func NewAssetID() string      { return New(PrefixAsset) }

func Validate(id, expectedPrefix string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid typeid %q: %w", id, err)
	}
	if parsed.Prefix() != expectedPrefix {
		return fmt.Errorf("expected prefix %q but got %q in id %q", expectedPrefix, parsed.Prefix(), id)
	}
	return nil
}
