package world

import (
	"slices"
	"strings"
	"sync"

	"cart-flipper/server/internal/correction"
)

// DefaultKind is the object kind the authority corrects.
const DefaultKind = "Cart"

// Classifier accepts objects whose name contains Kind or that carry Kind as a
// tag. Whether any object in the world carries the tag at all is checked once,
// on first use, and cached for the classifier's lifetime.
type Classifier struct {
	Kind  string
	World *World

	once   sync.Once
	tagged bool
}

// NewClassifier returns a classifier for kind backed by w.
func NewClassifier(w *World, kind string) *Classifier {
	if kind == "" {
		kind = DefaultKind
	}
	return &Classifier{Kind: kind, World: w}
}

// Correctable implements correction.Classifier.
func (c *Classifier) Correctable(obj correction.Object) bool {
	if obj == nil {
		return false
	}
	if strings.Contains(obj.Name(), c.Kind) {
		return true
	}
	return c.tagKnown() && slices.Contains(obj.Tags(), c.Kind)
}

func (c *Classifier) tagKnown() bool {
	c.once.Do(func() {
		if c.World == nil {
			return
		}
		for _, obj := range c.World.Objects() {
			if slices.Contains(obj.tags, c.Kind) {
				c.tagged = true
				return
			}
		}
	})
	return c.tagged
}

var _ correction.Classifier = (*Classifier)(nil)
