// Package instrument holds the static catalog of psychometric instruments
// and the structural validation of raw answers against their item schemas.
package instrument

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownInstrument is returned when an instrument id is not registered.
	ErrUnknownInstrument = errors.New("unknown instrument")
	// ErrUnknownItem is returned when an item id is not declared by the instrument.
	ErrUnknownItem = errors.New("unknown item")
	// ErrInvalidResponse is the base error for malformed or out-of-range answers.
	ErrInvalidResponse = errors.New("invalid response")
)

// Kind describes the response shape an item expects.
type Kind string

const (
	// KindMostLeast expects a pair of categorical codes, "most like me" and
	// "least like me", which must differ (DISC).
	KindMostLeast Kind = "most-least"
	// KindCategorical expects exactly one code from the declared set.
	KindCategorical Kind = "categorical"
	// KindScale expects an integer inside the declared inclusive bounds.
	KindScale Kind = "scale"
	// KindBool expects a literal true or false.
	KindBool Kind = "bool"
)

// Item declares a single question of an instrument together with the
// metadata its scoring function needs.
type Item struct {
	ID    string   `json:"id"`
	Kind  Kind     `json:"kind"`
	Codes []string `json:"codes,omitempty"`
	Min   int      `json:"min,omitempty"`
	Max   int      `json:"max,omitempty"`

	// Dimension and Weight drive the weighted-sum instruments
	// (gardner, neo, pvq, swanson) and holland.
	Dimension string `json:"dimension,omitempty"`
	Weight    int    `json:"weight,omitempty"`

	// Axis and Poles drive mbti: Poles maps a code to the pole of the
	// axis it increments.
	Axis  string            `json:"axis,omitempty"`
	Poles map[string]string `json:"poles,omitempty"`

	// Subscale splits holland items into independent sub-scales.
	Subscale string `json:"subscale,omitempty"`
}

// Instrument is an immutable published test definition.
type Instrument struct {
	ID         string
	Name       string
	Dimensions []string
	items      []Item
	index      map[string]int
}

func newInstrument(id, name string, dimensions []string, items []Item) *Instrument {
	index := make(map[string]int, len(items))
	for i, item := range items {
		index[item.ID] = i
	}
	return &Instrument{
		ID:         id,
		Name:       name,
		Dimensions: dimensions,
		items:      items,
		index:      index,
	}
}

// Item returns the declaration for the given item id.
func (ins *Instrument) Item(id string) (Item, bool) {
	i, ok := ins.index[id]
	if !ok {
		return Item{}, false
	}
	return ins.items[i], true
}

// Items returns the declared items in publication order.
func (ins *Instrument) Items() []Item {
	out := make([]Item, len(ins.items))
	copy(out, ins.items)
	return out
}

// ItemIDs returns the required item ids in publication order.
func (ins *Instrument) ItemIDs() []string {
	ids := make([]string, len(ins.items))
	for i, item := range ins.items {
		ids[i] = item.ID
	}
	return ids
}

// Len returns the number of declared items.
func (ins *Instrument) Len() int { return len(ins.items) }

// Registry maps instrument ids to their published definitions. It is built
// once at startup and never mutated afterwards.
type Registry struct {
	instruments map[string]*Instrument
}

// NewRegistry returns a registry preloaded with the built-in catalog.
func NewRegistry() *Registry {
	r := &Registry{instruments: make(map[string]*Instrument)}
	for _, ins := range builtinCatalog() {
		r.instruments[ins.ID] = ins
	}
	return r
}

// Describe returns the instrument published under the given id.
func (r *Registry) Describe(id string) (*Instrument, error) {
	ins, ok := r.instruments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, id)
	}
	return ins, nil
}

// IDs returns the ids of all published instruments.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.instruments))
	for _, ins := range builtinCatalog() {
		if _, ok := r.instruments[ins.ID]; ok {
			ids = append(ids, ins.ID)
		}
	}
	return ids
}
