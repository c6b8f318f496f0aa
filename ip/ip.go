// Package ip implements the inner-product engine: pixel images for
// states up to ImagesLevel are cached explicitly; above that level
// inner products are derived recursively from the transitions.
package ip

import (
	"gonum.org/v1/gonum/floats"

	"github.com/fiasco-codec/fiasco/wfa"
)

// Engine owns every per-state cache the matching-pursuit approximator
// reads: the cumulative pixel images up to ImagesLevel, the
// state-state inner products used above it, and the per-range
// image-state inner products refreshed as the subdivider descends.
//
// The caches are owned by a value the subdivider threads explicitly,
// never shared mutable globals, so one engine serves exactly one
// encoding pass.
type Engine struct {
	ImagesLevel  uint
	ProductsLevel uint

	// images[s] is state s's cumulative pixel image in bintree order, up
	// to ImagesLevel, populated once when s is appended.
	images [][]float64

	// statestate[s][level] holds <s,t> for every t <= s at level,
	// populated once when s is appended.
	statestate [][][]float64

	// imagestate[s] holds one product, <range-image, s> taken against
	// s's ImagesLevel image, recomputed per range by RefreshImageState.
	imagestate [][]float64

	// atLevel memoises ImageAtLevel: atLevel[s][level] is state s's
	// bintree-ordered pixel image evaluated at that resolution.
	atLevel []map[uint][]float64
}

// New builds an inner-product engine. imagesLevel bounds the explicit
// pixel-image cache; productsLevel is stored as ProductsLevel but bounds
// nothing: the per-range image-state cache holds one product per state
// whatever its value.
func New(imagesLevel, productsLevel uint) *Engine {
	return &Engine{ImagesLevel: imagesLevel, ProductsLevel: productsLevel}
}

// AppendState computes and caches state s's cumulative pixel image
// (by summing weighted children via w's edge lists, down to
// ImagesLevel) and its inner products against every earlier state at
// every level up to ImagesLevel.
func (e *Engine) AppendState(w *wfa.WFA, s int) {
	for len(e.images) <= s {
		e.images = append(e.images, nil)
		e.statestate = append(e.statestate, nil)
	}
	// Drop any memoised image a rolled-back state left under this id.
	if s < len(e.atLevel) {
		e.atLevel[s] = nil
	}

	e.images[s] = e.ImageAtLevel(w, s, e.ImagesLevel)

	levels := int(e.ImagesLevel) + 1
	row := make([][]float64, levels)
	for l := 0; l <= int(e.ImagesLevel); l++ {
		row[l] = make([]float64, s+1)
		for t := 0; t <= s; t++ {
			row[l][t] = e.ipStateStateAtLevel(w, s, t, uint(l))
		}
	}
	e.statestate[s] = row
}

// IPStateState returns <s,t> at level. At or below ImagesLevel it
// reads the cached pixel images directly; above it, it recurses one
// level down through s's transitions.
func (e *Engine) IPStateState(w *wfa.WFA, s, t int, level uint) float64 {
	if level <= e.ImagesLevel && s < len(e.statestate) && int(level) < len(e.statestate[s]) {
		row := e.statestate[s][level]
		if t < len(row) {
			return row[t]
		}
	}
	return e.ipStateStateAtLevel(w, s, t, level)
}

func (e *Engine) ipStateStateAtLevel(w *wfa.WFA, s, t int, level uint) float64 {
	if level <= e.ImagesLevel {
		return dotHalf(e.ImageAtLevel(w, s, level), e.ImageAtLevel(w, t, level))
	}
	var total float64
	ss := w.States[s]
	for label := 0; label < wfa.MaxLabels; label++ {
		c := ss.Children[label]
		if c.TreeChild != wfa.Range {
			total += e.IPStateState(w, c.TreeChild, t, level-1)
			continue
		}
		for _, edge := range c.Edges {
			total += edge.Weight * e.IPStateState(w, edge.Into, t, level-1)
		}
	}
	return total
}

func dotHalf(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return floats.Dot(a[:n], b[:n])
}

// RefreshImageState recomputes <rangeImage, s> for every state that has
// a cached image, as the subdivider descends into a new range. It keeps
// a single product per state, against s's ImagesLevel image; no products
// are kept per level, and ProductsLevel is not consulted.
func (e *Engine) RefreshImageState(w *wfa.WFA, rangeImage []float64) {
	n := w.NumStates()
	e.imagestate = make([][]float64, n)
	for s := 0; s < n; s++ {
		if e.images[s] == nil {
			continue
		}
		e.imagestate[s] = []float64{dotHalf(rangeImage, e.images[s])}
	}
}

// IPImageState returns <rangeImage, s> as cached by the most recent
// RefreshImageState call.
func (e *Engine) IPImageState(s int) float64 {
	if s < 0 || s >= len(e.imagestate) || e.imagestate[s] == nil {
		return 0
	}
	return e.imagestate[s][0]
}

// Image returns state s's cached cumulative pixel image at ImagesLevel
// (read-only).
func (e *Engine) Image(s int) []float64 {
	if s < 0 || s >= len(e.images) {
		return nil
	}
	return e.images[s]
}

// ImageAtLevel evaluates state s's image at the given bintree level (a
// buffer of 2^level samples in bintree order), memoised per
// (state,level). This is the automaton's multiresolution semantics: the
// level-0 image is the state's final distribution, and each higher
// level concatenates the weighted label-0 and label-1 child images one
// level down.
func (e *Engine) ImageAtLevel(w *wfa.WFA, s int, level uint) []float64 {
	for len(e.atLevel) <= s {
		e.atLevel = append(e.atLevel, nil)
	}
	if e.atLevel[s] == nil {
		e.atLevel[s] = make(map[uint][]float64)
	}
	if img, ok := e.atLevel[s][level]; ok {
		return img
	}

	n := 1 << level
	img := make([]float64, n)
	if level == 0 {
		img[0] = w.States[s].FinalDistribution
	} else {
		half := n / wfa.MaxLabels
		for label := 0; label < wfa.MaxLabels; label++ {
			c := w.States[s].Children[label]
			if c.TreeChild != wfa.Range {
				child := e.ImageAtLevel(w, c.TreeChild, level-1)
				copy(img[label*half:], child)
				continue
			}
			for _, edge := range c.Edges {
				child := e.ImageAtLevel(w, edge.Into, level-1)
				for i := 0; i < half; i++ {
					img[label*half+i] += edge.Weight * child[i]
				}
			}
		}
	}
	e.atLevel[s][level] = img
	return img
}

// InvalidateFrom drops every cache at or above state from, matching a
// wfa.RemoveStates rollback.
func (e *Engine) InvalidateFrom(from int) {
	if from < len(e.images) {
		e.images = e.images[:from]
		e.statestate = e.statestate[:from]
	}
	if from < len(e.atLevel) {
		e.atLevel = e.atLevel[:from]
	}
}
