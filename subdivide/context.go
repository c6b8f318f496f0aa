// Package subdivide implements the recursive bintree subdivider: for
// every range, it evaluates linear-combination approximation, further
// subdivision, and motion-compensated/nondeterministic prediction, and
// commits whichever alternative has minimum rate-distortion cost,
// threading a shared coding context through the recursion with
// duplicate-on-entry / commit-or-rollback probability-model
// discipline.
package subdivide

import (
	"github.com/fiasco-codec/fiasco/ip"
	"github.com/fiasco-codec/fiasco/predict"
	"github.com/fiasco-codec/fiasco/prob"
	"github.com/fiasco-codec/fiasco/rpf"
	"github.com/fiasco-codec/fiasco/wfa"
)

// FrameType distinguishes intra, predicted and bidirectional frames.
type FrameType int

const (
	FrameI FrameType = iota
	FrameP
	FrameB
)

// Options collects the per-frame encoder knobs.
type Options struct {
	MaxEdges          int
	LCMinLevel        uint
	LCMaxLevel        uint
	PMinLevel         uint
	PMaxLevel         uint
	Price             float64
	MaxCosts          float64
	FullSearch        bool
	SecondDomainBlock bool
	CheckUnderflow    bool
	CheckOverflow     bool
	Prediction        bool
	FrameType         FrameType
	RPFNormal         rpf.RPF
	RPFDC             rpf.RPF
	RPFDelta          rpf.RPF
	RPFDeltaDC        rpf.RPF
	SearchRange       int
	HalfPixel         bool
}

// Models bundles the mutable, duplicate-on-entry probability state the
// subdivider threads through the recursion.
type Models struct {
	Tree          *prob.TreeModel
	PredictedTree *prob.TreeModel
	NormalPool    prob.DomainPool
	DeltaPool     prob.DomainPool
	NormalCoeff   prob.CoeffModel
	DeltaCoeff    prob.CoeffModel
}

// Duplicate deep-copies every model, so a losing alternative's updates
// can be discarded without touching the winning branch's state.
func (m Models) Duplicate() Models {
	return Models{
		Tree:          m.Tree.Duplicate(),
		PredictedTree: m.PredictedTree.Duplicate(),
		NormalPool:    m.NormalPool.Duplicate(),
		DeltaPool:     m.DeltaPool.Duplicate(),
		NormalCoeff:   m.NormalCoeff.Duplicate(),
		DeltaCoeff:    m.DeltaCoeff.Duplicate(),
	}
}

// Context is the coding context `C`: everything the
// subdivider and its callees (mp, predict) need that is not local to one
// range.
type Context struct {
	// Tiling is applied by the frame driver as a pixel-plane permutation
	// before the root range is entered, so the recursion itself only
	// ever sees the already-permuted plane.
	Engine  *ip.Engine
	WFA     *wfa.WFA
	Models  Models
	Options Options

	RootWidth, RootHeight int
	Band                  int // 0=luma/grey, 1=Cb, 2=Cr

	PastRef, FutureRef *predict.FrameBuffer
	ExtractBlock       predict.BlockExtractor

	// pixels is the current band's full-resolution pixel plane, used to
	// build a range's bintree-ordered pixel buffer on demand.
	pixels        []float64
	pixelsW       int
	pixelsH       int
}

// NewContext builds a subdivider context over one band's pixel plane.
func NewContext(eng *ip.Engine, w *wfa.WFA, models Models, opts Options, pixels []float64, width, height int) *Context {
	return &Context{
		Engine: eng, WFA: w, Models: models, Options: opts,
		RootWidth: width, RootHeight: height,
		pixels: pixels, pixelsW: width, pixelsH: height,
		ExtractBlock: predict.DefaultExtractBlock,
	}
}

// usableStates returns how many states currently exist, bounding the
// domain-pool candidate scan.
func (c *Context) usableStates() int { return c.WFA.NumStates() }
