// Package predict implements the motion-compensated and nondeterministic
// (DC-residual) prediction alternatives: for P/B frames,
// forward/backward/interpolated motion search with half-pel refinement;
// for I frames, a DC-subtract residual. Both produce a residual image
// that the subdivider (package subdivide) feeds back into a recursive
// approximation call with delta=true.
//
// Block extraction itself is an external collaborator; this package
// calls it through the BlockExtractor function type rather than owning
// pixel-plane access.
package predict

import (
	"math"

	"github.com/fiasco-codec/fiasco/wfa"
)

// FrameBuffer is a decoded reference frame's single-band pixel plane,
// addressed by absolute (x,y).
type FrameBuffer struct {
	Pixels        []float64
	Width, Height int
}

func (f *FrameBuffer) At(x, y int) float64 {
	if x < 0 {
		x = 0
	}
	if x >= f.Width {
		x = f.Width - 1
	}
	if y < 0 {
		y = 0
	}
	if y >= f.Height {
		y = f.Height - 1
	}
	return f.Pixels[y*f.Width+x]
}

// BlockExtractor pulls a w*h block out of ref at displacement (dx,dy)
// in half-pel units (even values are full-pel), performing bilinear
// half-pel interpolation when needed. Block extraction stays outside
// the core: the CLI/encoder wires a concrete implementation in, tests
// use a synthetic one.
type BlockExtractor func(ref *FrameBuffer, x, y, w, h, dxHalf, dyHalf int) []float64

// DefaultExtractBlock is a reference BlockExtractor: bilinear half-pel
// interpolation, clamped at frame edges.
func DefaultExtractBlock(ref *FrameBuffer, x, y, w, h, dxHalf, dyHalf int) []float64 {
	out := make([]float64, w*h)
	fx, fy := float64(dxHalf)/2, float64(dyHalf)/2
	ix, iy := int(math.Floor(fx)), int(math.Floor(fy))
	ax, ay := fx-float64(ix), fy-float64(iy)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			sx, sy := x+i+ix, y+j+iy
			p00 := ref.At(sx, sy)
			p10 := ref.At(sx+1, sy)
			p01 := ref.At(sx, sy+1)
			p11 := ref.At(sx+1, sy+1)
			v := p00*(1-ax)*(1-ay) + p10*ax*(1-ay) + p01*(1-ax)*ay + p11*ax*ay
			out[j*w+i] = v
		}
	}
	return out
}

// SearchOptions bounds a motion search.
type SearchOptions struct {
	SearchRange int // integer-pel search window [-SearchRange,+SearchRange]^2
	HalfPixel   bool
	Price       float64
	LocalRange  int // bidirectional refinement window, 6 when unset
}

// MatchResult is the outcome of one directional (forward or backward)
// search: the chosen displacement, in half-pel units, its SSE against
// the target block, and the residual image itself.
type MatchResult struct {
	Dx, Dy   int // half-pel units
	SSE      float64
	Residual []float64
}

func sse(target, candidate []float64) float64 {
	var s float64
	for i := range target {
		d := target[i] - candidate[i]
		s += d * d
	}
	return s
}

func residual(target, candidate []float64) []float64 {
	out := make([]float64, len(target))
	for i := range target {
		out[i] = target[i] - candidate[i]
	}
	return out
}

// moveCost is the Lagrangian bit cost of coding (dx,dy) displacement via
// the fixed VLC table.
func moveCost(dx, dy int, price float64) float64 {
	return price * (mvBitsFor(dx) + mvBitsFor(dy))
}

// ExhaustiveSearch is the integer-pel P-frame motion search: every
// (dx,dy) in [-R,+R]^2 is tried against
// extract, cost = SSE + price*(xbits+ybits); the minimum is kept. If
// opts.HalfPixel, the 8 half-pel neighbours of the integer winner are
// then checked.
func ExhaustiveSearch(ref *FrameBuffer, extract BlockExtractor, target []float64, x, y, w, h int, opts SearchOptions) MatchResult {
	best := MatchResult{SSE: math.MaxFloat64}
	bestCost := math.MaxFloat64

	for dy := -opts.SearchRange; dy <= opts.SearchRange; dy++ {
		for dx := -opts.SearchRange; dx <= opts.SearchRange; dx++ {
			cand := extract(ref, x, y, w, h, dx*2, dy*2)
			s := sse(target, cand)
			cost := s + moveCost(dx, dy, opts.Price)
			if cost < bestCost {
				bestCost = cost
				best = MatchResult{Dx: dx * 2, Dy: dy * 2, SSE: s, Residual: residual(target, cand)}
			}
		}
	}

	if opts.HalfPixel {
		ix, iy := best.Dx, best.Dy
		for _, off := range [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}} {
			dxh, dyh := ix+off[0], iy+off[1]
			cand := extract(ref, x, y, w, h, dxh, dyh)
			s := sse(target, cand)
			cost := s + moveCost(dxh/2, dyh/2, opts.Price)
			if cost < bestCost {
				bestCost = cost
				best = MatchResult{Dx: dxh, Dy: dyh, SSE: s, Residual: residual(target, cand)}
			}
		}
	}

	return best
}

// localRefine redoes a narrow +-localRange search around (cx,cy)
// (half-pel units), used by the bidirectional alternative to re-optimise
// one direction after the other is fixed.
func localRefine(ref *FrameBuffer, extract BlockExtractor, target []float64, x, y, w, h, cx, cy, localRange int, price float64) MatchResult {
	best := MatchResult{SSE: math.MaxFloat64}
	bestCost := math.MaxFloat64
	for dy := cy - localRange; dy <= cy+localRange; dy++ {
		for dx := cx - localRange; dx <= cx+localRange; dx++ {
			cand := extract(ref, x, y, w, h, dx, dy)
			s := sse(target, cand)
			cost := s + moveCost(dx/2, dy/2, price)
			if cost < bestCost {
				bestCost = cost
				best = MatchResult{Dx: dx, Dy: dy, SSE: s, Residual: residual(target, cand)}
			}
		}
	}
	return best
}

// BFrameChoice is the outcome of the B-frame {FORWARD,BACKWARD,
// INTERPOLATED} selection, the mode-selection bit code:
// 000=FORWARD, 001=BACKWARD, 01=INTERPOLATED, 1=NONE (the last used only
// inside the MC-tree encoding, not returned here).
type BFrameChoice struct {
	MV       wfa.MV
	SSE      float64
	ModeBits float64
	Residual []float64
}

// modeBits mirrors the fixed mode-selection code lengths.
func modeBits(t wfa.MotionType) float64 {
	switch t {
	case wfa.MVForward:
		return 3
	case wfa.MVBackward:
		return 3
	case wfa.MVInterpolated:
		return 2
	default:
		return 1
	}
}

// SearchBFrame runs independent forward and backward searches, then
// tries bidirectional refinement via a local +-6 window around each
// independently chosen vector: alternative 1 keeps
// forward, re-searches backward; alternative 2 keeps backward,
// re-searches forward; the cheaper of the two is the interpolated
// candidate. The cheapest of {FORWARD, BACKWARD, INTERPOLATED} wins.
func SearchBFrame(past, future *FrameBuffer, extract BlockExtractor, target []float64, x, y, w, h int, opts SearchOptions) BFrameChoice {
	if opts.LocalRange == 0 {
		opts.LocalRange = 6
	}

	fwd := ExhaustiveSearch(past, extract, target, x, y, w, h, opts)
	bwd := ExhaustiveSearch(future, extract, target, x, y, w, h, opts)

	alt1Bwd := localRefine(future, extract, target, x, y, w, h, bwd.Dx, bwd.Dy, opts.LocalRange, opts.Price)
	alt2Fwd := localRefine(past, extract, target, x, y, w, h, fwd.Dx, fwd.Dy, opts.LocalRange, opts.Price)

	interp1 := interpolate(past, future, extract, x, y, w, h, fwd.Dx, fwd.Dy, alt1Bwd.Dx, alt1Bwd.Dy, target)
	interp2 := interpolate(past, future, extract, x, y, w, h, alt2Fwd.Dx, alt2Fwd.Dy, bwd.Dx, bwd.Dy, target)

	interp := interp1
	if interp2.sse < interp1.sse {
		interp = interp2
	}

	candidates := []struct {
		t    wfa.MotionType
		sse  float64
		mv   wfa.MV
		res  []float64
	}{
		{wfa.MVForward, fwd.SSE, wfa.MV{Type: wfa.MVForward, FDx: fwd.Dx, FDy: fwd.Dy}, fwd.Residual},
		{wfa.MVBackward, bwd.SSE, wfa.MV{Type: wfa.MVBackward, BDx: bwd.Dx, BDy: bwd.Dy}, bwd.Residual},
		{wfa.MVInterpolated, interp.sse, wfa.MV{Type: wfa.MVInterpolated, FDx: interp.fdx, FDy: interp.fdy, BDx: interp.bdx, BDy: interp.bdy}, interp.residual},
	}

	bestIdx := 0
	bestCost := math.MaxFloat64
	for i, c := range candidates {
		// Coordinate bits are already folded into each directional
		// search's cost; only the mode-selection bits are added here.
		cost := c.sse + opts.Price*modeBits(c.t)
		if cost < bestCost {
			bestCost = cost
			bestIdx = i
		}
	}

	chosen := candidates[bestIdx]
	return BFrameChoice{MV: chosen.mv, SSE: chosen.sse, ModeBits: modeBits(chosen.t), Residual: chosen.res}
}

type interpResult struct {
	sse                  float64
	fdx, fdy, bdx, bdy   int
	residual             []float64
}

func interpolate(past, future *FrameBuffer, extract BlockExtractor, x, y, w, h, fdx, fdy, bdx, bdy int, target []float64) interpResult {
	f := extract(past, x, y, w, h, fdx, fdy)
	b := extract(future, x, y, w, h, bdx, bdy)
	avg := make([]float64, len(target))
	for i := range avg {
		avg[i] = (f[i] + b[i]) / 2
	}
	return interpResult{sse: sse(target, avg), fdx: fdx, fdy: fdy, bdx: bdx, bdy: bdy, residual: residual(target, avg)}
}

// NormsTable accumulates forward-motion block norms bottom-up: at the
// smallest bintree level it is populated directly via block extraction
// and SSE; at larger levels it is the sum of the child-level tables at
// the same displacement.
type NormsTable struct {
	levels map[uint]map[[2]int]float64
}

func NewNormsTable() *NormsTable { return &NormsTable{levels: make(map[uint]map[[2]int]float64)} }

func (n *NormsTable) Set(level uint, dx, dy int, v float64) {
	m, ok := n.levels[level]
	if !ok {
		m = make(map[[2]int]float64)
		n.levels[level] = m
	}
	m[[2]int{dx, dy}] = v
}

func (n *NormsTable) Get(level uint, dx, dy int) float64 {
	return n.levels[level][[2]int{dx, dy}]
}

// AccumulateFromChildren sums the same-displacement child-level
// entries into level's table, building larger blocks' norms bottom-up.
func (n *NormsTable) AccumulateFromChildren(level uint, childLevels []uint, dx, dy int) {
	var sum float64
	for _, cl := range childLevels {
		sum += n.Get(cl, dx, dy)
	}
	n.Set(level, dx, dy, sum)
}
