// Package mp implements the matching-pursuit range approximator:
// Gram-Schmidt orthogonalisation over a filtered domain set, quantized
// weights, and rate-distortion selection of up to K domain states.
// All scratch state lives in a Workspace value owned by one
// Approximate call.
package mp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/fiasco-codec/fiasco/ip"
	"github.com/fiasco-codec/fiasco/prob"
	"github.com/fiasco-codec/fiasco/rpf"
	"github.com/fiasco-codec/fiasco/wfa"
)

// MaxCosts signals an unapproximable (or over-budget) branch: the
// subdivider treats it as "take another alternative".
const MaxCosts = math.MaxFloat64

// minNorm excludes domains whose self-inner-product per pixel is too
// small to contribute meaningfully.
const minNorm = 2e-3

// Target is the pixel data a range presents to the approximator: its
// bintree-ordered pixel buffer at the level being coded, plus the
// cross-band luma state (wfa.Range if this range has no chroma partner).
type Target struct {
	Pixels []float64
	Level  uint
	YState int
}

// Result is the committed (or rejected) outcome of one Approximate call.
type Result struct {
	OK          bool
	Domains     []int // chosen domain state ids, ascending
	WeightCodes []int // RPF codes, one per domain, same order
	Weights     []float64
	Error       float64 // ||R - approximation||^2
	MatrixBits  float64
	WeightsBits float64
	TotalCost   float64
}

// Workspace holds the scratch buffers one Approximate call needs,
// sized lazily to the candidate domain count: state local to one
// invocation, never shared across calls.
type Workspace struct {
	ortho    [][]float64 // orthogonal vectors produced so far, one per committed edge
	orthoNrm []float64   // ||o_i||^2
	used     map[int]bool
}

// NewWorkspace returns an empty workspace ready for one Approximate call.
func NewWorkspace() *Workspace {
	return &Workspace{used: make(map[int]bool)}
}

// Approximate runs the greedy matching-pursuit search against target,
// choosing up to maxEdges domains from
// pool's candidate list to minimise (bits*price + error).
func Approximate(
	eng *ip.Engine,
	w *wfa.WFA,
	target Target,
	pool prob.DomainPool,
	coeff prob.CoeffModel,
	rpfNormal, rpfDC rpf.RPF,
	price float64,
	maxEdges int,
	exclude []int,
	fullSearch bool,
	usableStates int,
) Result {
	ws := NewWorkspace()
	for _, d := range exclude {
		ws.used[d] = true
	}

	domains := pool.Generate(target.Level, target.YState, usableStates)
	candidates := make([]int, 0, len(domains))
	for _, d := range domains {
		if d == prob.NoEdge {
			break
		}
		if ws.used[d] {
			continue
		}
		selfIP := eng.IPStateState(w, d, d, target.Level)
		if selfIP/float64(max1(len(target.Pixels))) < minNorm {
			ws.used[d] = true
			continue
		}
		candidates = append(candidates, d)
	}

	// The zero-edge approximation is itself a valid candidate: error = ||R||^2, cost = matrix bits for choosing no
	// domain at all. A zero residual range commits exactly this way.
	rangeNorm := floats.Dot(target.Pixels, target.Pixels)
	emptyBits := pool.Bits(domains, []int{prob.NoEdge}, target.Level, target.YState)
	best := Result{
		OK:         true,
		Error:      rangeNorm,
		MatrixBits: emptyBits,
		TotalCost:  emptyBits*price + rangeNorm,
	}

	chosen := make([]int, 0, maxEdges)
	for len(chosen) < maxEdges {
		bestDelta := -1.0
		bestDomain := -1
		var bestOrtho []float64
		var bestOrthoNrm float64

		for _, d := range candidates {
			if ws.used[d] {
				continue
			}
			img := eng.ImageAtLevel(w, d, target.Level)
			o := orthogonalize(img, ws.ortho, ws.orthoNrm)
			nrm := floats.Dot(o, o)
			if nrm < minNorm {
				continue
			}
			proj := dotPrefix(target.Pixels, o)
			delta := proj * proj / nrm
			if delta > bestDelta {
				bestDelta = delta
				bestDomain = d
				bestOrtho = o
				bestOrthoNrm = nrm
			}
		}

		if bestDomain < 0 {
			break
		}

		trialChosen := append(append([]int(nil), chosen...), bestDomain)
		trialOrtho := append(append([][]float64(nil), ws.ortho...), bestOrtho)
		trialOrthoNrm := append(append([]float64(nil), ws.orthoNrm...), bestOrthoNrm)

		weights, codes, residErr := solveAndQuantize(eng, w, target.Level, target.Pixels, trialChosen, trialOrtho, trialOrthoNrm, rpfNormal, rpfDC)

		usedSlice := append([]int(nil), trialChosen...)
		matrixBits := pool.Bits(domains, usedSlice, target.Level, target.YState)
		var weightsBits float64
		for i, code := range codes {
			dc := trialChosen[i] == 0
			weightsBits += coeff.Bits(code, target.Level, dc)
		}
		totalCost := (matrixBits+weightsBits)*price + residErr

		if totalCost >= best.TotalCost {
			break
		}

		chosen = trialChosen
		ws.ortho = trialOrtho
		ws.orthoNrm = trialOrthoNrm
		ws.used[bestDomain] = true

		best = Result{
			OK:          true,
			Domains:     append([]int(nil), chosen...),
			WeightCodes: codes,
			Weights:     weights,
			Error:       residErr,
			MatrixBits:  matrixBits,
			WeightsBits: weightsBits,
			TotalCost:   totalCost,
		}

		if !fullSearch && len(chosen) > 1 && best.Error > rangeNorm*0.999 {
			break
		}
	}

	// Report the chosen domains in ascending state order, the order a WFA
	// label keeps its transitions in; codes and weights follow them.
	idx := make([]int, len(best.Domains))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return best.Domains[idx[a]] < best.Domains[idx[b]] })
	sortedDomains, sortedCodes, sortedWeights := make([]int, len(idx)), make([]int, len(idx)), make([]float64, len(idx))
	for i, j := range idx {
		sortedDomains[i], sortedCodes[i], sortedWeights[i] = best.Domains[j], best.WeightCodes[j], best.Weights[j]
	}
	best.Domains, best.WeightCodes, best.Weights = sortedDomains, sortedCodes, sortedWeights
	return best
}

// RetryExcluding drops dropDomain from the committed result's domain set
// and re-runs Approximate; it is the primitive behind the targeted
// retries (drop the cheapest domain; drop an underflowed or saturated
// coefficient's domain). It is kept by the caller only if strictly cheaper.
func RetryExcluding(
	eng *ip.Engine,
	w *wfa.WFA,
	target Target,
	pool prob.DomainPool,
	coeff prob.CoeffModel,
	rpfNormal, rpfDC rpf.RPF,
	price float64,
	maxEdges int,
	exclude []int,
	dropDomain int,
	fullSearch bool,
	usableStates int,
) Result {
	ex := append(append([]int(nil), exclude...), dropDomain)
	return Approximate(eng, w, target, pool, coeff, rpfNormal, rpfDC, price, maxEdges, ex, fullSearch, usableStates)
}

// RetryOptions gates the targeted post-passes: each pass
// re-runs the search with one domain excluded and is kept only if the
// total cost strictly improves.
type RetryOptions struct {
	// SecondDomainBlock excludes the single cheapest chosen domain and
	// re-runs once.
	SecondDomainBlock bool
	// CheckUnderflow re-runs with the domain of any coefficient that
	// quantised to zero excluded, repeating until stable.
	CheckUnderflow bool
	// CheckOverflow does the same for coefficients that saturated to the
	// RPF's representable maximum.
	CheckOverflow bool
}

// ApproximateWithRetries runs Approximate and then the targeted
// post-passes in order: second-domain exclusion, underflow retries,
// overflow retries. A retry replaces the committed result only when its
// total cost is strictly lower.
func ApproximateWithRetries(
	eng *ip.Engine,
	w *wfa.WFA,
	target Target,
	pool prob.DomainPool,
	coeff prob.CoeffModel,
	rpfNormal, rpfDC rpf.RPF,
	price float64,
	maxEdges int,
	exclude []int,
	fullSearch bool,
	usableStates int,
	retry RetryOptions,
) Result {
	best := Approximate(eng, w, target, pool, coeff, rpfNormal, rpfDC, price, maxEdges, exclude, fullSearch, usableStates)
	if !best.OK {
		return best
	}

	if retry.SecondDomainBlock && len(best.Domains) > 0 {
		cheapest := cheapestDomain(best, coeff, target.Level)
		r := RetryExcluding(eng, w, target, pool, coeff, rpfNormal, rpfDC, price, maxEdges, exclude, cheapest, fullSearch, usableStates)
		if r.OK && r.TotalCost < best.TotalCost {
			best = r
		}
	}

	if retry.CheckUnderflow {
		best = retryCodes(eng, w, target, pool, coeff, rpfNormal, rpfDC, price, maxEdges, exclude, fullSearch, usableStates, best,
			func(code int, r rpf.RPF) bool { return Underflowed(code) })
	}
	if retry.CheckOverflow {
		best = retryCodes(eng, w, target, pool, coeff, rpfNormal, rpfDC, price, maxEdges, exclude, fullSearch, usableStates, best,
			Saturated)
	}
	return best
}

// retryCodes repeatedly excludes the domain of the first coefficient
// matching bad and re-runs, until no coefficient matches or a retry fails
// to improve.
func retryCodes(
	eng *ip.Engine,
	w *wfa.WFA,
	target Target,
	pool prob.DomainPool,
	coeff prob.CoeffModel,
	rpfNormal, rpfDC rpf.RPF,
	price float64,
	maxEdges int,
	exclude []int,
	fullSearch bool,
	usableStates int,
	best Result,
	bad func(code int, r rpf.RPF) bool,
) Result {
	ex := append([]int(nil), exclude...)
	for {
		drop := -1
		for i, code := range best.WeightCodes {
			r := rpfNormal
			if best.Domains[i] == 0 {
				r = rpfDC
			}
			if bad(code, r) {
				drop = best.Domains[i]
				break
			}
		}
		if drop < 0 {
			return best
		}
		ex = append(ex, drop)
		r := Approximate(eng, w, target, pool, coeff, rpfNormal, rpfDC, price, maxEdges, ex, fullSearch, usableStates)
		if !r.OK || r.TotalCost >= best.TotalCost {
			return best
		}
		best = r
	}
}

// cheapestDomain picks the chosen domain whose coefficient costs the
// fewest predicted bits, the candidate the second-domain-block pass
// excludes.
func cheapestDomain(res Result, coeff prob.CoeffModel, level uint) int {
	bestIdx := 0
	bestBits := math.MaxFloat64
	for i, code := range res.WeightCodes {
		b := coeff.Bits(code, level, res.Domains[i] == 0)
		if b < bestBits {
			bestBits = b
			bestIdx = i
		}
	}
	return res.Domains[bestIdx]
}

// orthogonalize returns img with the projection onto every vector in
// basis removed, i.e. the next Gram-Schmidt vector o_n.
func orthogonalize(img []float64, basis [][]float64, basisNrm []float64) []float64 {
	o := append([]float64(nil), img...)
	for i, b := range basis {
		if basisNrm[i] < minNorm {
			continue
		}
		c := dotPrefix(img, b) / basisNrm[i]
		floats.AddScaled(o, -c, b)
	}
	return o
}

func dotPrefix(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return floats.Dot(a[:n], b[:n])
}

// solveAndQuantize back-substitutes the orthogonal-basis projection
// coefficients into weights against the original (non-orthogonal) domain
// images, quantising each through the appropriate RPF (DC for state 0,
// normal otherwise) in reverse commit order so quantisation error
// propagates forward into earlier coefficients.
func solveAndQuantize(eng *ip.Engine, w *wfa.WFA, level uint, rangePixels []float64, domains []int, ortho [][]float64, orthoNrm []float64, rpfNormal, rpfDC rpf.RPF) ([]float64, []int, float64) {
	n := len(domains)
	proj := make([]float64, n)
	for i := range ortho {
		proj[i] = dotPrefix(rangePixels, ortho[i]) / maxf(orthoNrm[i], minNorm)
	}

	weights := make([]float64, n)
	codes := make([]int, n)
	residual := append([]float64(nil), rangePixels...)

	// Reverse commit order: the last-added domain's coefficient is
	// resolved (and quantised) first.
	for i := n - 1; i >= 0; i-- {
		r := rpfNormal
		if domains[i] == 0 {
			r = rpfDC
		}
		// Back-substitute the already-quantised later weights: domain j > i
		// carries a component <d_j,o_i>/||o_i||^2 along o_i.
		coef := proj[i]
		for j := i + 1; j < n; j++ {
			coef -= weights[j] * dotPrefix(eng.ImageAtLevel(w, domains[j], level), ortho[i]) / maxf(orthoNrm[i], minNorm)
		}
		code := r.Quantize(clampUnit(coef, r))
		val, _ := r.Dequantize(code)
		weights[i] = val
		codes[i] = code

		img := eng.ImageAtLevel(w, domains[i], level)
		floats.AddScaled(residual, -val, img)
	}

	errVal := floats.Dot(residual, residual)
	return weights, codes, errVal
}

func clampUnit(v float64, r rpf.RPF) float64 {
	bound := r.Range()
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

func max1(n int) float64 {
	if n < 1 {
		return 1
	}
	return float64(n)
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Saturated and Underflowed are the coefficient checks used by the
// post-pass retries: Saturated reports whether code is at the RPF's
// representable limit (candidate for the overflow retry), and
// Underflowed reports the RPF_ZERO sentinel (candidate for the
// underflow retry).
func Saturated(code int, r rpf.RPF) bool {
	if code == rpf.ZeroCode {
		return false
	}
	// A zero mantissa is the quantiser's saturation sentinel: it decodes
	// to the full +-range magnitude.
	return code>>1 == 0
}

func Underflowed(code int) bool { return code == rpf.ZeroCode }
