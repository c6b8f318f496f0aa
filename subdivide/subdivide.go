package subdivide

import (
	"github.com/fiasco-codec/fiasco/mp"
	"github.com/fiasco-codec/fiasco/predict"
	"github.com/fiasco-codec/fiasco/wfa"
)

// alt tags which of the three alternatives a candidate
// came from, so the winner can be cheaply re-evaluated for real once
// all three costs are known (see Subdivide).
type alt int

const (
	altNone alt = iota
	altLC
	altSubdivide
	altPredict
)

// Subdivide is the recursive driver: for the range at
// (addr,level,x,y,w,h) it evaluates linear-combination approximation,
// further subdivision, and (when allowed) motion-compensated or
// nondeterministic prediction, commits the minimum-cost alternative into
// c.WFA and c.Models, and returns the resulting Range.
//
// Every alternative is first evaluated against the same pristine state
// checkpoint recorded on entry, with its own speculative states rolled
// back immediately after its cost is known — this keeps the three
// alternatives from contaminating each other's domain-pool candidate set
// before a winner is chosen. Only the winning alternative is then
// re-run for real (deterministically reproducing the same Range) so its
// states and model updates persist.
//
// delta marks a residual range produced by a prediction alternative;
// pixelsOverride supplies that residual image in place of reading the
// band's own pixel plane.
func Subdivide(c *Context, addr uint64, level uint, x, y, w, h int, predictionAllowed, delta bool, pixelsOverride []float64) Range {
	if x >= c.pixelsW || y >= c.pixelsH || w <= 0 || h <= 0 {
		return Range{Addr: addr, Level: level, X: x, Y: y, W: w, H: h, Tree: wfa.Range, State: wfa.Range, Outcome: OutcomeOutOfRange}
	}

	// A range crossing the image boundary is only ever subdivided:
	// linear combination and prediction work on complete tiles, in
	// bintree sample order, so cropping happens in the boundary ranges'
	// children.
	visible := w == wfa.WidthOfLevel(level) && h == wfa.HeightOfLevel(level)

	target := pixelsOverride
	if target == nil && visible {
		target = extractBintree(c, level, x, y)
	}
	if target != nil {
		c.Engine.RefreshImageState(c.WFA, target)
	}

	checkpoint := c.WFA.NumStates()
	price := c.Options.Price
	bestCost := c.Options.MaxCosts
	winner := altNone

	if target != nil && level <= c.Options.LCMaxLevel {
		if cand, ok := tryLinearCombination(c, addr, level, x, y, w, h, target, delta); ok {
			if cost := cand.TotalCost(price); cost < bestCost {
				bestCost, winner = cost, altLC
			}
		}
	}

	if level > 0 && (level > c.Options.LCMinLevel || !visible) {
		if cand, ok := trySubdivision(c, addr, level, x, y, w, h, predictionAllowed, delta, bestCost); ok {
			c.WFA.RemoveStates(checkpoint)
			c.Engine.InvalidateFrom(checkpoint)
			if cost := cand.TotalCost(price); cost < bestCost {
				bestCost, winner = cost, altSubdivide
			}
		} else {
			c.WFA.RemoveStates(checkpoint)
			c.Engine.InvalidateFrom(checkpoint)
		}
	}

	if target != nil && predictionAllowed && c.Options.Prediction && level >= c.Options.PMinLevel && level <= c.Options.PMaxLevel {
		if cand, ok := tryPrediction(c, addr, level, x, y, w, h, target); ok {
			c.WFA.RemoveStates(checkpoint)
			c.Engine.InvalidateFrom(checkpoint)
			if cost := cand.TotalCost(price); cost < bestCost {
				bestCost, winner = cost, altPredict
			}
		} else {
			c.WFA.RemoveStates(checkpoint)
			c.Engine.InvalidateFrom(checkpoint)
		}
	}

	switch winner {
	case altNone:
		return Range{Addr: addr, Level: level, X: x, Y: y, W: w, H: h, Tree: wfa.Range, State: wfa.Range, Outcome: OutcomeInfeasible, Err: c.Options.MaxCosts}
	case altLC:
		cand, _ := tryLinearCombination(c, addr, level, x, y, w, h, target, delta)
		commitBest(c, &cand, delta, level)
		return cand
	case altSubdivide:
		cand, _ := trySubdivision(c, addr, level, x, y, w, h, predictionAllowed, delta, c.Options.MaxCosts)
		commitBest(c, &cand, delta, level)
		return cand
	default: // altPredict
		cand, _ := tryPrediction(c, addr, level, x, y, w, h, target)
		commitBest(c, &cand, delta, level)
		return cand
	}
}

func tryLinearCombination(c *Context, addr uint64, level uint, x, y, w, h int, target []float64, delta bool) (Range, bool) {
	models := c.Models.Duplicate()
	pool, coeff := models.NormalPool, models.NormalCoeff
	rpfN, rpfDC := c.Options.RPFNormal, c.Options.RPFDC
	if delta {
		pool, coeff = models.DeltaPool, models.DeltaCoeff
		rpfN, rpfDC = c.Options.RPFDelta, c.Options.RPFDeltaDC
	}

	retry := mp.RetryOptions{
		SecondDomainBlock: c.Options.SecondDomainBlock,
		CheckUnderflow:    c.Options.CheckUnderflow,
		CheckOverflow:     c.Options.CheckOverflow,
	}
	res := mp.ApproximateWithRetries(c.Engine, c.WFA, mp.Target{Pixels: target, Level: level, YState: wfa.Range}, pool, coeff, rpfN, rpfDC, c.Options.Price, c.Options.MaxEdges, nil, c.Options.FullSearch, c.usableStates(), retry)
	if !res.OK {
		return Range{}, false
	}

	domains := pool.Generate(level, wfa.Range, c.usableStates())
	pool.Update(domains, res.Domains, level, wfa.Range)
	for i, d := range res.Domains {
		coeff.Update(res.WeightCodes[i], level, d == 0)
	}

	tree := models.Tree
	if delta {
		tree = models.PredictedTree
	}
	treeBits := tree.Bits(false, level)
	tree.Update(false, level)

	edges := make([]wfa.Transition, len(res.Domains))
	for i, d := range res.Domains {
		edges[i] = wfa.Transition{Into: d, Weight: res.Weights[i]}
	}

	return Range{
		Addr: addr, Level: level, X: x, Y: y, W: w, H: h,
		Tree: wfa.Range, Outcome: OutcomeLinearCombination,
		Edges: edges, weightCodes: res.WeightCodes,
		TreeBits: treeBits, MatrixBits: res.MatrixBits, WeightsBits: res.WeightsBits, Err: res.Error,
		commitModels: models,
	}, true
}

func trySubdivision(c *Context, addr uint64, level uint, x, y, w, h int, predictionAllowed, delta bool, bestCostSoFar float64) (Range, bool) {
	models := c.Models.Duplicate()
	saved := c.Models
	c.Models = models

	tree := models.Tree
	if delta {
		tree = models.PredictedTree
	}
	treeBitsHere := tree.Bits(true, level)
	tree.Update(true, level)

	// Even levels split along x, odd levels along y.
	splitWidth := level%2 == 0
	var c0, c1 Range
	var haveC1 bool

	if splitWidth {
		half := wfa.WidthOfLevel(level - 1)
		w0 := w
		if w0 > half {
			w0 = half
		}
		c0 = Subdivide(c, addr<<1, level-1, x, y, w0, h, predictionAllowed, delta, nil)
		partial := (treeBitsHere+c0.TotalBits())*c.Options.Price + c0.Err
		if partial < bestCostSoFar {
			c1 = Subdivide(c, (addr<<1)|1, level-1, x+half, y, w-half, h, predictionAllowed, delta, nil)
			haveC1 = true
		}
	} else {
		half := wfa.HeightOfLevel(level - 1)
		h0 := h
		if h0 > half {
			h0 = half
		}
		c0 = Subdivide(c, addr<<1, level-1, x, y, w, h0, predictionAllowed, delta, nil)
		partial := (treeBitsHere+c0.TotalBits())*c.Options.Price + c0.Err
		if partial < bestCostSoFar {
			c1 = Subdivide(c, (addr<<1)|1, level-1, x, y+half, w, h-half, predictionAllowed, delta, nil)
			haveC1 = true
		}
	}

	// The children's commits replaced c.Models with their own updated
	// sets; that final set is what this alternative hands to commitBest.
	finalModels := c.Models
	c.Models = saved
	if !haveC1 {
		return Range{}, false
	}

	c0v, c1v := c0, c1
	return Range{
		Addr: addr, Level: level, X: x, Y: y, W: w, H: h,
		Outcome:      OutcomeSubdivided,
		Children:     [2]*Range{&c0v, &c1v},
		TreeBits:     treeBitsHere + c0.TotalBits() + c1.TotalBits(),
		Err:          c0.Err + c1.Err,
		commitModels: finalModels,
	}, true
}

func tryPrediction(c *Context, addr uint64, level uint, x, y, w, h int, target []float64) (Range, bool) {
	models := c.Models.Duplicate()
	saved := c.Models
	c.Models = models

	var cand Range
	var ok bool
	if c.Options.FrameType != FrameI {
		cand, ok = predictMotion(c, addr, level, x, y, w, h, target)
	} else {
		cand, ok = predictDC(c, addr, level, x, y, w, h, target)
	}

	// The residual's commit replaced c.Models; that final set travels
	// with the candidate.
	finalModels := c.Models
	c.Models = saved
	if !ok {
		return Range{}, false
	}
	cand.commitModels = finalModels
	return cand, true
}

func extractRows(c *Context, x, y, w, h int) []float64 {
	out := make([]float64, 0, w*h)
	for j := 0; j < h; j++ {
		row := (y + j) * c.pixelsW
		for i := 0; i < w; i++ {
			out = append(out, c.pixels[row+x+i])
		}
	}
	return out
}

// extractBintree reads the fully-visible tile at (x,y) into bintree
// sample order: the recursion mirrors the subdivision axes, so sample
// buffers line up with the inner-product engine's state images.
func extractBintree(c *Context, level uint, x, y int) []float64 {
	out := make([]float64, 0, 1<<level)
	var walk func(level uint, x, y int)
	walk = func(level uint, x, y int) {
		if level == 0 {
			out = append(out, c.pixels[y*c.pixelsW+x])
			return
		}
		walk(level-1, x, y)
		if level%2 == 0 {
			walk(level-1, x+wfa.WidthOfLevel(level-1), y)
		} else {
			walk(level-1, x, y+wfa.HeightOfLevel(level-1))
		}
	}
	walk(level, x, y)
	return out
}

// bintreeFromBlock reorders a row-major w x h block (a full tile at
// level) into bintree sample order.
func bintreeFromBlock(block []float64, w int, level uint) []float64 {
	out := make([]float64, 0, 1<<level)
	var walk func(level uint, x, y int)
	walk = func(level uint, x, y int) {
		if level == 0 {
			out = append(out, block[y*w+x])
			return
		}
		walk(level-1, x, y)
		if level%2 == 0 {
			walk(level-1, x+wfa.WidthOfLevel(level-1), y)
		} else {
			walk(level-1, x, y+wfa.HeightOfLevel(level-1))
		}
	}
	walk(level, 0, 0)
	return out
}

func predictMotion(c *Context, addr uint64, level uint, x, y, w, h int, target []float64) (Range, bool) {
	opts := predict.SearchOptions{SearchRange: c.Options.SearchRange, HalfPixel: c.Options.HalfPixel, Price: c.Options.Price, LocalRange: 6}
	var mv wfa.MV
	var residual []float64
	var mvBits float64

	// The block extractor works in row-major pixel order; the residual
	// is reordered into bintree order before it re-enters the
	// subdivider.
	rowTarget := extractRows(c, x, y, w, h)

	switch c.Options.FrameType {
	case FrameP:
		if c.PastRef == nil {
			return Range{}, false
		}
		m := predict.ExhaustiveSearch(c.PastRef, c.ExtractBlock, rowTarget, x, y, w, h, opts)
		mv = wfa.MV{Type: wfa.MVForward, FDx: m.Dx, FDy: m.Dy}
		residual = m.Residual
		_, bx := predict.MVComponentCode(m.Dx)
		_, by := predict.MVComponentCode(m.Dy)
		mvBits = float64(bx + by)
	case FrameB:
		if c.PastRef == nil || c.FutureRef == nil {
			return Range{}, false
		}
		bc := predict.SearchBFrame(c.PastRef, c.FutureRef, c.ExtractBlock, rowTarget, x, y, w, h, opts)
		mv = bc.MV
		residual = bc.Residual
		mvBits = bc.ModeBits
	default:
		return Range{}, false
	}

	child := Subdivide(c, addr, level, x, y, w, h, false, true, bintreeFromBlock(residual, w, level))
	cv := child
	return Range{
		Addr: addr, Level: level, X: x, Y: y, W: w, H: h,
		Outcome: OutcomePredicted, MV: mv,
		MVTreeBits: 1, MVCoordBits: mvBits,
		Err:         child.Err,
		commitChild: &cv,
	}, true
}

func predictDC(c *Context, addr uint64, level uint, x, y, w, h int, target []float64) (Range, bool) {
	dc := c.WFA.States[0].FinalDistribution
	res := predict.PredictDC(target, dc, c.Options.RPFDeltaDC)
	child := Subdivide(c, addr, level, x, y, w, h, false, true, res.Residual)
	cv := child
	return Range{
		Addr: addr, Level: level, X: x, Y: y, W: w, H: h,
		Outcome:       OutcomePredicted,
		MV:            wfa.MV{Type: wfa.MVNone},
		ND:            wfa.ND{Present: true, Code: res.WeightCode, Weight: res.Weight},
		NDTreeBits:    1,
		NDWeightsBits: float64(c.Options.RPFDeltaDC.MantissaBits + 1),
		Err:           child.Err,
		commitChild:   &cv,
	}, true
}
