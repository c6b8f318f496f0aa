package subdivide

import "github.com/fiasco-codec/fiasco/wfa"

// commitBest materialises the winning alternative's decisions into
// c.WFA/c.Engine/c.Models: a new state for OutcomeLinearCombination and
// OutcomeSubdivided, or the adopted residual state for OutcomePredicted.
// Called exactly once per Subdivide call, after the three alternatives
// have been compared against a pristine checkpoint (see Subdivide).
func commitBest(c *Context, best *Range, delta bool, level uint) {
	switch best.Outcome {
	case OutcomeLinearCombination:
		commitLinearCombination(c, best, delta, level)
	case OutcomeSubdivided:
		commitSubdivided(c, best, delta, level)
	case OutcomePredicted:
		commitPredicted(c, best)
	}
}

func commitLinearCombination(c *Context, r *Range, delta bool, level uint) {
	id, err := c.WFA.AppendState(level, true, delta)
	if err != nil {
		r.Outcome = OutcomeInfeasible
		return
	}
	c.WFA.SetEdges(id, 0, r.Edges)
	c.WFA.SetEdges(id, 1, r.Edges)
	c.WFA.RecomputeFinal(id)
	c.Engine.AppendState(c.WFA, id)

	pool := r.commitModels.NormalPool
	if delta {
		pool = r.commitModels.DeltaPool
	}
	pool.Append(id, level)

	r.State = id
	c.Models = r.commitModels
}

func commitSubdivided(c *Context, r *Range, delta bool, level uint) {
	id, err := c.WFA.AppendState(level, true, delta)
	if err != nil {
		r.Outcome = OutcomeInfeasible
		return
	}
	for label, child := range r.Children {
		c.WFA.States[id].Children[label].TreeChild = child.State
	}
	c.WFA.RecomputeFinal(id)
	c.Engine.AppendState(c.WFA, id)

	r.State = id
	r.Tree = id
	c.Models = r.commitModels
}

// commitPredicted adopts the already-committed residual's state as this
// range's own: prediction never creates a new state, it only records a
// motion vector (or marks a nondeterministic, motion-free prediction)
// on top of the residual's linear-combination/subdivision result.
func commitPredicted(c *Context, r *Range) {
	child := r.commitChild
	r.State = child.State
	r.Tree = child.Tree
	c.Models = r.commitModels
	if r.State == wfa.Range {
		return
	}
	c.WFA.States[r.State].Children[0].MV = r.MV
	c.WFA.States[r.State].Children[1].MV = r.MV
	c.WFA.States[r.State].Children[0].ND = r.ND
	c.WFA.States[r.State].Children[1].ND = r.ND
}
