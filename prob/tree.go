// Package prob implements the codec's probability model families: the
// per-level bintree model, the coefficient models (uniform/adaptive),
// and the domain-pool models (constant/uniform/adaptive/rle/basis).
package prob

import "math"

// MaxLevel bounds the bintree depth a probability model keeps separate
// per-level statistics for.
const MaxLevel = 22

// initialCounts0/initialCounts1 are the published tables from
// init_tree_model: a smooth transition from a low-level bias toward
// further subdivision (counts_0 dominates) to a high-level bias toward
// leaves (counts_1 dominates).
var initialCounts0 = [MaxLevel]uint{
	20, 17, 15, 10, 5, 4, 3,
	2, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1,
}

var initialCounts1 = [MaxLevel]uint{
	1, 1, 1, 1, 1, 1, 1,
	1, 1, 2, 3, 5, 10, 15, 20,
	25, 30, 35, 60, 60, 60, 60,
}

// TreeModel keeps the per-level Bernoulli statistics used to cost and
// code a "subdivide vs leaf" decision at each bintree level. Symbol true ("child") is synonymous with NO_RANGE/1; false
// ("leaf"/range) is synonymous with RANGE/0.
type TreeModel struct {
	counts [MaxLevel]uint // running count of "child" (true) outcomes
	total  [MaxLevel]uint
}

// NewTreeModel builds a tree model seeded with the published initial
// histograms.
func NewTreeModel() *TreeModel {
	m := &TreeModel{}
	for l := 0; l < MaxLevel; l++ {
		m.counts[l] = initialCounts1[l]
		m.total[l] = initialCounts0[l] + initialCounts1[l]
	}
	return m
}

// Bits returns the predicted bit cost of coding child at level.
func (m *TreeModel) Bits(child bool, level uint) float64 {
	prob := float64(m.counts[level]) / float64(m.total[level])
	if child {
		return -math.Log2(prob)
	}
	return -math.Log2(1 - prob)
}

// Update adapts the model after child has actually been coded at level.
func (m *TreeModel) Update(child bool, level uint) {
	m.total[level]++
	if child {
		m.counts[level]++
	}
}

// Duplicate deep-copies the model for the subdivider's trial/rollback
// discipline.
func (m *TreeModel) Duplicate() *TreeModel {
	cp := *m
	return &cp
}
