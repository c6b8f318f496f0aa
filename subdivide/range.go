package subdivide

import "github.com/fiasco-codec/fiasco/wfa"

// Outcome classifies how a range was ultimately coded.
type Outcome int

const (
	OutcomeLinearCombination Outcome = iota
	OutcomeSubdivided
	OutcomePredicted
	OutcomeOutOfRange
	OutcomeInfeasible
)

// Range is the object being approximated at one recursion step:
// bintree address, pixel coordinates, level, tentative
// edges/weights/motion vector, and bit/error accumulators.
type Range struct {
	Addr  uint64
	Level uint
	X, Y  int
	W, H  int

	Tree     int // wfa.Range (leaf/LC) or child state id (subdivided)
	Edges    []wfa.Transition
	MV       wfa.MV
	ND       wfa.ND
	Outcome  Outcome

	TreeBits      float64
	MatrixBits    float64
	WeightsBits   float64
	MVTreeBits    float64
	MVCoordBits   float64
	NDTreeBits    float64
	NDWeightsBits float64
	Err           float64

	// State is the WFA state id this range committed as, once appended
	// (wfa.Range if the range was never materialised as a state, e.g. the
	// frame root when it is itself subdivided further up).
	State int

	// Children holds the two committed sub-ranges when Outcome is
	// OutcomeSubdivided.
	Children [2]*Range

	// edges/weightCodes are the chosen linear-combination transitions
	// for an OutcomeLinearCombination range, held here until commitBest
	// decides this alternative actually wins and appends the state.
	weightCodes []int

	// commitModels is the (already-mutated) duplicated model set this
	// alternative produced; commitBest installs it into the context's
	// live Models only if this alternative is the overall winner.
	commitModels Models

	// commitChild is the already-committed residual range a prediction
	// alternative produced, whose State this range adopts as its own.
	commitChild *Range

	// checkpoint is the WFA state count recorded before this
	// alternative ran; used to roll back speculative states appended by
	// a losing Subdivided/Predicted trial.
	checkpoint int
}

// TotalBits sums every accumulator, the quantity the bit-count
// invariant checks against the actual bitstream writer output.
func (r *Range) TotalBits() float64 {
	return r.TreeBits + r.MatrixBits + r.WeightsBits + r.MVTreeBits + r.MVCoordBits + r.NDTreeBits + r.NDWeightsBits
}

// TotalCost is the Lagrangian cost this range contributed: bits*price +
// error.
func (r *Range) TotalCost(price float64) float64 {
	return r.TotalBits()*price + r.Err
}
