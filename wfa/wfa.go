// Package wfa implements the weighted finite automaton data model:
// states, per-label transitions, and the bintree tree pointers that
// tie a state back to the range it was produced from. Tree children
// always refer to smaller state ids, so state id order is already
// topological order.
package wfa

import (
	"sort"

	"github.com/fiasco-codec/fiasco/fiascoerr"
)

// MaxLabels is the bintree fan-out: every state has exactly two
// children, one per label.
const MaxLabels = 2

// MaxEdges bounds the number of outgoing transitions a single
// (state, label) pair may carry.
const MaxEdges = 8

// MaxStates bounds the number of states a single frame's automaton may
// hold.
const MaxStates = 1 << 16

// Range is the sentinel tree-child value meaning "this child is a leaf
// range, not a state" — the bintree recursion terminates here rather
// than pointing at another state.
const Range = -1

// MotionType classifies the motion-vector record attached to a state
// child.
type MotionType int

const (
	MVNone MotionType = iota
	MVForward
	MVBackward
	MVInterpolated
)

// MV is a single motion-vector record: up to two (dx,dy) pairs (the
// second used only for MVInterpolated's backward component).
type MV struct {
	Type           MotionType
	FDx, FDy       int
	BDx, BDy       int
}

// ND records a nondeterministic (DC-subtract) prediction applied to a
// state child on an I frame: the quantised DC weight that was removed
// before the residual was approximated. Code is an RPF code against the DC-RPF.
type ND struct {
	Present bool
	Code    int
	Weight  float64
}

// Transition is one outgoing edge (into, weight). Edges within a
// (state,label) transition list are kept sorted by ascending Into.
type Transition struct {
	Into   int
	Weight float64
}

// Child holds everything a bintree label attaches to a state: either a
// pointer to a further state (TreeChild != Range) or a leaf marker, plus
// the spatial/motion metadata and outgoing transitions for this label.
type Child struct {
	TreeChild int
	MV        MV
	ND        ND
	X, Y      int
	YState    int // cross-link to the corresponding luma state, or Range if none
	Edges     []Transition
}

// State is one WFA node: a scalar final distribution, the bintree level
// it was produced at, and two labelled children.
type State struct {
	FinalDistribution float64
	Level             uint
	DomainType        bool
	DeltaState        bool
	Children          [MaxLabels]Child
}

// WFA is the automaton built incrementally by the subdivider: states are
// appended as ranges commit, and the tail may be truncated by
// RemoveStates when a trial branch is rolled back.
type WFA struct {
	States []State
}

// New builds a WFA with state 0 already bootstrapped: the "DC" constant
// function f(x,y)=128, final=128, with unit self-loops on both labels.
func New() *WFA {
	w := &WFA{}
	w.States = append(w.States, State{
		FinalDistribution: 128,
		Level:             0,
		DomainType:        true,
		Children: [MaxLabels]Child{
			{TreeChild: Range, YState: Range, Edges: []Transition{{Into: 0, Weight: 1.0}}},
			{TreeChild: Range, YState: Range, Edges: []Transition{{Into: 0, Weight: 1.0}}},
		},
	})
	return w
}

// NumStates returns the number of states currently in the automaton.
func (w *WFA) NumStates() int { return len(w.States) }

// AppendState adds a new state and returns its id. The caller is
// responsible for filling in its children/transitions afterward via
// AppendEdge, then calling RecomputeFinal to restore the
// average-preserving invariant.
func (w *WFA) AppendState(level uint, domainType, delta bool) (int, error) {
	if len(w.States) >= MaxStates {
		return 0, fiascoerr.New(fiascoerr.StateLimit, "wfa.AppendState", nil)
	}
	id := len(w.States)
	w.States = append(w.States, State{
		Level:      level,
		DomainType: domainType,
		DeltaState: delta,
		Children: [MaxLabels]Child{
			{TreeChild: Range, YState: Range},
			{TreeChild: Range, YState: Range},
		},
	})
	return id, nil
}

// AppendEdge inserts (into, weight) into state's label transition list,
// keeping it sorted by ascending Into.
// Returns StateLimit if the edge would exceed MaxEdges.
func (w *WFA) AppendEdge(state, label, into int, weight float64) error {
	edges := w.States[state].Children[label].Edges
	if len(edges) >= MaxEdges {
		return fiascoerr.New(fiascoerr.StateLimit, "wfa.AppendEdge", nil)
	}
	i := sort.Search(len(edges), func(i int) bool { return edges[i].Into >= into })
	edges = append(edges, Transition{})
	copy(edges[i+1:], edges[i:])
	edges[i] = Transition{Into: into, Weight: weight}
	w.States[state].Children[label].Edges = edges
	return nil
}

// SetEdges replaces state's label transition list outright (already
// assumed sorted by the caller, typically the matching-pursuit engine
// which produces edges in ascending-domain order after commit).
func (w *WFA) SetEdges(state, label int, edges []Transition) {
	w.States[state].Children[label].Edges = edges
}

// RemoveStates truncates the automaton to the first `from` states,
// discarding everything appended afterward. Used by the subdivider to
// back out of a trial branch.
func (w *WFA) RemoveStates(from int) {
	if from < len(w.States) {
		w.States = w.States[:from]
	}
}

// RecomputeFinal restores the average-preserving invariant for state:
// final = (sum over both labels of sum over edges of
// weight*final(child)) / 2. A label whose child is a further state (TreeChild !=
// Range, i.e. this state came from subdivision rather than linear
// combination) contributes that child's final distribution directly,
// with implicit unit weight, instead of summing edges.
func (w *WFA) RecomputeFinal(state int) {
	var total float64
	for label := 0; label < MaxLabels; label++ {
		child := w.States[state].Children[label]
		if child.TreeChild != Range {
			total += w.States[child.TreeChild].FinalDistribution
			continue
		}
		for _, e := range child.Edges {
			total += e.Weight * w.States[e.Into].FinalDistribution
		}
	}
	w.States[state].FinalDistribution = total / MaxLabels
}

// Validate checks the automaton's structural invariants: ascending
// edge order (already an AppendEdge postcondition, re-checked here for
// bitstream-decoded automata) and that every TreeChild is either Range or
// a valid, already-defined state id.
func (w *WFA) Validate() error {
	for s := range w.States {
		for label := 0; label < MaxLabels; label++ {
			c := w.States[s].Children[label]
			if c.TreeChild != Range && (c.TreeChild < 0 || c.TreeChild >= len(w.States)) {
				return fiascoerr.New(fiascoerr.FormatInvalid, "wfa.Validate", nil)
			}
			prev := -1
			for _, e := range c.Edges {
				if e.Into <= prev {
					return fiascoerr.New(fiascoerr.FormatInvalid, "wfa.Validate", nil)
				}
				if e.Into < 0 || e.Into >= len(w.States) {
					return fiascoerr.New(fiascoerr.FormatInvalid, "wfa.Validate", nil)
				}
				prev = e.Into
			}
		}
	}
	return nil
}

// WidthOfLevel and HeightOfLevel give the tile size for bintree level
// l: level 0 is a single pixel, and successive levels alternate which
// dimension doubles, so even levels are square and odd levels are 1:2
// tall. Even levels subdivide along x, odd levels along y.
func WidthOfLevel(level uint) int { return 1 << (level / 2) }

func HeightOfLevel(level uint) int { return 1 << ((level + 1) / 2) }

// LevelOfImage returns the smallest bintree level whose tile covers a
// width x height image; the image is embedded top-left in that tile and
// cropping happens only at boundary ranges.
func LevelOfImage(width, height int) uint {
	level := uint(0)
	for WidthOfLevel(level) < width || HeightOfLevel(level) < height {
		level++
	}
	return level
}
