package subdivide

import (
	"math"
	"testing"

	"github.com/fiasco-codec/fiasco/ip"
	"github.com/fiasco-codec/fiasco/prob"
	"github.com/fiasco-codec/fiasco/rpf"
	"github.com/fiasco-codec/fiasco/wfa"
)

func testOptions(rootLevel uint) Options {
	normal := rpf.New(3, rpf.Range1_50, nil)
	dc := rpf.New(5, rpf.Range1_00, nil)
	return Options{
		MaxEdges:   4,
		LCMinLevel: 0,
		LCMaxLevel: rootLevel,
		PMinLevel:  rootLevel - 1,
		PMaxLevel:  rootLevel,
		Price:      8,
		MaxCosts:   1e20,
		FrameType:  FrameI,
		RPFNormal:  normal,
		RPFDC:      dc,
		RPFDelta:   normal,
		RPFDeltaDC: dc,
	}
}

func testModels(states int, o Options) Models {
	return Models{
		Tree:          prob.NewTreeModel(),
		PredictedTree: prob.NewTreeModel(),
		NormalPool:    prob.NewAdaptivePool(states),
		DeltaPool:     prob.NewAdaptivePool(states),
		NormalCoeff:   prob.NewAdaptiveCoeff(o.RPFNormal, o.RPFDC, 0, prob.MaxLevel-1),
		DeltaCoeff:    prob.NewAdaptiveCoeff(o.RPFDelta, o.RPFDeltaDC, 0, prob.MaxLevel-1),
	}
}

func solidPlane(w, h int, v float64) []float64 {
	out := make([]float64, w*h)
	for i := range out {
		out[i] = v
	}
	return out
}

func newTestContext(pixels []float64, w, h int, opts Options) *Context {
	eng := ip.New(4, 3)
	W := wfa.New()
	eng.AppendState(W, 0)
	return NewContext(eng, W, testModels(1, opts), opts, pixels, w, h)
}

func TestSubdivide_SolidGreyCollapsesToDCEdge(t *testing.T) {
	const size = 16
	rootLevel := wfa.LevelOfImage(size, size)
	opts := testOptions(rootLevel)
	c := newTestContext(solidPlane(size, size, 128), size, size, opts)

	r := Subdivide(c, 0, rootLevel, 0, 0, size, size, false, false, nil)

	if r.Outcome != OutcomeLinearCombination {
		t.Fatalf("outcome = %v, want linear combination", r.Outcome)
	}
	if len(r.Edges) != 1 || r.Edges[0].Into != 0 {
		t.Fatalf("edges = %v, want single DC edge", r.Edges)
	}
	if math.Abs(r.Edges[0].Weight-1.0) > 0.05 {
		t.Fatalf("DC weight = %v, want ~1", r.Edges[0].Weight)
	}
	if r.Err > 1 {
		t.Fatalf("error = %v, want ~0", r.Err)
	}
	if r.State != 1 {
		t.Fatalf("committed state = %d, want 1", r.State)
	}
}

func TestSubdivide_AveragePreservingInvariantHolds(t *testing.T) {
	const size = 16
	rootLevel := wfa.LevelOfImage(size, size)
	opts := testOptions(rootLevel)
	opts.LCMaxLevel = rootLevel - 2 // force at least two subdivisions

	plane := make([]float64, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			plane[y*size+x] = float64(x * 16)
		}
	}
	c := newTestContext(plane, size, size, opts)
	r := Subdivide(c, 0, rootLevel, 0, 0, size, size, false, false, nil)

	if r.Outcome != OutcomeSubdivided {
		t.Fatalf("outcome = %v, want subdivided", r.Outcome)
	}
	if err := c.WFA.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for s := 1; s < c.WFA.NumStates(); s++ {
		var total float64
		for label := 0; label < wfa.MaxLabels; label++ {
			child := c.WFA.States[s].Children[label]
			if child.TreeChild != wfa.Range {
				total += c.WFA.States[child.TreeChild].FinalDistribution
				continue
			}
			for _, e := range child.Edges {
				total += e.Weight * c.WFA.States[e.Into].FinalDistribution
			}
		}
		if got := c.WFA.States[s].FinalDistribution; math.Abs(got-total/2) > 1e-9 {
			t.Fatalf("state %d: final %v, want %v", s, got, total/2)
		}
	}
}

func TestSubdivide_OutOfRangeCostsNothing(t *testing.T) {
	const size = 16
	rootLevel := wfa.LevelOfImage(size, size)
	opts := testOptions(rootLevel)
	c := newTestContext(solidPlane(size, size, 128), size, size, opts)

	r := Subdivide(c, 0, rootLevel-1, size, 0, 0, size, false, false, nil)
	if r.Outcome != OutcomeOutOfRange {
		t.Fatalf("outcome = %v, want out of range", r.Outcome)
	}
	if r.TotalBits() != 0 || r.Err != 0 || len(r.Edges) != 0 {
		t.Fatalf("out-of-range range must contribute nothing: %+v", r)
	}
}

func TestSubdivide_NonPowerOfTwoImageCropsAtBoundary(t *testing.T) {
	const w, h = 12, 10
	rootLevel := wfa.LevelOfImage(w, h)
	opts := testOptions(rootLevel)
	c := newTestContext(solidPlane(w, h, 64), w, h, opts)

	r := Subdivide(c, 0, rootLevel, 0, 0, w, h, false, false, nil)
	if r.Outcome != OutcomeSubdivided {
		t.Fatalf("outcome = %v, want subdivided (root tile is cropped)", r.Outcome)
	}
	if err := c.WFA.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestSubdivide_PredictionProducesDeltaState(t *testing.T) {
	const size = 16
	rootLevel := wfa.LevelOfImage(size, size)
	opts := testOptions(rootLevel)
	opts.Prediction = true
	opts.PMinLevel = rootLevel
	opts.PMaxLevel = rootLevel
	// Price high enough that removing the DC component pays.
	opts.Price = 1000

	c := newTestContext(solidPlane(size, size, 96), size, size, opts)
	r := Subdivide(c, 0, rootLevel, 0, 0, size, size, true, false, nil)

	if r.Outcome == OutcomePredicted {
		if !r.ND.Present {
			t.Fatal("predicted range must carry its ND record")
		}
		if !c.WFA.States[r.State].DeltaState {
			t.Fatal("adopted state must be a delta state")
		}
	} else if r.Outcome != OutcomeLinearCombination {
		t.Fatalf("outcome = %v, want prediction or linear combination", r.Outcome)
	}
}
