package bitstream

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fiasco-codec/fiasco/bitio"
	"github.com/fiasco-codec/fiasco/rpf"
	"github.com/fiasco-codec/fiasco/tiling"
	"github.com/fiasco-codec/fiasco/wfa"
)

// testBasis builds the two-state seed automaton both halves of a frame
// round trip start from.
func testBasis(t *testing.T) (*wfa.WFA, int) {
	t.Helper()
	w := wfa.New()
	id, err := w.AppendState(0, true, false)
	if err != nil {
		t.Fatalf("AppendState: %v", err)
	}
	if err := w.AppendEdge(id, 0, 0, 1.0); err != nil {
		t.Fatalf("AppendEdge: %v", err)
	}
	if err := w.AppendEdge(id, 1, 0, 1.0); err != nil {
		t.Fatalf("AppendEdge: %v", err)
	}
	w.States[id].FinalDistribution = 0
	return w, 2
}

func frameHeader() *Header {
	return &Header{
		BasisName: "default",
		MaxStates: 1024,
		Width:     8,
		Height:    8, // LevelOfImage = 6
		PMinLevel: 5,
		PMaxLevel: 6,
		Frames:    1,
		RPF:       rpf.RPF{MantissaBits: 3, RangeE: rpf.Range1_50},
		DCRPF:     rpf.RPF{MantissaBits: 5, RangeE: rpf.Range1_00},
		DRPF:      rpf.RPF{MantissaBits: 3, RangeE: rpf.Range1_50},
		DDCRPF:    rpf.RPF{MantissaBits: 5, RangeE: rpf.Range1_00},
	}
}

// representable quantises v through q and returns the value the decoder
// will reproduce, so encoder and decoder weights compare exactly.
func representable(t *testing.T, q rpf.RPF, v float64) float64 {
	t.Helper()
	out, err := q.Dequantize(q.Quantize(v))
	if err != nil {
		t.Fatalf("Dequantize: %v", err)
	}
	return out
}

// buildTestFrame commits two LC leaves under a subdivided root, the
// exact shape the subdivider produces for a two-range image.
func buildTestFrame(t *testing.T, h *Header) *Frame {
	t.Helper()
	w, basisStates := testBasis(t)

	// State 2: leaf with a DC edge and an edge into basis state 1.
	s2, _ := w.AppendState(5, true, false)
	w.SetEdges(s2, 0, []wfa.Transition{
		{Into: 0, Weight: representable(t, h.DCRPF, 0.9)},
		{Into: 1, Weight: representable(t, h.RPF, -0.4)},
	})
	w.SetEdges(s2, 1, []wfa.Transition{
		{Into: 0, Weight: representable(t, h.DCRPF, 0.9)},
		{Into: 1, Weight: representable(t, h.RPF, -0.4)},
	})

	// State 3: leaf approximated with no edges at all (zero range).
	s3, _ := w.AppendState(5, true, false)

	root, _ := w.AppendState(6, true, false)
	w.States[root].Children[0].TreeChild = s2
	w.States[root].Children[1].TreeChild = s3
	for s := basisStates; s < w.NumStates(); s++ {
		w.RecomputeFinal(s)
	}

	return &Frame{
		Type:             FrameI,
		Number:           0,
		WFA:              w,
		BasisStates:      basisStates,
		RootState:        root,
		UseNormalDomains: true,
		UseDeltaDomains:  true,
	}
}

func roundTrip(t *testing.T, h *Header, f *Frame) *Frame {
	t.Helper()
	w := bitio.NewWriter()
	if err := WriteFrame(w, h, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	base, basisStates := testBasis(t)
	got, err := ReadFrame(bitio.NewReader(w.Bytes()), h, base, basisStates)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return got
}

func TestFrame_RoundTrip_TreeAndWeights(t *testing.T) {
	h := frameHeader()
	f := buildTestFrame(t, h)
	got := roundTrip(t, h, f)

	if got.WFA.NumStates() != f.WFA.NumStates() {
		t.Fatalf("states = %d, want %d", got.WFA.NumStates(), f.WFA.NumStates())
	}
	if got.RootState != f.RootState {
		t.Fatalf("root = %d, want %d", got.RootState, f.RootState)
	}
	for s := f.BasisStates; s < f.WFA.NumStates(); s++ {
		for label := 0; label < wfa.MaxLabels; label++ {
			want := f.WFA.States[s].Children[label]
			have := got.WFA.States[s].Children[label]
			if have.TreeChild != want.TreeChild {
				t.Fatalf("state %d label %d: tree child %d, want %d", s, label, have.TreeChild, want.TreeChild)
			}
			if diff := cmp.Diff(want.Edges, have.Edges); diff != "" {
				t.Fatalf("state %d label %d edges (-want +got):\n%s", s, label, diff)
			}
		}
		if got.WFA.States[s].Level != f.WFA.States[s].Level {
			t.Fatalf("state %d level = %d, want %d", s, got.WFA.States[s].Level, f.WFA.States[s].Level)
		}
		if gf, wf := got.WFA.States[s].FinalDistribution, f.WFA.States[s].FinalDistribution; gf != wf {
			t.Fatalf("state %d final = %v, want %v", s, gf, wf)
		}
	}
}

func TestFrame_RoundTrip_ND(t *testing.T) {
	h := frameHeader()
	f := buildTestFrame(t, h)

	// Mark state 2 as a nondeterministic prediction with a DC residual
	// weight, the way the subdivider commits an I-frame prediction.
	nd := wfa.ND{Present: true, Code: h.DDCRPF.Quantize(0.5)}
	nd.Weight = representable(t, h.DDCRPF, 0.5)
	f.WFA.States[2].Children[0].ND = nd
	f.WFA.States[2].Children[1].ND = nd
	f.WFA.States[2].DeltaState = true
	// Its delta weights must quantise through the delta RPFs.
	f.WFA.SetEdges(2, 0, []wfa.Transition{{Into: 0, Weight: representable(t, h.DDCRPF, 0.9)}})
	f.WFA.SetEdges(2, 1, []wfa.Transition{{Into: 0, Weight: representable(t, h.DDCRPF, 0.9)}})

	got := roundTrip(t, h, f)

	c := got.WFA.States[2].Children[0]
	if !c.ND.Present {
		t.Fatal("decoded state 2 lost its ND flag")
	}
	if c.ND.Code != nd.Code || c.ND.Weight != nd.Weight {
		t.Fatalf("ND = (%d,%v), want (%d,%v)", c.ND.Code, c.ND.Weight, nd.Code, nd.Weight)
	}
	if !got.WFA.States[2].DeltaState {
		t.Fatal("decoded state 2 should be marked delta")
	}
	if got.WFA.States[3].DeltaState {
		t.Fatal("state 3 carries no prediction and must stay non-delta")
	}
}

func TestFrame_RoundTrip_MotionCompensation(t *testing.T) {
	h := frameHeader()
	f := buildTestFrame(t, h)
	f.Type = FrameP

	mv := wfa.MV{Type: wfa.MVForward, FDx: 4, FDy: -2}
	f.WFA.States[2].Children[0].MV = mv
	f.WFA.States[2].Children[1].MV = mv
	f.WFA.States[2].DeltaState = true
	f.WFA.SetEdges(2, 0, []wfa.Transition{{Into: 0, Weight: representable(t, h.DDCRPF, 0.9)}})
	f.WFA.SetEdges(2, 1, []wfa.Transition{{Into: 0, Weight: representable(t, h.DDCRPF, 0.9)}})

	got := roundTrip(t, h, f)

	c := got.WFA.States[2].Children[0]
	if c.MV.Type != wfa.MVForward || c.MV.FDx != 4 || c.MV.FDy != -2 {
		t.Fatalf("MV = %+v, want forward (4,-2)", c.MV)
	}
	if !got.WFA.States[2].DeltaState {
		t.Fatal("motion-compensated state must be marked delta")
	}
	if got.WFA.States[3].Children[0].MV.Type != wfa.MVNone {
		t.Fatal("state 3 must stay unpredicted")
	}
}

func TestFrame_RoundTrip_BFrameInterpolated(t *testing.T) {
	h := frameHeader()
	f := buildTestFrame(t, h)
	f.Type = FrameB

	mv := wfa.MV{Type: wfa.MVInterpolated, FDx: 3, FDy: 1, BDx: -5, BDy: 2}
	f.WFA.States[2].Children[0].MV = mv
	f.WFA.States[2].Children[1].MV = mv
	f.WFA.States[2].DeltaState = true
	f.WFA.SetEdges(2, 0, []wfa.Transition{{Into: 0, Weight: representable(t, h.DDCRPF, 0.9)}})
	f.WFA.SetEdges(2, 1, []wfa.Transition{{Into: 0, Weight: representable(t, h.DDCRPF, 0.9)}})

	got := roundTrip(t, h, f)
	c := got.WFA.States[2].Children[0]
	if diff := cmp.Diff(mv, c.MV); diff != "" {
		t.Fatalf("MV mismatch (-want +got):\n%s", diff)
	}
}

func TestFrame_RoundTrip_Tiling(t *testing.T) {
	h := frameHeader()
	h.Width, h.Height = 256, 256 // LevelOfImage = 16

	w, basisStates := testBasis(t)
	// A root at level 16 whose two children are leaves with no edges.
	s2, _ := w.AppendState(15, true, false)
	s3, _ := w.AppendState(15, true, false)
	root, _ := w.AppendState(16, true, false)
	w.States[root].Children[0].TreeChild = s2
	w.States[root].Children[1].TreeChild = s3

	tl := tiling.Spiral(16, 2, false, 256, 256)
	f := &Frame{
		Type: FrameI, WFA: w, BasisStates: basisStates, RootState: root,
		Tiling: &tl, UseNormalDomains: true, UseDeltaDomains: true,
	}

	got := roundTrip(t, h, f)
	if got.Tiling == nil {
		t.Fatal("tiling block lost")
	}
	if diff := cmp.Diff(tl.Order, got.Tiling.Order); diff != "" {
		t.Fatalf("tiling order (-want +got):\n%s", diff)
	}
}

func TestFrame_RoundTrip_VarianceTiling(t *testing.T) {
	h := frameHeader()
	h.Width, h.Height = 256, 256

	w, basisStates := testBasis(t)
	s2, _ := w.AppendState(15, true, false)
	s3, _ := w.AppendState(15, true, false)
	root, _ := w.AppendState(16, true, false)
	w.States[root].Children[0].TreeChild = s2
	w.States[root].Children[1].TreeChild = s3

	tl := tiling.Variance(16, 2, []float64{3, 1, 4, 2}, true)
	f := &Frame{
		Type: FrameI, WFA: w, BasisStates: basisStates, RootState: root,
		Tiling: &tl, UseNormalDomains: true, UseDeltaDomains: true,
	}

	got := roundTrip(t, h, f)
	if got.Tiling == nil {
		t.Fatal("tiling block lost")
	}
	if diff := cmp.Diff(tl.Order, got.Tiling.Order); diff != "" {
		t.Fatalf("tiling order (-want +got):\n%s", diff)
	}
}
