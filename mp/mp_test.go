package mp

import (
	"math"
	"testing"

	"github.com/fiasco-codec/fiasco/ip"
	"github.com/fiasco-codec/fiasco/prob"
	"github.com/fiasco-codec/fiasco/rpf"
	"github.com/fiasco-codec/fiasco/wfa"
)

func testSetup() (*ip.Engine, *wfa.WFA) {
	w := wfa.New()
	e := ip.New(4, 3)
	e.AppendState(w, 0)
	return e, w
}

func constantTarget(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestApproximate_ConstantRangeUsesDCState(t *testing.T) {
	e, w := testSetup()
	target := Target{Pixels: constantTarget(16, 128), Level: 4, YState: wfa.Range}

	res := Approximate(e, w, target,
		prob.ConstantPool{}, prob.UniformCoeff{RPF: rpf.New(3, rpf.Range1_50, nil), DCRPF: rpf.New(5, rpf.Range1_00, nil)},
		rpf.New(3, rpf.Range1_50, nil), rpf.New(5, rpf.Range1_00, nil),
		1.0, 4, nil, false, w.NumStates())

	if !res.OK {
		t.Fatal("constant range must be approximable")
	}
	if len(res.Domains) != 1 || res.Domains[0] != 0 {
		t.Fatalf("domains = %v, want [0]", res.Domains)
	}
	if math.Abs(res.Weights[0]-1.0) > 0.05 {
		t.Fatalf("weight = %v, want ~1", res.Weights[0])
	}
	if res.Error > 1 {
		t.Fatalf("residual error = %v, want ~0", res.Error)
	}
}

func TestApproximate_ZeroRangeCommitsZeroEdges(t *testing.T) {
	e, w := testSetup()
	target := Target{Pixels: constantTarget(16, 0), Level: 4, YState: wfa.Range}

	res := Approximate(e, w, target,
		prob.ConstantPool{}, prob.UniformCoeff{RPF: rpf.New(3, rpf.Range1_50, nil), DCRPF: rpf.New(5, rpf.Range1_00, nil)},
		rpf.New(3, rpf.Range1_50, nil), rpf.New(5, rpf.Range1_00, nil),
		1.0, 4, nil, false, w.NumStates())

	if !res.OK {
		t.Fatal("zero range must be approximable")
	}
	if len(res.Domains) != 0 {
		t.Fatalf("domains = %v, want none", res.Domains)
	}
	if res.Error != 0 {
		t.Fatalf("error = %v, want 0", res.Error)
	}
}

func TestApproximate_ExcludedDomainIsSkipped(t *testing.T) {
	e, w := testSetup()
	target := Target{Pixels: constantTarget(16, 128), Level: 4, YState: wfa.Range}

	res := Approximate(e, w, target,
		prob.ConstantPool{}, prob.UniformCoeff{RPF: rpf.New(3, rpf.Range1_50, nil), DCRPF: rpf.New(5, rpf.Range1_00, nil)},
		rpf.New(3, rpf.Range1_50, nil), rpf.New(5, rpf.Range1_00, nil),
		1.0, 4, []int{0}, false, w.NumStates())

	for _, d := range res.Domains {
		if d == 0 {
			t.Fatal("excluded domain 0 was chosen")
		}
	}
}

func TestApproximateWithRetries_NeverWorse(t *testing.T) {
	e, w := testSetup()
	// A second basis-like state so the retry pass has something to drop.
	id, _ := w.AppendState(4, true, false)
	w.SetEdges(id, 0, []wfa.Transition{{Into: 0, Weight: 0.5}})
	w.SetEdges(id, 1, []wfa.Transition{{Into: 0, Weight: -0.5}})
	w.RecomputeFinal(id)
	e.AppendState(w, id)

	target := Target{Pixels: constantTarget(16, 128), Level: 4, YState: wfa.Range}
	coeff := prob.UniformCoeff{RPF: rpf.New(3, rpf.Range1_50, nil), DCRPF: rpf.New(5, rpf.Range1_00, nil)}
	pool := prob.NewAdaptivePool(w.NumStates())

	plain := Approximate(e, w, target, pool.Duplicate(), coeff,
		rpf.New(3, rpf.Range1_50, nil), rpf.New(5, rpf.Range1_00, nil),
		1.0, 4, nil, false, w.NumStates())
	retried := ApproximateWithRetries(e, w, target, pool.Duplicate(), coeff,
		rpf.New(3, rpf.Range1_50, nil), rpf.New(5, rpf.Range1_00, nil),
		1.0, 4, nil, false, w.NumStates(),
		RetryOptions{SecondDomainBlock: true, CheckUnderflow: true, CheckOverflow: true})

	if !plain.OK || !retried.OK {
		t.Fatal("both searches must succeed")
	}
	if retried.TotalCost > plain.TotalCost {
		t.Fatalf("retries made the result worse: %v > %v", retried.TotalCost, plain.TotalCost)
	}
}

func TestSaturatedAndUnderflowed(t *testing.T) {
	r := rpf.New(3, rpf.Range1_00, nil)
	if !Underflowed(rpf.ZeroCode) {
		t.Fatal("ZeroCode must report underflow")
	}
	if Underflowed(3) {
		t.Fatal("regular code misreported as underflow")
	}
	sat := r.Quantize(10.0)
	if !Saturated(sat, r) {
		t.Fatalf("code %d from saturating input must report saturation", sat)
	}
}
