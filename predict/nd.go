package predict

import (
	"github.com/fiasco-codec/fiasco/rpf"
)

// DCResult is the I-frame nondeterministic-prediction alternative:
// project the range onto state 0 (the DC state), quantise the
// projection through the DC-RPF, and return the residual for recursive
// approximation with delta=true.
type DCResult struct {
	WeightCode int
	Weight     float64
	Residual   []float64
	SSE        float64
}

// PredictDC computes the best DC weight for target against the
// constant state-0 image (value dcValue at every pixel) by projecting
// the range onto state 0, quantised through dcRPF.
func PredictDC(target []float64, dcValue float64, dcRPF rpf.RPF) DCResult {
	n := len(target)
	if n == 0 {
		return DCResult{}
	}
	var sum float64
	for _, v := range target {
		sum += v
	}
	proj := sum / (float64(n) * dcValue)
	if dcValue == 0 {
		proj = 0
	}

	bound := dcRPF.Range()
	if proj > bound {
		proj = bound
	} else if proj < -bound {
		proj = -bound
	}

	code := dcRPF.Quantize(proj)
	weight, _ := dcRPF.Dequantize(code)

	res := make([]float64, n)
	var sse float64
	for i, v := range target {
		r := v - weight*dcValue
		res[i] = r
		sse += r * r
	}
	return DCResult{WeightCode: code, Weight: weight, Residual: res, SSE: sse}
}

// NDEligible reports whether bintree level l falls within the
// [pMinLevel,pMaxLevel] window ND prediction is restricted to.
func NDEligible(level, pMinLevel, pMaxLevel uint) bool {
	return level >= pMinLevel && level <= pMaxLevel
}
