package prob

import (
	"math"

	"github.com/fiasco-codec/fiasco/rpf"
)

// CoeffModel is the capability set every coefficient probability model
// implements: predicted bit cost, adaptation, and duplication for the
// subdivider's trial-and-rollback discipline.
type CoeffModel interface {
	// Bits returns the predicted bit cost of coding value (already an
	// RPF code) for an edge at level, distinguishing the DC (state 0)
	// slot from normal slots.
	Bits(code int, level uint, dc bool) float64
	// Update adapts the model after code has actually been coded.
	Update(code int, level uint, dc bool)
	Duplicate() CoeffModel
}

// UniformCoeff costs every coefficient at a flat mantissa_bits+1 bits,
// with no adaptation. The cheapest-to-reason-about model.
type UniformCoeff struct {
	RPF   rpf.RPF
	DCRPF rpf.RPF
}

func (u UniformCoeff) Bits(code int, level uint, dc bool) float64 {
	if dc {
		return float64(u.DCRPF.MantissaBits + 1)
	}
	return float64(u.RPF.MantissaBits + 1)
}

func (u UniformCoeff) Update(code int, level uint, dc bool) {}

func (u UniformCoeff) Duplicate() CoeffModel { return u }

// AdaptiveCoeff is the AAC (adaptive-arithmetic-coding) coefficient model:
// one histogram per (level, DC/non-DC) kind, alphabet size
// 2^(mantissa_bits+1)+1 (the full RPF code space shifted up by one, plus
// RPF_ZERO mapped to index 0).
type AdaptiveCoeff struct {
	rpf      rpf.RPF
	dcRPF    rpf.RPF
	minLevel uint

	dcCounts []uint
	dcTotal  uint

	// counts[level-minLevel] is the non-DC histogram for that level.
	counts []([]uint)
	totals []uint
}

// NewAdaptiveCoeff builds an AAC coefficient model spanning
// [minLevel,maxLevel].
func NewAdaptiveCoeff(r, dcRPF rpf.RPF, minLevel, maxLevel uint) *AdaptiveCoeff {
	m := &AdaptiveCoeff{rpf: r, dcRPF: dcRPF, minLevel: minLevel}
	// The RPF code space is 0..2^(m+1)-1 plus the ZeroCode sentinel,
	// mapped to index 0 by codeIndex, so the alphabet is one wider than
	// the raw code range.
	dcAlphabet := (1 << (dcRPF.MantissaBits + 1)) + 1
	m.dcCounts = make([]uint, dcAlphabet)
	for i := range m.dcCounts {
		m.dcCounts[i] = 1
	}
	m.dcTotal = uint(dcAlphabet)

	levels := int(maxLevel-minLevel) + 1
	alphabet := (1 << (r.MantissaBits + 1)) + 1
	m.counts = make([][]uint, levels)
	m.totals = make([]uint, levels)
	for l := 0; l < levels; l++ {
		m.counts[l] = make([]uint, alphabet)
		for i := range m.counts[l] {
			m.counts[l][i] = 1
		}
		m.totals[l] = uint(alphabet)
	}
	return m
}

func codeIndex(code int, mantissaBits uint) int {
	if code == rpf.ZeroCode {
		return 0
	}
	return code + 1
}

func (m *AdaptiveCoeff) Bits(code int, level uint, dc bool) float64 {
	if dc {
		idx := codeIndex(code, m.dcRPF.MantissaBits)
		return -math.Log2(float64(m.dcCounts[idx]) / float64(m.dcTotal))
	}
	li := int(level - m.minLevel)
	idx := codeIndex(code, m.rpf.MantissaBits)
	return -math.Log2(float64(m.counts[li][idx]) / float64(m.totals[li]))
}

func (m *AdaptiveCoeff) Update(code int, level uint, dc bool) {
	if dc {
		idx := codeIndex(code, m.dcRPF.MantissaBits)
		m.dcCounts[idx]++
		m.dcTotal++
		return
	}
	li := int(level - m.minLevel)
	idx := codeIndex(code, m.rpf.MantissaBits)
	m.counts[li][idx]++
	m.totals[li]++
}

func (m *AdaptiveCoeff) Duplicate() CoeffModel {
	cp := &AdaptiveCoeff{rpf: m.rpf, dcRPF: m.dcRPF, minLevel: m.minLevel}
	cp.dcCounts = append([]uint(nil), m.dcCounts...)
	cp.dcTotal = m.dcTotal
	cp.counts = make([][]uint, len(m.counts))
	for i, row := range m.counts {
		cp.counts[i] = append([]uint(nil), row...)
	}
	cp.totals = append([]uint(nil), m.totals...)
	return cp
}
