package prob

import (
	"math"

	"github.com/fiasco-codec/fiasco/acoder"
)

// RLEPool implements the run-length-encoding domain-pool family: a
// histogram over "number of edges used" in a range, a QAC
// sub-model for whether domain 0 participates, and adjusted-binary-coded
// differences between consecutive non-zero domain indices (so a sparse,
// clustered selection of high-index domains costs few bits).
type RLEPool struct {
	maxEdges    int
	edgeCounts  []uint // histogram of |used| in [0, maxEdges]
	edgeTotal   uint
	domainZero  acoder.QACIndex
	usableBound int
}

// NewRLEPool builds an RLE pool over up to maxEdges transitions per range.
func NewRLEPool(maxEdges int) *RLEPool {
	p := &RLEPool{maxEdges: maxEdges, edgeCounts: make([]uint, maxEdges+1)}
	for i := range p.edgeCounts {
		p.edgeCounts[i] = 1
	}
	p.edgeTotal = uint(len(p.edgeCounts))
	return p
}

func (p *RLEPool) Generate(level uint, yState int, usableStates int) []int {
	p.usableBound = usableStates
	out := make([]int, 0, usableStates+1)
	for s := 0; s < usableStates; s++ {
		out = append(out, s)
	}
	out = append(out, NoEdge)
	return out
}

func usedCount(used []int) int {
	n := 0
	for _, u := range used {
		if u == NoEdge {
			break
		}
		n++
	}
	return n
}

// adjustedBinaryBitsEstimate mirrors acoder.EncodeAdjustedBinary's bit
// width for value against maxval, without needing a bit writer: width is
// k or k+1 bits depending on which side of the threshold value falls.
func adjustedBinaryBitsEstimate(value, maxval uint32) float64 {
	n := maxval + 1
	k := uint(0)
	for (uint32(1) << (k + 1)) <= n {
		k++
	}
	r := n - (uint32(1) << k)
	threshold := maxval + 1 - 2*r
	if value < threshold {
		return float64(k)
	}
	return float64(k + 1)
}

func (p *RLEPool) Bits(domains, used []int, level uint, yState int) float64 {
	n := usedCount(used)
	bits := -math.Log2(float64(p.edgeCounts[n]) / float64(p.edgeTotal))

	hasZero := n > 0 && used[0] == 0
	if hasZero {
		bits += p.domainZero.Bits1()
	} else {
		bits += p.domainZero.Bits0()
	}

	// Adjusted-binary-coded ascending deltas between consecutive non-zero
	// domain indices, maxval bounded by the number of usable states.
	prev := 0
	maxval := uint32(p.usableBound)
	for i, d := range used {
		if d == NoEdge {
			break
		}
		if i == 0 && d == 0 {
			continue
		}
		bits += adjustedBinaryBitsEstimate(uint32(d-prev), maxval)
		prev = d
	}
	return bits
}

func (p *RLEPool) Update(domains, used []int, level uint, yState int) {
	n := usedCount(used)
	if n > p.maxEdges {
		n = p.maxEdges
	}
	p.edgeCounts[n]++
	p.edgeTotal++

	hasZero := n > 0 && used[0] == 0
	if hasZero {
		p.domainZero.Hit()
	} else {
		p.domainZero.Miss()
	}
}

func (p *RLEPool) Append(newState int, level uint) bool { return true }
func (p *RLEPool) Chroma(maxDomains int)                { p.usableBound = maxDomains }

func (p *RLEPool) Duplicate() DomainPool {
	cp := &RLEPool{
		maxEdges:    p.maxEdges,
		edgeCounts:  append([]uint(nil), p.edgeCounts...),
		edgeTotal:   p.edgeTotal,
		domainZero:  p.domainZero,
		usableBound: p.usableBound,
	}
	return cp
}
