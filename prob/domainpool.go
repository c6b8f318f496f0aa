package prob

import (
	"math"
	"sort"

	"github.com/fiasco-codec/fiasco/acoder"
)

// NoEdge terminates a domain/used-domain list.
const NoEdge = -1

// DomainPool is the capability set every domain-pool family
// implements. All operations take the WFA's current usable-state count
// (usableStates) rather than the WFA itself, so this package stays
// free of an import cycle with wfa.
type DomainPool interface {
	// Generate produces the ordered, NoEdge-terminated candidate domain
	// list for a range at level, given the cross-band chroma state (or
	// NoEdge if none).
	Generate(level uint, yState int, usableStates int) []int
	// Bits predicts the bit cost of coding the chosen used subset against
	// the full domains list.
	Bits(domains []int, used []int, level uint, yState int) float64
	// Update adapts the model given the actually-chosen subset.
	Update(domains []int, used []int, level uint, yState int)
	// Append offers a newly-created state to the pool; returns whether it
	// was admitted.
	Append(newState int, level uint) bool
	// Chroma restricts the model to its maxDomains most-hit states, for
	// encoding a chroma band against a luma-trained pool.
	Chroma(maxDomains int)
	Duplicate() DomainPool
}

// ---------------------------------------------------------------------
// constant pool
// ---------------------------------------------------------------------

// ConstantPool always offers state 0 (the DC state) alone, at zero
// bit cost: the simplest domain-pool family.
type ConstantPool struct{}

func (ConstantPool) Generate(level uint, yState int, usableStates int) []int {
	return []int{0, NoEdge}
}
func (ConstantPool) Bits(domains, used []int, level uint, yState int) float64 { return 0 }
func (ConstantPool) Update(domains, used []int, level uint, yState int)      {}
func (ConstantPool) Append(newState int, level uint) bool                    { return false }
func (ConstantPool) Chroma(maxDomains int)                                   {}
func (c ConstantPool) Duplicate() DomainPool                                 { return c }

// ---------------------------------------------------------------------
// uniform pool
// ---------------------------------------------------------------------

// UniformPool offers every usable state with equal probability, costing
// -n*log2((n-1)/n) per not-picked candidate and -log2(1/n) per picked
// one.
type UniformPool struct{}

func (UniformPool) Generate(level uint, yState int, usableStates int) []int {
	out := make([]int, 0, usableStates+1)
	for s := 0; s < usableStates; s++ {
		out = append(out, s)
	}
	out = append(out, NoEdge)
	return out
}

func (UniformPool) Bits(domains, used []int, level uint, yState int) float64 {
	n := len(domains) - 1 // drop the NoEdge terminator
	if n <= 1 {
		return 0
	}
	bits := -float64(n) * math.Log2(float64(n-1)/float64(n))
	for _, d := range used {
		if d == NoEdge {
			break
		}
		bits -= math.Log2(1.0 / float64(n))
	}
	return bits
}

func (UniformPool) Update(domains, used []int, level uint, yState int) {}
func (UniformPool) Append(newState int, level uint) bool                { return true }
func (UniformPool) Chroma(maxDomains int)                               {}
func (u UniformPool) Duplicate() DomainPool                             { return u }

// ---------------------------------------------------------------------
// adaptive (QAC) pool
// ---------------------------------------------------------------------

// AdaptivePool maintains one QAC probability index per candidate state,
// escalated with the quasi-arithmetic-coding rule:
// domains not picked get Miss(), domains picked get Hit(). Generating the
// candidate list optionally appends a cross-band y-state for chroma
// matching.
type AdaptivePool struct {
	index []acoder.QACIndex
	y     acoder.QACIndex
}

// NewAdaptivePool builds an adaptive pool with maxStates candidate
// states preallocated; Generate and Append grow it as more states appear.
func NewAdaptivePool(maxStates int) *AdaptivePool {
	return &AdaptivePool{index: make([]acoder.QACIndex, maxStates)}
}

func (p *AdaptivePool) ensure(n int) {
	for len(p.index) < n {
		p.index = append(p.index, acoder.NewQACIndex())
	}
}

func (p *AdaptivePool) Generate(level uint, yState int, usableStates int) []int {
	p.ensure(usableStates)
	out := make([]int, 0, usableStates+2)
	for s := 0; s < usableStates; s++ {
		out = append(out, s)
	}
	if yState >= 0 && yState < usableStates {
		out = append(out, yState)
	}
	out = append(out, NoEdge)
	return out
}

func (p *AdaptivePool) isChosen(state int, used []int) bool {
	for _, u := range used {
		if u == NoEdge {
			break
		}
		if u == state {
			return true
		}
	}
	return false
}

func (p *AdaptivePool) Bits(domains, used []int, level uint, yState int) float64 {
	var bits float64
	for _, d := range domains {
		if d == NoEdge {
			break
		}
		idx := &p.index[d]
		if p.isChosen(d, used) {
			bits += idx.Bits1()
		} else {
			bits += idx.Bits0()
		}
	}
	return bits
}

func (p *AdaptivePool) Update(domains, used []int, level uint, yState int) {
	for _, d := range domains {
		if d == NoEdge {
			break
		}
		idx := &p.index[d]
		if p.isChosen(d, used) {
			idx.Hit()
		} else {
			idx.Miss()
		}
	}
}

func (p *AdaptivePool) Append(newState int, level uint) bool {
	p.ensure(newState + 1)
	return true
}

// Chroma keeps the maxDomains states with the lowest
// (most-escalated-toward-hit) probability index, i.e. the most
// frequently chosen states, and drives every other state's index to the
// miss end, so that picking one of those costs the most bits. Generate
// still lists every usable state.
func (p *AdaptivePool) Chroma(maxDomains int) {
	if maxDomains >= len(p.index) {
		return
	}
	type ranked struct {
		state int
		idx   int
	}
	rs := make([]ranked, len(p.index))
	for i, q := range p.index {
		rs[i] = ranked{state: i, idx: q.IndexValue()}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].idx < rs[j].idx })
	keep := make(map[int]bool, maxDomains)
	for i := 0; i < maxDomains; i++ {
		keep[rs[i].state] = true
	}
	for s := range p.index {
		if !keep[s] {
			p.index[s] = acoder.QACIndex{} // reset, then missed up to the clamp
			for i := 0; i < 1200; i++ {
				p.index[s].Miss()
			}
		}
	}
}

func (p *AdaptivePool) Duplicate() DomainPool {
	cp := &AdaptivePool{index: append([]acoder.QACIndex(nil), p.index...), y: p.y}
	return cp
}

// ---------------------------------------------------------------------
// basis pool
// ---------------------------------------------------------------------

// BasisPool is an AdaptivePool restricted to the embedded initial-basis
// states: QAC coding over a fixed, small
// candidate set.
type BasisPool struct {
	*AdaptivePool
	basisStates int
}

// NewBasisPool builds a basis pool over the first basisStates states.
func NewBasisPool(basisStates int) *BasisPool {
	return &BasisPool{AdaptivePool: NewAdaptivePool(basisStates), basisStates: basisStates}
}

func (p *BasisPool) Generate(level uint, yState int, usableStates int) []int {
	n := p.basisStates
	if usableStates < n {
		n = usableStates
	}
	return p.AdaptivePool.Generate(level, yState, n)
}

func (p *BasisPool) Duplicate() DomainPool {
	return &BasisPool{AdaptivePool: p.AdaptivePool.Duplicate().(*AdaptivePool), basisStates: p.basisStates}
}
