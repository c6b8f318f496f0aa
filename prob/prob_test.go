package prob

import (
	"math"
	"testing"

	"github.com/fiasco-codec/fiasco/rpf"
)

func TestTreeModel_UpdateIncreasesConfidence(t *testing.T) {
	m := NewTreeModel()
	before := m.Bits(true, 10)
	for i := 0; i < 50; i++ {
		m.Update(true, 10)
	}
	after := m.Bits(true, 10)
	if after >= before {
		t.Fatalf("repeatedly observing 'child' should lower its cost: before=%v after=%v", before, after)
	}
}

func TestTreeModel_Duplicate_Independent(t *testing.T) {
	m := NewTreeModel()
	dup := m.Duplicate()
	m.Update(true, 3)
	if m.counts[3] == dup.counts[3] {
		t.Fatal("duplicate must not see updates to the original")
	}
}

func TestUniformCoeff_FlatCost(t *testing.T) {
	u := UniformCoeff{RPF: rpf.New(5, rpf.Range1_00, nil), DCRPF: rpf.New(3, rpf.Range1_00, nil)}
	if got := u.Bits(0, 4, false); got != 6 {
		t.Fatalf("non-DC bits = %v, want 6", got)
	}
	if got := u.Bits(0, 4, true); got != 4 {
		t.Fatalf("DC bits = %v, want 4", got)
	}
}

func TestAdaptiveCoeff_UpdateLowersRepeatedCodeCost(t *testing.T) {
	r := rpf.New(4, rpf.Range1_00, nil)
	dc := rpf.New(3, rpf.Range1_00, nil)
	m := NewAdaptiveCoeff(r, dc, 0, 10)

	before := m.Bits(5, 3, false)
	for i := 0; i < 20; i++ {
		m.Update(5, 3, false)
	}
	after := m.Bits(5, 3, false)
	if after >= before {
		t.Fatalf("repeated code should become cheaper: before=%v after=%v", before, after)
	}
}

func TestDomainPools_GenerateBitsUpdateConsistent(t *testing.T) {
	pools := []DomainPool{
		ConstantPool{},
		UniformPool{},
		NewAdaptivePool(16),
		NewRLEPool(8),
		NewBasisPool(2),
	}
	for _, p := range pools {
		domains := p.Generate(3, NoEdge, 8)
		if len(domains) == 0 || domains[len(domains)-1] != NoEdge {
			t.Fatalf("%T: Generate must terminate with NoEdge", p)
		}
		var used []int
		for _, d := range domains {
			if d == NoEdge {
				break
			}
			used = append(used, d)
			break // pick exactly one domain
		}
		used = append(used, NoEdge)

		bits := p.Bits(domains, used, 3, NoEdge)
		if math.IsNaN(bits) || bits < 0 {
			t.Fatalf("%T: Bits returned invalid cost %v", p, bits)
		}
		p.Update(domains, used, 3, NoEdge)
		dup := p.Duplicate()
		if dup == nil {
			t.Fatalf("%T: Duplicate returned nil", p)
		}
	}
}

func TestAdaptivePool_Chroma_RestrictsCandidates(t *testing.T) {
	p := NewAdaptivePool(10)
	// Drive state 2 to be clearly the most frequently hit.
	for i := 0; i < 30; i++ {
		domains := p.Generate(1, NoEdge, 10)
		used := []int{2, NoEdge}
		p.Update(domains, used, 1, NoEdge)
	}
	p.Chroma(1)
	if p.index[2].IndexValue() >= p.index[5].IndexValue() {
		t.Fatalf("state 2 should remain cheaper than an unvisited state after Chroma restriction")
	}
}
