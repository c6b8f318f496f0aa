package bitstream

import (
	"fmt"

	"github.com/fiasco-codec/fiasco/acoder"
	"github.com/fiasco-codec/fiasco/bitio"
	"github.com/fiasco-codec/fiasco/fiascoerr"
	"github.com/fiasco-codec/fiasco/wfa"
)

// Matrix block, three phases:
//
//  1. column 0: one QAC bit per leaf slot, "does this range use the DC
//     state", flushed and byte-aligned;
//  2. edge-count distribution: the per-slot edge-count histogram is
//     written with Rice codes, then each slot's count is coded against
//     that histogram as a static arithmetic model;
//  3. per-slot ascending domain indices, delta-coded with adjusted
//     binary against the admitted-domain mapping.
//
// The delta/normal admission flags select between two admitted-domain
// mappings, one for intra ranges and one for prediction residuals.

// edgeCountRiceK is the Rice parameter for the histogram counts:
// floor(log2(lastDomain)) - 2, clamped at zero.
func edgeCountRiceK(lastDomain int) uint {
	k := 0
	for v := lastDomain; v > 1; v >>= 1 {
		k++
	}
	k -= 2
	if k < 0 {
		k = 0
	}
	return uint(k)
}

// domainMappings builds the two admitted-domain mappings: mapping[state]
// is the number of admitted states preceding it. mapping1 admits
// non-delta domains (all of them when useDelta is set), mapping2 admits
// delta domains (all when useNormal is set); basis states are always
// admitted.
func domainMappings(f *Frame, useNormal, useDelta bool) (m1, m2 []int) {
	n := f.WFA.NumStates()
	m1 = make([]int, n+1)
	m2 = make([]int, n+1)
	n1, n2 := 0, 0
	for s := 0; s < n; s++ {
		m1[s], m2[s] = n1, n2
		st := &f.WFA.States[s]
		if st.DomainType && (s < f.BasisStates || useDelta || !st.DeltaState) {
			n1++
		}
		if st.DomainType && (s < f.BasisStates || useNormal || st.DeltaState) {
			n2++
		}
	}
	m1[n], m2[n] = n1, n2
	return m1, m2
}

// admittedList inverts a mapping: list[v] is the state with mapping
// value v.
func admittedList(f *Frame, m []int) []int {
	list := make([]int, 0, f.WFA.NumStates())
	for s := 0; s < f.WFA.NumStates(); s++ {
		if m[s+1] > m[s] {
			list = append(list, s)
		}
	}
	return list
}

// slotUsesDeltaMapping reports which mapping a slot codes against: the
// delta mapping for delta states and motion-compensated ranges.
func slotUsesDeltaMapping(f *Frame, sl leafSlot) bool {
	st := &f.WFA.States[sl.state]
	return st.DeltaState || st.Children[sl.label].MV.Type != wfa.MVNone
}

// writeMatrices returns the number of non-zero-column transitions
// written, which gates the weights block.
func writeMatrices(w *bitio.Writer, f *Frame) int {
	slots := leafSlots(f)

	// Phase 1: column 0 via QAC.
	{
		enc := acoder.NewEncoder(w)
		q := acoder.NewQACIndex()
		for _, sl := range slots {
			edges := f.WFA.States[sl.state].Children[sl.label].Edges
			if len(edges) > 0 && edges[0].Into == 0 {
				enc.EncodeQACBit(1, &q)
			} else {
				enc.EncodeQACBit(0, &q)
			}
		}
		enc.Flush()
	}

	// Phase 2: edge-count histogram plus per-slot counts.
	var counts [wfa.MaxEdges + 1]int
	maxCount := 0
	for _, sl := range slots {
		n := len(f.WFA.States[sl.state].Children[sl.label].Edges)
		counts[n]++
		if n > maxCount {
			maxCount = n
		}
	}
	acoder.EncodeRice(w, uint32(maxCount), 3)
	k := edgeCountRiceK(f.WFA.NumStates() - 1)
	for n := 0; n <= maxCount; n++ {
		acoder.EncodeRice(w, uint32(counts[n]), k)
	}
	if len(slots) > 0 {
		model := acoder.NewModel(maxCount+1, 0, 0, counts[:maxCount+1])
		enc := acoder.NewEncoder(w)
		for _, sl := range slots {
			enc.EncodeSymbol(len(f.WFA.States[sl.state].Children[sl.label].Edges), model)
		}
		enc.Flush()
	}

	// Phase 3: admission flags and delta-coded domain indices.
	putFlag(w, f.UseNormalDomains)
	putFlag(w, f.UseDeltaDomains)

	m1, m2 := domainMappings(f, f.UseNormalDomains, f.UseDeltaDomains)
	total := 0
	for _, sl := range slots {
		mapping := m1
		if slotUsesDeltaMapping(f, sl) {
			mapping = m2
		}
		maxValue := mapping[sl.state-1]
		last := 1
		for _, e := range f.WFA.States[sl.state].Children[sl.label].Edges {
			if e.Into == 0 {
				continue
			}
			total++
			v := mapping[e.Into]
			if maxValue > last {
				acoder.EncodeAdjustedBinary(w, uint32(v-last), uint32(maxValue-last))
			}
			last = v + 1
		}
	}
	return total + countDCEdges(f, slots)
}

func countDCEdges(f *Frame, slots []leafSlot) int {
	n := 0
	for _, sl := range slots {
		edges := f.WFA.States[sl.state].Children[sl.label].Edges
		if len(edges) > 0 && edges[0].Into == 0 {
			n++
		}
	}
	return n
}

// readMatrices mirrors writeMatrices, appending the decoded transitions
// with unit placeholder weights (the weights block fills them in).
// Returns the number of transitions decoded.
func readMatrices(r *bitio.Reader, f *Frame) (int, error) {
	slots := leafSlots(f)

	dcEdge := make([]bool, len(slots))
	{
		dec := acoder.NewDecoder(r)
		q := acoder.NewQACIndex()
		for i := range slots {
			dcEdge[i] = dec.DecodeQACBit(&q) == 1
		}
		dec.Finish()
	}

	maxCount := int(acoder.DecodeRice(r, 3))
	if maxCount > wfa.MaxEdges {
		return 0, fiascoerr.New(fiascoerr.StateLimit, "bitstream.readMatrices",
			fmt.Errorf("edge count %d exceeds %d", maxCount, wfa.MaxEdges))
	}
	k := edgeCountRiceK(f.WFA.NumStates() - 1)
	counts := make([]int, maxCount+1)
	for n := 0; n <= maxCount; n++ {
		counts[n] = int(acoder.DecodeRice(r, k))
	}
	edgeCount := make([]int, len(slots))
	if len(slots) > 0 {
		model := acoder.NewModel(maxCount+1, 0, 0, counts)
		dec := acoder.NewDecoder(r)
		for i := range slots {
			edgeCount[i] = dec.DecodeSymbol(model)
		}
		dec.Finish()
	}

	f.UseNormalDomains = r.GetBit() == 1
	f.UseDeltaDomains = r.GetBit() == 1

	m1, m2 := domainMappings(f, f.UseNormalDomains, f.UseDeltaDomains)
	l1, l2 := admittedList(f, m1), admittedList(f, m2)

	total := 0
	for i, sl := range slots {
		mapping, list := m1, l1
		if slotUsesDeltaMapping(f, sl) {
			mapping, list = m2, l2
		}
		maxValue := mapping[sl.state-1]
		nonDC := edgeCount[i]
		if dcEdge[i] {
			nonDC--
			if err := f.WFA.AppendEdge(sl.state, sl.label, 0, 0); err != nil {
				return 0, err
			}
			total++
		}
		if nonDC < 0 {
			return 0, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.readMatrices",
				fmt.Errorf("slot edge count below its DC flag"))
		}
		last := 1
		for e := 0; e < nonDC; e++ {
			v := last
			if maxValue > last {
				v = int(acoder.DecodeAdjustedBinary(r, uint32(maxValue-last))) + last
			}
			if v < 1 || v >= len(list) || v > maxValue {
				return 0, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.readMatrices",
					fmt.Errorf("domain index out of range"))
			}
			domain := list[v]
			if domain >= sl.state {
				return 0, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.readMatrices",
					fmt.Errorf("domain %d not below state %d", domain, sl.state))
			}
			if err := f.WFA.AppendEdge(sl.state, sl.label, domain, 0); err != nil {
				return 0, err
			}
			total++
			last = v + 1
		}
	}
	return total, r.Err()
}
