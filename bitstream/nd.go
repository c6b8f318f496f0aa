package bitstream

import (
	"github.com/fiasco-codec/fiasco/acoder"
	"github.com/fiasco-codec/fiasco/bitio"
	"github.com/fiasco-codec/fiasco/wfa"
)

// ND block: a breadth-first arithmetic-coded tree of
// "prediction used" bits for every state inside the prediction window
// [PMinLevel,PMaxLevel], followed by the quantised DC coefficients of
// the predicted states as an arithmetic-coded array. Beneath a
// predicted state no further bits are spent: its whole subtree is the
// residual approximation.

const ndTreeScale = 50
const ndCoeffScale = 50

// ndStates walks f's tree breadth-first and returns the states that
// carry an ND decision bit, in coding order.
func ndStates(f *Frame, h *Header) []int {
	var out []int
	queue := []int{f.RootState}
	for qi := 0; qi < len(queue); qi++ {
		s := queue[qi]
		level := f.WFA.States[s].Level
		switch {
		case level > h.PMaxLevel:
			for label := 0; label < wfa.MaxLabels; label++ {
				if c := f.WFA.States[s].Children[label].TreeChild; c != wfa.Range {
					queue = append(queue, c)
				}
			}
		case level >= h.PMinLevel:
			out = append(out, s)
			if !f.WFA.States[s].Children[0].ND.Present {
				for label := 0; label < wfa.MaxLabels; label++ {
					c := f.WFA.States[s].Children[label].TreeChild
					if c != wfa.Range && f.WFA.States[c].Level >= h.PMinLevel {
						queue = append(queue, c)
					}
				}
			}
		}
	}
	return out
}

func writeND(w *bitio.Writer, h *Header, f *Frame) {
	model := acoder.NewModel(2, ndTreeScale, 0, treeInitCounts)
	enc := acoder.NewEncoder(w)

	used := 0
	for _, s := range ndStates(f, h) {
		if f.WFA.States[s].Children[0].ND.Present {
			enc.EncodeSymbol(1, model)
			used++
		} else {
			enc.EncodeSymbol(0, model)
		}
	}
	enc.Flush()

	if used == 0 {
		return
	}

	// Coefficients, in ascending state order, against the delta-DC
	// quantiser.
	alphabet := (1 << (h.DDCRPF.MantissaBits + 1)) + 1
	cm := acoder.NewModel(alphabet, ndCoeffScale, 0, nil)
	cenc := acoder.NewEncoder(w)
	for s := f.BasisStates; s < f.WFA.NumStates(); s++ {
		nd := f.WFA.States[s].Children[0].ND
		if nd.Present {
			cenc.EncodeSymbol(codeIndex(nd.Code), cm)
		}
	}
	cenc.Flush()
}

func readND(r *bitio.Reader, h *Header, f *Frame) error {
	model := acoder.NewModel(2, ndTreeScale, 0, treeInitCounts)
	dec := acoder.NewDecoder(r)

	used := 0
	// The traversal prunes beneath predicted states, so decisions must
	// be applied as they are decoded; ndStates cannot be precomputed.
	queue := []int{f.RootState}
	for qi := 0; qi < len(queue); qi++ {
		s := queue[qi]
		level := f.WFA.States[s].Level
		switch {
		case level > h.PMaxLevel:
			for label := 0; label < wfa.MaxLabels; label++ {
				if c := f.WFA.States[s].Children[label].TreeChild; c != wfa.Range {
					queue = append(queue, c)
				}
			}
		case level >= h.PMinLevel:
			if dec.DecodeSymbol(model) != 0 {
				for label := 0; label < wfa.MaxLabels; label++ {
					f.WFA.States[s].Children[label].ND.Present = true
				}
				used++
			} else {
				for label := 0; label < wfa.MaxLabels; label++ {
					c := f.WFA.States[s].Children[label].TreeChild
					if c != wfa.Range && f.WFA.States[c].Level >= h.PMinLevel {
						queue = append(queue, c)
					}
				}
			}
		}
	}
	dec.Finish()

	if used == 0 {
		return r.Err()
	}

	alphabet := (1 << (h.DDCRPF.MantissaBits + 1)) + 1
	cm := acoder.NewModel(alphabet, ndCoeffScale, 0, nil)
	cdec := acoder.NewDecoder(r)
	for s := f.BasisStates; s < f.WFA.NumStates(); s++ {
		if !f.WFA.States[s].Children[0].ND.Present {
			continue
		}
		code := indexCode(cdec.DecodeSymbol(cm))
		weight, err := h.DDCRPF.Dequantize(code)
		if err != nil {
			return err
		}
		for label := 0; label < wfa.MaxLabels; label++ {
			f.WFA.States[s].Children[label].ND.Code = code
			f.WFA.States[s].Children[label].ND.Weight = weight
		}
	}
	cdec.Finish()
	return r.Err()
}
