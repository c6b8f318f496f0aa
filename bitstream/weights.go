package bitstream

import (
	"github.com/fiasco-codec/fiasco/acoder"
	"github.com/fiasco-codec/fiasco/bitio"
	"github.com/fiasco-codec/fiasco/prob"
)

// Weights block: every transition weight is written
// as its RPF code through an adaptive arithmetic model whose context is
// laid out as
//
//	0          DC weight (when any range uses the DC state)
//	offset1    delta DC weight (when present)
//	offset2..  normal weights, one context per range level
//	offset3..  delta weights, one context per range level
//
// with scaling 500 and a per-context alphabet sized by the matching
// RPF. The decoder recomputes the same layout from the already-decoded
// tree, prediction flags and matrices.

const weightsScale = 500

type weightContexts struct {
	offset1, offset2, offset3, offset4 int
	minLevel, dMinLevel                uint
	deltaApprox                        bool
}

// computeWeightContexts scans the leaf slots for the level ranges and
// DC usage that shape the context layout; encode and decode sides run
// the same scan so their models line up.
func computeWeightContexts(f *Frame) weightContexts {
	var c weightContexts
	for s := f.BasisStates; s < f.WFA.NumStates(); s++ {
		if f.WFA.States[s].DeltaState {
			c.deltaApprox = true
			break
		}
	}

	minL, maxL := uint(prob.MaxLevel), uint(0)
	dMinL, dMaxL := uint(prob.MaxLevel), uint(0)
	dc, dDC := false, false
	haveN, haveD := false, false

	for _, sl := range leafSlots(f) {
		st := &f.WFA.States[sl.state]
		level := st.Level
		edges := st.Children[sl.label].Edges
		hasDC := len(edges) > 0 && edges[0].Into == 0
		if c.deltaApprox && st.DeltaState {
			haveD = true
			if level < dMinL {
				dMinL = level
			}
			if level > dMaxL {
				dMaxL = level
			}
			dDC = dDC || hasDC
		} else {
			haveN = true
			if level < minL {
				minL = level
			}
			if level > maxL {
				maxL = level
			}
			dc = dc || hasDC
		}
	}

	if dc {
		c.offset1 = 1
	}
	c.offset2 = c.offset1
	if dDC {
		c.offset2++
	}
	c.offset3 = c.offset2
	if haveN {
		c.offset3 += int(maxL-minL) + 1
	}
	c.offset4 = c.offset3
	if haveD {
		c.offset4 += int(dMaxL-dMinL) + 1
	}
	c.minLevel, c.dMinLevel = minL, dMinL
	return c
}

// context returns the model index for one edge.
func (c *weightContexts) context(f *Frame, sl leafSlot, domain int) int {
	delta := c.deltaApprox && f.WFA.States[sl.state].DeltaState
	if domain == 0 {
		if delta {
			return c.offset1
		}
		return 0
	}
	if delta {
		return c.offset3 + int(f.WFA.States[sl.state].Level-c.dMinLevel)
	}
	return c.offset2 + int(f.WFA.States[sl.state].Level-c.minLevel)
}

func weightModels(h *Header, c *weightContexts) []*acoder.Model {
	models := make([]*acoder.Model, c.offset4)
	for i := range models {
		var mantissa uint
		switch {
		case i < c.offset1:
			mantissa = h.DCRPF.MantissaBits
		case i < c.offset2:
			mantissa = h.DDCRPF.MantissaBits
		case i < c.offset3:
			mantissa = h.RPF.MantissaBits
		default:
			mantissa = h.DRPF.MantissaBits
		}
		alphabet := (1 << (mantissa + 1)) + 1
		models[i] = acoder.NewModel(alphabet, weightsScale, 0, nil)
	}
	return models
}

func writeWeights(w *bitio.Writer, h *Header, f *Frame) {
	c := computeWeightContexts(f)
	if c.offset4 == 0 {
		return
	}
	models := weightModels(h, &c)
	enc := acoder.NewEncoder(w)
	for _, sl := range leafSlots(f) {
		delta := c.deltaApprox && f.WFA.States[sl.state].DeltaState
		for _, e := range f.WFA.States[sl.state].Children[sl.label].Edges {
			q := h.rpfFor(delta, e.Into == 0)
			enc.EncodeSymbol(codeIndex(q.Quantize(e.Weight)), models[c.context(f, sl, e.Into)])
		}
	}
	enc.Flush()
}

func readWeights(r *bitio.Reader, h *Header, f *Frame) error {
	c := computeWeightContexts(f)
	if c.offset4 == 0 {
		return nil
	}
	models := weightModels(h, &c)
	dec := acoder.NewDecoder(r)
	for _, sl := range leafSlots(f) {
		delta := c.deltaApprox && f.WFA.States[sl.state].DeltaState
		edges := f.WFA.States[sl.state].Children[sl.label].Edges
		for i := range edges {
			q := h.rpfFor(delta, edges[i].Into == 0)
			code := indexCode(dec.DecodeSymbol(models[c.context(f, sl, edges[i].Into)]))
			weight, err := q.Dequantize(code)
			if err != nil {
				return err
			}
			edges[i].Weight = weight
		}
	}
	dec.Finish()
	return r.Err()
}
