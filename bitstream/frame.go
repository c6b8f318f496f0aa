package bitstream

import (
	"fmt"

	"github.com/fiasco-codec/fiasco/acoder"
	"github.com/fiasco-codec/fiasco/bitio"
	"github.com/fiasco-codec/fiasco/fiascoerr"
	"github.com/fiasco-codec/fiasco/tiling"
	"github.com/fiasco-codec/fiasco/wfa"
)

// WriteFrame serialises one frame: Rice-coded frame header, optional
// tiling block, tree, optional ND block, MC block for non-I frames,
// transition matrices, weights.
func WriteFrame(w *bitio.Writer, h *Header, f *Frame) error {
	acoder.EncodeRice(w, uint32(f.WFA.NumStates()), riceK)
	acoder.EncodeRice(w, uint32(f.Type), riceK)
	acoder.EncodeRice(w, uint32(f.Number), riceK)
	w.ByteAlign()

	if f.Tiling != nil && f.Tiling.Exponent > 0 {
		w.PutBit(1)
		writeTiling(w, f.Tiling)
	} else {
		w.PutBit(0)
	}
	w.ByteAlign()

	writeTree(w, f)

	if ndUsed(f) {
		w.PutBit(1)
		writeND(w, h, f)
	} else {
		w.PutBit(0)
	}

	if f.Type != FrameI {
		writeMC(w, h, f)
	}

	if edges := writeMatrices(w, f); edges > 0 {
		writeWeights(w, h, f)
	}

	return w.Err()
}

// ReadFrame parses one frame into a fresh automaton seeded with base's
// basis states. base must carry exactly basisStates states, matching
// the basis the encoder started from.
func ReadFrame(r *bitio.Reader, h *Header, base *wfa.WFA, basisStates int) (*Frame, error) {
	states := int(acoder.DecodeRice(r, riceK))
	if states <= basisStates || states > wfa.MaxStates {
		return nil, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.ReadFrame",
			fmt.Errorf("state count %d out of range", states))
	}
	frameType := FrameType(acoder.DecodeRice(r, riceK))
	if frameType < FrameI || frameType > FrameB {
		return nil, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.ReadFrame",
			fmt.Errorf("unknown frame type %d", frameType))
	}
	number := int(acoder.DecodeRice(r, riceK))
	r.ByteAlign()

	f := &Frame{
		Type:        frameType,
		Number:      number,
		WFA:         base,
		BasisStates: basisStates,
	}

	if r.GetBit() == 1 {
		t, err := readTiling(r, h)
		if err != nil {
			return nil, err
		}
		f.Tiling = t
	}
	r.ByteAlign()

	root, err := readTree(r, h, base, states, basisStates)
	if err != nil {
		return nil, err
	}
	f.RootState = root
	if base.NumStates() != states {
		return nil, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.ReadFrame",
			fmt.Errorf("decoded %d states, header promises %d", base.NumStates(), states))
	}

	if r.GetBit() == 1 {
		if err := readND(r, h, f); err != nil {
			return nil, err
		}
	}

	if f.Type != FrameI {
		if err := readMC(r, h, f); err != nil {
			return nil, err
		}
	}

	markDeltaStates(f)

	edges, err := readMatrices(r, f)
	if err != nil {
		return nil, err
	}
	if edges > 0 {
		if err := readWeights(r, h, f); err != nil {
			return nil, err
		}
	}

	// Finals are not stored; restore the average-preserving invariant
	// bottom-up; state ids are already topological.
	for s := basisStates; s < base.NumStates(); s++ {
		base.RecomputeFinal(s)
	}

	if err := base.Validate(); err != nil {
		return nil, err
	}
	if r.Err() != nil {
		return nil, fiascoerr.New(fiascoerr.IO, "bitstream.ReadFrame", r.Err())
	}
	return f, nil
}

// ndUsed reports whether any state carries a nondeterministic
// prediction; the ND block vanishes entirely when none does.
func ndUsed(f *Frame) bool {
	for s := f.BasisStates; s < f.WFA.NumStates(); s++ {
		if f.WFA.States[s].Children[0].ND.Present {
			return true
		}
	}
	return false
}

// markDeltaStates flags every state at or beneath a predicted node as a
// delta (residual) state, reproducing the delta_state assignment the
// encoder made when it recursed with delta=true.
func markDeltaStates(f *Frame) {
	var mark func(s int, delta bool)
	mark = func(s int, delta bool) {
		st := &f.WFA.States[s]
		if st.Children[0].ND.Present || st.Children[0].MV.Type != wfa.MVNone {
			delta = true
		}
		st.DeltaState = delta
		for label := 0; label < wfa.MaxLabels; label++ {
			if c := st.Children[label].TreeChild; c != wfa.Range {
				mark(c, delta)
			}
		}
	}
	mark(f.RootState, false)
}

// writeTiling stores the tile permutation: the exponent, a
// variance-order flag, then either the visible tiles' original
// addresses (exponent bits each) or the spiral direction bit.
func writeTiling(w *bitio.Writer, t *tiling.Tiling) {
	acoder.EncodeRice(w, uint32(t.Exponent), riceK)
	if t.Method == tiling.VarianceAscending || t.Method == tiling.VarianceDescending {
		w.PutBit(1)
		for _, orig := range t.Order {
			if orig >= 0 {
				w.PutBits(uint32(orig), t.Exponent)
			}
		}
	} else {
		w.PutBit(0)
		putFlag(w, t.Method == tiling.SpiralAscending)
	}
}

func readTiling(r *bitio.Reader, h *Header) (*tiling.Tiling, error) {
	exponent := int(acoder.DecodeRice(r, riceK))
	rootLevel := wfa.LevelOfImage(h.Width, h.Height)
	if exponent <= 0 || uint(exponent) >= rootLevel {
		return nil, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.readTiling",
			fmt.Errorf("tiling exponent %d out of range", exponent))
	}
	if r.GetBit() == 1 {
		// Variance order: rebuild visibility, then read the permutation
		// for the visible positions.
		probe := tiling.Spiral(rootLevel, exponent, false, h.Width, h.Height)
		order := make([]int, len(probe.Order))
		for pos := range order {
			order[pos] = -1
			if probe.Order[pos] >= 0 {
				order[pos] = int(r.GetBits(exponent))
			}
		}
		return &tiling.Tiling{
			Exponent:  exponent,
			Method:    tiling.VarianceAscending,
			RootLevel: rootLevel,
			Order:     order,
		}, nil
	}
	ascending := r.GetBit() == 1
	t := tiling.Spiral(rootLevel, exponent, !ascending, h.Width, h.Height)
	return &t, nil
}
