package bitstream

import (
	"fmt"

	"github.com/fiasco-codec/fiasco/bitio"
	"github.com/fiasco-codec/fiasco/fiascoerr"
	"github.com/fiasco-codec/fiasco/predict"
	"github.com/fiasco-codec/fiasco/wfa"
)

// MC block: a breadth-first tree of motion-compensation
// types over the prediction window, raw-bit coded with the fixed mode
// codes (P frames: NONE=1, FORWARD=0; B frames: NONE=1,
// FORWARD=000, BACKWARD=001, INTERPOLATED=01), followed by the vector
// coordinates in the MPEG/H.263 VLC. Both halves are byte-aligned.

// mcWalk visits the states of f's tree that carry an MC decision, in
// breadth-first coding order, calling visit for each; visit returns the
// decoded-or-encoded type so the walk can prune beneath predicted
// states.
func mcWalk(f *Frame, h *Header, visit func(s int) wfa.MotionType) {
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
			if visit(s) == wfa.MVNone {
				for label := 0; label < wfa.MaxLabels; label++ {
					c := f.WFA.States[s].Children[label].TreeChild
					if c != wfa.Range && f.WFA.States[c].Level >= h.PMinLevel {
						queue = append(queue, c)
					}
				}
			}
		}
	}
}

func writeMCType(w *bitio.Writer, frameType FrameType, t wfa.MotionType) {
	if frameType == FrameP {
		if t == wfa.MVNone {
			w.PutBit(1)
		} else {
			w.PutBit(0)
		}
		return
	}
	switch t {
	case wfa.MVNone:
		w.PutBit(1)
	case wfa.MVForward:
		w.PutBits(0, 3)
	case wfa.MVBackward:
		w.PutBits(1, 3)
	case wfa.MVInterpolated:
		w.PutBits(1, 2)
	}
}

func readMCType(r *bitio.Reader, frameType FrameType) wfa.MotionType {
	if r.GetBit() == 1 {
		return wfa.MVNone
	}
	if frameType == FrameP {
		return wfa.MVForward
	}
	if r.GetBit() == 1 {
		return wfa.MVInterpolated
	}
	if r.GetBit() == 1 {
		return wfa.MVBackward
	}
	return wfa.MVForward
}

func putMVComponent(w *bitio.Writer, d int) {
	code, bits := predict.MVComponentCode(d)
	w.PutBits(code, int(bits))
}

func writeMC(w *bitio.Writer, h *Header, f *Frame) {
	mcWalk(f, h, func(s int) wfa.MotionType {
		t := f.WFA.States[s].Children[0].MV.Type
		writeMCType(w, f.Type, t)
		return t
	})
	w.ByteAlign()

	for s := f.BasisStates; s < f.WFA.NumStates(); s++ {
		mv := f.WFA.States[s].Children[0].MV
		switch mv.Type {
		case wfa.MVForward:
			putMVComponent(w, mv.FDx)
			putMVComponent(w, mv.FDy)
		case wfa.MVBackward:
			putMVComponent(w, mv.BDx)
			putMVComponent(w, mv.BDy)
		case wfa.MVInterpolated:
			putMVComponent(w, mv.FDx)
			putMVComponent(w, mv.FDy)
			putMVComponent(w, mv.BDx)
			putMVComponent(w, mv.BDy)
		}
	}
	w.ByteAlign()
}

func readMC(r *bitio.Reader, h *Header, f *Frame) error {
	mcWalk(f, h, func(s int) wfa.MotionType {
		t := readMCType(r, f.Type)
		for label := 0; label < wfa.MaxLabels; label++ {
			f.WFA.States[s].Children[label].MV.Type = t
		}
		return t
	})
	r.ByteAlign()

	nextBit := func() int { return r.GetBit() }
	for s := f.BasisStates; s < f.WFA.NumStates(); s++ {
		mv := &f.WFA.States[s].Children[0].MV
		if mv.Type == wfa.MVNone {
			continue
		}
		var coords [4]int
		n := 2
		if mv.Type == wfa.MVInterpolated {
			n = 4
		}
		for i := 0; i < n; i++ {
			d, ok := predict.DecodeMVComponent(nextBit)
			if !ok {
				return fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.readMC",
					fmt.Errorf("bad motion vector code"))
			}
			coords[i] = d
		}
		switch mv.Type {
		case wfa.MVForward:
			mv.FDx, mv.FDy = coords[0], coords[1]
		case wfa.MVBackward:
			mv.BDx, mv.BDy = coords[0], coords[1]
		case wfa.MVInterpolated:
			mv.FDx, mv.FDy, mv.BDx, mv.BDy = coords[0], coords[1], coords[2], coords[3]
		}
		f.WFA.States[s].Children[1].MV = *mv
	}
	r.ByteAlign()
	return r.Err()
}
