package predict

import (
	"math"
	"testing"

	"github.com/fiasco-codec/fiasco/rpf"
	"github.com/fiasco-codec/fiasco/wfa"
)

func frameFrom(pixels []float64, w, h int) *FrameBuffer {
	return &FrameBuffer{Pixels: pixels, Width: w, Height: h}
}

func gradientFrame(w, h int) *FrameBuffer {
	p := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p[y*w+x] = float64(x*3 + y*7)
		}
	}
	return frameFrom(p, w, h)
}

func blockAt(f *FrameBuffer, x, y, w, h int) []float64 {
	out := make([]float64, 0, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			out = append(out, f.At(x+i, y+j))
		}
	}
	return out
}

func TestExhaustiveSearch_FindsZeroMotionForIdenticalBlock(t *testing.T) {
	ref := gradientFrame(32, 32)
	target := blockAt(ref, 8, 8, 8, 8)

	m := ExhaustiveSearch(ref, DefaultExtractBlock, target, 8, 8, 8, 8,
		SearchOptions{SearchRange: 4, Price: 1})
	if m.Dx != 0 || m.Dy != 0 {
		t.Fatalf("motion = (%d,%d), want (0,0)", m.Dx, m.Dy)
	}
	if m.SSE != 0 {
		t.Fatalf("SSE = %v, want 0", m.SSE)
	}
	for i, v := range m.Residual {
		if v != 0 {
			t.Fatalf("residual[%d] = %v, want 0", i, v)
		}
	}
}

func TestExhaustiveSearch_FindsKnownDisplacement(t *testing.T) {
	ref := gradientFrame(32, 32)
	// The target block sits 3 right, 2 down of where we search.
	target := blockAt(ref, 11, 10, 8, 8)

	m := ExhaustiveSearch(ref, DefaultExtractBlock, target, 8, 8, 8, 8,
		SearchOptions{SearchRange: 4, Price: 0.01})
	if m.Dx != 6 || m.Dy != 4 { // half-pel units
		t.Fatalf("motion = (%d,%d) half-pel, want (6,4)", m.Dx, m.Dy)
	}
}

func TestSearchBFrame_IdenticalFramesPicksZeroVector(t *testing.T) {
	past := gradientFrame(32, 32)
	future := gradientFrame(32, 32)
	target := blockAt(past, 8, 8, 8, 8)

	bc := SearchBFrame(past, future, DefaultExtractBlock, target, 8, 8, 8, 8,
		SearchOptions{SearchRange: 2, Price: 1})
	if bc.SSE != 0 {
		t.Fatalf("SSE = %v, want 0", bc.SSE)
	}
	if bc.MV.FDx != 0 && bc.MV.BDx != 0 {
		t.Fatalf("MV = %+v, want a zero vector", bc.MV)
	}
}

func TestModeBits_MatchFixedCodeLengths(t *testing.T) {
	cases := map[wfa.MotionType]float64{
		wfa.MVForward:      3,
		wfa.MVBackward:     3,
		wfa.MVInterpolated: 2,
		wfa.MVNone:         1,
	}
	for typ, want := range cases {
		if got := modeBits(typ); got != want {
			t.Fatalf("modeBits(%v) = %v, want %v", typ, got, want)
		}
	}
}

func TestMVComponentCode_RoundTrip(t *testing.T) {
	for d := -16; d <= 16; d++ {
		code, bits := MVComponentCode(d)
		var stream []int
		for i := int(bits) - 1; i >= 0; i-- {
			stream = append(stream, int((code>>uint(i))&1))
		}
		pos := 0
		got, ok := DecodeMVComponent(func() int {
			b := stream[pos]
			pos++
			return b
		})
		if !ok || got != d {
			t.Fatalf("d=%d: decoded %d (ok=%v)", d, got, ok)
		}
		if pos != len(stream) {
			t.Fatalf("d=%d: consumed %d of %d bits", d, pos, len(stream))
		}
	}
}

func TestMVCodes_PrefixFree(t *testing.T) {
	type c struct {
		code uint32
		bits uint
	}
	var codes []c
	for d := 0; d <= 16; d++ {
		code, bits := MVComponentCode(d)
		if d > 0 {
			code >>= 1 // strip the sign bit; magnitudes carry the prefix property
			bits--
		}
		codes = append(codes, c{code, bits})
	}
	for i := range codes {
		for j := range codes {
			if i == j {
				continue
			}
			a, b := codes[i], codes[j]
			if a.bits <= b.bits && a.code == b.code>>(b.bits-a.bits) {
				t.Fatalf("magnitude %d's code is a prefix of %d's", i, j)
			}
		}
	}
}

func TestPredictDC_RemovesMean(t *testing.T) {
	target := make([]float64, 16)
	for i := range target {
		target[i] = 96
	}
	res := PredictDC(target, 128, rpf.New(5, rpf.Range1_00, nil))
	if math.Abs(res.Weight-0.75) > 0.05 {
		t.Fatalf("weight = %v, want ~0.75", res.Weight)
	}
	for i, v := range res.Residual {
		if math.Abs(v) > 8 {
			t.Fatalf("residual[%d] = %v, want near 0", i, v)
		}
	}
	if res.SSE > 16*64 {
		t.Fatalf("SSE = %v, too large", res.SSE)
	}
}

func TestNormsTable_AccumulatesBottomUp(t *testing.T) {
	n := NewNormsTable()
	n.Set(3, 1, -1, 2.5)
	n.Set(3, 1, -1, 2.5) // overwrite, not add
	n.Set(4, 1, -1, 4.0)
	n.AccumulateFromChildren(5, []uint{3, 4}, 1, -1)
	if got := n.Get(5, 1, -1); got != 6.5 {
		t.Fatalf("accumulated = %v, want 6.5", got)
	}
}
