package fiasco

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fiasco-codec/fiasco/bitstream"
	"github.com/fiasco-codec/fiasco/imageio"
	"github.com/fiasco-codec/fiasco/internal/testutil"
	"github.com/fiasco-codec/fiasco/tiling"
)

func TestEncodeDecode_SolidGrey(t *testing.T) {
	opts := DefaultOptions()
	opts.Title = "solid"
	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	im := testutil.Solid(32, 32, 128)
	data, err := enc.EncodeImage(im)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}

	h, frames, err := NewDecoder(nil).Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if h.Width != 32 || h.Height != 32 || h.Color || h.Frames != 1 {
		t.Fatalf("header = %+v", h)
	}
	if h.Title != "solid" {
		t.Fatalf("title = %q", h.Title)
	}
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}

	f := frames[0]
	if err := f.WFA.Validate(); err != nil {
		t.Fatalf("decoded automaton invalid: %v", err)
	}
	// The root approximates the flat image through the DC state: its
	// final distribution must reproduce the grey level.
	root := f.WFA.NumStates() - 1
	if got := f.WFA.States[root].FinalDistribution; math.Abs(got-128) > 4 {
		t.Fatalf("root final = %v, want ~128", got)
	}
}

func TestEncodeDecode_GradientStructureSurvives(t *testing.T) {
	opts := DefaultOptions()
	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	im := testutil.Gradient(16, 16)
	data, err := enc.EncodeImage(im)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}

	_, frames, err := NewDecoder(nil).Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	f := frames[0]
	if err := f.WFA.Validate(); err != nil {
		t.Fatalf("decoded automaton invalid: %v", err)
	}
	// Average preservation: the root's final must sit near the image
	// mean (127.5 for the full ramp).
	root := f.WFA.NumStates() - 1
	if got := f.WFA.States[root].FinalDistribution; math.Abs(got-127.5) > 16 {
		t.Fatalf("root final = %v, want near 127.5", got)
	}
}

func TestEncodeSequence_PFrameSmallerThanIFrame(t *testing.T) {
	opts := DefaultOptions()
	opts.PMinLevel = 5
	opts.PMaxLevel = 8
	opts.SearchRange = 2
	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	frame := testutil.Noise(16, 16, 7)
	single, err := enc.EncodeImage(frame)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}

	opts.Pattern = "IP"
	enc2, err := NewEncoder(opts)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	pair, err := enc2.EncodeSequence([]*imageio.Image{frame, frame})
	if err != nil {
		t.Fatalf("EncodeSequence: %v", err)
	}

	// The P frame predicts an identical reference with zero motion, so
	// its residual is empty; the pair must cost less than two intra
	// codings (one header amortised either way).
	if len(pair) >= 2*len(single) {
		t.Fatalf("IP pair is %d bytes, want < %d", len(pair), 2*len(single))
	}

	_, frames, err := NewDecoder(nil).Decode(pair)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frames) != 2 || frames[1].Type != bitstream.FrameP {
		t.Fatalf("decoded frames = %d, second type = %v", len(frames), frames[1].Type)
	}
}

func TestEncodeDecode_Color(t *testing.T) {
	opts := DefaultOptions()
	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	im := testutil.Solid(8, 8, 100)
	im.Color = true
	im.Bands[1] = make([]float64, 64)
	im.Bands[2] = make([]float64, 64)
	for i := 0; i < 64; i++ {
		im.Bands[1][i] = 120
		im.Bands[2][i] = 136
	}

	data, err := enc.EncodeImage(im)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}
	h, frames, err := NewDecoder(nil).Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !h.Color {
		t.Fatal("colour flag lost")
	}
	f := frames[0]
	root := f.WFA.NumStates() - 1
	if got, want := f.WFA.States[root].Level, h.ImageLevel(); got != want {
		t.Fatalf("root level = %d, want %d", got, want)
	}
}

func TestEncodeDecode_Tiling(t *testing.T) {
	opts := DefaultOptions()
	opts.TilingMethod = TilingSpiralAscending
	opts.TilingExponent = 2
	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	im := testutil.Solid(256, 256, 90)
	data, err := enc.EncodeImage(im)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}
	_, frames, err := NewDecoder(nil).Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	f := frames[0]
	if f.Tiling == nil {
		t.Fatal("tiling lost in round trip")
	}
	want := tiling.Spiral(16, 2, false, 256, 256)
	if diff := cmp.Diff(want.Order, f.Tiling.Order); diff != "" {
		t.Fatalf("tiling order (-want +got):\n%s", diff)
	}
}

func TestOptions_Validation(t *testing.T) {
	opts := DefaultOptions()
	opts.Quality = 0
	if _, err := NewEncoder(opts); err == nil {
		t.Fatal("quality 0 must be rejected")
	}

	opts = DefaultOptions()
	opts.Pattern = "IXP"
	if _, err := NewEncoder(opts); err == nil {
		t.Fatal("unknown frame-type letter must be rejected")
	}
}

func TestReferenceFrames_BFrameSeesBothSides(t *testing.T) {
	frames := []*imageio.Image{
		testutil.Solid(8, 8, 1), testutil.Solid(8, 8, 2), testutil.Solid(8, 8, 3),
	}
	types := []bitstream.FrameType{bitstream.FrameI, bitstream.FrameB, bitstream.FrameP}
	past, future := referenceFrames(frames, types, 1)
	if past != frames[0] || future != frames[2] {
		t.Fatal("B frame must reference the surrounding I and P frames")
	}
	past, future = referenceFrames(frames, types, 2)
	if past != frames[0] || future != nil {
		t.Fatal("P frame references only the preceding I/P frame")
	}
}

func TestFrameTypes_FirstFrameForcedI(t *testing.T) {
	opts := DefaultOptions()
	opts.Pattern = "PPB"
	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	types := enc.frameTypes(4)
	if types[0] != bitstream.FrameI {
		t.Fatalf("first frame type = %v, want I", types[0])
	}
	if types[1] != bitstream.FrameP || types[2] != bitstream.FrameB {
		t.Fatalf("types = %v", types)
	}
}
