package bitstream

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fiasco-codec/fiasco/acoder"
	"github.com/fiasco-codec/fiasco/bitio"
	"github.com/fiasco-codec/fiasco/fiascoerr"
	"github.com/fiasco-codec/fiasco/rpf"
)

func sampleHeader() *Header {
	return &Header{
		Title:           "t",
		Comment:         "c",
		BasisName:       "default",
		MaxStates:       4096,
		Color:           true,
		Width:           176,
		Height:          144,
		ChromaMaxStates: 40,
		PMinLevel:       8,
		PMaxLevel:       10,
		Frames:          3,
		Smoothing:       70,
		RPF:             rpf.RPF{MantissaBits: 5, RangeE: rpf.Range1_00},
		DCRPF:           rpf.RPF{MantissaBits: 5, RangeE: rpf.Range1_00},
		DRPF:            rpf.RPF{MantissaBits: 3, RangeE: rpf.Range1_50},
		DDCRPF:          rpf.RPF{MantissaBits: 6, RangeE: rpf.Range0_75},
		FPS:             25,
		SearchRange:     16,
		HalfPixel:       true,
		BAsPastRef:      false,
	}
}

func TestHeader_RoundTrip(t *testing.T) {
	h := sampleHeader()
	w := bitio.NewWriter()
	if err := WriteHeader(w, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if w.BitsProcessed()%8 != 0 {
		t.Fatalf("header not byte-aligned: %d bits", w.BitsProcessed())
	}

	got, err := ReadHeader(bitio.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if diff := cmp.Diff(h, got); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestHeader_RoundTrip_GreySingleFrame(t *testing.T) {
	h := sampleHeader()
	h.Color = false
	h.ChromaMaxStates = 0
	h.Frames = 1
	// Motion fields must not be written for a single frame.
	h.FPS = 0
	h.SearchRange = 0
	h.HalfPixel = false

	w := bitio.NewWriter()
	if err := WriteHeader(w, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	got, err := ReadHeader(bitio.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if diff := cmp.Diff(h, got); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestHeader_BadMagic(t *testing.T) {
	if _, err := ReadHeader(bitio.NewReader([]byte("NOTFIASCO\n"))); !fiascoerr.Is(err, fiascoerr.FormatInvalid) {
		t.Fatalf("err = %v, want FormatInvalid", err)
	}
}

func TestHeader_RejectsNewerRelease(t *testing.T) {
	w := bitio.NewWriter()
	for i := 0; i < len(Magic); i++ {
		w.PutBits(uint32(Magic[i]), 8)
	}
	w.PutBits('\n', 8)
	w.PutBits(0, 8) // empty basis name
	acoder.EncodeRice(w, BinfileRelease+1, riceK)
	w.ByteAlign()

	if _, err := ReadHeader(bitio.NewReader(w.Bytes())); !fiascoerr.Is(err, fiascoerr.FormatInvalid) {
		t.Fatalf("err = %v, want FormatInvalid", err)
	}
}
