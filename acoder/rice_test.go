package acoder

import (
	"testing"

	"github.com/fiasco-codec/fiasco/bitio"
)

func TestRice_RoundTrip(t *testing.T) {
	for k := uint(0); k <= 16; k++ {
		w := bitio.NewWriter()
		var values []uint32
		for v := uint32(0); v < 300; v += 7 {
			values = append(values, v)
			EncodeRice(w, v, k)
		}
		r := bitio.NewReader(w.Bytes())
		for _, want := range values {
			if got := DecodeRice(r, k); got != want {
				t.Fatalf("k=%d: got %d, want %d", k, got, want)
			}
		}
	}
}

func TestAdjustedBinary_RoundTrip(t *testing.T) {
	for _, maxval := range []uint32{0, 1, 2, 3, 4, 5, 7, 8, 15, 16, 17, 100, 255, 1000} {
		w := bitio.NewWriter()
		for v := uint32(0); v <= maxval; v++ {
			EncodeAdjustedBinary(w, v, maxval)
		}
		r := bitio.NewReader(w.Bytes())
		for v := uint32(0); v <= maxval; v++ {
			if got := DecodeAdjustedBinary(r, maxval); got != v {
				t.Fatalf("maxval=%d: got %d, want %d", maxval, got, v)
			}
		}
	}
}
