package bitio

import (
	"math/rand"
	"testing"
)

func TestWriter_Reader_RoundTrip_RandomBits(t *testing.T) {
	const numBits = 2000
	rng := rand.New(rand.NewSource(42))
	expected := make([]int, numBits)

	w := NewWriter()
	for i := 0; i < numBits; i++ {
		bit := rng.Intn(2)
		expected[i] = bit
		w.PutBit(bit)
	}
	data := w.Bytes()

	r := NewReader(data)
	for i := 0; i < numBits; i++ {
		got := r.GetBit()
		if got != expected[i] {
			t.Fatalf("bit %d: got %d, want %d", i, got, expected[i])
		}
	}
}

func TestWriter_Reader_RoundTrip_MultiBitValues(t *testing.T) {
	type entry struct {
		value uint32
		n     int
	}
	rng := rand.New(rand.NewSource(7))
	entries := make([]entry, 300)
	w := NewWriter()
	for i := range entries {
		n := rng.Intn(32) + 1
		v := rng.Uint32() & ((1 << uint(n)) - 1)
		entries[i] = entry{value: v, n: n}
		w.PutBits(v, n)
	}
	r := NewReader(w.Bytes())
	for i, e := range entries {
		got := r.GetBits(e.n)
		if got != e.value {
			t.Fatalf("entry %d: got %d, want %d (n=%d)", i, got, e.value, e.n)
		}
	}
}

func TestWriter_ByteAlign(t *testing.T) {
	w := NewWriter()
	w.PutBits(0b101, 3)
	w.ByteAlign()
	if w.BitsProcessed()%8 != 0 {
		t.Fatalf("BitsProcessed() = %d, want multiple of 8", w.BitsProcessed())
	}
	if len(w.Bytes()) != 1 {
		t.Fatalf("len(Bytes()) = %d, want 1", len(w.Bytes()))
	}
	if w.Bytes()[0] != 0b101_00000 {
		t.Fatalf("Bytes()[0] = %08b, want %08b", w.Bytes()[0], 0b101_00000)
	}
}

func TestReader_ByteAlign(t *testing.T) {
	w := NewWriter()
	w.PutBits(0b11, 2)
	w.ByteAlign()
	w.PutBits(0xAB, 8)
	data := w.Bytes()

	r := NewReader(data)
	r.GetBits(2)
	r.ByteAlign()
	if got := r.GetBits(8); got != 0xAB {
		t.Fatalf("got %#x, want 0xAB", got)
	}
}

func TestWriter_BitsProcessed(t *testing.T) {
	w := NewWriter()
	for i := 0; i < 37; i++ {
		w.PutBit(i % 2)
	}
	if w.BitsProcessed() != 37 {
		t.Fatalf("BitsProcessed() = %d, want 37", w.BitsProcessed())
	}
}
