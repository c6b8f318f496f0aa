package acoder

import "github.com/fiasco-codec/fiasco/bitio"

// EncodeRice writes value using a Rice(k) code: value>>k as a unary
// run of 1-bits terminated by 0, followed by the k-bit residue.
func EncodeRice(w *bitio.Writer, value uint32, k uint) {
	q := value >> k
	for ; q > 0; q-- {
		w.PutBit(1)
	}
	w.PutBit(0)
	if k > 0 {
		w.PutBits(value&((1<<k)-1), int(k))
	}
}

// DecodeRice reads a Rice(k)-coded value.
func DecodeRice(r *bitio.Reader, k uint) uint32 {
	var q uint32
	for r.GetBit() == 1 {
		q++
	}
	residue := uint32(0)
	if k > 0 {
		residue = r.GetBits(int(k))
	}
	return (q << k) | residue
}

// adjustedBinaryParams returns the parameters for adjusted-binary
// coding over [0, maxval]: k = floor(log2(maxval+1)),
// r = (maxval+1) mod 2^k. Values below maxval-2r+1 take k bits; the
// remaining 2r values take k+1 bits.
func adjustedBinaryParams(maxval uint32) (k uint, r uint32) {
	n := maxval + 1
	for (uint32(1) << (k + 1)) <= n {
		k++
	}
	r = n - (uint32(1) << k)
	return k, r
}

// EncodeAdjustedBinary writes value (0 <= value <= maxval) using the
// adjusted-binary code for [0, maxval].
func EncodeAdjustedBinary(w *bitio.Writer, value, maxval uint32) {
	k, r := adjustedBinaryParams(maxval)
	threshold := maxval + 1 - 2*r // values below this take k bits
	if value < threshold {
		w.PutBits(value, int(k))
		return
	}
	shifted := value + threshold
	w.PutBits(shifted, int(k+1))
}

// DecodeAdjustedBinary reads a value coded by EncodeAdjustedBinary for
// the same maxval.
func DecodeAdjustedBinary(r *bitio.Reader, maxval uint32) uint32 {
	k, rr := adjustedBinaryParams(maxval)
	threshold := maxval + 1 - 2*rr
	prefix := r.GetBits(int(k))
	if prefix < (uint32(1)<<k)-rr {
		return prefix
	}
	extra := r.GetBit()
	full := (prefix << 1) | uint32(extra)
	return full - (uint32(1)<<(k+1)-2*rr) + threshold
}
