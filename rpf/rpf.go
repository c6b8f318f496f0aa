// Package rpf implements the Reduced Precision Format: a parameterised
// fixed-point quantisation of a real number bounded by rpf.Range, built
// by retaining the top mantissa_bits bits of the IEEE-754
// single-precision representation of the value scaled into [-1, +1].
// Rounding takes the discarded low bit into account and overlong
// mantissas saturate with their sign preserved.
package rpf

import (
	"math"

	"github.com/fiasco-codec/fiasco/fiascoerr"
)

// Range is one of the four fixed scale factors a value can be quantised
// against.
type Range int

const (
	Range0_75 Range = iota
	Range1_50
	Range2_00
	Range1_00
)

func (r Range) value() float64 {
	switch r {
	case Range0_75:
		return 0.75
	case Range1_50:
		return 1.50
	case Range2_00:
		return 2.00
	case Range1_00:
		return 1.00
	default:
		return 1.00
	}
}

// RPF is a reduced-precision-format parameter set: mantissa_bits in
// [2,8] and one of the four supported ranges.
type RPF struct {
	MantissaBits uint
	RangeE       Range
}

// ZeroCode is the sentinel returned by Quantize for an exact-zero
// mantissa, and consumed by Dequantize to mean exactly 0.
const ZeroCode = -1

// New builds an RPF, clamping out-of-range mantissa bit counts to
// [2,8]. warn, if non-nil, receives the clamp warning; pass nil to
// suppress it.
func New(mantissaBits uint, rangeE Range, warn func(string)) RPF {
	if mantissaBits < 2 {
		if warn != nil {
			warn("rpf: mantissa bits below 2, clamping to 2")
		}
		mantissaBits = 2
	} else if mantissaBits > 8 {
		if warn != nil {
			warn("rpf: mantissa bits above 8, clamping to 8")
		}
		mantissaBits = 8
	}
	return RPF{MantissaBits: mantissaBits, RangeE: rangeE}
}

// Range returns the scale factor this RPF quantises against.
func (r RPF) Range() float64 { return r.RangeE.value() }

// Quantize converts x (which must lie in [-Range(), +Range()]) into its
// reduced-precision integer code. A mantissa that rounds to zero yields
// ZeroCode; a mantissa that overflows the representable width saturates
// to the maximum magnitude with sign preserved.
func (r RPF) Quantize(x float64) int {
	f := float32(x / r.Range())
	bits := math.Float32bits(f)

	sign := uint32((bits >> 31) & 1)
	e := uint32((bits >> 23) & 0xFF)
	exponent := int(e) - 126
	var mantissa uint64 = uint64(bits & 0x7FFFFF)

	mantissa >>= 1
	mantissa |= 1 << 22

	if exponent > 0 {
		shift := uint(exponent)
		if shift > 63 {
			shift = 63
		}
		mantissa <<= shift
	} else if exponent < 0 {
		shift := uint(-exponent)
		if shift > 63 {
			mantissa = 0
		} else {
			mantissa >>= shift
		}
	}

	finalShift := int(22 - r.MantissaBits)
	if finalShift >= 0 {
		mantissa >>= uint(finalShift)
	} else {
		mantissa <<= uint(-finalShift)
	}

	mantissa++ // round last bit
	mantissa >>= 1

	if mantissa == 0 {
		return ZeroCode
	}
	limit := uint64(1) << r.MantissaBits
	if mantissa >= limit {
		return int(sign)
	}
	return int(((mantissa & (limit - 1)) << 1) | uint64(sign))
}

// Dequantize recovers the real value a code represents. It errors with
// fiascoerr.FormatInvalid if binary is outside the representable range
// for this RPF's mantissa width: such codes only arise from a corrupt
// bitstream.
func (r RPF) Dequantize(binary int) (float64, error) {
	if binary == ZeroCode {
		return 0, nil
	}
	limit := 1 << (r.MantissaBits + 1)
	if binary < 0 || binary >= limit {
		return 0, fiascoerr.New(fiascoerr.FormatInvalid, "rpf.Dequantize", nil)
	}

	sign := binary & 1
	mantissa := uint32(binary&((1<<(r.MantissaBits+1))-1)) >> 1
	mantissa <<= (23 - r.MantissaBits)
	exponent := 0

	var f float32
	if mantissa == 0 {
		if sign != 0 {
			f = -1.0
		} else {
			f = 1.0
		}
	} else {
		for mantissa&(1<<22) == 0 {
			exponent--
			mantissa <<= 1
		}
		mantissa <<= 1

		e := uint32(exponent+126) & 0xFF
		bits := (uint32(sign) << 31) | (e << 23) | (mantissa & 0x7FFFFF)
		f = math.Float32frombits(bits)
	}

	return float64(f) * r.Range(), nil
}
