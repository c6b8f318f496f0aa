// Package acoder implements the codec's entropy-coding primitives: the
// full adaptive arithmetic coder, the quasi-arithmetic coder (QAC),
// Rice codes and adjusted-binary codes. The arithmetic coder keeps its
// interval in 16-bit registers with explicit rescale/underflow
// bookkeeping so encoder and decoder stay in bit-exact step.
package acoder

import (
	"math"

	"github.com/fiasco-codec/fiasco/bitio"
)

// 16-bit interval constants.
const (
	intervalLow          = 0x0000
	intervalFirstQuarter = 0x4000
	intervalHalf         = 0x8000
	intervalThirdQuarter = 0xC000
	intervalHigh         = 0xFFFF
)

// Encoder is the adaptive arithmetic encoder half. It writes bits to an
// underlying bitio.Writer, carrying the [low,high] interval and a pending
// underflow-bit counter across calls to EncodeSymbol.
type Encoder struct {
	w              *bitio.Writer
	low, high      uint32
	underflowCount int
}

// NewEncoder creates an arithmetic encoder writing to w.
func NewEncoder(w *bitio.Writer) *Encoder {
	return &Encoder{w: w, low: intervalLow, high: intervalHigh}
}

// rescaleOutput performs the E1/E2/E3 renormalisation loop, emitting
// bits (and any pending underflow bits) as the interval narrows. The
// interval registers are 16-bit words, so shifts truncate to 16 bits.
func (e *Encoder) rescaleOutput() {
	for {
		switch {
		case e.high < intervalHalf:
			e.w.PutBit(0)
			for ; e.underflowCount > 0; e.underflowCount-- {
				e.w.PutBit(1)
			}
		case e.low >= intervalHalf:
			e.w.PutBit(1)
			for ; e.underflowCount > 0; e.underflowCount-- {
				e.w.PutBit(0)
			}
		case e.high < intervalThirdQuarter && e.low >= intervalFirstQuarter:
			e.underflowCount++
			e.high |= intervalFirstQuarter
			e.low &= intervalFirstQuarter - 1
		default:
			return
		}
		e.high = ((e.high << 1) | 1) & intervalHigh
		e.low = (e.low << 1) & intervalHigh
	}
}

// EncodeSymbol encodes symbol against model, updating both the coder
// interval and the model's adaptive counts. It returns the information
// content (in bits) of the encoded symbol, i.e. -log2(p), for cost
// bookkeeping.
func (e *Encoder) EncodeSymbol(symbol int, model *Model) float64 {
	lowCount, highCount, scale := model.interval(symbol)

	rangeWidth := uint64(e.high-e.low) + 1
	newHigh := e.low + uint32(rangeWidth*uint64(highCount)/uint64(scale)-1)
	newLow := e.low + uint32(rangeWidth*uint64(lowCount)/uint64(scale))
	e.low, e.high = newLow, newHigh

	e.rescaleOutput()
	model.update(symbol)

	return -math.Log2(float64(highCount-lowCount) / float64(scale))
}

// Flush writes the remaining interval bits and byte-aligns the output:
// collapsing the interval to a point drains the full 16-bit register
// through the rescale loop, which is precisely the decoder's 16-bit
// lookahead, so consecutive coded sections stay in step. Must be
// called exactly once, after the last EncodeSymbol.
func (e *Encoder) Flush() {
	e.low = e.high
	e.rescaleOutput()
	e.w.ByteAlign()
}

// Decoder is the adaptive arithmetic decoder half, symmetric to Encoder.
type Decoder struct {
	r         *bitio.Reader
	low, high uint32
	code      uint32
}

// NewDecoder creates an arithmetic decoder reading from r, priming the
// code register with the first 16 bits.
func NewDecoder(r *bitio.Reader) *Decoder {
	return &Decoder{r: r, low: intervalLow, high: intervalHigh, code: r.GetBits(16)}
}

func (d *Decoder) rescaleInput() {
	for {
		switch {
		case d.high >= intervalHalf && d.low < intervalHalf &&
			((d.low&intervalFirstQuarter) != intervalFirstQuarter || (d.high&intervalFirstQuarter) != 0):
			return
		case d.high < intervalHalf || d.low >= intervalHalf:
			d.low = (d.low << 1) & intervalHigh
			d.high = ((d.high << 1) | 1) & intervalHigh
			d.code = ((d.code << 1) + uint32(d.r.GetBit())) & intervalHigh
		default:
			d.code ^= intervalFirstQuarter
			d.low &= intervalFirstQuarter - 1
			d.low = (d.low << 1) & intervalHigh
			d.high = ((d.high << 1) | (intervalHalf + 1)) & intervalHigh
			d.code = ((d.code << 1) + uint32(d.r.GetBit())) & intervalHigh
		}
	}
}

// DecodeSymbol decodes the next symbol against model, updating both the
// coder interval and the model's adaptive counts.
func (d *Decoder) DecodeSymbol(model *Model) int {
	row := model.totals[model.contextIndex()]
	scale := row[model.Symbols]

	rangeWidth := uint64(d.high-d.low) + 1
	count := int((uint64(d.code-d.low+1)*uint64(scale) - 1) / rangeWidth)

	symbol := model.Symbols
	for symbol > 0 && count < row[symbol] {
		symbol--
	}

	lowCount, highCount := row[symbol], row[symbol+1]
	d.high = d.low + uint32(rangeWidth*uint64(highCount)/uint64(scale)-1)
	d.low = d.low + uint32(rangeWidth*uint64(lowCount)/uint64(scale))

	d.rescaleInput()
	model.update(symbol)

	return symbol
}

// Finish discards any bits consumed to byte-align the input, mirroring
// free_decoder's INPUT_BYTE_ALIGN.
func (d *Decoder) Finish() {
	d.r.ByteAlign()
}
