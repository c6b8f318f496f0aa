package acoder

import "math"

// QAC probability table bounds.
const (
	minProb = 1
	maxProb = 9
	// maxIndex is the clamp applied to a probability index after every
	// update.
	maxIndex = 1020
)

// qacBits0/qacBits1 are precomputed once: entry i gives the bit cost
// of the "not chosen" (0) and "chosen" (1) outcome for probability
// index i. The table is laid out in groups of size 2^n for
// n = minProb..maxProb; within group n, -log2(1/2^n) bits for a hit
// and -log2(1-1/2^n) for a miss.
var qacBits0, qacBits1 [1 << (maxProb + 1)]float64

func init() {
	index := 0
	for n := minProb; n <= maxProb; n++ {
		p := 1.0 / float64(uint64(1)<<uint(n))
		bit1 := -math.Log2(p)
		bit0 := -math.Log2(1 - p)
		for exp := 0; exp < (1 << uint(n)); exp++ {
			qacBits1[index] = bit1
			qacBits0[index] = bit0
			index++
		}
	}
}

// QACIndex is a single adaptive probability-index slot driving the
// quasi-arithmetic coder's multiplication-free escalation rule.
type QACIndex struct {
	idx int
}

// NewQACIndex returns a probability index starting at table entry 0
// (lowest group, shift=minProb).
func NewQACIndex() QACIndex { return QACIndex{} }

// IndexValue exposes the raw escalation index (0..maxIndex). Lower values
// mean the "chosen" outcome has happened more recently/often.
func (q QACIndex) IndexValue() int { return q.idx }

// Bits0 returns the predicted bit cost of the "not chosen" outcome at the
// current index.
func (q QACIndex) Bits0() float64 { return qacBits0[q.idx] }

// Bits1 returns the predicted bit cost of the "chosen" outcome at the
// current index.
func (q QACIndex) Bits1() float64 { return qacBits1[q.idx] }

// Miss escalates the index toward a lower probability-of-hit estimate
// (the "not chosen" outcome happened), clamped at maxIndex.
func (q *QACIndex) Miss() {
	q.idx++
	if q.idx > maxIndex {
		q.idx = maxIndex
	}
}

// Hit halves the index: the "chosen", less-probable outcome
// happened.
func (q *QACIndex) Hit() {
	q.idx >>= 1
}

// EncodeQACBit writes bit through a full arithmetic Encoder using the
// shift-count split the index encodes, instead of the cumulative-count
// model used by EncodeSymbol: the interval is split by
// (high-low)>>shift rather than by a count ratio, eliminating the
// multiplications of the inner loop. The less-probable "chosen"
// outcome (bit 1) occupies the top of the interval.
func (e *Encoder) EncodeQACBit(bit int, q *QACIndex) float64 {
	shift := shiftForIndex(q.idx)
	slice := (e.high - e.low) >> uint(shift)
	var bits float64
	if bit != 0 {
		e.low = e.high - slice
		bits = q.Bits1()
		q.Hit()
	} else {
		e.high = e.high - slice - 1
		bits = q.Bits0()
		q.Miss()
	}
	e.rescaleOutput()
	return bits
}

// DecodeQACBit is the decoding counterpart of EncodeQACBit.
func (d *Decoder) DecodeQACBit(q *QACIndex) int {
	shift := shiftForIndex(q.idx)
	slice := (d.high - d.low) >> uint(shift)
	var bit int
	if d.code >= d.high-slice {
		d.low = d.high - slice
		bit = 1
		q.Hit()
	} else {
		d.high = d.high - slice - 1
		bit = 0
		q.Miss()
	}
	d.rescaleInput()
	return bit
}

// shiftForIndex returns the shift count n (minProb..maxProb) for table
// index idx, derived from the group layout instead of being stored
// explicitly.
func shiftForIndex(idx int) int {
	base := 0
	for n := minProb; n <= maxProb; n++ {
		size := 1 << uint(n)
		if idx < base+size {
			return n
		}
		base += size
	}
	return maxProb
}
