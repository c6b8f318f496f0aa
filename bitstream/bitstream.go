// Package bitstream implements the FIASCO binary file format: the
// bit-exact serialisation and deserialisation of headers, frame
// headers, tiling permutations, bintree partitionings, transition
// matrices, weights, motion-compensation and nondeterminism metadata,
// driven by the entropy coders in package acoder.
//
// Every encoder block has a mirror decoder block that consumes the same
// probability-model updates, so later blocks parse against exactly the
// state the encoder left behind.
package bitstream

import (
	"github.com/fiasco-codec/fiasco/rpf"
	"github.com/fiasco-codec/fiasco/tiling"
	"github.com/fiasco-codec/fiasco/wfa"
)

// Magic is the file magic, written followed by '\n'.
const Magic = "FIASCO"

// BinfileRelease is the current format release; files with a larger
// release number are rejected.
const BinfileRelease = 2

// MaxStrlen bounds null-terminated strings in the header.
const MaxStrlen = 1024

// Rice parameter used throughout the header blocks.
const riceK = 8

// Header field tags, each introduced by a Rice(8) code (release >= 2).
const (
	headerEnd = iota
	headerTitle
	headerComment
)

// FrameType distinguishes intra, predicted and bidirectional frames.
type FrameType int

const (
	FrameI FrameType = iota
	FrameP
	FrameB
)

// Header carries every scalar the binfile header stores.
type Header struct {
	Title   string
	Comment string

	BasisName string

	MaxStates       int
	Color           bool
	Width, Height   int
	ChromaMaxStates int

	PMinLevel, PMaxLevel uint
	Frames               int
	Smoothing            int

	RPF    rpf.RPF // normal weights
	DCRPF  rpf.RPF // DC (state 0) weights
	DRPF   rpf.RPF // delta (prediction residual) weights
	DDCRPF rpf.RPF // delta DC weights

	FPS         int
	SearchRange int
	HalfPixel   bool
	BAsPastRef  bool
}

// ImageLevel is the bintree level of the frame root: the level
// covering the image, plus two for the chroma join states when colour
// is coded.
func (h *Header) ImageLevel() uint {
	level := wfa.LevelOfImage(h.Width, h.Height)
	if h.Color {
		level += 2
	}
	return level
}

// Frame is one frame's bitstream payload: the automaton to (de)serialise
// plus its header scalars.
type Frame struct {
	Type   FrameType
	Number int

	WFA         *wfa.WFA
	BasisStates int
	RootState   int

	// Tiling is nil when no tile permutation was applied.
	Tiling *tiling.Tiling

	// UseNormalDomains/UseDeltaDomains are the two matrix-block domain
	// admission flags.
	UseNormalDomains bool
	UseDeltaDomains  bool
}

// leafSlot identifies one (state,label) pair whose tree child is the
// Range sentinel; matrices and weights are stored per leaf slot in
// ascending state order, which is exactly the order the encoder
// committed ranges in.
type leafSlot struct {
	state, label int
}

func leafSlots(f *Frame) []leafSlot {
	var slots []leafSlot
	for s := f.BasisStates; s < f.WFA.NumStates(); s++ {
		for label := 0; label < wfa.MaxLabels; label++ {
			if f.WFA.States[s].Children[label].TreeChild == wfa.Range {
				slots = append(slots, leafSlot{s, label})
			}
		}
	}
	return slots
}

// codeIndex maps an RPF code into the arithmetic-model alphabet: the
// ZeroCode sentinel becomes symbol 0 and every regular code shifts up by
// one, so the alphabet is one wider than the raw code space.
func codeIndex(code int) int {
	if code == rpf.ZeroCode {
		return 0
	}
	return code + 1
}

func indexCode(symbol int) int {
	if symbol == 0 {
		return rpf.ZeroCode
	}
	return symbol - 1
}

// rpfFor selects the quantiser for an edge, per the four-way header
// split: (normal|delta) x (DC|non-DC).
func (h *Header) rpfFor(delta, dc bool) rpf.RPF {
	switch {
	case delta && dc:
		return h.DDCRPF
	case delta:
		return h.DRPF
	case dc:
		return h.DCRPF
	default:
		return h.RPF
	}
}
