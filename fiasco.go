// Package fiasco implements a still-image and video codec that
// represents the multiresolution bintree decomposition of an image as a
// Weighted Finite Automaton (WFA). Pixels inside each image block are
// approximated by linear combinations of the images generated by
// previously discovered automaton states, chosen by a matching-pursuit
// search under a rate-distortion cost; the bitstream stores the bintree,
// the transition matrices, the quantised weights, and for sequences the
// motion-compensation and delta-prediction metadata, arithmetically
// coded against adaptive models.
//
// This file wires the core packages (subdivide, mp, ip, prob, predict,
// bitstream) behind an Encoder/Decoder pair, the way the subpackages of
// a codec are tied together behind a thin top-level API.
package fiasco

import (
	"fmt"

	"github.com/fiasco-codec/fiasco/basis"
	"github.com/fiasco-codec/fiasco/bitio"
	"github.com/fiasco-codec/fiasco/bitstream"
	"github.com/fiasco-codec/fiasco/fiascoerr"
	"github.com/fiasco-codec/fiasco/imageio"
	"github.com/fiasco-codec/fiasco/ip"
	"github.com/fiasco-codec/fiasco/predict"
	"github.com/fiasco-codec/fiasco/prob"
	"github.com/fiasco-codec/fiasco/rpf"
	"github.com/fiasco-codec/fiasco/subdivide"
	"github.com/fiasco-codec/fiasco/tiling"
	"github.com/fiasco-codec/fiasco/wfa"
)

// MaxCosts is the cost budget sentinel: branches whose accumulated cost
// exceeds it are abandoned and another alternative is taken.
const MaxCosts = 1e20

// TilingMethod selects the pre-encoder tile permutation.
type TilingMethod int

const (
	TilingNone TilingMethod = iota
	TilingSpiralAscending
	TilingSpiralDescending
	TilingVarianceAscending
	TilingVarianceDescending
)

// Options collects the encoder knobs. DefaultOptions gives the values
// the CLI starts from.
type Options struct {
	// Quality in (0,100]; the rate-distortion price is 128*64/Quality.
	Quality float64

	Title   string
	Comment string

	MaxStates       int
	ChromaMaxStates int
	MaxEdges        int

	LCMinLevel uint
	LCMaxLevel uint
	PMinLevel  uint
	PMaxLevel  uint

	// ImagesLevel bounds the explicit per-state pixel-image cache of the
	// inner-product engine; above it inner products recurse over the
	// transitions.
	ImagesLevel   uint
	ProductsLevel uint

	RPF    rpf.RPF
	DCRPF  rpf.RPF
	DRPF   rpf.RPF
	DDCRPF rpf.RPF

	Prediction        bool
	FullSearch        bool
	SecondDomainBlock bool
	CheckUnderflow    bool
	CheckOverflow     bool

	TilingMethod   TilingMethod
	TilingExponent int

	// Pattern is the frame-type pattern for sequences, e.g. "I", "IPP",
	// "IBBP"; frame i gets Pattern[i mod len].
	Pattern     string
	FPS         int
	SearchRange int
	HalfPixel   bool
	BAsPastRef  bool
	Smoothing   int

	Log Logger
}

// DefaultOptions returns the encoder's default parameter set.
func DefaultOptions() Options {
	return Options{
		Quality:         50,
		MaxStates:       wfa.MaxStates,
		ChromaMaxStates: 40,
		MaxEdges:        4,
		LCMinLevel:      4,
		LCMaxLevel:      12,
		PMinLevel:       8,
		PMaxLevel:       10,
		ImagesLevel:     5,
		ProductsLevel:   3,
		RPF:             rpf.New(3, rpf.Range1_50, nil),
		DCRPF:           rpf.New(5, rpf.Range1_00, nil),
		DRPF:            rpf.New(3, rpf.Range1_50, nil),
		DDCRPF:          rpf.New(5, rpf.Range1_00, nil),
		Prediction:      false,
		Pattern:         "I",
		FPS:             25,
		SearchRange:     16,
		HalfPixel:       false,
		BAsPastRef:      false,
		Log:             NopLogger{},
	}
}

// Price returns the Lagrange multiplier the quality maps to.
func (o *Options) Price() float64 { return 128 * 64 / o.Quality }

func (o *Options) validate() error {
	if o.Quality <= 0 || o.Quality > 100 {
		return fiascoerr.New(fiascoerr.ParameterOutOfRange, "fiasco.Options",
			fmt.Errorf("quality %g not in (0,100]", o.Quality))
	}
	for _, ch := range o.Pattern {
		if ch != 'I' && ch != 'P' && ch != 'B' {
			return fiascoerr.New(fiascoerr.ParameterOutOfRange, "fiasco.Options",
				fmt.Errorf("unknown frame-type letter %q", ch))
		}
	}
	if o.Pattern == "" {
		return fiascoerr.New(fiascoerr.ParameterOutOfRange, "fiasco.Options",
			fmt.Errorf("empty frame pattern"))
	}
	return nil
}

// Encoder compresses images or image sequences into a FIASCO stream.
type Encoder struct {
	opts Options
	log  Logger
}

// NewEncoder validates opts and builds an encoder.
func NewEncoder(opts Options) (*Encoder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Log == nil {
		opts.Log = NopLogger{}
	}
	return &Encoder{opts: opts, log: opts.Log}, nil
}

// EncodeImage compresses a single still image.
func (e *Encoder) EncodeImage(im *imageio.Image) ([]byte, error) {
	return e.EncodeSequence([]*imageio.Image{im})
}

// EncodeSequence compresses a sequence of frames against the pattern in
// the options. All frames must share dimensions and colour mode.
func (e *Encoder) EncodeSequence(frames []*imageio.Image) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fiascoerr.New(fiascoerr.ParameterOutOfRange, "fiasco.EncodeSequence",
			fmt.Errorf("no frames"))
	}
	first := frames[0]
	for _, im := range frames[1:] {
		if im.Width != first.Width || im.Height != first.Height || im.Color != first.Color {
			return nil, fiascoerr.New(fiascoerr.ParameterOutOfRange, "fiasco.EncodeSequence",
				fmt.Errorf("frame geometry mismatch"))
		}
	}

	h := e.header(first, len(frames))
	w := bitio.NewWriter()
	if err := bitstream.WriteHeader(w, h); err != nil {
		return nil, err
	}

	types := e.frameTypes(len(frames))
	for i, im := range frames {
		past, future := referenceFrames(frames, types, i)
		if err := e.encodeFrame(w, h, im, i, types[i], past, future); err != nil {
			return nil, err
		}
		e.log.Debugf("frame %d (%c): %d bits total", i, "IPB"[types[i]], w.BitsProcessed())
	}
	if w.Err() != nil {
		return nil, w.Err()
	}
	return w.Bytes(), nil
}

func (e *Encoder) header(im *imageio.Image, frames int) *bitstream.Header {
	o := &e.opts
	return &bitstream.Header{
		Title:           o.Title,
		Comment:         o.Comment,
		BasisName:       basis.Name,
		MaxStates:       o.MaxStates,
		Color:           im.Color,
		Width:           im.Width,
		Height:          im.Height,
		ChromaMaxStates: o.ChromaMaxStates,
		PMinLevel:       o.PMinLevel,
		PMaxLevel:       o.PMaxLevel,
		Frames:          frames,
		Smoothing:       o.Smoothing,
		RPF:             o.RPF,
		DCRPF:           o.DCRPF,
		DRPF:            o.DRPF,
		DDCRPF:          o.DDCRPF,
		FPS:             o.FPS,
		SearchRange:     o.SearchRange,
		HalfPixel:       o.HalfPixel,
		BAsPastRef:      o.BAsPastRef,
	}
}

func (e *Encoder) frameTypes(n int) []bitstream.FrameType {
	types := make([]bitstream.FrameType, n)
	for i := range types {
		switch e.opts.Pattern[i%len(e.opts.Pattern)] {
		case 'I':
			types[i] = bitstream.FrameI
		case 'P':
			types[i] = bitstream.FrameP
		default:
			types[i] = bitstream.FrameB
		}
	}
	if n > 0 {
		types[0] = bitstream.FrameI
	}
	return types
}

// referenceFrames picks the open-loop references: the nearest preceding
// I/P frame as the past, and for B frames the nearest following I/P
// frame as the future.
func referenceFrames(frames []*imageio.Image, types []bitstream.FrameType, i int) (past, future *imageio.Image) {
	for j := i - 1; j >= 0; j-- {
		if types[j] != bitstream.FrameB {
			past = frames[j]
			break
		}
	}
	if types[i] == bitstream.FrameB {
		for j := i + 1; j < len(frames); j++ {
			if types[j] != bitstream.FrameB {
				future = frames[j]
				break
			}
		}
	}
	return past, future
}

// bootstrapWFA seeds a fresh automaton and inner-product engine with the
// embedded initial basis.
func (e *Encoder) bootstrapWFA(eng *ip.Engine) (*wfa.WFA, int, error) {
	w := wfa.New()
	eng.AppendState(w, 0)
	for i, bs := range basis.Default[1:] {
		id, err := w.AppendState(0, true, false)
		if err != nil {
			return nil, 0, err
		}
		if id != i+1 {
			return nil, 0, fiascoerr.New(fiascoerr.StateLimit, "fiasco.bootstrapWFA", nil)
		}
		for label := 0; label < wfa.MaxLabels; label++ {
			for _, edge := range bs.Edges[label] {
				if err := w.AppendEdge(id, label, edge.Into, edge.Weight); err != nil {
					return nil, 0, err
				}
			}
		}
		w.States[id].FinalDistribution = bs.Final
		eng.AppendState(w, id)
	}
	return w, len(basis.Default), nil
}

func (e *Encoder) newModels() subdivide.Models {
	o := &e.opts
	return subdivide.Models{
		Tree:          prob.NewTreeModel(),
		PredictedTree: prob.NewTreeModel(),
		NormalPool:    prob.NewAdaptivePool(len(basis.Default)),
		DeltaPool:     prob.NewAdaptivePool(len(basis.Default)),
		NormalCoeff:   prob.NewAdaptiveCoeff(o.RPF, o.DCRPF, 0, prob.MaxLevel-1),
		DeltaCoeff:    prob.NewAdaptiveCoeff(o.DRPF, o.DDCRPF, 0, prob.MaxLevel-1),
	}
}

func (e *Encoder) subdivideOptions(frameType bitstream.FrameType, rootLevel uint) subdivide.Options {
	o := &e.opts
	lcMax := o.LCMaxLevel
	if lcMax > rootLevel {
		lcMax = rootLevel
	}
	ft := subdivide.FrameI
	switch frameType {
	case bitstream.FrameP:
		ft = subdivide.FrameP
	case bitstream.FrameB:
		ft = subdivide.FrameB
	}
	return subdivide.Options{
		MaxEdges:          o.MaxEdges,
		LCMinLevel:        o.LCMinLevel,
		LCMaxLevel:        lcMax,
		PMinLevel:         o.PMinLevel,
		PMaxLevel:         o.PMaxLevel,
		Price:             o.Price(),
		MaxCosts:          MaxCosts,
		FullSearch:        o.FullSearch,
		SecondDomainBlock: o.SecondDomainBlock,
		CheckUnderflow:    o.CheckUnderflow,
		CheckOverflow:     o.CheckOverflow,
		Prediction:        o.Prediction || frameType != bitstream.FrameI,
		FrameType:         ft,
		RPFNormal:         o.RPF,
		RPFDC:             o.DCRPF,
		RPFDelta:          o.DRPF,
		RPFDeltaDC:        o.DDCRPF,
		SearchRange:       o.SearchRange,
		HalfPixel:         o.HalfPixel,
	}
}

func (e *Encoder) encodeFrame(w *bitio.Writer, h *bitstream.Header, im *imageio.Image, number int, frameType bitstream.FrameType, past, future *imageio.Image) error {
	rootLevel := wfa.LevelOfImage(im.Width, im.Height)

	eng := ip.New(e.opts.ImagesLevel, e.opts.ProductsLevel)
	W, basisStates, err := e.bootstrapWFA(eng)
	if err != nil {
		return err
	}
	models := e.newModels()

	var t *tiling.Tiling
	plane := im.Bands[0]
	if e.opts.TilingMethod != TilingNone && e.opts.TilingExponent > 0 {
		tv := e.buildTiling(plane, im.Width, im.Height, rootLevel)
		t = &tv
		plane = t.Apply(plane, im.Width, im.Height)
	}

	bands := 1
	if im.Color {
		bands = 3
	}

	roots := make([]int, bands)
	for band := 0; band < bands; band++ {
		if band == 1 {
			models.NormalPool.Chroma(e.opts.ChromaMaxStates)
			models.DeltaPool.Chroma(e.opts.ChromaMaxStates)
		}
		bp := plane
		if band > 0 {
			bp = im.Bands[band]
			if t != nil {
				bp = t.Apply(bp, im.Width, im.Height)
			}
		}
		ctx := subdivide.NewContext(eng, W, models, e.subdivideOptions(frameType, rootLevel), bp, im.Width, im.Height)
		ctx.Band = band
		if past != nil {
			ctx.PastRef = &predict.FrameBuffer{Pixels: past.Bands[band], Width: im.Width, Height: im.Height}
		}
		if future != nil {
			ctx.FutureRef = &predict.FrameBuffer{Pixels: future.Bands[band], Width: im.Width, Height: im.Height}
		}

		root := subdivide.Subdivide(ctx, 0, rootLevel, 0, 0, im.Width, im.Height, frameType != bitstream.FrameI || e.opts.Prediction, false, nil)
		if root.State == wfa.Range {
			return fiascoerr.New(fiascoerr.Numerical, "fiasco.encodeFrame",
				fmt.Errorf("band %d root range is not approximable", band))
		}
		roots[band] = root.State
		models = ctx.Models
	}

	rootState := roots[0]
	if im.Color {
		// Join the three band roots under a two-level cap, so the frame
		// has a single root two levels above the image.
		a, err := W.AppendState(rootLevel+1, true, false)
		if err != nil {
			return err
		}
		W.States[a].Children[0].TreeChild = roots[0]
		W.States[a].Children[1].TreeChild = roots[1]
		W.RecomputeFinal(a)
		eng.AppendState(W, a)

		b, err := W.AppendState(rootLevel+1, true, false)
		if err != nil {
			return err
		}
		W.States[b].Children[0].TreeChild = roots[2]
		// The second slot of this join state stays a leaf.
		W.RecomputeFinal(b)
		eng.AppendState(W, b)

		top, err := W.AppendState(rootLevel+2, true, false)
		if err != nil {
			return err
		}
		W.States[top].Children[0].TreeChild = a
		W.States[top].Children[1].TreeChild = b
		W.RecomputeFinal(top)
		eng.AppendState(W, top)
		rootState = top
	}

	frame := &bitstream.Frame{
		Type:             frameType,
		Number:           number,
		WFA:              W,
		BasisStates:      basisStates,
		RootState:        rootState,
		Tiling:           t,
		UseNormalDomains: true,
		UseDeltaDomains:  true,
	}
	return bitstream.WriteFrame(w, h, frame)
}

// buildTiling computes the frame's tile permutation per the configured
// method.
func (e *Encoder) buildTiling(plane []float64, width, height int, rootLevel uint) tiling.Tiling {
	exp := e.opts.TilingExponent
	switch e.opts.TilingMethod {
	case TilingSpiralDescending:
		return tiling.Spiral(rootLevel, exp, true, width, height)
	case TilingVarianceAscending, TilingVarianceDescending:
		vars := tileVariances(plane, width, height, rootLevel, exp)
		return tiling.Variance(rootLevel, exp, vars, e.opts.TilingMethod == TilingVarianceDescending)
	default:
		return tiling.Spiral(rootLevel, exp, false, width, height)
	}
}

// tileVariances computes the pixel variance per bintree tile, with -1
// marking tiles outside the visible image.
func tileVariances(plane []float64, width, height int, rootLevel uint, exponent int) []float64 {
	tiles := 1 << uint(exponent)
	tw := wfa.WidthOfLevel(rootLevel - uint(exponent))
	th := wfa.HeightOfLevel(rootLevel - uint(exponent))
	out := make([]float64, tiles)
	for a := 0; a < tiles; a++ {
		x0, y0 := imageio.AddressToXY(rootLevel, uint64(a), rootLevel-uint(exponent))
		if x0 >= width || y0 >= height {
			out[a] = -1
			continue
		}
		var sum, sq float64
		n := 0
		for y := y0; y < y0+th && y < height; y++ {
			for x := x0; x < x0+tw && x < width; x++ {
				v := plane[y*width+x]
				sum += v
				sq += v * v
				n++
			}
		}
		mean := sum / float64(n)
		out[a] = sq/float64(n) - mean*mean
	}
	return out
}

// DecodedFrame is one parsed frame: the reconstructed automaton plus its
// frame-header scalars. Rendering the automaton back into pixels is the
// decoder renderer's job, outside this package's scope; the WFA carries
// everything it needs (tree, matrices, weights, motion, prediction).
type DecodedFrame struct {
	Type   bitstream.FrameType
	Number int
	WFA    *wfa.WFA
	Tiling *tiling.Tiling
}

// Decoder parses FIASCO streams back into WFA frames.
type Decoder struct {
	log Logger
}

// NewDecoder builds a decoder; log may be nil.
func NewDecoder(log Logger) *Decoder {
	if log == nil {
		log = NopLogger{}
	}
	return &Decoder{log: log}
}

// Decode parses the stream header and every frame.
func (d *Decoder) Decode(data []byte) (*bitstream.Header, []*DecodedFrame, error) {
	r := bitio.NewReader(data)
	h, err := bitstream.ReadHeader(r)
	if err != nil {
		return nil, nil, err
	}
	if h.BasisName != basis.Name {
		d.log.Warnf("unknown initial basis %q, using built-in %q", h.BasisName, basis.Name)
	}

	frames := make([]*DecodedFrame, 0, h.Frames)
	for i := 0; i < h.Frames; i++ {
		base, basisStates, err := decoderBasis()
		if err != nil {
			return nil, nil, err
		}
		f, err := bitstream.ReadFrame(r, h, base, basisStates)
		if err != nil {
			return nil, nil, err
		}
		frames = append(frames, &DecodedFrame{Type: f.Type, Number: f.Number, WFA: f.WFA, Tiling: f.Tiling})
	}
	return h, frames, nil
}

// decoderBasis rebuilds the embedded initial basis as the seed automaton
// for one frame.
func decoderBasis() (*wfa.WFA, int, error) {
	w := wfa.New()
	for _, bs := range basis.Default[1:] {
		id, err := w.AppendState(0, true, false)
		if err != nil {
			return nil, 0, err
		}
		for label := 0; label < wfa.MaxLabels; label++ {
			for _, edge := range bs.Edges[label] {
				if err := w.AppendEdge(id, label, edge.Into, edge.Weight); err != nil {
					return nil, 0, err
				}
			}
		}
		w.States[id].FinalDistribution = bs.Final
	}
	return w, len(basis.Default), nil
}
