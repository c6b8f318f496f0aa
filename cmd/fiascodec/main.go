// Command fiascodec parses a FIASCO stream and reports its structure:
// header fields, per-frame automaton sizes, tiling and prediction use.
//
// Usage:
//
//	fiascodec [options] <input.fco>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fiasco-codec/fiasco"
	"github.com/fiasco-codec/fiasco/bitstream"
	"github.com/fiasco-codec/fiasco/wfa"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fiascodec: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("fiascodec", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "per-frame details")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("need an input file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	h, frames, err := fiasco.NewDecoder(nil).Decode(data)
	if err != nil {
		return err
	}

	mode := "grey"
	if h.Color {
		mode = "colour"
	}
	fmt.Printf("%s: %dx%d %s, %d frame(s)\n", fs.Arg(0), h.Width, h.Height, mode, h.Frames)
	if h.Title != "" {
		fmt.Printf("title:   %s\n", h.Title)
	}
	if h.Comment != "" {
		fmt.Printf("comment: %s\n", h.Comment)
	}
	fmt.Printf("rpf: m=%d range=%g, dc: m=%d range=%g\n",
		h.RPF.MantissaBits, h.RPF.Range(), h.DCRPF.MantissaBits, h.DCRPF.Range())
	if h.Frames > 1 {
		fmt.Printf("fps=%d search-range=%d half-pixel=%v\n", h.FPS, h.SearchRange, h.HalfPixel)
	}

	for _, f := range frames {
		fmt.Printf("frame %d: type=%c states=%d\n", f.Number, frameLetter(f.Type), f.WFA.NumStates())
		if *verbose {
			describe(f)
		}
	}
	return nil
}

func frameLetter(t bitstream.FrameType) byte {
	switch t {
	case bitstream.FrameP:
		return 'P'
	case bitstream.FrameB:
		return 'B'
	default:
		return 'I'
	}
}

func describe(f *fiasco.DecodedFrame) {
	edges, predicted, mc := 0, 0, 0
	for s := range f.WFA.States {
		for label := 0; label < wfa.MaxLabels; label++ {
			c := f.WFA.States[s].Children[label]
			edges += len(c.Edges)
			if label == 0 {
				if c.ND.Present {
					predicted++
				}
				if c.MV.Type != wfa.MVNone {
					mc++
				}
			}
		}
	}
	fmt.Printf("  edges=%d nd-predicted=%d motion-compensated=%d\n", edges, predicted, mc)
	if f.Tiling != nil {
		fmt.Printf("  tiling: 2^%d tiles\n", f.Tiling.Exponent)
	}
}
