// Command fiascoenc compresses PNM images or image sequences into a
// FIASCO stream.
//
// Usage:
//
//	fiascoenc [options] <input.pgm|template> <output.fco>
//
// Sequences use a file-name template of the form prefix[start-end+step]suffix,
// e.g. frame[001-120+1].pgm.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fiasco-codec/fiasco"
	"github.com/fiasco-codec/fiasco/imageio"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fiascoenc: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("fiascoenc", flag.ContinueOnError)
	quality := fs.Float64("q", 50, "quality (0,100]")
	title := fs.String("title", "", "stream title")
	comment := fs.String("comment", "", "stream comment")
	pattern := fs.String("pattern", "I", "frame-type pattern, e.g. IPP or IBBP")
	prediction := fs.Bool("prediction", false, "enable nondeterministic prediction on I frames")
	halfPixel := fs.Bool("half-pixel", false, "half-pixel precise motion search")
	searchRange := fs.Int("search-range", 16, "motion search range")
	fps := fs.Int("fps", 25, "frames per second")
	tilingMethod := fs.String("tiling", "", "tiling method: spiral-asc, spiral-dsc, variance-asc, variance-dsc")
	tilingExp := fs.Int("tiling-exponent", 0, "number of tiles is 2^exponent")
	smoothing := fs.Int("smoothing", 0, "smoothing along partition boundaries")
	resizeW := fs.Int("width", 0, "resample input to this width before encoding")
	resizeH := fs.Int("height", 0, "resample input to this height before encoding")
	verbose := fs.Bool("v", false, "verbose progress output")
	traceLog := fs.String("trace-log", "", "append debug trace to this rotating log file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("need <input> and <output> arguments")
	}

	log, sync, err := buildLogger(*verbose, *traceLog)
	if err != nil {
		return err
	}
	defer sync()

	opts := fiasco.DefaultOptions()
	opts.Quality = *quality
	opts.Title = *title
	opts.Comment = *comment
	opts.Pattern = *pattern
	opts.Prediction = *prediction
	opts.HalfPixel = *halfPixel
	opts.SearchRange = *searchRange
	opts.FPS = *fps
	opts.Smoothing = *smoothing
	opts.TilingExponent = *tilingExp
	opts.Log = log
	switch *tilingMethod {
	case "":
		opts.TilingMethod = fiasco.TilingNone
	case "spiral-asc":
		opts.TilingMethod = fiasco.TilingSpiralAscending
	case "spiral-dsc":
		opts.TilingMethod = fiasco.TilingSpiralDescending
	case "variance-asc":
		opts.TilingMethod = fiasco.TilingVarianceAscending
	case "variance-dsc":
		opts.TilingMethod = fiasco.TilingVarianceDescending
	default:
		return fmt.Errorf("unknown tiling method %q", *tilingMethod)
	}

	names, err := imageio.ExpandTemplate(fs.Arg(0))
	if err != nil {
		return err
	}
	frames := make([]*imageio.Image, 0, len(names))
	for _, name := range names {
		im, err := readPNM(name)
		if err != nil {
			return err
		}
		if *resizeW > 0 && *resizeH > 0 {
			im = imageio.Scale(im, *resizeW, *resizeH)
		}
		frames = append(frames, im)
	}

	enc, err := fiasco.NewEncoder(opts)
	if err != nil {
		return err
	}
	data, err := enc.EncodeSequence(frames)
	if err != nil {
		return err
	}
	if err := os.WriteFile(fs.Arg(1), data, 0o644); err != nil {
		return err
	}
	log.Debugf("%d frame(s), %d bytes", len(frames), len(data))
	return nil
}

func readPNM(name string) (*imageio.Image, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	br := bufio.NewReader(f)
	w, h, _, color, err := imageio.ReadPNMHeader(br)
	if err != nil {
		return nil, err
	}
	return imageio.ReadImage(br, w, h, color)
}

// buildLogger wires a console zap logger, optionally teeing the debug
// stream into a size-rotated trace file.
func buildLogger(verbose bool, traceFile string) (fiasco.Logger, func(), error) {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}
	if traceFile != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   traceFile,
			MaxSize:    32, // MiB
			MaxBackups: 3,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, zapcore.DebugLevel))
	}
	logger := zap.New(zapcore.NewTee(cores...))
	return fiasco.ZapLogger{S: logger.Sugar()}, func() { _ = logger.Sync() }, nil
}
