// Package testutil provides shared fixtures for the codec's tests:
// synthetic images with known structure and a deterministic noise
// source, so encode/decode expectations stay reproducible without
// checked-in binary fixtures.
package testutil

import "github.com/fiasco-codec/fiasco/imageio"

// Solid returns a width x height grey image filled with value.
func Solid(width, height int, value float64) *imageio.Image {
	im := &imageio.Image{Width: width, Height: height}
	im.Bands[0] = make([]float64, width*height)
	for i := range im.Bands[0] {
		im.Bands[0][i] = value
	}
	return im
}

// Gradient returns a grey image ramping horizontally from 0 to 255.
func Gradient(width, height int) *imageio.Image {
	im := &imageio.Image{Width: width, Height: height}
	im.Bands[0] = make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			im.Bands[0][y*width+x] = float64(x) * 255 / float64(width-1)
		}
	}
	return im
}

// LCG is a tiny deterministic pseudo-random source for test data.
type LCG struct{ state uint64 }

// NewLCG seeds the generator.
func NewLCG(seed uint64) *LCG { return &LCG{state: seed} }

// Next returns the next value in [0,n).
func (l *LCG) Next(n int) int {
	l.state = l.state*6364136223846793005 + 1442695040888963407
	return int((l.state >> 33) % uint64(n))
}

// Noise returns a grey image of uniform pseudo-random pixels.
func Noise(width, height int, seed uint64) *imageio.Image {
	im := &imageio.Image{Width: width, Height: height}
	im.Bands[0] = make([]float64, width*height)
	lcg := NewLCG(seed)
	for i := range im.Bands[0] {
		im.Bands[0][i] = float64(lcg.Next(256))
	}
	return im
}
