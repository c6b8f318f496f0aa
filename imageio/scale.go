package imageio

import (
	"image"

	"golang.org/x/image/draw"
)

// ScaleBand resamples one float64 pixel plane from (w,h) to (nw,nh)
// using Catmull-Rom interpolation, via golang.org/x/image/draw over a
// 16-bit grey intermediate so sub-integer detail survives the trip.
func ScaleBand(band []float64, w, h, nw, nh int) []float64 {
	src := image.NewGray16(image.Rect(0, 0, w, h))
	for i, v := range band {
		g := v * 256
		if g < 0 {
			g = 0
		}
		if g > 65535 {
			g = 65535
		}
		u := uint16(g)
		src.Pix[i*2] = byte(u >> 8)
		src.Pix[i*2+1] = byte(u)
	}
	dst := image.NewGray16(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	out := make([]float64, nw*nh)
	for i := range out {
		u := uint16(dst.Pix[i*2])<<8 | uint16(dst.Pix[i*2+1])
		out[i] = float64(u) / 256
	}
	return out
}

// Scale resamples every band of im to (nw,nh).
func Scale(im *Image, nw, nh int) *Image {
	out := &Image{Width: nw, Height: nh, Color: im.Color}
	bands := 1
	if im.Color {
		bands = 3
	}
	for b := 0; b < bands; b++ {
		out.Bands[b] = ScaleBand(im.Bands[b], im.Width, im.Height, nw, nh)
	}
	return out
}
