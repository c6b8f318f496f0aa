// Package tiling implements the pre-encoder tile-permutation methods:
// ascending/descending spiral order and variance-sorted order. The image
// is split into 2^exponent bintree tiles (the subblocks at bintree level
// rootLevel-exponent); Order maps a tile's bintree address in the encoded
// image to the original tile it carries. The bitstream stores the
// permutation itself for variance order, or just a direction flag for
// spiral.
package tiling

import (
	"sort"

	"github.com/fiasco-codec/fiasco/wfa"
)

// Method selects how tiles are reordered before encoding.
type Method int

const (
	SpiralAscending Method = iota
	SpiralDescending
	VarianceAscending
	VarianceDescending
)

// Tiling describes one frame's tile permutation over the 2^Exponent
// bintree tiles at level RootLevel-Exponent.
type Tiling struct {
	Exponent  int
	Method    Method
	RootLevel uint
	// Order[a] is the original bintree tile address carried at encoded
	// bintree address a, or -1 for a tile outside the visible image.
	Order []int
}

// tileGrid returns the number of tiles per axis at depth e below
// rootLevel: x splits happen at even levels, y splits at odd ones.
func tileGrid(rootLevel uint, e int) (nx, ny int) {
	nx, ny = 1, 1
	for l := rootLevel; l > rootLevel-uint(e); l-- {
		if l%2 == 0 {
			nx *= 2
		} else {
			ny *= 2
		}
	}
	return nx, ny
}

// addressOfTile converts grid position (tx,ty) to the bintree address of
// that tile, walking the levels from the root the way
// imageio.XYToAddress does for pixel coordinates.
func addressOfTile(rootLevel uint, e, tx, ty int) int {
	var addr int
	for l := rootLevel; l > rootLevel-uint(e); l-- {
		addr <<= 1
		if l%2 == 0 {
			half := 1 << countSplits(l-1, rootLevel-uint(e), true)
			if tx >= half {
				addr |= 1
				tx -= half
			}
		} else {
			half := 1 << countSplits(l-1, rootLevel-uint(e), false)
			if ty >= half {
				addr |= 1
				ty -= half
			}
		}
	}
	return addr
}

// countSplits counts how many x (or y) subdivisions happen strictly
// below level from, down to level to.
func countSplits(from, to uint, xAxis bool) int {
	n := 0
	for l := from; l > to; l-- {
		if (l%2 == 0) == xAxis {
			n++
		}
	}
	return n
}

// tileOfAddress is the inverse of addressOfTile.
func tileOfAddress(rootLevel uint, e, addr int) (tx, ty int) {
	for l := rootLevel; l > rootLevel-uint(e); l-- {
		bit := (addr >> (l - (rootLevel - uint(e)) - 1)) & 1
		if bit == 1 {
			if l%2 == 0 {
				tx += 1 << countSplits(l-1, rootLevel-uint(e), true)
			} else {
				ty += 1 << countSplits(l-1, rootLevel-uint(e), false)
			}
		}
	}
	return tx, ty
}

// Spiral builds the spiral traversal for the 2^exponent tiles of a
// rootLevel image: the ascending spiral over a 2x2 grid visits
// {top-left, top-right, bottom-right, bottom-left}. Invisible tiles
// (fully outside width x height) are marked -1 and skipped.
func Spiral(rootLevel uint, exponent int, descending bool, width, height int) Tiling {
	nx, ny := tileGrid(rootLevel, exponent)
	tw := wfa.WidthOfLevel(rootLevel - uint(exponent))
	th := wfa.HeightOfLevel(rootLevel - uint(exponent))

	tiles := 1 << uint(exponent)
	order := make([]int, tiles)
	visible := make([]bool, tiles)
	for a := 0; a < tiles; a++ {
		tx, ty := tileOfAddress(rootLevel, exponent, a)
		visible[a] = tx*tw < width && ty*th < height
		order[a] = -1
	}

	walk := spiralWalk(nx, ny)
	if descending {
		for i, j := 0, len(walk)-1; i < j; i, j = i+1, j-1 {
			walk[i], walk[j] = walk[j], walk[i]
		}
	}

	pos := 0
	for _, g := range walk {
		addr := addressOfTile(rootLevel, exponent, g[0], g[1])
		if !visible[addr] {
			continue
		}
		for pos < tiles && !visible[pos] {
			pos++
		}
		if pos < tiles {
			order[pos] = addr
			pos++
		}
	}

	m := SpiralAscending
	if descending {
		m = SpiralDescending
	}
	return Tiling{Exponent: exponent, Method: m, RootLevel: rootLevel, Order: order}
}

// spiralWalk yields grid positions (tx,ty) of an nx x ny grid in
// clockwise border spiral order starting at the top-left corner.
func spiralWalk(nx, ny int) [][2]int {
	out := make([][2]int, 0, nx*ny)
	top, bottom, left, right := 0, ny-1, 0, nx-1
	for top <= bottom && left <= right {
		for x := left; x <= right; x++ {
			out = append(out, [2]int{x, top})
		}
		top++
		for y := top; y <= bottom; y++ {
			out = append(out, [2]int{right, y})
		}
		right--
		if top <= bottom {
			for x := right; x >= left; x-- {
				out = append(out, [2]int{x, bottom})
			}
			bottom--
		}
		if left <= right {
			for y := bottom; y >= top; y-- {
				out = append(out, [2]int{left, y})
			}
			left++
		}
	}
	return out
}

// Variance builds the variance-order permutation from per-tile pixel
// variances indexed by bintree address (negative entries mark invisible
// tiles). Descending puts the highest-variance tile first; detail-rich
// tiles compress better once the domain pool is warm.
func Variance(rootLevel uint, exponent int, tileVariance []float64, descending bool) Tiling {
	tiles := 1 << uint(exponent)
	type vt struct {
		addr int
		v    float64
	}
	var vs []vt
	order := make([]int, tiles)
	for a := 0; a < tiles; a++ {
		order[a] = -1
		if a < len(tileVariance) && tileVariance[a] >= 0 {
			vs = append(vs, vt{addr: a, v: tileVariance[a]})
		}
	}
	sort.SliceStable(vs, func(i, j int) bool {
		if descending {
			return vs[i].v > vs[j].v
		}
		return vs[i].v < vs[j].v
	})
	pos := 0
	for a := 0; a < tiles; a++ {
		if a < len(tileVariance) && tileVariance[a] >= 0 {
			order[a] = vs[pos].addr
			pos++
		}
	}
	m := VarianceAscending
	if descending {
		m = VarianceDescending
	}
	return Tiling{Exponent: exponent, Method: m, RootLevel: rootLevel, Order: order}
}

// Invert returns the inverse permutation: Inverse[originalAddress] =
// encodedAddress, used by the decoder to map a decoded tile back to its
// displayed position. Invisible tiles stay -1.
func (t Tiling) Invert() []int {
	inv := make([]int, len(t.Order))
	for i := range inv {
		inv[i] = -1
	}
	for pos, orig := range t.Order {
		if orig >= 0 {
			inv[orig] = pos
		}
	}
	return inv
}

// Apply permutes a pixel plane tile-wise: the tile at encoded bintree
// address a receives the pixels of original tile Order[a]. This is the
// "image -> tiling permutation -> frame driver" step of the encoder's
// data flow; the subdivider then walks the permuted plane in plain
// bintree order. Pixels of invisible tiles are left untouched.
func (t Tiling) Apply(plane []float64, w, h int) []float64 {
	return t.permute(plane, w, h, t.Order)
}

// Restore is the decoder-side inverse of Apply.
func (t Tiling) Restore(plane []float64, w, h int) []float64 {
	return t.permute(plane, w, h, t.Invert())
}

func (t Tiling) permute(plane []float64, w, h int, order []int) []float64 {
	tw := wfa.WidthOfLevel(t.RootLevel - uint(t.Exponent))
	th := wfa.HeightOfLevel(t.RootLevel - uint(t.Exponent))
	out := append([]float64(nil), plane...)
	for pos, orig := range order {
		if orig < 0 || orig == pos {
			continue
		}
		dtx, dty := tileOfAddress(t.RootLevel, t.Exponent, pos)
		stx, sty := tileOfAddress(t.RootLevel, t.Exponent, orig)
		dx, dy := dtx*tw, dty*th
		sx, sy := stx*tw, sty*th
		for j := 0; j < th; j++ {
			if dy+j >= h || sy+j >= h {
				continue
			}
			for i := 0; i < tw; i++ {
				if dx+i >= w || sx+i >= w {
					continue
				}
				out[(dy+j)*w+dx+i] = plane[(sy+j)*w+sx+i]
			}
		}
	}
	return out
}
