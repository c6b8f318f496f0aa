// Package imageio implements the codec's image I/O collaborators: PNM
// header/pixel reading and writing, a pixel accessor over decoded
// bands, and the bijective (x,y) <-> bintree-address conversion the
// subdivider and bitstream layer both rely on.
package imageio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fiasco-codec/fiasco/fiascoerr"
	"github.com/fiasco-codec/fiasco/wfa"
)

// Image is a decoded still image or video frame: one or three bands
// (luma only, or YCbCr), each a flat row-major float64 plane so the rest
// of the codec never special-cases integer pixel formats.
type Image struct {
	Width, Height int
	Color         bool
	Bands         [3][]float64 // Bands[0]=Y (or grey); [1]=Cb,[2]=Cr when Color
}

// Pixel returns band b's sample at (x,y)
// `image.pixels[band][x,y]` accessor.
func (im *Image) Pixel(band, x, y int) float64 {
	return im.Bands[band][y*im.Width+x]
}

func (im *Image) SetPixel(band, x, y int, v float64) {
	im.Bands[band][y*im.Width+x] = v
}

// ReadPNMHeader parses a PNM (P5 greyscale / P6 RGB-as-YCbCr-caller's-
// responsibility) header, returning width, height, maxval and whether
// the content is P6 (three samples/pixel).
func ReadPNMHeader(r *bufio.Reader) (width, height, maxval int, color bool, err error) {
	magic, err := readToken(r)
	if err != nil {
		return 0, 0, 0, false, fiascoerr.New(fiascoerr.IO, "imageio.ReadPNMHeader", err)
	}
	switch magic {
	case "P5":
		color = false
	case "P6":
		color = true
	default:
		return 0, 0, 0, false, fiascoerr.New(fiascoerr.FormatInvalid, "imageio.ReadPNMHeader", fmt.Errorf("unsupported PNM magic %q", magic))
	}
	w, err := readInt(r)
	if err != nil {
		return 0, 0, 0, false, fiascoerr.New(fiascoerr.FormatInvalid, "imageio.ReadPNMHeader", err)
	}
	h, err := readInt(r)
	if err != nil {
		return 0, 0, 0, false, fiascoerr.New(fiascoerr.FormatInvalid, "imageio.ReadPNMHeader", err)
	}
	m, err := readInt(r)
	if err != nil {
		return 0, 0, 0, false, fiascoerr.New(fiascoerr.FormatInvalid, "imageio.ReadPNMHeader", err)
	}
	return w, h, m, color, nil
}

func readToken(r *bufio.Reader) (string, error) {
	var b []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if c == '#' {
			for {
				c2, err := r.ReadByte()
				if err != nil || c2 == '\n' {
					break
				}
			}
			continue
		}
		if isSpace(c) {
			if len(b) > 0 {
				return string(b), nil
			}
			continue
		}
		b = append(b, c)
	}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func readInt(r *bufio.Reader) (int, error) {
	tok, err := readToken(r)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(tok)
}

// ReadImage reads a full PNM file from r (already positioned after the
// header via ReadPNMHeader) into an Image. For P6, RGB->YCbCr conversion
// is the caller's responsibility
// is an external collaborator); ReadImage stores raw R,G,B into
// Bands[0..2] and leaves Color set so a caller can convert.
func ReadImage(r *bufio.Reader, width, height int, color bool) (*Image, error) {
	im := &Image{Width: width, Height: height, Color: color}
	n := width * height
	bands := 1
	if color {
		bands = 3
	}
	buf := make([]byte, n*bands)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fiascoerr.New(fiascoerr.IO, "imageio.ReadImage", err)
	}
	if !color {
		im.Bands[0] = make([]float64, n)
		for i := 0; i < n; i++ {
			im.Bands[0][i] = float64(buf[i])
		}
		return im, nil
	}
	for b := 0; b < 3; b++ {
		im.Bands[b] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		im.Bands[0][i] = float64(buf[i*3+0])
		im.Bands[1][i] = float64(buf[i*3+1])
		im.Bands[2][i] = float64(buf[i*3+2])
	}
	return im, nil
}

// WriteImage writes im back out as a PNM file (P5 for grey, P6 for
// colour), maxval fixed at 255.
func WriteImage(w io.Writer, im *Image) error {
	magic := "P5"
	bands := 1
	if im.Color {
		magic = "P6"
		bands = 3
	}
	if _, err := fmt.Fprintf(w, "%s\n%d %d\n255\n", magic, im.Width, im.Height); err != nil {
		return fiascoerr.New(fiascoerr.IO, "imageio.WriteImage", err)
	}
	n := im.Width * im.Height
	buf := make([]byte, n*bands)
	if bands == 1 {
		for i := 0; i < n; i++ {
			buf[i] = clampByte(im.Bands[0][i])
		}
	} else {
		for i := 0; i < n; i++ {
			buf[i*3+0] = clampByte(im.Bands[0][i])
			buf[i*3+1] = clampByte(im.Bands[1][i])
			buf[i*3+2] = clampByte(im.Bands[2][i])
		}
	}
	if _, err := w.Write(buf); err != nil {
		return fiascoerr.New(fiascoerr.IO, "imageio.WriteImage", err)
	}
	return nil
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}

// FIASCODataEnv is the environment variable the codec searches for an
// initial-basis override file.
const FIASCODataEnv = "FIASCO_DATA"

// ResolveBasisPath looks for name under $FIASCO_DATA if set, otherwise
// returns name unmodified so the caller falls back to the embedded
// default basis (package basis).
func ResolveBasisPath(name string) string {
	if dir := os.Getenv(FIASCODataEnv); dir != "" {
		return dir + string(os.PathSeparator) + name
	}
	return name
}

// AddressToXY converts a bintree address (a path of label bits from the
// root tile down to targetLevel, rootLevel-targetLevel bits long) to the
// tile's pixel coordinates, by walking down the levels and alternating
// which axis subdivides: even levels split along x, odd levels
// along y.
func AddressToXY(rootLevel uint, addr uint64, targetLevel uint) (x, y int) {
	for level := rootLevel; level > targetLevel; level-- {
		bit := int((addr >> (level - targetLevel - 1)) & 1)
		if bit == 1 {
			if level%2 == 0 {
				x += wfa.WidthOfLevel(level - 1)
			} else {
				y += wfa.HeightOfLevel(level - 1)
			}
		}
	}
	return x, y
}

// XYToAddress is the inverse of AddressToXY: given pixel coordinates
// known to be the top-left corner of a targetLevel tile, reconstructs
// the bintree address (bijective given valid input).
func XYToAddress(rootLevel uint, x, y int, targetLevel uint) uint64 {
	var addr uint64
	for level := rootLevel; level > targetLevel; level-- {
		var bit uint64
		if level%2 == 0 {
			half := wfa.WidthOfLevel(level - 1)
			if x >= half {
				bit = 1
				x -= half
			}
		} else {
			half := wfa.HeightOfLevel(level - 1)
			if y >= half {
				bit = 1
				y -= half
			}
		}
		addr = (addr << 1) | bit
	}
	return addr
}

// WidthOfLevel/HeightOfLevel are re-exported for imageio callers that
// only have this package imported (bitstream and subdivide depend on
// wfa directly).
func WidthOfLevel(level uint) int  { return wfa.WidthOfLevel(level) }
func HeightOfLevel(level uint) int { return wfa.HeightOfLevel(level) }
