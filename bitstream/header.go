package bitstream

import (
	"fmt"

	"github.com/fiasco-codec/fiasco/acoder"
	"github.com/fiasco-codec/fiasco/bitio"
	"github.com/fiasco-codec/fiasco/fiascoerr"
	"github.com/fiasco-codec/fiasco/rpf"
)

// WriteHeader serialises h: magic, basis name, release, tagged
// strings, scalars, the four RPFs (DC and delta difference-coded against
// the normal one, delta-DC against the DC one), and the motion fields
// for sequences. Byte-aligned on return.
func WriteHeader(w *bitio.Writer, h *Header) error {
	for i := 0; i < len(Magic); i++ {
		w.PutBits(uint32(Magic[i]), 8)
	}
	w.PutBits('\n', 8)
	writeString(w, h.BasisName)

	acoder.EncodeRice(w, BinfileRelease, riceK)

	acoder.EncodeRice(w, headerTitle, riceK)
	writeString(w, h.Title)
	acoder.EncodeRice(w, headerComment, riceK)
	writeString(w, h.Comment)
	acoder.EncodeRice(w, headerEnd, riceK)

	acoder.EncodeRice(w, uint32(h.MaxStates), riceK)
	putFlag(w, h.Color)
	acoder.EncodeRice(w, uint32(h.Width), riceK)
	acoder.EncodeRice(w, uint32(h.Height), riceK)
	if h.Color {
		acoder.EncodeRice(w, uint32(h.ChromaMaxStates), riceK)
	}
	acoder.EncodeRice(w, uint32(h.PMinLevel), riceK)
	acoder.EncodeRice(w, uint32(h.PMaxLevel), riceK)
	acoder.EncodeRice(w, uint32(h.Frames), riceK)
	acoder.EncodeRice(w, uint32(h.Smoothing), riceK)

	writeRPF(w, h.RPF)
	writeOptRPF(w, h.DCRPF, h.RPF)
	writeOptRPF(w, h.DRPF, h.RPF)
	writeOptRPF(w, h.DDCRPF, h.DCRPF)

	if h.Frames > 1 {
		acoder.EncodeRice(w, uint32(h.FPS), riceK)
		acoder.EncodeRice(w, uint32(h.SearchRange), riceK)
		putFlag(w, h.HalfPixel)
		putFlag(w, h.BAsPastRef)
	}

	w.ByteAlign()
	return w.Err()
}

// ReadHeader parses a header written by WriteHeader, rejecting foreign
// magic bytes and releases newer than BinfileRelease.
func ReadHeader(r *bitio.Reader) (*Header, error) {
	for i := 0; i < len(Magic); i++ {
		if byte(r.GetBits(8)) != Magic[i] {
			return nil, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.ReadHeader",
				fmt.Errorf("bad magic"))
		}
	}
	if r.GetBits(8) != '\n' {
		return nil, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.ReadHeader",
			fmt.Errorf("bad magic terminator"))
	}

	h := &Header{}
	var err error
	if h.BasisName, err = readString(r); err != nil {
		return nil, err
	}

	release := acoder.DecodeRice(r, riceK)
	if release > BinfileRelease {
		return nil, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.ReadHeader",
			fmt.Errorf("release %d is newer than %d", release, BinfileRelease))
	}

	if release >= 2 {
		for {
			tag := acoder.DecodeRice(r, riceK)
			if tag == headerEnd {
				break
			}
			s, err := readString(r)
			if err != nil {
				return nil, err
			}
			switch tag {
			case headerTitle:
				h.Title = s
			case headerComment:
				h.Comment = s
			default:
				// Unknown tags are skipped for forward compatibility
				// within a release.
			}
		}
	}

	h.MaxStates = int(acoder.DecodeRice(r, riceK))
	h.Color = r.GetBit() == 1
	h.Width = int(acoder.DecodeRice(r, riceK))
	h.Height = int(acoder.DecodeRice(r, riceK))
	if h.Color {
		h.ChromaMaxStates = int(acoder.DecodeRice(r, riceK))
	}
	h.PMinLevel = uint(acoder.DecodeRice(r, riceK))
	h.PMaxLevel = uint(acoder.DecodeRice(r, riceK))
	h.Frames = int(acoder.DecodeRice(r, riceK))
	h.Smoothing = int(acoder.DecodeRice(r, riceK))

	h.RPF = readRPF(r)
	h.DCRPF = readOptRPF(r, h.RPF)
	h.DRPF = readOptRPF(r, h.RPF)
	h.DDCRPF = readOptRPF(r, h.DCRPF)

	if h.Frames > 1 {
		h.FPS = int(acoder.DecodeRice(r, riceK))
		h.SearchRange = int(acoder.DecodeRice(r, riceK))
		h.HalfPixel = r.GetBit() == 1
		h.BAsPastRef = r.GetBit() == 1
	}

	r.ByteAlign()
	if r.Err() != nil {
		return nil, fiascoerr.New(fiascoerr.IO, "bitstream.ReadHeader", r.Err())
	}
	return h, nil
}

func writeString(w *bitio.Writer, s string) {
	n := len(s)
	if n > MaxStrlen-2 {
		n = MaxStrlen - 2
	}
	for i := 0; i < n; i++ {
		w.PutBits(uint32(s[i]), 8)
	}
	w.PutBits(0, 8)
}

func readString(r *bitio.Reader) (string, error) {
	var b []byte
	for {
		c := byte(r.GetBits(8))
		if r.Err() != nil {
			return "", fiascoerr.New(fiascoerr.IO, "bitstream.readString", r.Err())
		}
		if c == 0 {
			return string(b), nil
		}
		if len(b) >= MaxStrlen {
			return "", fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.readString",
				fmt.Errorf("unterminated string"))
		}
		b = append(b, c)
	}
}

func putFlag(w *bitio.Writer, f bool) {
	if f {
		w.PutBit(1)
	} else {
		w.PutBit(0)
	}
}

func writeRPF(w *bitio.Writer, r rpf.RPF) {
	w.PutBits(uint32(r.MantissaBits-2), 3)
	w.PutBits(uint32(r.RangeE), 2)
}

func readRPF(r *bitio.Reader) rpf.RPF {
	m := uint(r.GetBits(3)) + 2
	e := rpf.Range(r.GetBits(2))
	return rpf.RPF{MantissaBits: m, RangeE: e}
}

// writeOptRPF writes a 1-bit "differs" flag and, when set, the RPF
// itself; base is the RPF the reader falls back to.
func writeOptRPF(w *bitio.Writer, r, base rpf.RPF) {
	if r == base {
		w.PutBit(0)
		return
	}
	w.PutBit(1)
	writeRPF(w, r)
}

func readOptRPF(r *bitio.Reader, base rpf.RPF) rpf.RPF {
	if r.GetBit() == 0 {
		return base
	}
	return readRPF(r)
}
