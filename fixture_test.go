package webp

import (
	"encoding/binary"
	"image/color"
)

var (
	red   = color.NRGBA{R: 0xff, A: 0xff}
	green = color.NRGBA{G: 0xff, A: 0xff}
	blue  = color.NRGBA{B: 0xff, A: 0xff}
)

// bitWriter packs values least significant bit first, as VP8L expects.
type bitWriter struct {
	buf []byte
	n   uint
}

func (w *bitWriter) write(v uint32, bits int) {
	for i := 0; i < bits; i++ {
		if w.n%8 == 0 {
			w.buf = append(w.buf, 0)
		}

		if v>>uint(i)&1 == 1 {
			w.buf[len(w.buf)-1] |= 1 << (w.n % 8)
		}

		w.n++
	}
}

// simpleCode writes a one-symbol prefix code, so the symbol costs no bits
// per pixel.
func (w *bitWriter) simpleCode(symbol uint8) {
	w.write(1, 1) // simple code
	w.write(0, 1) // one symbol

	if symbol < 2 {
		w.write(0, 1)
		w.write(uint32(symbol), 1)

		return
	}

	w.write(1, 1)
	w.write(uint32(symbol), 8)
}

// vp8lSolid returns a lossless bitstream of a w x h image filled with c.
func vp8lSolid(w, h int, c color.NRGBA) []byte {
	var bw bitWriter

	bw.write(0x2f, 8)
	bw.write(uint32(w-1), 14)
	bw.write(uint32(h-1), 14)
	bw.write(1, 1) // alpha is used
	bw.write(0, 3) // version

	bw.write(0, 1) // no transform
	bw.write(0, 1) // no color cache
	bw.write(0, 1) // no meta prefix codes

	for _, symbol := range []uint8{c.G, c.R, c.B, c.A, 0} {
		bw.simpleCode(symbol)
	}

	return bw.buf
}

func chunk(fourcc string, payload []byte) []byte {
	out := make([]byte, 8, 8+len(payload)+1)
	copy(out, fourcc)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(payload)))
	out = append(out, payload...)

	if len(payload)%2 == 1 {
		out = append(out, 0)
	}

	return out
}

func riff(chunks ...[]byte) []byte {
	var body []byte
	for _, c := range chunks {
		body = append(body, c...)
	}

	out := make([]byte, 12, 12+len(body))
	copy(out, "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(4+len(body)))
	copy(out[8:], "WEBP")

	return append(out, body...)
}

func le24(v int) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16)}
}

// solidLossless returns a still WEBP file of a w x h image filled with c.
func solidLossless(w, h int, c color.NRGBA) []byte {
	return riff(chunk("VP8L", vp8lSolid(w, h, c)))
}

type frame struct {
	x, y int // even
	w, h int
	c    color.NRGBA
}

// animation returns an animated WEBP file. Frames are not blended.
func animation(canvasWidth, canvasHeight int, frames ...frame) []byte {
	const (
		flagAnimation = 0x02
		flagAlpha     = 0x10
	)

	vp8x := []byte{flagAnimation | flagAlpha, 0, 0, 0}
	vp8x = append(vp8x, le24(canvasWidth-1)...)
	vp8x = append(vp8x, le24(canvasHeight-1)...)

	anim := []byte{0, 0, 0, 0, 0, 0} // transparent background, infinite loop

	chunks := [][]byte{chunk("VP8X", vp8x), chunk("ANIM", anim)}

	for _, f := range frames {
		var anmf []byte
		anmf = append(anmf, le24(f.x/2)...)
		anmf = append(anmf, le24(f.y/2)...)
		anmf = append(anmf, le24(f.w-1)...)
		anmf = append(anmf, le24(f.h-1)...)
		anmf = append(anmf, le24(100)...) // duration
		anmf = append(anmf, 0x02)         // do not blend, no dispose
		anmf = append(anmf, chunk("VP8L", vp8lSolid(f.w, f.h, f.c))...)

		chunks = append(chunks, chunk("ANMF", anmf))
	}

	return riff(chunks...)
}

func fullFrame(w, h int, c color.NRGBA) frame {
	return frame{w: w, h: h, c: c}
}

func rgbaPixels(w, h int, c color.NRGBA) []byte {
	pix := make([]byte, 0, w*h*4)
	for i := 0; i < w*h; i++ {
		pix = append(pix, c.R, c.G, c.B, c.A)
	}

	return pix
}
