package webp

import (
	"image"
	"image/color"
)

// ARGB is an in-memory image whose pixels are packed into one uint32
// each, as 0xAARRGGBB with non-premultiplied alpha. Its At method returns
// color.NRGBA values.
type ARGB struct {
	// Pix holds the image's pixels in row-major order. The pixel at
	// (x, y) is Pix[(y-Rect.Min.Y)*Stride + (x-Rect.Min.X)].
	Pix []uint32
	// Stride is the Pix stride (in pixels) between vertically adjacent pixels.
	Stride int
	// Rect is the image's bounds.
	Rect image.Rectangle
}

// NewARGB returns a new ARGB image with the given bounds.
func NewARGB(r image.Rectangle) *ARGB {
	w, h := r.Dx(), r.Dy()

	return &ARGB{
		Pix:    make([]uint32, w*h),
		Stride: w,
		Rect:   r,
	}
}

func (p *ARGB) ColorModel() color.Model { return color.NRGBAModel }

func (p *ARGB) Bounds() image.Rectangle { return p.Rect }

func (p *ARGB) At(x, y int) color.Color {
	return p.NRGBAAt(x, y)
}

// ARGBAt returns the packed pixel at (x, y), or 0 outside the bounds.
func (p *ARGB) ARGBAt(x, y int) uint32 {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return 0
	}

	return p.Pix[p.PixOffset(x, y)]
}

func (p *ARGB) NRGBAAt(x, y int) color.NRGBA {
	v := p.ARGBAt(x, y)

	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: uint8(v >> 24),
	}
}

// PixOffset returns the index of the element of Pix that corresponds to
// the pixel at (x, y).
func (p *ARGB) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x - p.Rect.Min.X)
}

func (p *ARGB) Set(x, y int, c color.Color) {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	p.SetARGB(x, y, packARGB(n.R, n.G, n.B, n.A))
}

func (p *ARGB) SetARGB(x, y int, v uint32) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}

	p.Pix[p.PixOffset(x, y)] = v
}

// Opaque scans the entire image and reports whether it is fully opaque.
func (p *ARGB) Opaque() bool {
	if p.Rect.Empty() {
		return true
	}

	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		row := p.Pix[p.PixOffset(p.Rect.Min.X, y):]
		for _, v := range row[:p.Rect.Dx()] {
			if v>>24 != 0xff {
				return false
			}
		}
	}

	return true
}

func packARGB(r, g, b, a uint8) uint32 {
	return uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// rgbaToARGB packs width*height RGBA byte quadruplets into an ARGB image.
func rgbaToARGB(pix []byte, width, height int) *ARGB {
	img := NewARGB(image.Rect(0, 0, width, height))

	for i := range img.Pix {
		o := i * 4
		img.Pix[i] = packARGB(pix[o], pix[o+1], pix[o+2], pix[o+3])
	}

	return img
}
