package webp

import (
	"encoding/binary"
	"fmt"
)

type fieldKind uint8

const (
	kindInt32 fieldKind = iota
	kindUint32
	kindPointer
	kindSize
)

func (k fieldKind) width(ptrSize int) int {
	switch k {
	case kindPointer, kindSize:
		return ptrSize
	default:
		return 4
	}
}

type field struct {
	name  string
	kind  fieldKind
	count int
}

func i32(name string) field        { return field{name: name, kind: kindInt32, count: 1} }
func u32(name string) field        { return field{name: name, kind: kindUint32, count: 1} }
func pad(name string, n int) field { return field{name: name, kind: kindUint32, count: n} }
func pointer(name string) field    { return field{name: name, kind: kindPointer, count: 1} }
func sizeT(name string) field      { return field{name: name, kind: kindSize, count: 1} }

func alignUp(off, align int) int {
	return (off + align - 1) &^ (align - 1)
}

// structLayout is the C layout of a libwebp struct. Offsets follow the
// declaration order with natural alignment and the total size is rounded
// up to the largest member alignment, as a C compiler would do.
type structLayout struct {
	name    string
	size    int
	fields  []field
	offsets map[string]int
}

func newLayout(name string, ptrSize int, fields ...field) *structLayout {
	l := &structLayout{
		name:    name,
		fields:  fields,
		offsets: make(map[string]int, len(fields)),
	}

	off, maxAlign := 0, 1
	for _, f := range fields {
		w := f.kind.width(ptrSize)
		off = alignUp(off, w)
		l.offsets[f.name] = off
		off += w * f.count

		if w > maxAlign {
			maxAlign = w
		}
	}

	l.size = alignUp(off, maxAlign)

	return l
}

// offset returns the byte offset of the named field. Unknown names are a
// programming error.
func (l *structLayout) offset(name string) int {
	off, ok := l.offsets[name]
	if !ok {
		panic(fmt.Sprintf("webp: %s has no field %q", l.name, name))
	}

	return off
}

// abi describes how the library lays out the structs this package
// exchanges with it.
type abi struct {
	ptrSize int
	order   binary.ByteOrder

	features    *structLayout
	data        *structLayout
	animOptions *structLayout
	animInfo    *structLayout
}

func newABI(ptrSize int, order binary.ByteOrder) *abi {
	return &abi{
		ptrSize: ptrSize,
		order:   order,

		// decode.h
		features: newLayout("WebPBitstreamFeatures", ptrSize,
			i32("width"),
			i32("height"),
			i32("has_alpha"),
			i32("has_animation"),
			i32("format"),
			pad("pad", 5),
		),

		// mux_types.h
		data: newLayout("WebPData", ptrSize,
			pointer("bytes"),
			sizeT("size"),
		),

		// demux.h
		animOptions: newLayout("WebPAnimDecoderOptions", ptrSize,
			i32("color_mode"),
			i32("use_threads"),
			pad("padding", 7),
		),
		animInfo: newLayout("WebPAnimInfo", ptrSize,
			u32("canvas_width"),
			u32("canvas_height"),
			u32("loop_count"),
			u32("bgcolor"),
			u32("frame_count"),
			pad("pad", 4),
		),
	}
}

func (a *abi) int32At(b []byte, off int) int32 {
	return int32(a.order.Uint32(b[off:]))
}

func (a *abi) uint32At(b []byte, off int) uint32 {
	return a.order.Uint32(b[off:])
}

func (a *abi) putInt32(b []byte, off int, v int32) {
	a.order.PutUint32(b[off:], uint32(v))
}

func (a *abi) ptrAt(b []byte, off int) ptr {
	if a.ptrSize == 4 {
		return ptr(a.order.Uint32(b[off:]))
	}

	return ptr(a.order.Uint64(b[off:]))
}

// putWord stores a pointer or size_t value.
func (a *abi) putWord(b []byte, off int, v uint64) {
	if a.ptrSize == 4 {
		a.order.PutUint32(b[off:], uint32(v))
		return
	}

	a.order.PutUint64(b[off:], v)
}
