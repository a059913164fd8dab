package webp

import (
	"encoding/binary"
	"fmt"
	"sort"
)

const (
	kindMalloc = "malloc"
	kindDecode = "decode"
	kindFrame  = "frame"
)

type fakeAnim struct {
	input  []byte
	next   int
	frames []ptr
}

// fakeLib is an in-memory stand-in for libwebp. It hands out addresses in
// a private heap and records every allocation, release and call so tests
// can check the decoder's release discipline.
type fakeLib struct {
	layout *abi
	next   ptr

	heap  map[ptr][]byte
	kinds map[ptr]string

	freeOrder []ptr
	misuse    []string

	handles map[ptr]*fakeAnim
	created int
	deletes map[ptr]int

	versions  map[string]int32
	colorMode int32
	calls     []string

	// Behaviour.
	features  Features
	rgba      []byte
	frames    [][]byte
	canvasW   uint32
	canvasH   uint32
	fail      Stage
	status    int32
	nullFrame bool
	outW      int32 // overrides features.Width for WebPDecodeRGBA
}

func newFakeLib(ptrSize int) *fakeLib {
	return &fakeLib{
		layout:   newABI(ptrSize, binary.LittleEndian),
		next:     0x1000,
		heap:     make(map[ptr][]byte),
		kinds:    make(map[ptr]string),
		handles:  make(map[ptr]*fakeAnim),
		deletes:  make(map[ptr]int),
		versions: make(map[string]int32),
		status:   int32(StatusBitstreamError),
	}
}

func (f *fakeLib) place(b []byte, kind string) ptr {
	p := f.next
	f.next += ptr(len(b)) + 16
	f.heap[p] = b
	f.kinds[p] = kind

	return p
}

func (f *fakeLib) region(p ptr, n int) ([]byte, bool) {
	for base, b := range f.heap {
		if p >= base && uint64(p)+uint64(n) <= uint64(base)+uint64(len(b)) {
			off := int(p - base)
			return b[off : off+n], true
		}
	}

	return nil, false
}

// live returns the allocations that still need a free.
func (f *fakeLib) live() []string {
	var out []string

	for p, kind := range f.kinds {
		if kind != kindFrame {
			out = append(out, fmt.Sprintf("%s@%#x", kind, uint64(p)))
		}
	}

	sort.Strings(out)

	return out
}

func (f *fakeLib) abi() *abi {
	return f.layout
}

func (f *fakeLib) malloc(size uint64) (ptr, error) {
	b := make([]byte, size)
	for i := range b {
		b[i] = 0xa5
	}

	return f.place(b, kindMalloc), nil
}

func (f *fakeLib) free(p ptr) error {
	kind, ok := f.kinds[p]
	if !ok || kind == kindFrame {
		f.misuse = append(f.misuse, fmt.Sprintf("free of %#x", uint64(p)))
		return nil
	}

	delete(f.heap, p)
	delete(f.kinds, p)
	f.freeOrder = append(f.freeOrder, p)

	return nil
}

func (f *fakeLib) read(p ptr, n int) ([]byte, error) {
	b, ok := f.region(p, n)
	if !ok {
		f.misuse = append(f.misuse, fmt.Sprintf("read of %d bytes at %#x", n, uint64(p)))
		return nil, ErrMemRead
	}

	return append([]byte(nil), b...), nil
}

func (f *fakeLib) write(p ptr, data []byte) error {
	b, ok := f.region(p, len(data))
	if !ok {
		f.misuse = append(f.misuse, fmt.Sprintf("write of %d bytes at %#x", len(data), uint64(p)))
		return ErrMemWrite
	}

	copy(b, data)

	return nil
}

func (f *fakeLib) putInt32(p ptr, v int32) {
	b, ok := f.region(p, 4)
	if !ok {
		f.misuse = append(f.misuse, fmt.Sprintf("int32 store at %#x", uint64(p)))
		return
	}

	f.layout.putInt32(b, 0, v)
}

func (f *fakeLib) getFeatures(data ptr, size uint64, features ptr, version int32) (int32, error) {
	f.calls = append(f.calls, symGetFeatures)
	f.versions[symGetFeatures] = version

	if _, ok := f.region(data, int(size)); !ok {
		f.misuse = append(f.misuse, "features: input not readable")
	}

	if size == 0 {
		return int32(StatusNotEnoughData), nil
	}

	if f.fail == StageFeatures {
		return f.status, nil
	}

	l := f.layout.features
	rec, ok := f.region(features, l.size)
	if !ok {
		f.misuse = append(f.misuse, "features: record not writable")
		return int32(StatusInvalidParam), nil
	}

	f.layout.putInt32(rec, l.offset("width"), int32(f.features.Width))
	f.layout.putInt32(rec, l.offset("height"), int32(f.features.Height))
	f.layout.putInt32(rec, l.offset("has_alpha"), boolInt(f.features.HasAlpha))
	f.layout.putInt32(rec, l.offset("has_animation"), boolInt(f.features.HasAnimation))
	f.layout.putInt32(rec, l.offset("format"), int32(f.features.Format))

	return int32(StatusOK), nil
}

func (f *fakeLib) decodeRGBA(data ptr, size uint64, width, height ptr) (ptr, error) {
	f.calls = append(f.calls, symDecodeRGBA)

	if f.fail == StageDecode {
		return 0, nil
	}

	w := int32(f.features.Width)
	if f.outW != 0 {
		w = f.outW
	}

	f.putInt32(width, w)
	f.putInt32(height, int32(f.features.Height))

	return f.place(append([]byte(nil), f.rgba...), kindDecode), nil
}

func (f *fakeLib) animDecoderOptionsInit(options ptr, version int32) (int32, error) {
	f.calls = append(f.calls, symAnimDecoderOptionsInit)
	f.versions[symAnimDecoderOptionsInit] = version

	if f.fail == StageAnimOptions {
		return 0, nil
	}

	l := f.layout.animOptions
	rec, ok := f.region(options, l.size)
	if !ok {
		f.misuse = append(f.misuse, "options: record not writable")
		return 0, nil
	}

	clear(rec)
	f.layout.putInt32(rec, l.offset("use_threads"), 0)

	return 1, nil
}

func (f *fakeLib) animDecoderNew(data, options ptr, version int32) (ptr, error) {
	f.calls = append(f.calls, symAnimDecoderNew)
	f.versions[symAnimDecoderNew] = version

	if f.fail == StageAnimNew {
		return 0, nil
	}

	a := f.layout
	rec, ok := f.region(data, a.data.size)
	if !ok {
		f.misuse = append(f.misuse, "new: WebPData not readable")
		return 0, nil
	}

	bytesPtr := a.ptrAt(rec, a.data.offset("bytes"))
	size := a.ptrAt(rec, a.data.offset("size"))

	input, ok := f.region(bytesPtr, int(size))
	if !ok {
		f.misuse = append(f.misuse, "new: input not readable")
		return 0, nil
	}

	opts, ok := f.region(options, a.animOptions.size)
	if !ok {
		f.misuse = append(f.misuse, "new: options not readable")
		return 0, nil
	}

	f.colorMode = a.int32At(opts, a.animOptions.offset("color_mode"))

	h := f.next
	f.next += 16
	f.handles[h] = &fakeAnim{input: append([]byte(nil), input...)}
	f.created++

	return h, nil
}

func (f *fakeLib) animDecoderGetInfo(dec, info ptr) (int32, error) {
	f.calls = append(f.calls, symAnimDecoderGetInfo)

	if _, ok := f.handles[dec]; !ok {
		f.misuse = append(f.misuse, "info: unknown handle")
		return 0, nil
	}

	if f.fail == StageAnimInfo {
		return 0, nil
	}

	l := f.layout.animInfo
	rec, ok := f.region(info, l.size)
	if !ok {
		f.misuse = append(f.misuse, "info: record not writable")
		return 0, nil
	}

	f.layout.order.PutUint32(rec[l.offset("canvas_width"):], f.canvasW)
	f.layout.order.PutUint32(rec[l.offset("canvas_height"):], f.canvasH)
	f.layout.order.PutUint32(rec[l.offset("frame_count"):], uint32(len(f.frames)))

	return 1, nil
}

func (f *fakeLib) animDecoderGetNext(dec, buf, timestamp ptr) (int32, error) {
	f.calls = append(f.calls, symAnimDecoderGetNext)

	anim, ok := f.handles[dec]
	if !ok {
		f.misuse = append(f.misuse, "next: unknown handle")
		return 0, nil
	}

	if f.fail == StageAnimFrame || anim.next >= len(f.frames) {
		return 0, nil
	}

	var p ptr
	if !f.nullFrame {
		p = f.place(append([]byte(nil), f.frames[anim.next]...), kindFrame)
		anim.frames = append(anim.frames, p)
	}

	anim.next++

	slot, ok := f.region(buf, f.layout.ptrSize)
	if !ok {
		f.misuse = append(f.misuse, "next: frame slot not writable")
		return 0, nil
	}

	f.layout.putWord(slot, 0, uint64(p))
	f.putInt32(timestamp, int32(anim.next*100))

	return 1, nil
}

func (f *fakeLib) animDecoderDelete(dec ptr) error {
	f.calls = append(f.calls, symAnimDecoderDelete)
	f.deletes[dec]++

	anim, ok := f.handles[dec]
	if !ok {
		f.misuse = append(f.misuse, fmt.Sprintf("delete of %#x", uint64(dec)))
		return nil
	}

	for _, p := range anim.frames {
		delete(f.heap, p)
		delete(f.kinds, p)
	}

	delete(f.handles, dec)

	return nil
}

func (f *fakeLib) countCalls(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}

	return n
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}

	return 0
}
