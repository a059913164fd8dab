package webp

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Decoder decodes WebP bitstreams through one libwebp backend.
type Decoder struct {
	lib     library
	closeFn func(context.Context) error
}

func newDecoder(lib library) *Decoder {
	return &Decoder{lib: lib}
}

// Close releases the backend. It is a no-op for the shared library
// backend.
func (d *Decoder) Close(ctx context.Context) error {
	if d.closeFn == nil {
		return nil
	}

	return d.closeFn(ctx)
}

// Features probes data without decoding it.
func (d *Decoder) Features(data []byte) (Features, error) {
	s := newScope(d.lib)
	defer closeScope(s)

	in, err := s.copyIn(data)
	if err != nil {
		return Features{}, err
	}

	return d.features(s, in)
}

// Decode decodes a still image, or the first frame of an animation
// composited onto the animation canvas.
func (d *Decoder) Decode(data []byte) (*ARGB, error) {
	log := Logger()

	s := newScope(d.lib)
	defer closeScope(s)

	in, err := s.copyIn(data)
	if err != nil {
		return nil, err
	}

	f, err := d.features(s, in)
	if err != nil {
		log.Debug("probe failed", zap.Int("size", len(data)), zap.Error(err))
		return nil, err
	}

	var pix []byte
	var width, height int

	if f.HasAnimation {
		pix, width, height, err = d.decodeAnimated(s, in)
	} else {
		pix, width, height, err = d.decodeStatic(s, in)
	}

	if err != nil {
		log.Warn("decode failed",
			zap.Bool("animated", f.HasAnimation),
			zap.Int("size", len(data)),
			zap.Error(err))

		return nil, err
	}

	return rgbaToARGB(pix, width, height), nil
}

func (d *Decoder) features(s *scope, in *buffer) (Features, error) {
	a := d.lib.abi()
	l := a.features

	rec, err := s.record(l)
	if err != nil {
		return Features{}, err
	}

	status, err := d.lib.getFeatures(in.addr, uint64(in.size), rec.addr, decoderABIVersion)
	if err != nil {
		return Features{}, err
	}

	if status != int32(StatusOK) {
		return Features{}, &DecodeError{Stage: StageFeatures, Status: Status(status)}
	}

	b, err := s.bytes(rec)
	if err != nil {
		return Features{}, err
	}

	return Features{
		Width:        int(a.int32At(b, l.offset("width"))),
		Height:       int(a.int32At(b, l.offset("height"))),
		HasAlpha:     a.int32At(b, l.offset("has_alpha")) != 0,
		HasAnimation: a.int32At(b, l.offset("has_animation")) != 0,
		Format:       Format(a.int32At(b, l.offset("format"))),
	}, nil
}

func (d *Decoder) decodeStatic(s *scope, in *buffer) ([]byte, int, int, error) {
	widthOut, err := s.alloc(4)
	if err != nil {
		return nil, 0, 0, err
	}

	heightOut, err := s.alloc(4)
	if err != nil {
		return nil, 0, 0, err
	}

	p, err := d.lib.decodeRGBA(in.addr, uint64(in.size), widthOut.addr, heightOut.addr)
	if err != nil {
		return nil, 0, 0, err
	}

	if p == 0 {
		return nil, 0, 0, &DecodeError{Stage: StageDecode}
	}

	out := s.track(p, 0, libraryOwned)

	w, err := s.readInt32(widthOut)
	if err != nil {
		return nil, 0, 0, err
	}

	h, err := s.readInt32(heightOut)
	if err != nil {
		return nil, 0, 0, err
	}

	out.size, err = pixelBytes(int64(w), int64(h))
	if err != nil {
		return nil, 0, 0, err
	}

	pix, err := s.bytes(out)
	if err != nil {
		return nil, 0, 0, err
	}

	if err := s.release(out); err != nil {
		return nil, 0, 0, err
	}

	return pix, int(w), int(h), nil
}

// animDecoder is a WebPAnimDecoder handle. close deletes it at most once.
type animDecoder struct {
	lib     library
	addr    ptr
	deleted bool
}

func (a *animDecoder) close() {
	if a.deleted {
		return
	}

	a.deleted = true

	if err := a.lib.animDecoderDelete(a.addr); err != nil {
		Logger().Warn("delete animation decoder", zap.Error(err))
	}
}

func (d *Decoder) decodeAnimated(s *scope, in *buffer) ([]byte, int, int, error) {
	a := d.lib.abi()

	data, err := s.record(a.data)
	if err != nil {
		return nil, 0, 0, err
	}

	rec := make([]byte, a.data.size)
	a.putWord(rec, a.data.offset("bytes"), uint64(in.addr))
	a.putWord(rec, a.data.offset("size"), uint64(in.size))

	if err := s.store(data, rec); err != nil {
		return nil, 0, 0, err
	}

	opts, err := s.record(a.animOptions)
	if err != nil {
		return nil, 0, 0, err
	}

	// Unlike the probe, the demux entry points return non-zero on success.
	ok, err := d.lib.animDecoderOptionsInit(opts.addr, demuxABIVersion)
	if err != nil {
		return nil, 0, 0, err
	}

	if ok == 0 {
		return nil, 0, 0, &DecodeError{Stage: StageAnimOptions}
	}

	rec, err = s.bytes(opts)
	if err != nil {
		return nil, 0, 0, err
	}

	a.putInt32(rec, a.animOptions.offset("color_mode"), modeRGBA)

	if err := s.store(opts, rec); err != nil {
		return nil, 0, 0, err
	}

	h, err := d.lib.animDecoderNew(data.addr, opts.addr, demuxABIVersion)
	if err != nil {
		return nil, 0, 0, err
	}

	if h == 0 {
		return nil, 0, 0, &DecodeError{Stage: StageAnimNew}
	}

	// The demuxer reads the input buffer in place, so the handle has to go
	// before the scope frees it.
	dec := &animDecoder{lib: d.lib, addr: h}
	defer dec.close()

	info, err := s.record(a.animInfo)
	if err != nil {
		return nil, 0, 0, err
	}

	ok, err = d.lib.animDecoderGetInfo(dec.addr, info.addr)
	if err != nil {
		return nil, 0, 0, err
	}

	if ok == 0 {
		return nil, 0, 0, &DecodeError{Stage: StageAnimInfo}
	}

	rec, err = s.bytes(info)
	if err != nil {
		return nil, 0, 0, err
	}

	l := a.animInfo
	canvasWidth := a.uint32At(rec, l.offset("canvas_width"))
	canvasHeight := a.uint32At(rec, l.offset("canvas_height"))

	Logger().Debug("animation",
		zap.Uint32("canvas_width", canvasWidth),
		zap.Uint32("canvas_height", canvasHeight),
		zap.Uint32("loop_count", a.uint32At(rec, l.offset("loop_count"))),
		zap.Uint32("bgcolor", a.uint32At(rec, l.offset("bgcolor"))),
		zap.Uint32("frame_count", a.uint32At(rec, l.offset("frame_count"))))

	size, err := pixelBytes(int64(canvasWidth), int64(canvasHeight))
	if err != nil {
		return nil, 0, 0, err
	}

	frameOut, err := s.alloc(a.ptrSize)
	if err != nil {
		return nil, 0, 0, err
	}

	timestampOut, err := s.alloc(4)
	if err != nil {
		return nil, 0, 0, err
	}

	ok, err = d.lib.animDecoderGetNext(dec.addr, frameOut.addr, timestampOut.addr)
	if err != nil {
		return nil, 0, 0, err
	}

	if ok == 0 {
		return nil, 0, 0, &DecodeError{Stage: StageAnimFrame}
	}

	p, err := s.readPtr(frameOut)
	if err != nil {
		return nil, 0, 0, err
	}

	if p == 0 {
		return nil, 0, 0, &DecodeError{Stage: StageAnimFrame}
	}

	canvas := s.track(p, size, decoderOwned)

	pix, err := s.bytes(canvas)
	if err != nil {
		return nil, 0, 0, err
	}

	if err := s.release(canvas); err != nil {
		return nil, 0, 0, err
	}

	return pix, int(canvasWidth), int(canvasHeight), nil
}

// pixelBytes returns width*height*4, rejecting sizes that are empty or do
// not fit in an int.
func pixelBytes(width, height int64) (int, error) {
	if width <= 0 || height <= 0 || width > math.MaxInt32 || height > math.MaxInt32 {
		return 0, fmt.Errorf("%w: invalid dimensions %dx%d", ErrDecode, width, height)
	}

	if width > math.MaxInt/4/height {
		return 0, fmt.Errorf("%w: image too large %dx%d", ErrDecode, width, height)
	}

	return int(width * height * 4), nil
}
