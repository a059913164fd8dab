//go:build (linux || freebsd || darwin || windows) && !android && !(nodynamic || arm || 386 || mips || mipsle)

package webp

import (
	"encoding/binary"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

func loadDynamic() (library, error) {
	libwebp, name, err := loadLibrary(libnames)
	if err != nil {
		return nil, &EnvironmentError{Library: libnames[0], Err: err}
	}

	libwebpDemux, nameDemux, err := loadLibrary(libnamesDemux)
	if err != nil {
		return nil, &EnvironmentError{Library: libnamesDemux[0], Err: err}
	}

	l := &dynamicLibrary{
		layout: newABI(int(unsafe.Sizeof(uintptr(0))), hostByteOrder()),
	}

	symbols := []struct {
		fptr    any
		handle  uintptr
		library string
		name    string
	}{
		{&l._webpGetFeatures, libwebp, name, symGetFeatures},
		{&l._webpDecodeRGBA, libwebp, name, symDecodeRGBA},
		{&l._webpMalloc, libwebp, name, symMalloc},
		{&l._webpFree, libwebp, name, symFree},
		{&l._webpAnimDecoderOptionsInit, libwebpDemux, nameDemux, symAnimDecoderOptionsInit},
		{&l._webpAnimDecoderNew, libwebpDemux, nameDemux, symAnimDecoderNew},
		{&l._webpAnimDecoderGetInfo, libwebpDemux, nameDemux, symAnimDecoderGetInfo},
		{&l._webpAnimDecoderGetNext, libwebpDemux, nameDemux, symAnimDecoderGetNext},
		{&l._webpAnimDecoderDelete, libwebpDemux, nameDemux, symAnimDecoderDelete},
	}

	for _, s := range symbols {
		addr, err := loadSymbol(s.handle, s.name)
		if err != nil {
			return nil, &EnvironmentError{Library: s.library, Symbol: s.name, Err: err}
		}

		purego.RegisterFunc(s.fptr, addr)
	}

	Logger().Debug("loaded shared libraries",
		zap.String("libwebp", name),
		zap.String("libwebpdemux", nameDemux))

	return l, nil
}

func hostByteOrder() binary.ByteOrder {
	if cpu.IsBigEndian {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// dynamicLibrary calls libwebp in the process address space. size_t is
// bound as uint64, so only 64-bit targets are built.
type dynamicLibrary struct {
	layout *abi

	_webpGetFeatures            func(uintptr, uint64, uintptr, int32) int32
	_webpDecodeRGBA             func(uintptr, uint64, uintptr, uintptr) uintptr
	_webpMalloc                 func(uint64) uintptr
	_webpFree                   func(uintptr)
	_webpAnimDecoderOptionsInit func(uintptr, int32) int32
	_webpAnimDecoderNew         func(uintptr, uintptr, int32) uintptr
	_webpAnimDecoderGetInfo     func(uintptr, uintptr) int32
	_webpAnimDecoderGetNext     func(uintptr, uintptr, uintptr) int32
	_webpAnimDecoderDelete      func(uintptr)
}

func (l *dynamicLibrary) abi() *abi {
	return l.layout
}

func (l *dynamicLibrary) malloc(size uint64) (ptr, error) {
	return ptr(l._webpMalloc(size)), nil
}

func (l *dynamicLibrary) free(p ptr) error {
	l._webpFree(uintptr(p))

	return nil
}

func (l *dynamicLibrary) read(p ptr, n int) ([]byte, error) {
	if p == 0 || n < 0 {
		return nil, ErrMemRead
	}

	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(uintptr(p))), n))

	return out, nil
}

func (l *dynamicLibrary) write(p ptr, b []byte) error {
	if p == 0 {
		return ErrMemWrite
	}

	copy(unsafe.Slice((*byte)(unsafe.Pointer(uintptr(p))), len(b)), b)

	return nil
}

func (l *dynamicLibrary) getFeatures(data ptr, size uint64, features ptr, version int32) (int32, error) {
	return l._webpGetFeatures(uintptr(data), size, uintptr(features), version), nil
}

func (l *dynamicLibrary) decodeRGBA(data ptr, size uint64, width, height ptr) (ptr, error) {
	return ptr(l._webpDecodeRGBA(uintptr(data), size, uintptr(width), uintptr(height))), nil
}

func (l *dynamicLibrary) animDecoderOptionsInit(options ptr, version int32) (int32, error) {
	return l._webpAnimDecoderOptionsInit(uintptr(options), version), nil
}

func (l *dynamicLibrary) animDecoderNew(data, options ptr, version int32) (ptr, error) {
	return ptr(l._webpAnimDecoderNew(uintptr(data), uintptr(options), version)), nil
}

func (l *dynamicLibrary) animDecoderGetInfo(dec, info ptr) (int32, error) {
	return l._webpAnimDecoderGetInfo(uintptr(dec), uintptr(info)), nil
}

func (l *dynamicLibrary) animDecoderGetNext(dec, buf, timestamp ptr) (int32, error) {
	return l._webpAnimDecoderGetNext(uintptr(dec), uintptr(buf), uintptr(timestamp)), nil
}

func (l *dynamicLibrary) animDecoderDelete(dec ptr) error {
	l._webpAnimDecoderDelete(uintptr(dec))

	return nil
}
