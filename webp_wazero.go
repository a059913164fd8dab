package webp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

const wasmLibName = "libwebp.wasm"

var errNotExported = errors.New("export not found")

// NewWASMDecoder returns a Decoder backed by libwebp and libwebpdemux
// compiled to a single WebAssembly module. The module must export its
// memory and the same functions as the shared libraries; malloc and free
// are accepted in place of WebPMalloc and WebPFree.
func NewWASMDecoder(ctx context.Context, wasm []byte) (*Decoder, error) {
	rt := wazero.NewRuntime(ctx)

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("compile: %w", err)
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("wasi: %w", err)
	}

	cfg := wazero.NewModuleConfig().
		WithStderr(os.Stderr).
		WithStartFunctions("_initialize")

	mod, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate: %w", err)
	}

	l := &wasmLibrary{
		mod:    mod,
		layout: newABI(4, binary.LittleEndian),
	}

	if err := l.resolve(); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	Logger().Debug("instantiated wasm module",
		zap.Uint32("memory_size", l.mem.Size()))

	d := newDecoder(l)
	d.closeFn = rt.Close

	return d, nil
}

// wasmLibrary calls libwebp inside a wazero module instance. Calls are
// serialized since an instance has a single stack.
type wasmLibrary struct {
	mu     sync.Mutex
	mod    api.Module
	mem    api.Memory
	layout *abi

	_webpGetFeatures            api.Function
	_webpDecodeRGBA             api.Function
	_webpMalloc                 api.Function
	_webpFree                   api.Function
	_webpAnimDecoderOptionsInit api.Function
	_webpAnimDecoderNew         api.Function
	_webpAnimDecoderGetInfo     api.Function
	_webpAnimDecoderGetNext     api.Function
	_webpAnimDecoderDelete      api.Function
}

func (l *wasmLibrary) resolve() error {
	exports := []struct {
		fn    *api.Function
		names []string
	}{
		{&l._webpGetFeatures, []string{symGetFeatures}},
		{&l._webpDecodeRGBA, []string{symDecodeRGBA}},
		{&l._webpMalloc, []string{symMalloc, "malloc"}},
		{&l._webpFree, []string{symFree, "free"}},
		{&l._webpAnimDecoderOptionsInit, []string{symAnimDecoderOptionsInit}},
		{&l._webpAnimDecoderNew, []string{symAnimDecoderNew}},
		{&l._webpAnimDecoderGetInfo, []string{symAnimDecoderGetInfo}},
		{&l._webpAnimDecoderGetNext, []string{symAnimDecoderGetNext}},
		{&l._webpAnimDecoderDelete, []string{symAnimDecoderDelete}},
	}

	for _, e := range exports {
		for _, name := range e.names {
			if fn := l.mod.ExportedFunction(name); fn != nil {
				*e.fn = fn
				break
			}
		}

		if *e.fn == nil {
			return &EnvironmentError{Library: wasmLibName, Symbol: e.names[0], Err: errNotExported}
		}
	}

	l.mem = l.mod.Memory()
	if l.mem == nil {
		return &EnvironmentError{Library: wasmLibName, Symbol: "memory", Err: errNotExported}
	}

	return nil
}

func (l *wasmLibrary) call(fn api.Function, params ...uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := fn.Call(context.Background(), params...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fn.Definition().Name(), err)
	}

	if len(res) == 0 {
		return 0, nil
	}

	return res[0], nil
}

func (l *wasmLibrary) abi() *abi {
	return l.layout
}

func (l *wasmLibrary) malloc(size uint64) (ptr, error) {
	if size > math.MaxUint32 {
		return 0, fmt.Errorf("%d bytes exceed wasm32 address space", size)
	}

	res, err := l.call(l._webpMalloc, api.EncodeU32(uint32(size)))
	if err != nil {
		return 0, err
	}

	return ptr(api.DecodeU32(res)), nil
}

func (l *wasmLibrary) free(p ptr) error {
	_, err := l.call(l._webpFree, addr32(p))

	return err
}

func (l *wasmLibrary) read(p ptr, n int) ([]byte, error) {
	if p == 0 || n < 0 || uint64(p)+uint64(n) > math.MaxUint32 {
		return nil, ErrMemRead
	}

	view, ok := l.mem.Read(uint32(p), uint32(n))
	if !ok {
		return nil, ErrMemRead
	}

	out := make([]byte, n)
	copy(out, view)

	return out, nil
}

func (l *wasmLibrary) write(p ptr, b []byte) error {
	if p == 0 || uint64(p) > math.MaxUint32 {
		return ErrMemWrite
	}

	if !l.mem.Write(uint32(p), b) {
		return ErrMemWrite
	}

	return nil
}

func (l *wasmLibrary) getFeatures(data ptr, size uint64, features ptr, version int32) (int32, error) {
	res, err := l.call(l._webpGetFeatures, addr32(data), api.EncodeU32(uint32(size)), addr32(features), api.EncodeI32(version))
	if err != nil {
		return 0, err
	}

	return api.DecodeI32(res), nil
}

func (l *wasmLibrary) decodeRGBA(data ptr, size uint64, width, height ptr) (ptr, error) {
	res, err := l.call(l._webpDecodeRGBA, addr32(data), api.EncodeU32(uint32(size)), addr32(width), addr32(height))
	if err != nil {
		return 0, err
	}

	return ptr(api.DecodeU32(res)), nil
}

func (l *wasmLibrary) animDecoderOptionsInit(options ptr, version int32) (int32, error) {
	res, err := l.call(l._webpAnimDecoderOptionsInit, addr32(options), api.EncodeI32(version))
	if err != nil {
		return 0, err
	}

	return api.DecodeI32(res), nil
}

func (l *wasmLibrary) animDecoderNew(data, options ptr, version int32) (ptr, error) {
	res, err := l.call(l._webpAnimDecoderNew, addr32(data), addr32(options), api.EncodeI32(version))
	if err != nil {
		return 0, err
	}

	return ptr(api.DecodeU32(res)), nil
}

func (l *wasmLibrary) animDecoderGetInfo(dec, info ptr) (int32, error) {
	res, err := l.call(l._webpAnimDecoderGetInfo, addr32(dec), addr32(info))
	if err != nil {
		return 0, err
	}

	return api.DecodeI32(res), nil
}

func (l *wasmLibrary) animDecoderGetNext(dec, buf, timestamp ptr) (int32, error) {
	res, err := l.call(l._webpAnimDecoderGetNext, addr32(dec), addr32(buf), addr32(timestamp))
	if err != nil {
		return 0, err
	}

	return api.DecodeI32(res), nil
}

func (l *wasmLibrary) animDecoderDelete(dec ptr) error {
	_, err := l.call(l._webpAnimDecoderDelete, addr32(dec))

	return err
}

func addr32(p ptr) uint64 {
	return api.EncodeU32(uint32(p))
}
