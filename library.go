package webp

import (
	"strconv"
)

// ABI versions and enum values from decode.h and demux.h. The library
// rejects a call when the major byte of the version differs from its own.
const (
	decoderABIVersion = 0x0210 // WEBP_DECODER_ABI_VERSION
	demuxABIVersion   = 0x0107 // WEBP_DEMUX_ABI_VERSION

	modeRGBA = 1 // MODE_RGBA
)

// Exported symbols resolved from libwebp and libwebpdemux.
const (
	symGetFeatures            = "WebPGetFeaturesInternal"
	symDecodeRGBA             = "WebPDecodeRGBA"
	symMalloc                 = "WebPMalloc"
	symFree                   = "WebPFree"
	symAnimDecoderOptionsInit = "WebPAnimDecoderOptionsInitInternal"
	symAnimDecoderNew         = "WebPAnimDecoderNewInternal"
	symAnimDecoderGetInfo     = "WebPAnimDecoderGetInfo"
	symAnimDecoderGetNext     = "WebPAnimDecoderGetNext"
	symAnimDecoderDelete      = "WebPAnimDecoderDelete"
)

// ptr is an address in the library's address space: process memory for the
// dynamic backend, linear memory for the wasm backend.
type ptr uint64

// library is the table of libwebp entry points used by the decoder, plus
// access to the memory they operate on. Return values are passed through
// untouched; each entry point keeps its own success convention.
type library interface {
	abi() *abi

	malloc(size uint64) (ptr, error)
	free(p ptr) error
	read(p ptr, n int) ([]byte, error)
	write(p ptr, b []byte) error

	getFeatures(data ptr, size uint64, features ptr, version int32) (int32, error)
	decodeRGBA(data ptr, size uint64, width, height ptr) (ptr, error)

	animDecoderOptionsInit(options ptr, version int32) (int32, error)
	animDecoderNew(data, options ptr, version int32) (ptr, error)
	animDecoderGetInfo(dec, info ptr) (int32, error)
	animDecoderGetNext(dec, buf, timestamp ptr) (int32, error)
	animDecoderDelete(dec ptr) error
}

// Status is a VP8StatusCode returned by the feature probe.
type Status int32

const (
	StatusOK Status = iota
	StatusOutOfMemory
	StatusInvalidParam
	StatusBitstreamError
	StatusUnsupportedFeature
	StatusSuspended
	StatusUserAbort
	StatusNotEnoughData
)

var statusNames = [...]string{
	"OK",
	"OUT_OF_MEMORY",
	"INVALID_PARAM",
	"BITSTREAM_ERROR",
	"UNSUPPORTED_FEATURE",
	"SUSPENDED",
	"USER_ABORT",
	"NOT_ENOUGH_DATA",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}

	return "VP8_STATUS(" + strconv.Itoa(int(s)) + ")"
}

// Format is the bitstream kind reported by the feature probe.
type Format int

const (
	FormatUndefined Format = iota // mixed or undefined
	FormatLossy
	FormatLossless
)

func (f Format) String() string {
	switch f {
	case FormatLossy:
		return "lossy"
	case FormatLossless:
		return "lossless"
	default:
		return "undefined"
	}
}

// Features describes a WebP bitstream without decoding it.
type Features struct {
	Width        int
	Height       int
	HasAlpha     bool
	HasAnimation bool
	Format       Format
}
