package webp

import (
	"errors"
	"fmt"
)

// Errors.
var (
	ErrDecode          = errors.New("webp: decode error")
	ErrEnvironment     = errors.New("webp: native library unavailable")
	ErrMemRead         = errors.New("webp: mem read failed")
	ErrMemWrite        = errors.New("webp: mem write failed")
	ErrAlloc           = errors.New("webp: alloc failed")
	ErrIndexOutOfRange = errors.New("webp: image index out of range")
	ErrNoInput         = errors.New("webp: no input set")
)

// Stage names the native call a decode failed in.
type Stage string

const (
	StageFeatures    Stage = "features"     // WebPGetFeaturesInternal
	StageDecode      Stage = "decode"       // WebPDecodeRGBA
	StageAnimOptions Stage = "anim-options" // WebPAnimDecoderOptionsInitInternal
	StageAnimNew     Stage = "anim-new"     // WebPAnimDecoderNewInternal
	StageAnimInfo    Stage = "anim-info"    // WebPAnimDecoderGetInfo
	StageAnimFrame   Stage = "anim-frame"   // WebPAnimDecoderGetNext
)

// DecodeError reports a failed native call. Status is only meaningful for
// StageFeatures; the other calls signal failure with a zero or NULL result.
type DecodeError struct {
	Stage  Stage
	Status Status
}

func (e *DecodeError) Error() string {
	if e.Stage == StageFeatures {
		return fmt.Sprintf("webp: %s: status %d (%s)", e.Stage, int32(e.Status), e.Status)
	}

	return fmt.Sprintf("webp: %s: null result", e.Stage)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// EnvironmentError reports a shared library or symbol that could not be
// resolved. It is not recoverable: the backend that returned it cannot
// serve any decode.
type EnvironmentError struct {
	Library string
	Symbol  string
	Err     error
}

func (e *EnvironmentError) Error() string {
	msg := "webp: " + e.Library
	if e.Symbol != "" {
		msg += ": " + e.Symbol
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

func (e *EnvironmentError) Is(target error) bool {
	return target == ErrEnvironment
}
