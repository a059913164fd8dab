// Package webp implements a WEBP image decoder based on libwebp and
// libwebpdemux, loaded at runtime with purego or run as WASM with wazero.
//
// Animated images decode to their first frame, composited onto the
// animation canvas.
package webp

import (
	"image"
	"image/color"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
)

func init() {
	image.RegisterFormat("webp", "RIFF????WEBP", Decode, DecodeConfig)
}

var (
	dynamicOnce    sync.Once
	dynamicDecoder *Decoder
	dynamicErr     error
)

func defaultDecoder() (*Decoder, error) {
	dynamicOnce.Do(func() {
		lib, err := loadDynamic()
		if err != nil {
			dynamicErr = err
			Logger().Warn("shared library unavailable", zap.Error(err))

			return
		}

		dynamicDecoder = newDecoder(lib)
	})

	return dynamicDecoder, dynamicErr
}

// Dynamic returns the error, if any, from loading the shared libraries.
// The libraries are loaded once; a failure is permanent for the process.
func Dynamic() error {
	_, err := defaultDecoder()

	return err
}

// Decode reads a WEBP image from r and returns it as an image.Image.
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	img, err := DecodeBytes(data)
	if err != nil {
		return nil, err
	}

	return img, nil
}

// DecodeConfig returns the color model and dimensions of a WEBP image
// without decoding the entire image.
func DecodeConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}

	f, err := GetFeatures(data)
	if err != nil {
		return image.Config{}, err
	}

	return image.Config{
		ColorModel: color.NRGBAModel,
		Width:      f.Width,
		Height:     f.Height,
	}, nil
}

// DecodeBytes decodes data with the shared libraries.
func DecodeBytes(data []byte) (*ARGB, error) {
	d, err := defaultDecoder()
	if err != nil {
		return nil, err
	}

	return d.Decode(data)
}

// DecodeFile decodes the WEBP file at path.
func DecodeFile(path string) (*ARGB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return DecodeBytes(data)
}

// GetFeatures probes data with the shared libraries.
func GetFeatures(data []byte) (Features, error) {
	d, err := defaultDecoder()
	if err != nil {
		return Features{}, err
	}

	return d.Features(data)
}
