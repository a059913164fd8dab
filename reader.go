package webp

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"go.uber.org/zap"
)

// PluginInfo describes the reader to an image I/O host.
type PluginInfo struct {
	Description string
	FormatNames []string
	Suffixes    []string
	MIMETypes   []string
}

// Plugin is the registration record for Reader.
var Plugin = PluginInfo{
	Description: "WebP Image Reader (libwebp)",
	FormatNames: []string{"webp", "WEBP", "WebP"},
	Suffixes:    []string{"webp"},
	MIMETypes:   []string{"image/webp"},
}

const headerSize = 12

// CanDecodeInput reports whether src starts with a RIFF/WEBP header. The
// read offset of src is restored before returning.
func CanDecodeInput(src io.ReadSeeker) (ok bool, err error) {
	pos, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, err
	}

	defer func() {
		if _, serr := src.Seek(pos, io.SeekStart); serr != nil && err == nil {
			ok, err = false, serr
		}
	}()

	var header [headerSize]byte

	_, err = io.ReadFull(src, header[:])
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return isWebP(header[:]), nil
}

func isWebP(b []byte) bool {
	return len(b) >= headerSize && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WEBP"
}

type readerState uint8

const (
	stateUnbound readerState = iota
	stateBytesUnread
	stateFeaturesKnown
	stateImageDecoded
)

func (s readerState) String() string {
	switch s {
	case stateBytesUnread:
		return "bytes-unread"
	case stateFeaturesKnown:
		return "features-known"
	case stateImageDecoded:
		return "image-decoded"
	default:
		return "unbound"
	}
}

type imageDecoder interface {
	Features(data []byte) (Features, error)
	Decode(data []byte) (*ARGB, error)
}

// sharedDecoder resolves the shared libraries on first use.
type sharedDecoder struct{}

func (sharedDecoder) Features(data []byte) (Features, error) { return GetFeatures(data) }
func (sharedDecoder) Decode(data []byte) (*ARGB, error)      { return DecodeBytes(data) }

// Reader reads the single image of a WEBP stream. Input bytes, features
// and the decoded image are each produced at most once per input and
// cached, errors included. A Reader is not safe for concurrent use.
type Reader struct {
	dec   imageDecoder
	src   io.Reader
	state readerState

	data    []byte
	dataErr error
	read    bool

	features    Features
	featuresErr error
	probed      bool

	img    *ARGB
	imgErr error
}

// NewReader returns a Reader that decodes with the shared libraries.
func NewReader() *Reader {
	return &Reader{dec: sharedDecoder{}}
}

// NewReader returns a Reader that decodes with d.
func (d *Decoder) NewReader() *Reader {
	return &Reader{dec: d}
}

// SetInput binds src and drops everything cached for the previous input.
func (r *Reader) SetInput(src io.Reader) {
	*r = Reader{dec: r.dec, src: src}

	if src != nil {
		r.state = stateBytesUnread
	}
}

// NumImages always returns 1.
func (r *Reader) NumImages() int {
	return 1
}

func (r *Reader) Width(index int) (int, error) {
	f, err := r.probe(index)
	if err != nil {
		return 0, err
	}

	return f.Width, nil
}

func (r *Reader) Height(index int) (int, error) {
	f, err := r.probe(index)
	if err != nil {
		return 0, err
	}

	return f.Height, nil
}

// ColorModel returns the color model of images returned by Read.
func (r *Reader) ColorModel(index int) (color.Model, error) {
	if err := checkIndex(index); err != nil {
		return nil, err
	}

	return color.NRGBAModel, nil
}

// StreamMetadata returns nil; WEBP stream metadata is not read.
func (r *Reader) StreamMetadata() any {
	return nil
}

// ImageMetadata returns nil; WEBP image metadata is not read.
func (r *Reader) ImageMetadata(index int) any {
	return nil
}

// Read decodes the image at index, which must be 0.
func (r *Reader) Read(index int) (*ARGB, error) {
	if err := checkIndex(index); err != nil {
		return nil, err
	}

	if r.img != nil || r.imgErr != nil {
		return r.img, r.imgErr
	}

	data, err := r.bytes()
	if err != nil {
		return nil, err
	}

	r.img, r.imgErr = r.dec.Decode(data)
	if r.imgErr == nil {
		r.state = stateImageDecoded
	}

	Logger().Debug("read image", zap.Stringer("state", r.state), zap.Error(r.imgErr))

	return r.img, r.imgErr
}

func (r *Reader) probe(index int) (Features, error) {
	if err := checkIndex(index); err != nil {
		return Features{}, err
	}

	if r.probed {
		return r.features, r.featuresErr
	}

	data, err := r.bytes()
	if err != nil {
		return Features{}, err
	}

	r.probed = true
	r.features, r.featuresErr = r.dec.Features(data)

	if r.featuresErr == nil && r.state < stateFeaturesKnown {
		r.state = stateFeaturesKnown
	}

	return r.features, r.featuresErr
}

func (r *Reader) bytes() ([]byte, error) {
	if r.src == nil {
		return nil, ErrNoInput
	}

	if !r.read {
		r.read = true
		r.data, r.dataErr = io.ReadAll(r.src)
	}

	return r.data, r.dataErr
}

func checkIndex(index int) error {
	if index != 0 {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	return nil
}
