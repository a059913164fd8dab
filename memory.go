package webp

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// owner records who is responsible for releasing a buffer.
type owner uint8

const (
	// callerOwned memory was allocated by the scope with WebPMalloc.
	callerOwned owner = iota
	// libraryOwned memory was returned by libwebp and must go back through
	// WebPFree.
	libraryOwned
	// decoderOwned memory belongs to an animation decoder. It is never
	// freed here and is invalid once the decoder advances or is deleted.
	decoderOwned
)

func (o owner) String() string {
	switch o {
	case callerOwned:
		return "caller"
	case libraryOwned:
		return "library"
	case decoderOwned:
		return "decoder"
	default:
		return "unknown"
	}
}

// buffer is a region of library memory.
type buffer struct {
	addr     ptr
	size     int
	owner    owner
	released bool
}

// scope tracks all library memory touched by a single decode call. Every
// buffer goes through release exactly once; close releases whatever is
// still live, in reverse order of acquisition.
type scope struct {
	lib  library
	bufs []*buffer
}

func newScope(lib library) *scope {
	return &scope{lib: lib}
}

// track registers memory the scope did not allocate itself.
func (s *scope) track(p ptr, size int, o owner) *buffer {
	b := &buffer{addr: p, size: size, owner: o}
	s.bufs = append(s.bufs, b)

	return b
}

// alloc returns a zeroed caller-owned buffer of n bytes. At least one byte
// is allocated so the address is never NULL.
func (s *scope) alloc(n int) (*buffer, error) {
	b, err := s.allocRaw(n)
	if err != nil {
		return nil, err
	}

	if err := s.lib.write(b.addr, make([]byte, max(n, 1))); err != nil {
		return nil, err
	}

	return b, nil
}

func (s *scope) allocRaw(n int) (*buffer, error) {
	p, err := s.lib.malloc(uint64(max(n, 1)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAlloc, err)
	}

	if p == 0 {
		return nil, ErrAlloc
	}

	return s.track(p, n, callerOwned), nil
}

// copyIn copies data into a caller-owned buffer.
func (s *scope) copyIn(data []byte) (*buffer, error) {
	b, err := s.allocRaw(len(data))
	if err != nil {
		return nil, err
	}

	if len(data) > 0 {
		if err := s.lib.write(b.addr, data); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// record allocates a zeroed struct of the given layout.
func (s *scope) record(l *structLayout) (*buffer, error) {
	return s.alloc(l.size)
}

// bytes copies the buffer contents out of library memory.
func (s *scope) bytes(b *buffer) ([]byte, error) {
	if b.released {
		return nil, fmt.Errorf("%w: %s buffer already released", ErrMemRead, b.owner)
	}

	if b.size == 0 {
		return []byte{}, nil
	}

	out, err := s.lib.read(b.addr, b.size)
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (s *scope) store(b *buffer, data []byte) error {
	if b.released {
		return fmt.Errorf("%w: %s buffer already released", ErrMemWrite, b.owner)
	}

	if len(data) > b.size {
		return fmt.Errorf("%w: %d bytes into %d byte buffer", ErrMemWrite, len(data), b.size)
	}

	return s.lib.write(b.addr, data)
}

func (s *scope) readInt32(b *buffer) (int32, error) {
	data, err := s.bytes(b)
	if err != nil {
		return 0, err
	}

	return s.lib.abi().int32At(data, 0), nil
}

func (s *scope) readPtr(b *buffer) (ptr, error) {
	data, err := s.bytes(b)
	if err != nil {
		return 0, err
	}

	return s.lib.abi().ptrAt(data, 0), nil
}

// release gives the buffer back according to its owner. Releasing twice
// is a no-op.
func (s *scope) release(b *buffer) error {
	if b == nil || b.released {
		return nil
	}

	b.released = true

	switch b.owner {
	case callerOwned, libraryOwned:
		return s.lib.free(b.addr)
	default:
		return nil
	}
}

// close releases every live buffer and reports all failures.
func (s *scope) close() error {
	var errs []error

	for i := len(s.bufs) - 1; i >= 0; i-- {
		if err := s.release(s.bufs[i]); err != nil {
			errs = append(errs, err)
		}
	}

	s.bufs = nil

	return errors.Join(errs...)
}

func closeScope(s *scope) {
	if err := s.close(); err != nil {
		Logger().Warn("release native memory", zap.Error(err))
	}
}
