// Package stream provides the byte medium every image component reads and
// writes through. A Stream transfers exact byte counts: any short transfer is
// an error, there is no partial success.
package stream

import (
	"fmt"
	"io"
	"math"

	"github.com/mikalv/Pure64/internal/errdefs"
)

// Stream is a sequential, repositionable byte medium.
type Stream interface {
	// ReadFull reads exactly len(buf) bytes at the current position.
	ReadFull(buf []byte) error

	// WriteFull writes exactly len(buf) bytes at the current position.
	WriteFull(buf []byte) error

	// SetPosition moves to an absolute byte offset. Offsets beyond the
	// addressable range of the medium fail with errdefs.ErrInvalidArgument.
	SetPosition(pos uint64) error

	// Position returns the current absolute byte offset.
	Position() (uint64, error)
}

// SeekerStream adapts an io.ReadWriteSeeker, typically an *os.File.
type SeekerStream struct {
	rws io.ReadWriteSeeker
}

// New wraps rws in a Stream.
func New(rws io.ReadWriteSeeker) *SeekerStream {
	return &SeekerStream{rws: rws}
}

func (s *SeekerStream) ReadFull(buf []byte) error {
	if _, err := io.ReadFull(s.rws, buf); err != nil {
		return fmt.Errorf("%w: read %d bytes: %v", errdefs.ErrIO, len(buf), err)
	}
	return nil
}

func (s *SeekerStream) WriteFull(buf []byte) error {
	n, err := s.rws.Write(buf)
	if err != nil {
		return fmt.Errorf("%w: write %d bytes: %v", errdefs.ErrIO, len(buf), err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: short write, %d of %d bytes", errdefs.ErrIO, n, len(buf))
	}
	return nil
}

func (s *SeekerStream) SetPosition(pos uint64) error {
	if pos > math.MaxInt64 {
		return fmt.Errorf("%w: position %d out of range", errdefs.ErrInvalidArgument, pos)
	}
	if _, err := s.rws.Seek(int64(pos), io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to %d: %v", errdefs.ErrIO, pos, err)
	}
	return nil
}

func (s *SeekerStream) Position() (uint64, error) {
	pos, err := s.rws.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("%w: get position: %v", errdefs.ErrIO, err)
	}
	return uint64(pos), nil
}

// ReadAt positions s at pos and reads exactly len(buf) bytes.
func ReadAt(s Stream, pos uint64, buf []byte) error {
	if err := s.SetPosition(pos); err != nil {
		return err
	}
	return s.ReadFull(buf)
}

// WriteAt positions s at pos and writes exactly len(buf) bytes.
func WriteAt(s Stream, pos uint64, buf []byte) error {
	if err := s.SetPosition(pos); err != nil {
		return err
	}
	return s.WriteFull(buf)
}

// Zero writes n zero bytes at the current position.
func Zero(s Stream, n uint64) error {
	const chunk = 64 * 1024
	buf := make([]byte, chunk)
	for n > 0 {
		size := uint64(chunk)
		if n < size {
			size = n
		}
		if err := s.WriteFull(buf[:size]); err != nil {
			return err
		}
		n -= size
	}
	return nil
}

// Pad extends the medium to size bytes by writing a single zero byte at
// size-1. The bytes in between read back as zero on both files and memory.
func Pad(s Stream, size uint64) error {
	if size == 0 {
		return nil
	}
	return WriteAt(s, size-1, []byte{0})
}
