package stream

import (
	"fmt"

	"github.com/mikalv/Pure64/internal/errdefs"
)

// DefaultMemoryLimit bounds a Memory stream created with a zero limit.
const DefaultMemoryLimit = 1 << 32

// Memory is an in-memory Stream. Writes past the end grow the buffer and
// zero-fill any gap, the same way a sparse file behaves.
type Memory struct {
	buf   []byte
	pos   uint64
	limit uint64
}

// NewMemory returns an empty Memory stream addressable up to limit bytes.
func NewMemory(limit uint64) *Memory {
	if limit == 0 {
		limit = DefaultMemoryLimit
	}
	return &Memory{limit: limit}
}

// NewMemoryFrom returns a Memory stream over a copy of data.
func NewMemoryFrom(data []byte, limit uint64) *Memory {
	m := NewMemory(limit)
	m.buf = append([]byte(nil), data...)
	return m
}

func (m *Memory) ReadFull(buf []byte) error {
	end := m.pos + uint64(len(buf))
	if end > uint64(len(m.buf)) {
		return fmt.Errorf("%w: read %d bytes at %d past end %d", errdefs.ErrIO, len(buf), m.pos, len(m.buf))
	}
	copy(buf, m.buf[m.pos:end])
	m.pos = end
	return nil
}

func (m *Memory) WriteFull(buf []byte) error {
	end := m.pos + uint64(len(buf))
	if end > m.limit {
		return fmt.Errorf("%w: write %d bytes at %d exceeds limit %d", errdefs.ErrIO, len(buf), m.pos, m.limit)
	}
	if end > uint64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], buf)
	m.pos = end
	return nil
}

func (m *Memory) SetPosition(pos uint64) error {
	if pos > m.limit {
		return fmt.Errorf("%w: position %d beyond limit %d", errdefs.ErrInvalidArgument, pos, m.limit)
	}
	m.pos = pos
	return nil
}

func (m *Memory) Position() (uint64, error) {
	return m.pos, nil
}

// Bytes returns the medium contents. The slice aliases the stream.
func (m *Memory) Bytes() []byte {
	return m.buf
}

// Len returns the current medium length.
func (m *Memory) Len() int {
	return len(m.buf)
}
