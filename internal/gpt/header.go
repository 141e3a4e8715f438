// Package gpt writes GUID partition table headers and finalizes their
// checksums. Only empty tables are produced: every partition entry is zero.
package gpt

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mikalv/Pure64/internal/errdefs"
)

const (
	// SectorSize is the logical block size the table is laid out for.
	SectorSize = 512

	// HeaderSize is the number of meaningful bytes in a header sector.
	HeaderSize = 92

	// EntryCount and EntrySize describe the partition entry array.
	EntryCount = 128
	EntrySize  = 128

	// EntryArraySize is the size of one partition entry array in bytes.
	EntryArraySize = EntryCount * EntrySize

	// EntryArraySectors is EntryArraySize in sectors.
	EntryArraySectors = EntryArraySize / SectorSize

	// Revision is GPT 1.0.
	Revision = 0x00010000

	// Byte offsets inside a header sector.
	HeaderCRCOffset     = 16
	BackupLBAOffset     = 32
	EntryArrayCRCOffset = 88
)

// Signature opens every header sector.
var Signature = [8]byte{'E', 'F', 'I', ' ', 'P', 'A', 'R', 'T'}

// GUID is a disk or partition GUID in on-disk (mixed-endian) byte order.
type GUID [16]byte

// ParseGUID parses the textual form of a UUID and converts it to the
// on-disk layout, where the first three groups are little-endian.
func ParseGUID(s string) (GUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, errors.Wrapf(errdefs.ErrInvalidArgument, "malformed GUID %q: %v", s, err)
	}
	return guidFromUUID(u), nil
}

func guidFromUUID(u uuid.UUID) GUID {
	var g GUID
	copy(g[:], u[:])
	swapGUIDFields(g[:])
	return g
}

// UUID converts g back to canonical RFC 4122 byte order.
func (g GUID) UUID() uuid.UUID {
	var u uuid.UUID
	copy(u[:], g[:])
	swapGUIDFields(u[:])
	return u
}

func (g GUID) String() string {
	return g.UUID().String()
}

// swapGUIDFields converts between RFC 4122 and mixed-endian byte order. The
// conversion is its own inverse.
func swapGUIDFields(b []byte) {
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]
}

// Header is the subset of a GPT header that varies between disks.
type Header struct {
	CurrentLBA        uint64
	BackupLBA         uint64
	FirstUsableLBA    uint64
	LastUsableLBA     uint64
	DiskGUID          GUID
	PartitionArrayLBA uint64
	EntryCount        uint32
}

// onDisk mirrors the first 92 bytes of a header sector.
type onDisk struct {
	Signature         [8]byte
	Revision          uint32
	HeaderSize        uint32
	HeaderCRC         uint32
	Reserved          uint32
	CurrentLBA        uint64
	BackupLBA         uint64
	FirstUsableLBA    uint64
	LastUsableLBA     uint64
	DiskGUID          [16]byte
	PartitionArrayLBA uint64
	EntryCount        uint32
	EntrySize         uint32
	EntryArrayCRC     uint32
}

// MarshalSector encodes h as a full sector with both checksum fields zero.
func (h *Header) MarshalSector() []byte {
	raw := onDisk{
		Signature:         Signature,
		Revision:          Revision,
		HeaderSize:        HeaderSize,
		CurrentLBA:        h.CurrentLBA,
		BackupLBA:         h.BackupLBA,
		FirstUsableLBA:    h.FirstUsableLBA,
		LastUsableLBA:     h.LastUsableLBA,
		DiskGUID:          h.DiskGUID,
		PartitionArrayLBA: h.PartitionArrayLBA,
		EntryCount:        h.EntryCount,
		EntrySize:         EntrySize,
	}
	buf := bytes.NewBuffer(make([]byte, 0, SectorSize))
	// writes into a bytes.Buffer do not fail
	_ = binary.Write(buf, binary.LittleEndian, &raw)
	buf.Write(make([]byte, SectorSize-HeaderSize))
	return buf.Bytes()
}

// Checksums are the two CRC fields of a decoded header.
type Checksums struct {
	Header     uint32
	EntryArray uint32
}

// UnmarshalSector decodes a header sector and validates the fixed fields.
func UnmarshalSector(b []byte) (*Header, Checksums, error) {
	if len(b) < HeaderSize {
		return nil, Checksums{}, errors.Wrapf(errdefs.ErrCorrupt, "GPT header is %d bytes", len(b))
	}
	var raw onDisk
	if err := binary.Read(bytes.NewReader(b[:HeaderSize]), binary.LittleEndian, &raw); err != nil {
		return nil, Checksums{}, errors.Wrap(errdefs.ErrCorrupt, err.Error())
	}
	switch {
	case raw.Signature != Signature:
		return nil, Checksums{}, errors.Wrapf(errdefs.ErrCorrupt, "bad GPT signature %q", raw.Signature[:])
	case raw.Revision != Revision:
		return nil, Checksums{}, errors.Wrapf(errdefs.ErrCorrupt, "unsupported GPT revision %#08x", raw.Revision)
	case raw.HeaderSize != HeaderSize:
		return nil, Checksums{}, errors.Wrapf(errdefs.ErrCorrupt, "unexpected GPT header size %d", raw.HeaderSize)
	case raw.EntrySize != EntrySize:
		return nil, Checksums{}, errors.Wrapf(errdefs.ErrCorrupt, "unexpected partition entry size %d", raw.EntrySize)
	}
	h := &Header{
		CurrentLBA:        raw.CurrentLBA,
		BackupLBA:         raw.BackupLBA,
		FirstUsableLBA:    raw.FirstUsableLBA,
		LastUsableLBA:     raw.LastUsableLBA,
		DiskGUID:          raw.DiskGUID,
		PartitionArrayLBA: raw.PartitionArrayLBA,
		EntryCount:        raw.EntryCount,
	}
	return h, Checksums{Header: raw.HeaderCRC, EntryArray: raw.EntryArrayCRC}, nil
}

// Backup returns the mirror of a primary header: current and backup LBAs
// are swapped and the entry array moves to the sectors just before the
// backup header.
func (h *Header) Backup() *Header {
	b := *h
	b.CurrentLBA = h.BackupLBA
	b.BackupLBA = h.CurrentLBA
	b.PartitionArrayLBA = h.BackupLBA - EntryArraySectors
	return &b
}
