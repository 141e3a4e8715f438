// Package mbr reads and patches the 512-byte master boot record. The boot
// code itself is opaque; only the two disk address packets that tell it where
// stage-2 and stage-3 live, the partition table and the signature are
// interpreted.
package mbr

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/mikalv/Pure64/internal/errdefs"
	"github.com/mikalv/Pure64/internal/stream"
)

const (
	// SectorSize is the size of the boot sector and of every LBA.
	SectorSize = 512

	// Stage2DAPOffset and Stage3DAPOffset locate the disk address packets
	// inside the boot code, just below the disk signature.
	Stage2DAPOffset = 0x198
	Stage3DAPOffset = 0x1A8
	dapSize         = 16

	partitionTableOffset = 0x1BE
	partitionEntrySize   = 16
	signatureOffset      = 0x1FE

	// ProtectiveType is the partition type of a GPT protective entry.
	ProtectiveType = 0xEE
)

// DAP is a BIOS extended-read disk address packet.
type DAP struct {
	Size          uint8
	Reserved      uint8
	SectorCount   uint16
	BufferOffset  uint16
	BufferSegment uint16
	Sector        uint64
}

// MBR is a boot sector held in memory.
type MBR struct {
	data [SectorSize]byte
}

// FromBytes copies a boot sector image. It must be exactly one sector.
func FromBytes(b []byte) (*MBR, error) {
	if len(b) != SectorSize {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "boot sector is %d bytes, want %d", len(b), SectorSize)
	}
	m := &MBR{}
	copy(m.data[:], b)
	return m, nil
}

// Read loads the boot sector from offset zero of s.
func Read(s stream.Stream) (*MBR, error) {
	m := &MBR{}
	if err := stream.ReadAt(s, 0, m.data[:]); err != nil {
		return nil, errors.Wrap(err, "reading boot sector")
	}
	return m, nil
}

// Write stores the boot sector at offset zero of s.
func (m *MBR) Write(s stream.Stream) error {
	if err := stream.WriteAt(s, 0, m.data[:]); err != nil {
		return errors.Wrap(err, "writing boot sector")
	}
	return nil
}

// Bytes returns a copy of the sector.
func (m *MBR) Bytes() []byte {
	return append([]byte(nil), m.data[:]...)
}

func (m *MBR) dap(offset int) DAP {
	var d DAP
	// reading from a fixed-size in-memory slice cannot fail
	_ = binary.Read(bytes.NewReader(m.data[offset:offset+dapSize]), binary.LittleEndian, &d)
	return d
}

func (m *MBR) setDAP(offset int, d DAP) {
	buf := bytes.NewBuffer(make([]byte, 0, dapSize))
	_ = binary.Write(buf, binary.LittleEndian, &d)
	copy(m.data[offset:offset+dapSize], buf.Bytes())
}

// Stage2 returns the stage-2 disk address packet.
func (m *MBR) Stage2() DAP {
	return m.dap(Stage2DAPOffset)
}

// Stage3 returns the stage-3 disk address packet.
func (m *MBR) Stage3() DAP {
	return m.dap(Stage3DAPOffset)
}

// SetBootLocations patches the start sector and sector count of both
// packets. Every other packet field keeps the value the boot code shipped
// with.
func (m *MBR) SetBootLocations(st2Sector uint64, st2Count uint16, st3Sector uint64, st3Count uint16) {
	st2 := m.Stage2()
	st2.Sector = st2Sector
	st2.SectorCount = st2Count
	m.setDAP(Stage2DAPOffset, st2)

	st3 := m.Stage3()
	st3.Sector = st3Sector
	st3.SectorCount = st3Count
	m.setDAP(Stage3DAPOffset, st3)
}

// SetProtectivePartition installs the single 0xEE entry that marks the disk
// as GPT for legacy tools, clears the other three entries and sets the boot
// signature. totalSectors is the disk size in sectors.
func (m *MBR) SetProtectivePartition(totalSectors uint64) {
	table := m.data[partitionTableOffset:signatureOffset]
	for i := range table {
		table[i] = 0
	}

	size := totalSectors - 1
	if size > 0xFFFFFFFF {
		size = 0xFFFFFFFF
	}

	entry := table[:partitionEntrySize]
	// not bootable, CHS start at LBA 1
	entry[0] = 0x00
	copy(entry[1:4], []byte{0x00, 0x02, 0x00})
	entry[4] = ProtectiveType
	copy(entry[5:8], []byte{0xFF, 0xFF, 0xFF})
	binary.LittleEndian.PutUint32(entry[8:12], 1)
	binary.LittleEndian.PutUint32(entry[12:16], uint32(size))

	m.data[signatureOffset] = 0x55
	m.data[signatureOffset+1] = 0xAA
}

// HasSignature reports whether the sector ends in 0x55 0xAA.
func (m *MBR) HasSignature() bool {
	return m.data[signatureOffset] == 0x55 && m.data[signatureOffset+1] == 0xAA
}
