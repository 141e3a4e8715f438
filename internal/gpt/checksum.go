package gpt

import (
	"encoding/binary"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mikalv/Pure64/internal/checksum"
	"github.com/mikalv/Pure64/internal/errdefs"
	"github.com/mikalv/Pure64/internal/stream"
)

// PrimaryHeaderLBA is where the primary header always lives.
const PrimaryHeaderLBA = 1

// Locations are the byte offsets touched by the checksum pass.
type Locations struct {
	PrimaryHeader uint64
	PrimaryArray  uint64
	BackupHeader  uint64
	BackupArray   uint64
}

// Locate finds both headers and both entry arrays. The backup header is
// found through the backup LBA recorded in the primary header.
func Locate(s stream.Stream) (Locations, error) {
	var b [8]byte
	if err := stream.ReadAt(s, PrimaryHeaderLBA*SectorSize+BackupLBAOffset, b[:]); err != nil {
		return Locations{}, errors.Wrap(err, "reading backup LBA from primary GPT header")
	}
	backupLBA := binary.LittleEndian.Uint64(b[:])
	return Locations{
		PrimaryHeader: PrimaryHeaderLBA * SectorSize,
		PrimaryArray:  (PrimaryHeaderLBA + 1) * SectorSize,
		BackupHeader:  backupLBA * SectorSize,
		BackupArray:   backupLBA*SectorSize - EntryArraySize,
	}, nil
}

// WriteChecksums fills in the CRC fields of both headers of an already
// written table. The entry array checksums go first because the header
// checksum covers them.
func WriteChecksums(s stream.Stream) error {
	loc, err := Locate(s)
	if err != nil {
		return err
	}

	arrays := []struct {
		name   string
		array  uint64
		header uint64
	}{
		{"primary", loc.PrimaryArray, loc.PrimaryHeader},
		{"backup", loc.BackupArray, loc.BackupHeader},
	}
	for _, a := range arrays {
		if err := writeEntryArrayChecksum(s, a.array, a.header); err != nil {
			return errors.Wrapf(err, "%s partition entry checksum", a.name)
		}
	}

	for _, h := range arrays {
		if err := writeHeaderChecksum(s, h.header); err != nil {
			return errors.Wrapf(err, "%s GPT header checksum", h.name)
		}
	}
	return nil
}

func writeEntryArrayChecksum(s stream.Stream, array, header uint64) error {
	buf := make([]byte, EntryArraySize)
	if err := stream.ReadAt(s, array, buf); err != nil {
		return err
	}
	crc := checksum.CRC32(buf)
	log.Debugf("GPT entry array at %#x: crc32 %#08x", array, crc)
	return putUint32At(s, header+EntryArrayCRCOffset, crc)
}

func writeHeaderChecksum(s stream.Stream, header uint64) error {
	buf := make([]byte, HeaderSize)
	if err := stream.ReadAt(s, header, buf); err != nil {
		return err
	}
	// the stored checksum is not part of its own input
	binary.LittleEndian.PutUint32(buf[HeaderCRCOffset:], 0)
	crc := checksum.CRC32(buf)
	log.Debugf("GPT header at %#x: crc32 %#08x", header, crc)
	return putUint32At(s, header+HeaderCRCOffset, crc)
}

func putUint32At(s stream.Stream, pos uint64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return stream.WriteAt(s, pos, b[:])
}

// Verify recomputes both checksums of the header sector at offset header
// and compares them with the stored values.
func Verify(s stream.Stream, header uint64) (*Header, error) {
	sector := make([]byte, SectorSize)
	if err := stream.ReadAt(s, header, sector); err != nil {
		return nil, err
	}
	h, sums, err := UnmarshalSector(sector)
	if err != nil {
		return nil, err
	}

	binary.LittleEndian.PutUint32(sector[HeaderCRCOffset:], 0)
	if crc := checksum.CRC32(sector[:HeaderSize]); crc != sums.Header {
		return nil, errors.Wrapf(errdefs.ErrCorrupt, "GPT header at %#x: checksum %#08x, computed %#08x", header, sums.Header, crc)
	}

	if h.EntryCount > EntryCount {
		return nil, errors.Wrapf(errdefs.ErrCorrupt, "GPT header at %#x: %d partition entries", header, h.EntryCount)
	}
	array := make([]byte, uint64(h.EntryCount)*EntrySize)
	if err := stream.ReadAt(s, h.PartitionArrayLBA*SectorSize, array); err != nil {
		return nil, err
	}
	if crc := checksum.CRC32(array); crc != sums.EntryArray {
		return nil, errors.Wrapf(errdefs.ErrCorrupt, "GPT entry array at LBA %d: checksum %#08x, computed %#08x", h.PartitionArrayLBA, sums.EntryArray, crc)
	}
	return h, nil
}
