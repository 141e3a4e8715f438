package diskmanager

import (
	"fmt"

	"github.com/mikalv/Pure64/internal/errdefs"
)

const (
	// SectorSize is the unit every region is aligned to.
	SectorSize = 512

	// Stage2Offset is where the planner places stage-2.
	Stage2Offset = 0x2000

	// MaxStageSectors is the most sectors the boot code can load with one
	// BIOS extended read, so each stage binary must fit in it.
	MaxStageSectors = 0x7F

	// MaxStageSize is MaxStageSectors in bytes.
	MaxStageSize = MaxStageSectors * SectorSize

	// DefaultMinimumImageSize is the smallest image mkfs produces.
	DefaultMinimumImageSize = 1024 * 1024
)

// Layout records where each region of a bootable image starts.
type Layout struct {
	MBROffset        uint64
	Stage2Offset     uint64
	Stage3Offset     uint64
	FilesystemOffset uint64

	Stage2Sectors uint16
	Stage3Sectors uint16
}

func (l Layout) String() string {
	return fmt.Sprintf("mbr=%#x stage2=%#x (%d sectors) stage3=%#x (%d sectors) fs=%#x",
		l.MBROffset, l.Stage2Offset, l.Stage2Sectors, l.Stage3Offset, l.Stage3Sectors, l.FilesystemOffset)
}

// alignSector rounds n up to the next sector boundary.
func alignSector(n uint64) uint64 {
	return (n + SectorSize - 1) / SectorSize * SectorSize
}

func stageSectors(name string, size uint64) (uint16, error) {
	if size == 0 {
		return 0, fmt.Errorf("%w: %s boot loader is empty", errdefs.ErrInvalidArgument, name)
	}
	sectors := (size + SectorSize - 1) / SectorSize
	if sectors > MaxStageSectors {
		return 0, fmt.Errorf("%w: %s boot loader is %d bytes (%d sectors), limit is %d sectors",
			errdefs.ErrInvalidArgument, name, size, sectors, MaxStageSectors)
	}
	return uint16(sectors), nil
}

// PlanLayout places stage-2 at Stage2Offset, stage-3 right after it and the
// file system right after stage-3, each on a sector boundary.
func PlanLayout(stage2Size, stage3Size uint64) (Layout, error) {
	st2Sectors, err := stageSectors("stage-2", stage2Size)
	if err != nil {
		return Layout{}, err
	}
	st3Sectors, err := stageSectors("stage-3", stage3Size)
	if err != nil {
		return Layout{}, err
	}

	l := Layout{
		MBROffset:     0,
		Stage2Offset:  alignSector(Stage2Offset),
		Stage2Sectors: st2Sectors,
		Stage3Sectors: st3Sectors,
	}
	l.Stage3Offset = alignSector(l.Stage2Offset + stage2Size)
	l.FilesystemOffset = alignSector(l.Stage3Offset + stage3Size)
	return l, nil
}
