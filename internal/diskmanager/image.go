package diskmanager

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/mikalv/Pure64/internal/errdefs"
	"github.com/mikalv/Pure64/internal/mbr"
	"github.com/mikalv/Pure64/internal/ramfs"
	"github.com/mikalv/Pure64/internal/stream"
)

// BootImages are the three boot binaries written ahead of the file system.
type BootImages struct {
	// MBR is the boot sector, exactly one sector long.
	MBR    []byte
	Stage2 []byte
	Stage3 []byte
}

// ImageOptions tune image assembly.
type ImageOptions struct {
	// MinimumSize is the smallest image produced. Zero means
	// DefaultMinimumImageSize.
	MinimumSize uint64
}

// BuildImage writes a bootable image holding tree to s and returns the
// layout it used. Writes go straight to s as they happen; on error s holds a
// partial image.
func BuildImage(s stream.Stream, tree *ramfs.FileSystem, boot BootImages, opts ImageOptions) (Layout, error) {
	layout, err := PlanLayout(uint64(len(boot.Stage2)), uint64(len(boot.Stage3)))
	if err != nil {
		return Layout{}, err
	}
	sector, err := mbr.FromBytes(boot.MBR)
	if err != nil {
		return Layout{}, err
	}
	log.Debugf("Image layout: %s", layout)

	if err := sector.Write(s); err != nil {
		return Layout{}, fmt.Errorf("failed to write MBR: %w", err)
	}
	if err := stream.WriteAt(s, layout.Stage2Offset, boot.Stage2); err != nil {
		return Layout{}, fmt.Errorf("failed to write stage-2 boot loader: %w", err)
	}
	if err := stream.WriteAt(s, layout.Stage3Offset, boot.Stage3); err != nil {
		return Layout{}, fmt.Errorf("failed to write stage-3 boot loader: %w", err)
	}

	if err := s.SetPosition(layout.FilesystemOffset); err != nil {
		return Layout{}, fmt.Errorf("failed to seek to file system: %w", err)
	}
	if err := tree.Export(s); err != nil {
		return Layout{}, fmt.Errorf("failed to export file system: %w", err)
	}

	if err := padImage(s, opts.minimumSize()); err != nil {
		return Layout{}, err
	}

	// the boot descriptors can only be filled in now that the offsets are
	// final, so the sector written above is read back and patched
	sector, err = mbr.Read(s)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to read MBR: %w", err)
	}
	sector.SetBootLocations(
		layout.Stage2Offset/SectorSize, layout.Stage2Sectors,
		layout.Stage3Offset/SectorSize, layout.Stage3Sectors,
	)
	if err := sector.Write(s); err != nil {
		return Layout{}, fmt.Errorf("failed to write MBR: %w", err)
	}

	return layout, nil
}

func (o ImageOptions) minimumSize() uint64 {
	if o.MinimumSize == 0 {
		return DefaultMinimumImageSize
	}
	return o.MinimumSize
}

// padImage extends the image to minimum, or to the next sector boundary
// when it is already larger.
func padImage(s stream.Stream, minimum uint64) error {
	end, err := s.Position()
	if err != nil {
		return fmt.Errorf("failed to get image size: %w", err)
	}
	target := alignSector(end)
	if end < minimum {
		target = minimum
	}
	if target == end {
		return nil
	}
	log.Debugf("Padding image from %d to %d bytes", end, target)
	if err := stream.Pad(s, target); err != nil {
		return fmt.Errorf("failed to pad image: %w", err)
	}
	return nil
}

// LocateFilesystem derives the file system offset from the stage-3
// descriptor of the MBR. The planner puts the file system on the first
// sector after stage-3, which is exactly start + count.
func LocateFilesystem(s stream.Stream) (Layout, error) {
	sector, err := mbr.Read(s)
	if err != nil {
		return Layout{}, err
	}
	st2, st3 := sector.Stage2(), sector.Stage3()
	if st2.Sector == 0 || st3.Sector == 0 || st2.SectorCount == 0 || st3.SectorCount == 0 {
		return Layout{}, fmt.Errorf("%w: MBR has no boot loader locations", errdefs.ErrCorrupt)
	}
	return Layout{
		Stage2Offset:     st2.Sector * SectorSize,
		Stage3Offset:     st3.Sector * SectorSize,
		FilesystemOffset: (st3.Sector + uint64(st3.SectorCount)) * SectorSize,
		Stage2Sectors:    st2.SectorCount,
		Stage3Sectors:    st3.SectorCount,
	}, nil
}

// ImportImage decodes the file tree of a bootable image.
func ImportImage(s stream.Stream) (*ramfs.FileSystem, error) {
	layout, err := LocateFilesystem(s)
	if err != nil {
		return nil, err
	}
	if err := s.SetPosition(layout.FilesystemOffset); err != nil {
		return nil, err
	}
	tree, err := ramfs.Import(s)
	if err != nil {
		return nil, fmt.Errorf("failed to import file system: %w", err)
	}
	return tree, nil
}

// ReadBootImages recovers the boot binaries of an existing image. Stages
// come back padded to whole sectors, which leaves the layout unchanged when
// the image is rebuilt from them.
func ReadBootImages(s stream.Stream) (BootImages, error) {
	layout, err := LocateFilesystem(s)
	if err != nil {
		return BootImages{}, err
	}
	sector, err := mbr.Read(s)
	if err != nil {
		return BootImages{}, err
	}
	boot := BootImages{
		MBR:    sector.Bytes(),
		Stage2: make([]byte, uint64(layout.Stage2Sectors)*SectorSize),
		Stage3: make([]byte, uint64(layout.Stage3Sectors)*SectorSize),
	}
	if err := stream.ReadAt(s, layout.Stage2Offset, boot.Stage2); err != nil {
		return BootImages{}, fmt.Errorf("failed to read stage-2 boot loader: %w", err)
	}
	if err := stream.ReadAt(s, layout.Stage3Offset, boot.Stage3); err != nil {
		return BootImages{}, fmt.Errorf("failed to read stage-3 boot loader: %w", err)
	}
	return boot, nil
}
