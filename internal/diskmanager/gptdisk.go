package diskmanager

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/mikalv/Pure64/internal/errdefs"
	"github.com/mikalv/Pure64/internal/gpt"
	"github.com/mikalv/Pure64/internal/mbr"
	"github.com/mikalv/Pure64/internal/stream"
)

const (
	// MinimumGPTDiskSize holds the MBR, both headers, both entry arrays and
	// a single usable sector.
	MinimumGPTDiskSize = (1 + 1 + gpt.EntryArraySectors + 1 + gpt.EntryArraySectors + 1) * SectorSize

	// DefaultDiskUUID is used when no disk GUID is configured.
	DefaultDiskUUID = "74a7c14a-711d-4293-a731-569ca656799e"
)

// GPTOptions describe the empty GPT disk to create.
type GPTOptions struct {
	DiskSize uint64
	DiskUUID string
}

// InitGPTDisk writes an empty GPT disk to s: the boot sector with a
// protective partition, primary header and array, backup array and header,
// and finally the checksums. It returns the primary header.
func InitGPTDisk(s stream.Stream, mbrCode []byte, opts GPTOptions) (*gpt.Header, error) {
	if opts.DiskSize < MinimumGPTDiskSize {
		return nil, fmt.Errorf("%w: disk size %d is below the minimum of %d bytes",
			errdefs.ErrInvalidArgument, opts.DiskSize, MinimumGPTDiskSize)
	}
	diskSize := alignSector(opts.DiskSize)

	diskUUID := opts.DiskUUID
	if diskUUID == "" {
		log.Warnf("No disk UUID given, using %s", DefaultDiskUUID)
		diskUUID = DefaultDiskUUID
	}
	guid, err := gpt.ParseGUID(diskUUID)
	if err != nil {
		return nil, err
	}

	sector, err := mbr.FromBytes(mbrCode)
	if err != nil {
		return nil, err
	}
	sectors := diskSize / SectorSize
	sector.SetProtectivePartition(sectors)

	backupLBA := sectors - 1
	primary := &gpt.Header{
		CurrentLBA:        gpt.PrimaryHeaderLBA,
		BackupLBA:         backupLBA,
		FirstUsableLBA:    gpt.PrimaryHeaderLBA + 1 + gpt.EntryArraySectors,
		LastUsableLBA:     backupLBA - gpt.EntryArraySectors - 1,
		DiskGUID:          guid,
		PartitionArrayLBA: gpt.PrimaryHeaderLBA + 1,
		EntryCount:        gpt.EntryCount,
	}
	backup := primary.Backup()

	if err := sector.Write(s); err != nil {
		return nil, fmt.Errorf("failed to write protective MBR: %w", err)
	}
	if err := s.WriteFull(primary.MarshalSector()); err != nil {
		return nil, fmt.Errorf("failed to write primary GPT header: %w", err)
	}
	if err := stream.Zero(s, gpt.EntryArraySize); err != nil {
		return nil, fmt.Errorf("failed to write primary partition entries: %w", err)
	}
	if err := s.SetPosition(backup.PartitionArrayLBA * SectorSize); err != nil {
		return nil, err
	}
	if err := stream.Zero(s, gpt.EntryArraySize); err != nil {
		return nil, fmt.Errorf("failed to write backup partition entries: %w", err)
	}
	if err := s.WriteFull(backup.MarshalSector()); err != nil {
		return nil, fmt.Errorf("failed to write backup GPT header: %w", err)
	}

	if err := gpt.WriteChecksums(s); err != nil {
		return nil, fmt.Errorf("failed to write GPT checksums: %w", err)
	}

	log.Debugf("GPT disk %s: %d sectors, usable LBA %d..%d",
		guid, sectors, primary.FirstUsableLBA, primary.LastUsableLBA)
	return primary, nil
}
