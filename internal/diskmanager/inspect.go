package diskmanager

import (
	"fmt"

	diskfs "github.com/diskfs/go-diskfs"
	diskgpt "github.com/diskfs/go-diskfs/partition/gpt"
)

// DiskInfo is what an independent partition table reader sees in an image.
type DiskInfo struct {
	Size             int64
	LogicalBlockSize int64
	TableType        string

	// GPT only
	DiskGUID      string
	ProtectiveMBR bool
	EntryCount    int
	UsedEntries   int
}

// Inspect opens the image read-only with go-diskfs and reports its partition
// table. go-diskfs validates the header checksum and the protective MBR on
// its own, so a successful GPT read cross-checks what InitGPTDisk wrote.
func Inspect(diskPath string) (*DiskInfo, error) {
	d, err := diskfs.Open(diskPath, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to open disk: %w", err)
	}
	defer d.Close()

	table, err := d.GetPartitionTable()
	if err != nil {
		return nil, fmt.Errorf("failed to read partition table: %w", err)
	}

	info := &DiskInfo{
		Size:             d.Size,
		LogicalBlockSize: d.LogicalBlocksize,
		TableType:        table.Type(),
	}
	if t, ok := table.(*diskgpt.Table); ok {
		info.DiskGUID = t.GUID
		info.ProtectiveMBR = t.ProtectiveMBR
		info.EntryCount = len(t.Partitions)
		for _, p := range t.Partitions {
			if p != nil && p.Type != diskgpt.Unused {
				info.UsedEntries++
			}
		}
	}
	return info, nil
}
