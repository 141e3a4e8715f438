package main

import (
	"fmt"
	"os"

	units "github.com/docker/go-units"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mikalv/Pure64/internal/config"
	"github.com/mikalv/Pure64/internal/diskmanager"
	"github.com/mikalv/Pure64/internal/stream"
)

func initCmd() *cobra.Command {
	var (
		diskSize string
		diskUUID string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "create an empty GPT disk",
		Long: `Create an empty GPT formatted disk at the image path. The boot sector
is read from the configured MBR file and gets a protective partition entry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("disk-size") {
				cfg.GPT.DiskSize = diskSize
			}
			if cmd.Flags().Changed("disk-uuid") {
				cfg.GPT.DiskUUID = diskUUID
			}
			opts, err := cfg.GPTOptions()
			if err != nil {
				return err
			}
			mbrCode, err := cfg.LoadMBR()
			if err != nil {
				return err
			}
			return diskmanager.CreateDiskImage(cfg.Image.Path, mbrCode, opts)
		},
	}

	cmd.Flags().StringVar(&diskSize, "disk-size", config.Default().GPT.DiskSize, "Size of the disk, e.g. 34816, 0x8800, 64K or 1M")
	cmd.Flags().StringVar(&diskUUID, "disk-uuid", "", "Disk GUID; a fixed default is used when empty")

	return cmd
}

func mkfsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkfs",
		Short: "create a bootable image with an empty file system",
		Long: `Write the MBR, the stage-2 and stage-3 boot loaders and an empty file
system to the image path, replacing anything already there.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			boot, err := cfg.LoadBootImages()
			if err != nil {
				return err
			}
			opts, err := cfg.ImageOptions()
			if err != nil {
				return err
			}
			_, err = diskmanager.Format(cfg.Image.Path, boot, opts)
			return err
		},
	}
	return cmd
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "show the boot layout and partition table of an image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "image: %s\n", cfg.Image.Path)

			layout, layoutErr := readLayout(cfg.Image.Path)
			if layoutErr == nil {
				fmt.Fprintf(out, "stage-2: offset 0x%x, %d sectors\n", layout.Stage2Offset, layout.Stage2Sectors)
				fmt.Fprintf(out, "stage-3: offset 0x%x, %d sectors\n", layout.Stage3Offset, layout.Stage3Sectors)
				fmt.Fprintf(out, "file system: offset 0x%x\n", layout.FilesystemOffset)
			} else {
				log.Debugf("No Pure64 boot layout: %v", layoutErr)
			}

			info, infoErr := diskmanager.Inspect(cfg.Image.Path)
			if infoErr == nil {
				fmt.Fprintf(out, "size: %s (%d bytes, %d byte blocks)\n", units.BytesSize(float64(info.Size)), info.Size, info.LogicalBlockSize)
				fmt.Fprintf(out, "partition table: %s\n", info.TableType)
				if info.DiskGUID != "" {
					fmt.Fprintf(out, "disk GUID: %s\n", info.DiskGUID)
					fmt.Fprintf(out, "protective MBR: %t\n", info.ProtectiveMBR)
					fmt.Fprintf(out, "entries: %d used of %d\n", info.UsedEntries, info.EntryCount)
				}
			} else {
				log.Debugf("No partition table: %v", infoErr)
			}

			if layoutErr != nil && infoErr != nil {
				return fmt.Errorf("%s is neither a Pure64 image nor a partitioned disk: %w", cfg.Image.Path, infoErr)
			}
			return nil
		},
	}
	return cmd
}

func readLayout(diskPath string) (diskmanager.Layout, error) {
	f, err := os.Open(diskPath)
	if err != nil {
		return diskmanager.Layout{}, err
	}
	defer f.Close()
	return diskmanager.LocateFilesystem(stream.New(f))
}
