package config

import (
	"fmt"
	"os"

	"github.com/mikalv/Pure64/internal/diskmanager"
)

// ImageOptions converts the image section for the mkfs path.
func (c *Config) ImageOptions() (diskmanager.ImageOptions, error) {
	var opts diskmanager.ImageOptions
	if c.Image.MinimumSize == "" {
		return opts, nil
	}
	size, err := ParseSize(c.Image.MinimumSize)
	if err != nil {
		return opts, fmt.Errorf("image.minimum_size: %w", err)
	}
	opts.MinimumSize = size
	return opts, nil
}

// GPTOptions converts the gpt section for the init path.
func (c *Config) GPTOptions() (diskmanager.GPTOptions, error) {
	size, err := ParseSize(c.GPT.DiskSize)
	if err != nil {
		return diskmanager.GPTOptions{}, fmt.Errorf("gpt.disk_size: %w", err)
	}
	return diskmanager.GPTOptions{
		DiskSize: size,
		DiskUUID: c.GPT.DiskUUID,
	}, nil
}

// LoadMBR reads the boot sector named in the boot section.
func (c *Config) LoadMBR() ([]byte, error) {
	data, err := os.ReadFile(c.Boot.MBR)
	if err != nil {
		return nil, fmt.Errorf("failed to read MBR: %w", err)
	}
	return data, nil
}

// LoadBootImages reads all three boot loader binaries.
func (c *Config) LoadBootImages() (diskmanager.BootImages, error) {
	mbr, err := c.LoadMBR()
	if err != nil {
		return diskmanager.BootImages{}, err
	}
	stage2, err := os.ReadFile(c.Boot.Stage2)
	if err != nil {
		return diskmanager.BootImages{}, fmt.Errorf("failed to read stage-2 boot loader: %w", err)
	}
	stage3, err := os.ReadFile(c.Boot.Stage3)
	if err != nil {
		return diskmanager.BootImages{}, fmt.Errorf("failed to read stage-3 boot loader: %w", err)
	}
	return diskmanager.BootImages{MBR: mbr, Stage2: stage2, Stage3: stage3}, nil
}

// GadgetConfig converts the usb_gadget section.
func (c *Config) GadgetConfig() (diskmanager.GadgetConfig, error) {
	g := c.USBGadget
	out := diskmanager.GadgetConfig{
		ShortName:    g.ShortName,
		Manufacturer: g.Manufacturer,
		Product:      g.ProductName,
		SerialNumber: g.SerialNumber,
		ReadOnly:     g.ReadOnly,
	}

	ids := []struct {
		name  string
		value string
		out   *int
	}{
		{"vendor_id", g.VendorID, &out.VendorID},
		{"product_id", g.ProductID, &out.ProductID},
		{"bcd_device", g.BCDDevice, &out.BcdDevice},
		{"bcd_usb", g.BCDUSB, &out.BcdUSB},
	}
	for _, id := range ids {
		v, err := ParseHex(id.value)
		if err != nil {
			return diskmanager.GadgetConfig{}, fmt.Errorf("usb_gadget.%s: %w", id.name, err)
		}
		*id.out = v
	}
	return out, nil
}
