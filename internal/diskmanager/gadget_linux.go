//go:build linux

package diskmanager

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/mikalv/Pure64/internal/system"
)

func newPlatformGadget(config GadgetConfig, diskPath string) Gadget {
	return NewLinuxGadget(config, diskPath)
}

// LinuxGadget implements Gadget for Linux systems using configfs
type LinuxGadget struct {
	config    GadgetConfig
	diskPath  string
	connected bool
	udcName   string // kept for reconnection
}

// NewLinuxGadget creates a configfs gadget serving diskPath
func NewLinuxGadget(config GadgetConfig, diskPath string) *LinuxGadget {
	return &LinuxGadget{
		config:   config,
		diskPath: diskPath,
	}
}

// writeSysfs writes a value to a sysfs file
func writeSysfs(path, value string) error {
	err := os.WriteFile(path, []byte(value), 0644)
	if err != nil {
		return fmt.Errorf("failed to write '%s' to %s: %w", value, path, err)
	}
	return nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (g *LinuxGadget) base() string {
	return filepath.Join(g.config.configfsRoot(), g.config.ShortName)
}

func (g *LinuxGadget) lunDir() string {
	return filepath.Join(g.base(), "functions/mass_storage.usb0/lun.0")
}

// Initialize sets up and activates the gadget
func (g *LinuxGadget) Initialize() error {
	desiredPermissions := os.FileMode(0775)
	gadgetBase := g.base()

	_, err := os.Stat(gadgetBase)
	if err == nil {
		return fmt.Errorf("gadget %s already configured", g.config.ShortName)
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("other error for gadget %s: %w", g.config.ShortName, err)
	}

	if err := os.Mkdir(gadgetBase, desiredPermissions); err != nil {
		return fmt.Errorf("could not create USB gadget directory: %w", err)
	}

	ids := []struct {
		file  string
		value int
	}{
		{"idVendor", g.config.VendorID},
		{"idProduct", g.config.ProductID},
		{"bcdDevice", g.config.BcdDevice},
		{"bcdUSB", g.config.BcdUSB},
	}
	for _, id := range ids {
		if err := writeSysfs(filepath.Join(gadgetBase, id.file), fmt.Sprintf("0x%04x", id.value)); err != nil {
			return err
		}
	}

	// 0x409 = English US
	stringsDir := filepath.Join(gadgetBase, "strings/0x409")
	if err := os.MkdirAll(stringsDir, desiredPermissions); err != nil {
		return fmt.Errorf("failed to create strings directory: %w", err)
	}
	if err := writeSysfs(filepath.Join(stringsDir, "serialnumber"), g.serialNumber()); err != nil {
		return err
	}
	if err := writeSysfs(filepath.Join(stringsDir, "manufacturer"), g.config.Manufacturer); err != nil {
		return err
	}
	if err := writeSysfs(filepath.Join(stringsDir, "product"), g.config.Product); err != nil {
		return err
	}

	configStringsDir := filepath.Join(gadgetBase, "configs/c.1/strings/0x409")
	if err := os.MkdirAll(configStringsDir, desiredPermissions); err != nil {
		return fmt.Errorf("failed to create config strings directory: %w", err)
	}
	if err := writeSysfs(filepath.Join(configStringsDir, "configuration"), "Pure64 Boot Disk"); err != nil {
		return err
	}
	if err := writeSysfs(filepath.Join(gadgetBase, "configs/c.1/MaxPower"), "250"); err != nil {
		return err
	}

	// the kernel creates lun.0 along with the function; MkdirAll is a no-op
	// there
	lunDir := g.lunDir()
	if err := os.MkdirAll(lunDir, desiredPermissions); err != nil {
		return fmt.Errorf("failed to create mass storage function directory: %w", err)
	}
	if err := writeSysfs(filepath.Join(lunDir, "../stall"), "1"); err != nil {
		return err
	}
	if err := writeSysfs(filepath.Join(lunDir, "cdrom"), "0"); err != nil {
		return err
	}
	if err := writeSysfs(filepath.Join(lunDir, "ro"), boolFlag(g.config.ReadOnly)); err != nil {
		return err
	}
	if err := writeSysfs(filepath.Join(lunDir, "nofua"), "0"); err != nil {
		return err
	}

	functionLink := filepath.Join(gadgetBase, "configs/c.1/mass_storage.usb0")
	functionTarget := filepath.Join(gadgetBase, "functions/mass_storage.usb0")
	if err := os.Symlink(functionTarget, functionLink); err != nil {
		return fmt.Errorf("failed to link function to config: %w", err)
	}

	udcEntries, err := os.ReadDir(g.config.udcRoot())
	if err != nil {
		return fmt.Errorf("failed to read UDC directory: %w", err)
	}
	if len(udcEntries) == 0 {
		return fmt.Errorf("no UDC available")
	}
	g.udcName = udcEntries[0].Name()
	log.Infof("Exposing %s on UDC %s as USB gadget %s", g.diskPath, g.udcName, g.config.ShortName)

	return g.Reconnect()
}

// Disconnect detaches the gadget from the host without destroying the configuration
func (g *LinuxGadget) Disconnect() error {
	if !g.connected {
		return nil
	}

	// writing an empty line to UDC unbinds the gadget
	if err := writeSysfs(filepath.Join(g.base(), "UDC"), "\n"); err != nil {
		return fmt.Errorf("failed to disconnect gadget: %w", err)
	}

	g.connected = false
	return nil
}

// Reconnect re-binds the gadget. The backing file is set again first since
// transactions replace the image file rather than edit it.
func (g *LinuxGadget) Reconnect() error {
	if g.connected {
		return nil
	}

	if g.udcName == "" {
		return fmt.Errorf("no UDC name available, gadget may not have been initialized")
	}

	if err := writeSysfs(filepath.Join(g.lunDir(), "file"), g.diskPath); err != nil {
		return err
	}
	if err := writeSysfs(filepath.Join(g.base(), "UDC"), g.udcName); err != nil {
		return fmt.Errorf("failed to reconnect gadget: %w", err)
	}

	g.connected = true
	return nil
}

func (g *LinuxGadget) IsConnected() bool {
	return g.connected
}

// destroy deactivates and removes the gadget
func (g *LinuxGadget) destroy() {
	gadgetBase := g.base()

	if _, err := os.Stat(gadgetBase); os.IsNotExist(err) {
		return
	}

	_ = g.Disconnect()

	_ = os.Remove(filepath.Join(gadgetBase, "configs/c.1/mass_storage.usb0"))

	// reverse order of creation; some directories may be missing if setup
	// was incomplete
	_ = os.RemoveAll(filepath.Join(gadgetBase, "configs/c.1/strings/0x409"))
	_ = os.RemoveAll(filepath.Join(gadgetBase, "configs/c.1"))
	_ = os.RemoveAll(filepath.Join(gadgetBase, "functions/mass_storage.usb0"))
	_ = os.RemoveAll(filepath.Join(gadgetBase, "strings/0x409"))
	_ = os.RemoveAll(gadgetBase)
}

// serialNumber returns the configured serial, or one derived from the
// hardware MAC address
func (g *LinuxGadget) serialNumber() string {
	if g.config.SerialNumber != "" {
		return g.config.SerialNumber
	}
	_, mac, err := system.FindHardwareInterface()
	if err != nil {
		log.Warnf("Could not get a MAC address: %v, using default serial number", err)
		return system.DefaultSerialNumber
	}
	return system.FormatMAC(mac, system.MACFormatUSBSerial)
}
