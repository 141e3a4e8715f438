package system

import (
	"fmt"
	"net"
	"sort"
	"strings"
)

// DefaultSerialNumber is used when no interface has a hardware address.
const DefaultSerialNumber = "000000000000"

// GetMACAddress returns the MAC address for a specific network interface
func GetMACAddress(interfaceName string) (string, error) {
	iface, err := net.InterfaceByName(interfaceName)
	if err != nil {
		return "", fmt.Errorf("failed to get interface %s: %w", interfaceName, err)
	}

	mac := iface.HardwareAddr.String()
	if mac == "" {
		return "", fmt.Errorf("no MAC address found for interface %s", interfaceName)
	}

	return mac, nil
}

// GetAllMACAddresses returns a map of interface names to MAC addresses
func GetAllMACAddresses() (map[string]string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	result := make(map[string]string)
	for _, iface := range interfaces {
		mac := iface.HardwareAddr.String()
		if mac != "" {
			result[iface.Name] = mac
		}
	}

	return result, nil
}

// interfaceRank orders interface names for serial number selection: wired
// first, then wireless, then anything else.
func interfaceRank(name string) int {
	switch {
	case strings.HasPrefix(name, "eth"), strings.HasPrefix(name, "en"):
		return 0
	case strings.HasPrefix(name, "wl"):
		return 1
	default:
		return 2
	}
}

// PickHardwareInterface chooses a stable interface out of a name to MAC map.
func PickHardwareInterface(macs map[string]string) (string, string, error) {
	names := make([]string, 0, len(macs))
	for name := range macs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := interfaceRank(names[i]), interfaceRank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	if len(names) == 0 {
		return "", "", fmt.Errorf("no interface with a hardware address found")
	}
	return names[0], macs[names[0]], nil
}

// FindHardwareInterface returns the interface whose MAC address identifies
// this machine, and that address.
func FindHardwareInterface() (string, string, error) {
	macs, err := GetAllMACAddresses()
	if err != nil {
		return "", "", err
	}
	return PickHardwareInterface(macs)
}

// MACFormat selects how FormatMAC prints an address
type MACFormat int

const (
	// MACFormatColon formats as aa:bb:cc:dd:ee:ff (default)
	MACFormatColon MACFormat = iota
	// MACFormatHyphen formats as aa-bb-cc-dd-ee-ff
	MACFormatHyphen
	// MACFormatNone formats as aabbccddeeff
	MACFormatNone
	// MACFormatUSBSerial formats as a USB serial number (12 hex chars)
	MACFormatUSBSerial
)

// FormatMAC formats a MAC address string according to the specified format
func FormatMAC(mac string, format MACFormat) string {
	cleaned := strings.ReplaceAll(mac, ":", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")

	switch format {
	case MACFormatHyphen:
		return strings.ReplaceAll(mac, ":", "-")
	case MACFormatNone:
		return cleaned
	case MACFormatUSBSerial:
		return strings.ToUpper(cleaned)
	case MACFormatColon:
		fallthrough
	default:
		if len(cleaned) == 12 {
			return fmt.Sprintf("%s:%s:%s:%s:%s:%s",
				cleaned[0:2], cleaned[2:4], cleaned[4:6],
				cleaned[6:8], cleaned[8:10], cleaned[10:12])
		}
		return mac
	}
}

// ParseMACFormat maps the names colon, hyphen, none and usb to a MACFormat.
func ParseMACFormat(name string) (MACFormat, error) {
	switch name {
	case "colon":
		return MACFormatColon, nil
	case "hyphen":
		return MACFormatHyphen, nil
	case "none":
		return MACFormatNone, nil
	case "usb":
		return MACFormatUSBSerial, nil
	}
	return MACFormatColon, fmt.Errorf("invalid format: %s (use: colon, hyphen, none, usb)", name)
}
