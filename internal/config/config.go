package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
)

// Config represents the application configuration
type Config struct {
	// Image configuration
	Image ImageConfig `json:"image"`

	// Boot loader binaries
	Boot BootConfig `json:"boot"`

	// Empty GPT disk settings used by init
	GPT GPTConfig `json:"gpt"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// USB Gadget configuration
	USBGadget USBGadgetConfig `json:"usb_gadget"`

	// Upload configuration
	Upload UploadConfig `json:"upload"`

	// Logging configuration
	Log LogConfig `json:"log"`
}

// ImageConfig contains disk image settings
type ImageConfig struct {
	Path string `json:"path"`

	// Smallest image mkfs produces, e.g. "1M"
	MinimumSize string `json:"minimum_size"`
}

// BootConfig names the files holding the boot loader binaries
type BootConfig struct {
	MBR    string `json:"mbr"`
	Stage2 string `json:"stage2"`
	Stage3 string `json:"stage3"`
}

// GPTConfig contains settings for empty GPT disks
type GPTConfig struct {
	DiskSize string `json:"disk_size"`

	// Empty means the built-in default GUID
	DiskUUID string `json:"disk_uuid"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// Timeout settings in seconds
	ReadTimeout  int `json:"read_timeout"`
	WriteTimeout int `json:"write_timeout"`
	IdleTimeout  int `json:"idle_timeout"`

	// CORS settings
	CORS CORSConfig `json:"cors"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// USBGadgetConfig contains USB gadget settings
type USBGadgetConfig struct {
	ShortName    string `json:"short_name"`
	VendorID     string `json:"vendor_id"`
	ProductID    string `json:"product_id"`
	BCDDevice    string `json:"bcd_device"`
	BCDUSB       string `json:"bcd_usb"`
	ProductName  string `json:"product_name"`
	Manufacturer string `json:"manufacturer"`
	SerialNumber string `json:"serial_number"`

	// Refuse writes from the host
	ReadOnly bool `json:"read_only"`

	// Use NoOp gadget when no USB device controller is present
	UseNoOp bool `json:"use_noop"`
}

// UploadConfig contains file upload settings
type UploadConfig struct {
	// Maximum upload size in MB
	MaxSizeMB int64 `json:"max_size_mb"`
}

// LogConfig contains logging settings
type LogConfig struct {
	// One of the logrus level names
	Level string `json:"level"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Image: ImageConfig{
			Path:        "pure64.img",
			MinimumSize: "1M",
		},
		Boot: BootConfig{
			MBR:    "mbr.sys",
			Stage2: "pure64.sys",
			Stage3: "stage3.sys",
		},
		GPT: GPTConfig{
			DiskSize: "1M",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15,
			WriteTimeout: 15,
			IdleTimeout:  60,
			CORS: CORSConfig{
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: true,
			},
		},
		USBGadget: USBGadgetConfig{
			ShortName:    "pure64",
			VendorID:     "0x1d6b",
			ProductID:    "0x0104",
			BCDDevice:    "0x0100",
			BCDUSB:       "0x0200",
			ProductName:  "Pure64 Boot Disk",
			Manufacturer: "Pure64",
			ReadOnly:     true,
			UseNoOp:      true,
		},
		Upload: UploadConfig{
			MaxSizeMB: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a JSON file
// If the file doesn't exist, it returns the default configuration
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default() // Start with defaults
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Save writes the configuration to a JSON file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ParseHex converts a hex string (like "0x1d6b") to an integer
func ParseHex(s string) (int, error) {
	var val int
	_, err := fmt.Sscanf(s, "0x%x", &val)
	if err != nil {
		return 0, fmt.Errorf("invalid hex value %s: %w", s, err)
	}
	return val, nil
}

// ParseSize converts a byte count to an integer. It accepts plain decimal,
// 0x-prefixed hex and binary unit suffixes such as "64K", "1M" or "2GiB".
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %s: %w", s, err)
		}
		return v, nil
	}
	v, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %s: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid size %s: negative", s)
	}
	return uint64(v), nil
}
