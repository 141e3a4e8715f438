package diskmanager

const (
	DefaultConfigfsRoot = "/sys/kernel/config/usb_gadget"
	DefaultUDCRoot      = "/sys/class/udc"
)

// Gadget exposes the image file to a USB host as a mass storage device, so
// a machine attached over USB can boot it.
type Gadget interface {
	// Initialize sets up and activates the gadget
	Initialize() error

	// destroy deactivates and removes the gadget (private, called by Manager.Close)
	destroy()

	// Disconnect detaches the gadget from the host without destroying the configuration
	Disconnect() error

	// Reconnect points the gadget at the current image file and attaches it
	// to the host again
	Reconnect() error

	// IsConnected returns true if the gadget is currently attached to a host
	IsConnected() bool
}

// GadgetConfig describes the USB device presented to the host.
type GadgetConfig struct {
	ShortName    string
	VendorID     int
	ProductID    int
	BcdDevice    int
	BcdUSB       int
	Manufacturer string
	Product      string

	// SerialNumber defaults to the hardware MAC address.
	SerialNumber string

	// ReadOnly keeps the host from writing to the image.
	ReadOnly bool

	// ConfigfsRoot and UDCRoot default to the kernel locations.
	ConfigfsRoot string
	UDCRoot      string
}

func (c GadgetConfig) configfsRoot() string {
	if c.ConfigfsRoot == "" {
		return DefaultConfigfsRoot
	}
	return c.ConfigfsRoot
}

func (c GadgetConfig) udcRoot() string {
	if c.UDCRoot == "" {
		return DefaultUDCRoot
	}
	return c.UDCRoot
}

// NoOpGadget is a Gadget that only tracks its state. It is used when no USB
// device controller is configured.
type NoOpGadget struct {
	connected bool
}

// NewNoOpGadget creates a new no-op gadget
func NewNoOpGadget() *NoOpGadget {
	return &NoOpGadget{}
}

// Initialize does nothing and always succeeds
func (g *NoOpGadget) Initialize() error {
	g.connected = true
	return nil
}

// destroy is safe to call multiple times
func (g *NoOpGadget) destroy() {
	g.connected = false
}

func (g *NoOpGadget) Disconnect() error {
	g.connected = false
	return nil
}

func (g *NoOpGadget) Reconnect() error {
	g.connected = true
	return nil
}

func (g *NoOpGadget) IsConnected() bool {
	return g.connected
}

// NewGadget creates the gadget implementation for this platform. If useNoOp
// is true, it returns a NoOpGadget regardless of platform.
func NewGadget(config GadgetConfig, diskPath string, useNoOp bool) Gadget {
	if useNoOp {
		return NewNoOpGadget()
	}
	return newPlatformGadget(config, diskPath)
}
