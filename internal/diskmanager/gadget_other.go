//go:build !linux

package diskmanager

import log "github.com/sirupsen/logrus"

// newPlatformGadget creates a NoOp gadget on non-Linux platforms
func newPlatformGadget(config GadgetConfig, diskPath string) Gadget {
	log.Warnf("USB gadget %s not available on this platform, using NoOp", config.ShortName)
	return NewNoOpGadget()
}
