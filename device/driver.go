// Package device defines the driver framework used by the kernel to discover
// and initialize the hardware it runs on.
package device

import (
	"io"

	"github.com/phoboslab/serenity/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it.
type ProbeFn func() Driver

// DetectOrder specifies when each driver probe should be invoked relative to
// the other registered drivers.
type DetectOrder int8

const (
	// DetectOrderEarly specifies that the driver probe must be invoked
	// before any other driver; it is reserved for the hardware that the
	// rest of the detection machinery depends on (e.g. the interrupt
	// controller).
	DetectOrderEarly DetectOrder = -128

	// DetectOrderBeforeACPI specifies that the driver probe must be
	// invoked before attempting any ACPI-based hardware detection.
	DetectOrderBeforeACPI DetectOrder = -127

	// DetectOrderACPI is the default detection order for drivers probed
	// through the ACPI tables.
	DetectOrderACPI DetectOrder = 0

	// DetectOrderLast specifies that the driver probe must only be
	// invoked after every other probe completes.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo describes a driver registered with the driver framework.
type DriverInfo struct {
	// Order specifies when the driver Probe will run relative to the
	// other registered drivers.
	Order DetectOrder

	// Probe checks whether the hardware driven by this driver is present.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that can be sorted by
// detection order.
type DriverInfoList []*DriverInfo

// Len returns the number of entries in the list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 list entries.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less reports whether list entry i must be probed before entry j.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

// registeredDrivers tracks the drivers registered via a call to
// RegisterDriver.
var registeredDrivers DriverInfoList

// RegisterDriver adds the supplied driver info to the list of registered
// drivers. Drivers are expected to call it from an init() block.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
