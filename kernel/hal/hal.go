// Package hal discovers the hardware the kernel is running on and brings up
// the appropriate drivers.
package hal

import (
	"sort"

	"github.com/phoboslab/serenity/device"
	"github.com/phoboslab/serenity/kernel/kfmt"
)

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers in detection order.
func DetectHardware() {
	drivers := device.DriverList()
	sort.Sort(drivers)

	probe(drivers)
}

// probe executes the probe function for each driver and initializes each
// driver that detects its hardware. Probe and init failures only affect the
// driver that reported them; detection continues with the remaining drivers.
func probe(driverInfoList device.DriverInfoList) {
	w := kfmt.GetOutputSink()

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(w, "[hal] %s(%d.%d.%d): initializing\n", drv.DriverName(), major, minor, patch)

		if err := drv.DriverInit(w); err != nil {
			kfmt.Fprintf(w, "[hal] %s: init failed: %s\n", drv.DriverName(), err.Message)
			continue
		}
	}
}
