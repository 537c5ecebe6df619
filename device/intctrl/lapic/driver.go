package lapic

import (
	"io"

	"github.com/phoboslab/serenity/device"
	"github.com/phoboslab/serenity/kernel"
	"github.com/phoboslab/serenity/kernel/kfmt"
)

// lapicDriver exposes the local APIC to the hardware detection machinery. Its
// init brings up the bootstrap core's controller and then wakes the
// secondary cores.
type lapicDriver struct {
	bsp *Core
}

// DriverName implements device.Driver.
func (drv *lapicDriver) DriverName() string {
	return "local_apic"
}

// DriverVersion implements device.Driver.
func (drv *lapicDriver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit implements device.Driver.
func (drv *lapicDriver) DriverInit(w io.Writer) *kernel.Error {
	bsp, err := Init()
	if err != nil {
		return err
	}

	if err = EnableBSP(); err != nil {
		return err
	}

	drv.bsp = bsp
	kfmt.Fprintf(w, "local APIC enabled for cpu %d\n", bsp.ID())

	return bsp.StartSecondaryCores()
}

// probeForLAPIC checks whether the CPU integrates a local APIC that the
// driver can program.
func probeForLAPIC() device.Driver {
	if !hasMSRFn() || !hasLocalAPICFn() {
		return nil
	}

	return &lapicDriver{}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForLAPIC,
	})
}
