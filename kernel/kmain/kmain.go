// Package kmain contains the kernel entry point.
package kmain

import (
	"github.com/phoboslab/serenity/kernel"
	"github.com/phoboslab/serenity/kernel/hal"
	"github.com/phoboslab/serenity/kernel/kfmt"

	// Drivers register their probes with the device framework from an
	// init block; importing them is what makes them discoverable.
	_ "github.com/phoboslab/serenity/device/intctrl/lapic"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// Kmain is invoked by the rt0 initialization code once the CPU is running in
// 64-bit mode with a minimal Go execution environment set up. It brings up
// the hardware the kernel depends on and is not expected to return. If it
// does, the rt0 code halts the CPU.
//
//go:noinline
func Kmain() {
	hal.DetectHardware()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}
