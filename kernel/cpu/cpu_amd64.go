// Package cpu provides access to the privileged and model-specific
// instructions of the processor.
package cpu

var (
	cpuidFn = ID
)

const (
	// cpuFeatureMSR is set in the EDX output of CPUID leaf 1 when the CPU
	// implements the RDMSR/WRMSR instructions.
	cpuFeatureMSR = 1 << 5

	// cpuFeatureLocalAPIC is set in the EDX output of CPUID leaf 1 when
	// the CPU integrates a local APIC.
	cpuFeatureLocalAPIC = 1 << 9
)

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// ID returns information about the CPU and its features. It is implemented as
// a CPUID instruction with EAX=leaf and returns the values in EAX, EBX, ECX
// and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// HasMSR returns true if the CPU implements the RDMSR/WRMSR instructions.
func HasMSR() bool {
	_, _, _, edx := cpuidFn(1)
	return (edx & cpuFeatureMSR) != 0
}

// HasLocalAPIC returns true if the CPU integrates a local APIC.
func HasLocalAPIC() bool {
	_, _, _, edx := cpuidFn(1)
	return (edx & cpuFeatureLocalAPIC) != 0
}

// ReadMSR returns the low and high words of the model-specific register with
// the supplied index. Reads are atomic with respect to the executing core;
// each core manages its own register file.
func ReadMSR(index uint32) (low, high uint32)

// WriteMSR stores the supplied low and high words to the model-specific
// register with the supplied index.
func WriteMSR(index uint32, low, high uint32)

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8

// Delay busy-waits for approximately the requested number of microseconds by
// issuing dummy writes to the POST diagnostic port. Each write takes roughly
// one microsecond to complete regardless of the CPU clock. It is the only
// wait primitive available before the scheduler and timers are running.
func Delay(usec uint32) {
	for i := uint32(0); i < usec; i++ {
		portWriteByteFn(0x80, 0)
	}
}

// portWriteByteFn is mocked by tests which cannot execute OUT instructions
// from user-mode.
var portWriteByteFn = PortWriteByte
