// Package lapic drives the local APIC: the per-core interrupt controller
// that receives timer, device and inter-processor interrupts and presents
// them to its core as vector numbers.
package lapic

import (
	"github.com/phoboslab/serenity/kernel"
	"github.com/phoboslab/serenity/kernel/cpu"
	"github.com/phoboslab/serenity/kernel/irq"
	"github.com/phoboslab/serenity/kernel/kfmt"
	"github.com/phoboslab/serenity/kernel/mm"
	"github.com/phoboslab/serenity/kernel/mm/vmm"
)

const (
	// apicBaseMSR is the model-specific register that holds the physical
	// address of the local APIC's memory-mapped register window.
	apicBaseMSR = 0x1b

	// baseAddrMask extracts the 4K-aligned window base from the base MSR.
	baseAddrMask = 0xfffff000

	// baseGlobalEnable is the APIC global enable bit in the base MSR.
	baseGlobalEnable = 0x800

	// Register offsets into the memory-mapped window. These are fixed by
	// hardware convention and must not be altered.
	regTaskPriority = 0x80
	regEOI          = 0xb0
	regLogicalDest  = 0xd0
	regDestFormat   = 0xe0
	regSpuriousIV   = 0xf0
	regICRLow       = 0x300
	regICRHigh      = 0x310
	regLVTTimer     = 0x320
	regLVTThermal   = 0x330
	regLVTPerfCount = 0x340
	regLVTLINT0     = 0x350
	regLVTLINT1     = 0x360
	regLVTError     = 0x370

	// sivAPICEnable is the software-enable bit (bit 8) of the spurious
	// interrupt vector register.
	sivAPICEnable = 0x100

	lvtMasked       = 1 << 16
	lvtTriggerLevel = 1 << 14

	lvtDeliverFixed  = 0x0
	lvtDeliverExtINT = 0x7

	// maxAddressableCores bounds the destination-id space. The flat
	// logical destination model assigns one bit per core which limits
	// the scheme to 8 addressable cores.
	maxAddressableCores = 8
)

var (
	// ErrMSRNotSupported is returned by Init when the CPU does not
	// implement the register-access instructions the driver depends on.
	// The caller must fall back to the legacy 8259 controller path.
	ErrMSRNotSupported = &kernel.Error{Module: "lapic", Message: "CPU does not implement model specific registers"}

	// ErrLAPICNotPresent is returned by Init when the CPU does not
	// integrate a local APIC.
	ErrLAPICNotPresent = &kernel.Error{Module: "lapic", Message: "CPU does not integrate a local APIC"}

	// ErrNotDiscovered is returned when enabling a core before a
	// successful call to Init recorded the controller window.
	ErrNotDiscovered = &kernel.Error{Module: "lapic", Message: "local APIC window has not been discovered; call Init first"}

	// ErrCoreIDOutOfRange is returned when a core id exceeds the
	// destination-id space supported by the flat destination model.
	ErrCoreIDOutOfRange = &kernel.Error{Module: "lapic", Message: "core id exceeds the addressable destination-id space"}

	// The following vars are mocked by tests which run on a hosted
	// target where the privileged instructions and the real register
	// window are not available.
	hasMSRFn          = cpu.HasMSR
	hasLocalAPICFn    = cpu.HasLocalAPIC
	msrReadFn         = cpu.ReadMSR
	msrWriteFn        = cpu.WriteMSR
	delayFn           = cpu.Delay
	mapForReadFn      = vmm.MapTyped
	mapForWriteFn     = vmm.MapTypedWritable
	registerHandlerFn = irq.RegisterHandler
	panicFn           = kfmt.Panic

	// apicBase records the physical address of the register window. It is
	// set exactly once per boot, during discovery, and is read-only
	// thereafter. The window convention is shared by every core even
	// though each core owns logically independent controller state.
	apicBase    mm.PhysicalAddress
	apicBaseSet bool

	// bspCore is the controller context of the bootstrap core.
	bspCore *Core

	// spurious absorbs deliveries on the reserved spurious vector. It is
	// registered with the vector router by the first core that completes
	// its enable sequence.
	spurious           spuriousHandler
	spuriousRegistered bool
)

// Core is the local APIC context of a single processor. It is created once
// during that core's enable sequence and is read-only thereafter; all
// register accesses on behalf of a core go through its own context.
type Core struct {
	id   uint32
	base mm.PhysicalAddress
}

// ID returns the core id this context belongs to.
func (c *Core) ID() uint32 { return c.id }

// readRegister returns the value of the 32-bit register at the given window
// offset. A failure to map the register window is fatal: without a way to
// talk to the interrupt controller the boot cannot proceed.
func (c *Core) readRegister(reg uint32) uint32 {
	ptr, err := mapForReadFn(c.base.Offset(uintptr(reg)), 4)
	if err != nil {
		panicFn(err)
		return 0
	}

	return *(*uint32)(ptr)
}

// writeRegister stores a value to the 32-bit register at the given window
// offset.
func (c *Core) writeRegister(reg uint32, val uint32) {
	ptr, err := mapForWriteFn(c.base.Offset(uintptr(reg)), 4)
	if err != nil {
		panicFn(err)
		return
	}

	*(*uint32)(ptr) = val
}

// Init discovers the local APIC and records the physical address of its
// register window. The masked window base is written back to the base MSR
// with the global enable bit set. On success Init returns the bootstrap
// core's controller context. Failures are recoverable at the call site: the
// caller selects the legacy interrupt-controller path instead.
func Init() (*Core, *kernel.Error) {
	if !hasMSRFn() {
		return nil, ErrMSRNotSupported
	}

	if !hasLocalAPICFn() {
		return nil, ErrLAPICNotPresent
	}

	low, _ := msrReadFn(apicBaseMSR)
	base := mm.PhysicalAddress(low & baseAddrMask)

	kfmt.Printf("[lapic] register window at 0x%x\n", uintptr(base))
	msrWriteFn(apicBaseMSR, uint32(base)|baseGlobalEnable, 0)

	apicBase, apicBaseSet = base, true
	bspCore = &Core{id: 0, base: base}

	return bspCore, nil
}

// EnableBSP runs the per-core enable sequence on the bootstrap core.
func EnableBSP() *kernel.Error {
	if bspCore == nil {
		return ErrNotDiscovered
	}

	return bspCore.enable()
}

// Enable creates the controller context for the given core and runs its
// enable sequence. It is called once by each application processor after the
// bring-up trampoline hands control to the kernel proper.
func Enable(coreID uint32) (*Core, *kernel.Error) {
	if !apicBaseSet {
		return nil, ErrNotDiscovered
	}

	if coreID >= maxAddressableCores {
		return nil, ErrCoreIDOutOfRange
	}

	core := &Core{id: coreID, base: apicBase}
	if err := core.enable(); err != nil {
		return nil, err
	}

	return core, nil
}

// enable programs the vector table of this core's local APIC. The sequence
// must complete before the core unmasks interrupts; delivering an interrupt
// through an unconfigured vector table is undefined.
func (c *Core) enable() *kernel.Error {
	kfmt.Printf("[lapic] enabling local APIC for cpu %d\n", c.id)

	// Dummy read; some older cores drop the first access to the spurious
	// interrupt register.
	c.readRegister(regSpuriousIV)

	// Program the spurious interrupt vector with the APIC software-enabled
	c.writeRegister(regSpuriousIV, (uint32(irq.SpuriousIRQ)+irq.VectorBase)|sivAPICEnable)

	// Flat destination model; clear this core's logical destination id
	c.writeRegister(regDestFormat, 0xf0000000)
	c.writeRegister(regLogicalDest, 0)

	if err := installSpuriousHandler(); err != nil {
		return err
	}

	// Mask the local vector table entries nothing services yet and route
	// the two legacy lines: LINT0 stays masked as ExtINT, LINT1 is level
	// triggered.
	c.writeRegister(regLVTTimer, lvtEntry(0, lvtDeliverFixed)|lvtMasked)
	c.writeRegister(regLVTThermal, lvtEntry(0, lvtDeliverFixed)|lvtMasked)
	c.writeRegister(regLVTPerfCount, lvtEntry(0, lvtDeliverFixed)|lvtMasked)
	c.writeRegister(regLVTLINT0, lvtEntry(0, lvtDeliverExtINT)|lvtMasked)
	c.writeRegister(regLVTLINT1, lvtEntry(0, lvtDeliverFixed)|lvtTriggerLevel)
	c.writeRegister(regLVTError, lvtEntry(0, lvtDeliverFixed)|lvtMasked)

	// Zero the task priority register so all vectors are deliverable
	c.writeRegister(regTaskPriority, 0)

	return nil
}

// EOI signals end-of-interrupt to this core's local APIC, re-arming the
// controller for the serviced vector. It must be called exactly once per
// serviced interrupt, after the handler work completes and never before.
func (c *Core) EOI() {
	c.writeRegister(regEOI, 0)
}

// SpuriousInterruptVector returns the reserved IRQ programmed into the
// spurious interrupt vector register.
func SpuriousInterruptVector() irq.IRQ {
	return irq.SpuriousIRQ
}

// lvtEntry encodes a local vector table entry from a vector number and a
// delivery mode.
func lvtEntry(vector uint8, deliveryMode uint32) uint32 {
	return uint32(vector) | ((deliveryMode & 0x7) << 8)
}

// installSpuriousHandler binds the spurious handler to the reserved vector.
// The first core to complete its enable sequence installs it; later cores
// observe it as already present.
func installSpuriousHandler() *kernel.Error {
	if spuriousRegistered {
		return nil
	}

	if err := registerHandlerFn(irq.SpuriousIRQ, &spurious); err != nil {
		return err
	}

	spuriousRegistered = true
	return nil
}

// spuriousHandler absorbs interrupts the controller raises without a real
// source behind them. Spurious deliveries are counted but never
// acknowledged; issuing an EOI would re-arm a vector that was never
// actually delivered.
type spuriousHandler struct {
	count uint64
}

// HandleIRQ implements irq.Handler.
func (h *spuriousHandler) HandleIRQ() {
	h.count++
}
