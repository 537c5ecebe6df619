package irq

import (
	"github.com/phoboslab/serenity/kernel"
	"github.com/phoboslab/serenity/kernel/kfmt"
	"github.com/phoboslab/serenity/kernel/sync"
)

// IRQ identifies a hardware interrupt request line. IRQ numbers form a small
// namespace that distinguishes interrupt sources (timer, device lines) and
// map 1:1 to the handlers that own them for the lifetime of the kernel.
type IRQ uint8

const (
	// VectorBase is the offset added to an IRQ number to obtain the CPU
	// vector it is delivered on; the vectors below it are reserved for
	// CPU exceptions.
	VectorBase = 0x50

	// SpuriousIRQ is the reserved IRQ number programmed into the local
	// interrupt controller's spurious interrupt register. The controller
	// may raise it without a real interrupt source behind it; deliveries
	// on this line with no registered handler are absorbed silently.
	SpuriousIRQ = IRQ(0x7f)

	// numIRQs defines the size of the IRQ namespace.
	numIRQs = 256
)

// Handler services interrupts delivered on a particular IRQ line. The handler
// performs the device-specific work for one delivery; signaling end-of-
// interrupt to the local interrupt controller is the responsibility of the
// handler (or the controller driver on its behalf) and must happen only
// after the service work completes.
type Handler interface {
	HandleIRQ()
}

var (
	// irqHandlers maps each IRQ line to the handler that owns it. Most
	// registrations happen while the kernel is still single-threaded but
	// drivers that come up after the secondary cores are online may
	// register late; handlersLock serializes all writers. Dispatch reads
	// the table without the lock: a line's binding never changes once
	// set, so a racing reader observes either nil or the final handler.
	irqHandlers  [numIRQs]Handler
	handlersLock sync.Spinlock

	// ErrHandlerAlreadyRegistered is returned when trying to bind a
	// handler to an IRQ line that already has an owner. Two subsystems
	// claiming the same hardware line is a programming error.
	ErrHandlerAlreadyRegistered = &kernel.Error{Module: "irq", Message: "a handler is already registered for this IRQ line"}

	// errUnregisteredIRQ is the cause reported when a non-spurious
	// interrupt arrives on a line the kernel never prepared a handler
	// for.
	errUnregisteredIRQ = &kernel.Error{Module: "irq", Message: "interrupt delivered on an IRQ line with no registered handler"}

	// panicFn is mocked by tests that exercise the fatal dispatch path.
	panicFn = kfmt.Panic
)

// RegisterHandler binds a handler to the given IRQ line. Exactly one handler
// may own a line; attempting to register a second handler returns
// ErrHandlerAlreadyRegistered and leaves the original binding in force.
func RegisterHandler(irqNum IRQ, handler Handler) *kernel.Error {
	handlersLock.Acquire()

	if irqHandlers[irqNum] != nil {
		handlersLock.Release()
		return ErrHandlerAlreadyRegistered
	}

	irqHandlers[irqNum] = handler
	handlersLock.Release()
	return nil
}

// Dispatch routes an interrupt delivery to the handler that owns the IRQ
// line. It is invoked by the low-level trap entry code with the captured
// trap frame and register snapshot. Deliveries on the reserved spurious
// line with no registered handler are dropped; any other unowned line
// indicates a hardware source the kernel never configured: the captured
// trap state is dumped to the console and the system halts. Dispatch never
// signals end-of-interrupt itself.
func Dispatch(irqNum IRQ, frame *Frame, regs *Regs) {
	handler := irqHandlers[irqNum]
	if handler == nil {
		if irqNum == SpuriousIRQ {
			return
		}

		kfmt.Printf("[irq] no handler registered for IRQ %d (vector %d)\n", uint8(irqNum), uint8(irqNum)+VectorBase)
		kfmt.Printf("Registers:\n")
		regs.Print()
		frame.Print()
		panicFn(errUnregisteredIRQ)
		return
	}

	handler.HandleIRQ()
}
