package lapic

import (
	"unsafe"

	"github.com/phoboslab/serenity/kernel"
	"github.com/phoboslab/serenity/kernel/kfmt"
	"github.com/phoboslab/serenity/kernel/mm"
)

const (
	// trampolineBase is the physical address where the application
	// processor startup code is placed. Startup commands express their
	// entry point as a page number in the low 1M of physical memory so
	// the address must be page-aligned and below 0x100000.
	trampolineBase = mm.PhysicalAddress(0x8000)

	// initSettleDelayUsec is the time secondary cores are given to
	// process the reset command before the first startup command.
	initSettleDelayUsec = 10000

	// startupSettleDelayUsec is the wait between the two startup
	// commands.
	startupSettleDelayUsec = 200
)

// apTrampoline is the real-mode stub each application processor begins
// executing when it receives a startup command. The full real-mode to
// 64-bit transition stub is supplied by the architecture layer; until it
// lands the blob parks the processor (cli; 1: hlt; jmp 1b).
var apTrampoline = []byte{
	0xfa, // cli
	0xf4, // hlt
	0xeb, 0xfd, // jmp -3
}

// trampolineEntry returns the physical address the startup commands point
// the secondary cores at.
func trampolineEntry() mm.PhysicalAddress {
	return trampolineBase
}

// trampolineSize returns the size of the startup stub in bytes.
func trampolineSize() uintptr {
	return uintptr(len(apTrampoline))
}

// StartSecondaryCores wakes every core other than the caller. The sequence
// is a broadcast reset command, a settle delay, then two broadcast startup
// commands pointing at the trampoline page. Only the bootstrap core may
// drive the sequence. Cores that never come online simply leave the system
// running on fewer cores; their absence is not an error here.
func (c *Core) StartSecondaryCores() *kernel.Error {
	if c.id != 0 {
		return &kernel.Error{Module: "lapic", Message: "secondary core bring-up must run on the bootstrap core"}
	}

	if err := c.placeTrampoline(); err != nil {
		return err
	}

	kfmt.Printf("[lapic] cpu %d: starting secondary cores\n", c.id)

	// Force every other core into the wait-for-startup state
	c.writeICR(newIPICommand(0, deliverINIT, destPhysical, levelAssert, triggerEdge, shorthandAllExcludingSelf))
	delayFn(initSettleDelayUsec)

	startupVector := uint8(uintptr(trampolineEntry()) >> mm.PageShift)
	for attempt := 0; attempt < 2; attempt++ {
		c.writeICR(newIPICommand(startupVector, deliverStartup, destPhysical, levelAssert, triggerEdge, shorthandAllExcludingSelf))
		delayFn(startupSettleDelayUsec)
	}

	return nil
}

// placeTrampoline copies the startup stub to its fixed physical location.
// The page is below the kernel image and is not otherwise used this early
// in the boot.
func (c *Core) placeTrampoline() *kernel.Error {
	ptr, err := mapForWriteFn(trampolineEntry(), trampolineSize())
	if err != nil {
		return err
	}

	kernel.Memcopy(
		uintptr(unsafe.Pointer(&apTrampoline[0])),
		uintptr(ptr),
		trampolineSize(),
	)

	return nil
}
