package vmm

import "math"

const (
	// pageLevels indicates the number of page levels supported by the amd64 architecture.
	pageLevels = 4

	// ptePhysPageMask is a mask that allows us to extract the physical memory
	// address pointed to by a page table entry. For this particular architecture,
	// bits 12-51 contain the physical memory address.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// scratchRegionAddr is the base of a reserved virtual region at the top
	// of the kernel address space which backs the short-lived typed views
	// returned by MapTyped and MapTypedWritable. The region is carved into
	// scratchSlotCount slots of scratchSlotPages pages each; slots are
	// recycled in round-robin order instead of being unmapped.
	scratchRegionAddr = uintptr(0xffffff7fffe00000)

	// scratchSlotCount is the number of concurrently live typed views.
	scratchSlotCount = uintptr(8)

	// scratchSlotPages bounds the size of a single typed view.
	scratchSlotPages = uintptr(4)
)

var (
	// pdtVirtualAddr is a special virtual address that exploits the
	// recursive mapping used in the last PDT entry for each page directory
	// to allow accessing the PDT (P4) table using the system's MMU address
	// translation mechanism. By setting all page level bits to 1 the MMU
	// keeps following the last P4 entry for all page levels landing on the
	// P4.
	pdtVirtualAddr = uintptr(math.MaxUint64 &^ ((1 << 12) - 1))

	// pageLevelBits defines the number of virtual address bits that correspond
	// to each page level. For the amd64 architecture each page level uses 9
	// bits which amounts to 512 entries per level.
	pageLevelBits = [pageLevels]uint8{
		9,
		9,
		9,
		9,
	}

	// pageLevelShifts defines the shift required to access each page table
	// component of a virtual address.
	pageLevelShifts = [pageLevels]uint8{
		39,
		30,
		21,
		12,
	}
)
