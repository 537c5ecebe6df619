package vmm

import (
	"unsafe"

	"github.com/phoboslab/serenity/kernel"
	"github.com/phoboslab/serenity/kernel/mm"
)

var (
	// mapFn is used by tests and is automatically inlined by the compiler.
	mapFn = Map

	// scratchNextSlot selects the scratch slot that will back the next
	// typed view. Typed views are only requested while a single core is
	// programming hardware during boot so no synchronization is required.
	scratchNextSlot uintptr

	errTypedMappingTooBig = &kernel.Error{Module: "vmm", Message: "typed mapping request exceeds the scratch slot size"}
)

// MapTyped returns a read-only virtual view over the physical address range
// [physAddr, physAddr+size). The view is backed by a scratch slot which gets
// recycled by later MapTyped/MapTypedWritable calls; callers must complete
// their access immediately and must not retain the returned pointer.
func MapTyped(physAddr mm.PhysicalAddress, size uintptr) (unsafe.Pointer, *kernel.Error) {
	return mapTyped(physAddr, size, FlagPresent|FlagDoNotCache)
}

// MapTypedWritable behaves like MapTyped but the returned view can also be
// written through.
func MapTypedWritable(physAddr mm.PhysicalAddress, size uintptr) (unsafe.Pointer, *kernel.Error) {
	return mapTyped(physAddr, size, FlagPresent|FlagRW|FlagDoNotCache)
}

// mapTyped installs page mappings for the frames that back the requested
// physical range into the next scratch slot and returns a pointer to the
// first requested byte. Views always map with caching disabled as the
// dominant use case is memory-mapped device registers.
func mapTyped(physAddr mm.PhysicalAddress, size uintptr, flags PageTableEntryFlag) (unsafe.Pointer, *kernel.Error) {
	pageOffset := physAddr.PageOffset()
	if pageOffset+size > scratchSlotPages*mm.PageSize {
		return nil, errTypedMappingTooBig
	}

	slotAddr := scratchRegionAddr + (scratchNextSlot%scratchSlotCount)*scratchSlotPages*mm.PageSize
	scratchNextSlot++

	var (
		pageCount = (pageOffset + size + mm.PageSize - 1) >> mm.PageShift
		page      = mm.PageFromAddress(slotAddr)
		frame     = physAddr.Frame()
	)

	for i := uintptr(0); i < pageCount; i, page, frame = i+1, page+1, frame+1 {
		if err := mapFn(page, frame, flags); err != nil {
			return nil, err
		}
	}

	return unsafe.Pointer(slotAddr + pageOffset), nil
}
