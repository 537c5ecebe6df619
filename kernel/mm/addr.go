// Package mm defines the kernel's view of physical and virtual memory.
package mm

import (
	"math"

	"github.com/phoboslab/serenity/kernel"
)

// PhysicalAddress identifies a location in the physical memory space. It is
// an opaque value: kernel code never dereferences it directly but instead
// obtains a short-lived virtual view over it through the vmm package.
type PhysicalAddress uintptr

// Offset returns the physical address at the given positive offset from pa.
func (pa PhysicalAddress) Offset(off uintptr) PhysicalAddress {
	return pa + PhysicalAddress(off)
}

// PageBase returns pa rounded down to the base of the 4K page that contains
// it. The low PageShift bits of the returned address are always zero.
func (pa PhysicalAddress) PageBase() PhysicalAddress {
	return pa & ^PhysicalAddress(PageSize-1)
}

// PageOffset returns the offset of pa within the page that contains it.
func (pa PhysicalAddress) PageOffset() uintptr {
	return uintptr(pa) & (PageSize - 1)
}

// Frame returns the physical frame that contains pa.
func (pa PhysicalAddress) Frame() Frame {
	return Frame(pa.PageBase() >> PageShift)
}

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when they fail to
	// reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte of this Frame.
func (f Frame) Address() PhysicalAddress {
	return PhysicalAddress(f << PageShift)
}

// FrameFromAddress returns the Frame that contains the given physical
// address. Addresses that are not page-aligned are rounded down to the frame
// that contains them.
func FrameFromAddress(physAddr PhysicalAddress) Frame {
	return physAddr.Frame()
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address of the first byte of this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns the Page that contains the given virtual address.
// Addresses that are not page-aligned are rounded down to the page that
// contains them.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(PageSize - 1)) >> PageShift)
}

var (
	// frameAllocator points to a frame allocator function registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocatorFn
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// SetFrameAllocator registers a frame allocator function that will be used by
// the vmm code when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) { frameAllocator = allocFn }

// AllocFrame allocates a new physical frame using the currently active
// physical frame allocator.
func AllocFrame() (Frame, *kernel.Error) { return frameAllocator() }
