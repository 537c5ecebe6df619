package lapic

import (
	"testing"
	"unsafe"

	"github.com/phoboslab/serenity/kernel"
	"github.com/phoboslab/serenity/kernel/irq"
	"github.com/phoboslab/serenity/kernel/mm"
)

type regAccess struct {
	offset uint32
	cell   *uint32
}

// simAPIC emulates the register window of one core's local APIC using plain
// memory. Each write is given a fresh backing cell so tests can inspect
// successive stores to the same register.
type simAPIC struct {
	base     mm.PhysicalAddress
	readVals map[uint32]uint32
	reads    []uint32
	writes   []regAccess
}

func newSimAPIC(base mm.PhysicalAddress) *simAPIC {
	return &simAPIC{base: base, readVals: make(map[uint32]uint32)}
}

func (s *simAPIC) contains(pa mm.PhysicalAddress) bool {
	return pa >= s.base && pa < s.base.Offset(mm.PageSize)
}

func (s *simAPIC) lastWrite(offset uint32) (uint32, bool) {
	for i := len(s.writes) - 1; i >= 0; i-- {
		if s.writes[i].offset == offset {
			return *s.writes[i].cell, true
		}
	}

	return 0, false
}

// installSim points the register window mappers at the supplied simulated
// controllers and returns a function that restores the real mappers.
func installSim(t *testing.T, sims ...*simAPIC) func() {
	origMapForRead, origMapForWrite := mapForReadFn, mapForWriteFn

	mapForReadFn = func(pa mm.PhysicalAddress, _ uintptr) (unsafe.Pointer, *kernel.Error) {
		s := findSim(t, sims, pa)
		off := uint32(pa - s.base)
		s.reads = append(s.reads, off)

		cell := new(uint32)
		*cell = s.readVals[off]
		return unsafe.Pointer(cell), nil
	}

	mapForWriteFn = func(pa mm.PhysicalAddress, _ uintptr) (unsafe.Pointer, *kernel.Error) {
		s := findSim(t, sims, pa)

		cell := new(uint32)
		s.writes = append(s.writes, regAccess{offset: uint32(pa - s.base), cell: cell})
		return unsafe.Pointer(cell), nil
	}

	return func() {
		mapForReadFn, mapForWriteFn = origMapForRead, origMapForWrite
	}
}

func findSim(t *testing.T, sims []*simAPIC, pa mm.PhysicalAddress) *simAPIC {
	for _, s := range sims {
		if s.contains(pa) {
			return s
		}
	}

	t.Fatalf("unexpected register window access at physical address 0x%x", uintptr(pa))
	return nil
}

func resetState() {
	apicBase, apicBaseSet = 0, false
	bspCore = nil
	spurious = spuriousHandler{}
	spuriousRegistered = false
}

func TestInitDiscoversRegisterWindow(t *testing.T) {
	resetState()
	defer func(origHasMSR, origHasLAPIC func() bool, origRead func(uint32) (uint32, uint32), origWrite func(uint32, uint32, uint32)) {
		hasMSRFn, hasLocalAPICFn, msrReadFn, msrWriteFn = origHasMSR, origHasLAPIC, origRead, origWrite
	}(hasMSRFn, hasLocalAPICFn, msrReadFn, msrWriteFn)

	hasMSRFn = func() bool { return true }
	hasLocalAPICFn = func() bool { return true }
	msrReadFn = func(index uint32) (uint32, uint32) {
		if index != apicBaseMSR {
			t.Fatalf("expected a read of MSR 0x%x; got 0x%x", apicBaseMSR, index)
		}

		// Window base with assorted status bits set in the low 12 bits
		return 0x10000fe, 0
	}

	var wrLow, wrHigh uint32
	msrWriteFn = func(index, low, high uint32) {
		if index != apicBaseMSR {
			t.Fatalf("expected a write to MSR 0x%x; got 0x%x", apicBaseMSR, index)
		}
		wrLow, wrHigh = low, high
	}

	core, err := Init()
	if err != nil {
		t.Fatal(err)
	}

	if exp := mm.PhysicalAddress(0x1000000); core.base != exp {
		t.Errorf("expected the discovered window base to be 0x%x; got 0x%x", uintptr(exp), uintptr(core.base))
	}

	if core.id != 0 {
		t.Errorf("expected Init to return the bootstrap core context; got core id %d", core.id)
	}

	if exp := uint32(0x1000000 | baseGlobalEnable); wrLow != exp {
		t.Errorf("expected the base MSR write-back to be 0x%x; got 0x%x", exp, wrLow)
	}

	if wrHigh != 0 {
		t.Errorf("expected the high half of the base MSR write-back to be 0; got 0x%x", wrHigh)
	}

	if !apicBaseSet || apicBase != 0x1000000 {
		t.Error("expected Init to record the discovered window base")
	}
}

func TestBaseAddressMasking(t *testing.T) {
	specs := []struct {
		raw  uint32
		want mm.PhysicalAddress
	}{
		{0x10000fe, 0x1000000},
		{0xfee00900, 0xfee00000},
		{0xfee00000, 0xfee00000},
		{0x00000fff, 0},
	}

	for specIndex, spec := range specs {
		got := mm.PhysicalAddress(spec.raw & baseAddrMask)
		if got != spec.want {
			t.Errorf("[spec %d] expected masked base 0x%x; got 0x%x", specIndex, uintptr(spec.want), uintptr(got))
		}

		if got.PageOffset() != 0 {
			t.Errorf("[spec %d] expected masked base to be page aligned", specIndex)
		}

		// Masking an already masked base must not change it
		if again := mm.PhysicalAddress(uint32(got) & baseAddrMask); again != got {
			t.Errorf("[spec %d] expected masking to be idempotent; got 0x%x", specIndex, uintptr(again))
		}
	}
}

func TestInitFeatureChecks(t *testing.T) {
	resetState()
	defer func(origHasMSR, origHasLAPIC func() bool, origRead func(uint32) (uint32, uint32)) {
		hasMSRFn, hasLocalAPICFn, msrReadFn = origHasMSR, origHasLAPIC, origRead
	}(hasMSRFn, hasLocalAPICFn, msrReadFn)

	msrReadFn = func(uint32) (uint32, uint32) {
		t.Fatal("expected no MSR access when the feature checks fail")
		return 0, 0
	}

	hasMSRFn = func() bool { return false }
	hasLocalAPICFn = func() bool { return true }
	if _, err := Init(); err != ErrMSRNotSupported {
		t.Errorf("expected ErrMSRNotSupported; got %v", err)
	}

	hasMSRFn = func() bool { return true }
	hasLocalAPICFn = func() bool { return false }
	if _, err := Init(); err != ErrLAPICNotPresent {
		t.Errorf("expected ErrLAPICNotPresent; got %v", err)
	}
}

func TestEnableSequence(t *testing.T) {
	resetState()

	sim0 := newSimAPIC(0xfee00000)
	sim1 := newSimAPIC(0xfee10000)
	restore := installSim(t, sim0, sim1)
	defer restore()

	var registered []irq.IRQ
	defer func(origRegister func(irq.IRQ, irq.Handler) *kernel.Error) {
		registerHandlerFn = origRegister
	}(registerHandlerFn)
	registerHandlerFn = func(irqNum irq.IRQ, _ irq.Handler) *kernel.Error {
		registered = append(registered, irqNum)
		return nil
	}

	c0 := &Core{id: 0, base: sim0.base}
	c1 := &Core{id: 1, base: sim1.base}

	if err := c0.enable(); err != nil {
		t.Fatal(err)
	}
	if err := c1.enable(); err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		offset uint32
		want   uint32
	}{
		{regSpuriousIV, 0x1cf},
		{regDestFormat, 0xf0000000},
		{regLogicalDest, 0},
		{regLVTTimer, lvtMasked},
		{regLVTThermal, lvtMasked},
		{regLVTPerfCount, lvtMasked},
		{regLVTLINT0, (lvtDeliverExtINT << 8) | lvtMasked},
		{regLVTLINT1, lvtTriggerLevel},
		{regLVTError, lvtMasked},
		{regTaskPriority, 0},
	}

	for simIndex, sim := range []*simAPIC{sim0, sim1} {
		for specIndex, spec := range specs {
			got, ok := sim.lastWrite(spec.offset)
			if !ok {
				t.Errorf("[cpu %d spec %d] expected a write to register 0x%x", simIndex, specIndex, spec.offset)
				continue
			}

			if got != spec.want {
				t.Errorf("[cpu %d spec %d] expected register 0x%x to contain 0x%x; got 0x%x", simIndex, specIndex, spec.offset, spec.want, got)
			}
		}

		if len(sim.reads) == 0 || sim.reads[0] != regSpuriousIV {
			t.Errorf("[cpu %d] expected the first register access to be a dummy read of the spurious interrupt register", simIndex)
		}
	}

	if len(registered) != 1 || registered[0] != irq.SpuriousIRQ {
		t.Errorf("expected the spurious handler to be registered exactly once on the spurious IRQ; got %v", registered)
	}

	if c0.base != sim0.base || c1.base != sim1.base {
		t.Error("expected each core context to retain its own recorded base address")
	}
}

func TestEnableChecks(t *testing.T) {
	resetState()

	if err := EnableBSP(); err != ErrNotDiscovered {
		t.Errorf("expected ErrNotDiscovered; got %v", err)
	}

	if _, err := Enable(1); err != ErrNotDiscovered {
		t.Errorf("expected ErrNotDiscovered; got %v", err)
	}

	apicBase, apicBaseSet = 0xfee00000, true
	if _, err := Enable(maxAddressableCores); err != ErrCoreIDOutOfRange {
		t.Errorf("expected ErrCoreIDOutOfRange; got %v", err)
	}
}

func TestEnableCreatesCoreContext(t *testing.T) {
	resetState()

	sim := newSimAPIC(0xfee00000)
	restore := installSim(t, sim)
	defer restore()

	defer func(origRegister func(irq.IRQ, irq.Handler) *kernel.Error) {
		registerHandlerFn = origRegister
	}(registerHandlerFn)
	registerHandlerFn = func(irq.IRQ, irq.Handler) *kernel.Error { return nil }

	apicBase, apicBaseSet = sim.base, true

	core, err := Enable(3)
	if err != nil {
		t.Fatal(err)
	}

	if core.ID() != 3 {
		t.Errorf("expected core id 3; got %d", core.ID())
	}

	if core.base != sim.base {
		t.Errorf("expected the core context to inherit the discovered base 0x%x; got 0x%x", uintptr(sim.base), uintptr(core.base))
	}
}

func TestEOI(t *testing.T) {
	sim := newSimAPIC(0xfee00000)
	restore := installSim(t, sim)
	defer restore()

	c := &Core{id: 0, base: sim.base}
	c.EOI()

	if len(sim.writes) != 1 {
		t.Fatalf("expected exactly 1 register write; got %d", len(sim.writes))
	}

	if got, ok := sim.lastWrite(regEOI); !ok || got != 0 {
		t.Errorf("expected a zero write to the EOI register; got 0x%x", got)
	}
}

func TestRegisterMapFailureIsFatal(t *testing.T) {
	mapErr := &kernel.Error{Module: "vmm", Message: "out of scratch slots"}

	defer func(origMapForRead func(mm.PhysicalAddress, uintptr) (unsafe.Pointer, *kernel.Error), origPanic func(interface{})) {
		mapForReadFn, panicFn = origMapForRead, origPanic
	}(mapForReadFn, panicFn)

	mapForReadFn = func(mm.PhysicalAddress, uintptr) (unsafe.Pointer, *kernel.Error) {
		return nil, mapErr
	}

	var panicked interface{}
	panicFn = func(v interface{}) { panicked = v }

	c := &Core{id: 0, base: 0xfee00000}
	c.readRegister(regSpuriousIV)

	if panicked != mapErr {
		t.Errorf("expected a failed register window mapping to panic with the mapping error; got %v", panicked)
	}
}

func TestSpuriousHandler(t *testing.T) {
	var h spuriousHandler

	for i := 0; i < 3; i++ {
		h.HandleIRQ()
	}

	if h.count != 3 {
		t.Errorf("expected 3 spurious deliveries to be counted; got %d", h.count)
	}
}

func TestSpuriousInterruptVector(t *testing.T) {
	if got := SpuriousInterruptVector(); got != irq.SpuriousIRQ {
		t.Errorf("expected the spurious interrupt vector to be IRQ 0x%x; got 0x%x", uint8(irq.SpuriousIRQ), uint8(got))
	}
}
