package lapic

// Inter-processor interrupt commands are encoded into the two 32-bit halves
// of the interrupt command register. Field layout of the low half:
//
//	bits 0-7    vector
//	bits 8-10   delivery mode
//	bit  11     destination mode
//	bit  14     level
//	bit  15     trigger mode
//	bits 18-19  destination shorthand
//
// The high half carries the destination field, which is unused whenever a
// shorthand other than shorthandNone is selected.

type ipiDeliveryMode uint32

const (
	deliverFixed          ipiDeliveryMode = 0x0
	deliverLowestPriority ipiDeliveryMode = 0x1
	deliverSMI            ipiDeliveryMode = 0x2
	deliverNMI            ipiDeliveryMode = 0x4
	deliverINIT           ipiDeliveryMode = 0x5
	deliverStartup        ipiDeliveryMode = 0x6
)

type ipiDestinationMode uint32

const (
	destPhysical ipiDestinationMode = 0x0
	destLogical  ipiDestinationMode = 0x1
)

type ipiLevel uint32

const (
	levelDeassert ipiLevel = 0x0
	levelAssert   ipiLevel = 0x1
)

type ipiTriggerMode uint32

const (
	triggerEdge  ipiTriggerMode = 0x0
	triggerLevel ipiTriggerMode = 0x1
)

type ipiShorthand uint32

const (
	shorthandNone             ipiShorthand = 0x0
	shorthandSelf             ipiShorthand = 0x1
	shorthandAllIncludingSelf ipiShorthand = 0x2
	shorthandAllExcludingSelf ipiShorthand = 0x3
)

// ipiCommand is an immutable inter-processor interrupt command. A command is
// constructed, issued once via writeICR and then discarded.
type ipiCommand struct {
	reg uint32
}

// newIPICommand encodes an inter-processor interrupt command from its
// constituent fields.
func newIPICommand(vector uint8, delivery ipiDeliveryMode, destMode ipiDestinationMode, level ipiLevel, trigger ipiTriggerMode, shorthand ipiShorthand) ipiCommand {
	return ipiCommand{
		reg: uint32(vector) |
			uint32(delivery)<<8 |
			uint32(destMode)<<11 |
			uint32(level)<<14 |
			uint32(trigger)<<15 |
			uint32(shorthand)<<18,
	}
}

func (cmd ipiCommand) low() uint32 { return cmd.reg }

func (cmd ipiCommand) high() uint32 { return 0 }

// writeICR issues an inter-processor command through this core's interrupt
// command register. The high half must be written first; a write to the low
// half is what triggers delivery.
func (c *Core) writeICR(cmd ipiCommand) {
	c.writeRegister(regICRHigh, cmd.high())
	c.writeRegister(regICRLow, cmd.low())
}
