package cm11a

import (
	"fmt"
	"math"

	"github.com/kg9x/x10d/x10"
)

// Function codes used directly in packet construction. These mirror the
// constants in the x10 package but are named here for the packet-layout
// arithmetic in §4.6, which works in terms of raw codes rather than the
// x10.Function enum.
const (
	fnDim        = uint8(x10.FnDim)
	fnBright     = uint8(x10.FnBright)
	fnPresetDim0 = uint8(x10.FnPresetDim0)
	fnPresetDim1 = uint8(x10.FnPresetDim1)
	fnExtCode    = uint8(x10.FnExtCode)
)

// buildPacket converts an event into the byte packet the CM11A expects
// on the wire (§4.6 step 1).
func buildPacket(e x10.Event) ([]byte, error) {
	switch ev := e.(type) {
	case x10.AddressEvent:
		return []byte{0x04, uint8(ev.House)<<4 | uint8(ev.Unit)}, nil

	case x10.FunctionEvent:
		return []byte{0x06, uint8(ev.House)<<4 | uint8(ev.Function)}, nil

	case x10.RelativeDimEvent:
		fn := fnBright
		if ev.Dim < 0 {
			fn = fnDim
		}
		// The hardware's documented range is 0-22 steps, but the wire
		// field is only 5 bits wide; like the reference implementation
		// this masks rather than clamps, so it wraps if qty ever
		// exceeded 31 (it can't in practice since dim is bounded to
		// +-1.0).
		qty := int(math.Round(22 * math.Abs(ev.Dim)))
		return []byte{0x06 | (uint8(qty)&0x1F)<<3, uint8(ev.House)<<4 | fn}, nil

	case x10.AbsoluteDimEvent:
		d := int(math.Round(ev.Dim * 31))
		if d < 0 {
			d = 0
		}
		if d > 31 {
			d = 31
		}
		fn := fnPresetDim0
		if d&0x10 != 0 {
			fn = fnPresetDim1
		}
		return []byte{0x06, uint8(d&0xF)<<4 | fn}, nil

	case x10.ExtendedCodeEvent:
		return []byte{0x07, uint8(ev.House)<<4 | fnExtCode, uint8(ev.Unit), ev.DataByte, ev.CmdByte}, nil

	default:
		return nil, fmt.Errorf("cm11a: %T cannot be serialized for the CM11A", e)
	}
}

func checksum(packet []byte) byte {
	var sum int
	for _, b := range packet {
		sum += int(b)
	}
	return byte(sum & 0xFF)
}
