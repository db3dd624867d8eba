package x10

import (
	"fmt"
	"math"
	"strings"
)

// Preamble marks the start of every standard X10 frame: three one-bits
// followed by a zero, each carried as two half-cycle bits.
const Preamble = "1110"

// InterframeGap is the run of zero half-cycles the encoder inserts
// between distinct events within a transmitted batch.
const InterframeGap = "000000"

// nibbleBits converts the low 4 bits of n into their half-cycle bit
// representation, MSB first: a logical one is "10", a logical zero is "01".
func nibbleBits(n uint8) string {
	var b strings.Builder
	b.Grow(8)
	for _, mask := range [4]uint8{8, 4, 2, 1} {
		if n&mask != 0 {
			b.WriteString("10")
		} else {
			b.WriteString("01")
		}
	}
	return b.String()
}

// codeBits converts a Code into its half-cycle bit representation.
func codeBits(c Code) string { return nibbleBits(uint8(c)) }

// byteBits converts a full byte into two nibbles' worth of half-cycle bits.
func byteBits(b byte) string { return nibbleBits(b>>4) + nibbleBits(b&0xF) }

// relDimQty returns the doublet/repeat count N = round(22*|dim|) for a
// RelativeDim event, clamped into [0, RelativeDimSteps].
func relDimQty(dim float64) int {
	n := int(math.Round(RelativeDimSteps * math.Abs(dim)))
	if n < 0 {
		n = 0
	}
	if n > RelativeDimSteps {
		n = RelativeDimSteps
	}
	return n
}

// absDimField returns the 5-bit quantized absolute-dim value d = round(dim*31).
func absDimField(dim float64) int {
	d := int(math.Round(dim * 31))
	if d < 0 {
		d = 0
	}
	if d > 31 {
		d = 31
	}
	return d
}

// FrameAndQty returns the single-copy frame bit string for an event and
// the number of times it is repeated on the wire (the doublet count for
// most variants, or the dim-repeat count for RelativeDim). It is the
// building block both the line codec and the echo predictor (§4.2) key
// off of.
func FrameAndQty(e Event) (frame string, qty int, err error) {
	switch ev := e.(type) {
	case AddressEvent:
		return Preamble + codeBits(ev.House) + codeBits(ev.Unit) + "01", 2, nil

	case FunctionEvent:
		return Preamble + codeBits(ev.House) + nibbleBits(uint8(ev.Function)) + "10", 2, nil

	case RelativeDimEvent:
		fn := FnBright
		if ev.Dim < 0 {
			fn = FnDim
		}
		frame := Preamble + codeBits(ev.House) + nibbleBits(uint8(fn)) + "10"
		return frame, relDimQty(ev.Dim), nil

	case AbsoluteDimEvent:
		d := absDimField(ev.Dim)
		fn := FnPresetDim0
		if d&0x10 != 0 {
			fn = FnPresetDim1
		}
		frame := Preamble + nibbleBits(uint8(d&0xF)) + nibbleBits(uint8(fn)) + "10"
		return frame, 2, nil

	case ExtendedCodeEvent:
		frame := Preamble + codeBits(ev.House) + nibbleBits(uint8(FnExtCode)) + "10" +
			codeBits(ev.Unit) + byteBits(ev.DataByte) + byteBits(ev.CmdByte)
		return frame, 2, nil

	default:
		return "", 0, fmt.Errorf("x10: unknown event type %T", e)
	}
}

// EncodeEvent converts a single event into its full transmitted bit
// string: the frame repeated its doublet/dim-repeat count, with no gap
// between repeats.
func EncodeEvent(e Event) (string, error) {
	frame, qty, err := FrameAndQty(e)
	if err != nil {
		return "", err
	}
	return strings.Repeat(frame, qty), nil
}

// EncodeBatch converts an ordered batch of events into the bit stream
// transmitted on the wire: each event's encoding, joined by a six-zero
// inter-frame gap.
func EncodeBatch(b Batch) (string, error) {
	parts := make([]string, len(b))
	for i, e := range b {
		s, err := EncodeEvent(e)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, InterframeGap), nil
}

// PackBits converts a string of '0'/'1' characters into bytes, packed
// left-justified and MSB first. The final byte is zero-padded if the bit
// string's length isn't a multiple of 8.
func PackBits(bits string) ([]byte, error) {
	out := make([]byte, (len(bits)+7)/8)
	for i, c := range bits {
		var bit byte
		switch c {
		case '1':
			bit = 1
		case '0':
			bit = 0
		default:
			return nil, fmt.Errorf("x10: invalid character %q in bit string", c)
		}
		if bit != 0 {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out, nil
}

// UnpackBits converts packed bytes back into a '0'/'1' bit string of
// length 8*len(bytes), MSB first.
func UnpackBits(data []byte) string {
	var b strings.Builder
	b.Grow(len(data) * 8)
	for _, by := range data {
		for i := 7; i >= 0; i-- {
			if by&(1<<uint(i)) != 0 {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
	}
	return b.String()
}
