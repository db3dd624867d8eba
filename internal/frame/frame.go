// Package frame decodes a stream of half-cycle bits back into X10
// events (§4.5). It is the inverse of the codec in the x10 package:
// where that package turns an Event into half-cycles, this package
// turns half-cycles back into Events, plus the framing logic that
// decides where one frame ends and the next begins.
package frame

import (
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kg9x/x10d/x10"
)

// interframeZeroes is the run length of zero half-cycles that marks the
// end of a frame.
const interframeZeroes = 6

// DimPulse is how the processor reports a single dim/bright half-cycle
// frame that must be coalesced by a dim accumulator rather than emitted
// directly (§4.4), because the inbound path in this mode cannot see
// individual repetitions.
type DimPulse struct {
	House x10.Code
	Sign  int // -1 for Dim, +1 for Bright
}

// Sink receives whatever the processor decodes from the line: either a
// fully formed Event, or a DimPulse that still needs coalescing.
type Sink interface {
	Event(x10.Event)
	DimPulse(DimPulse)
}

// Processor consumes half-cycle bits and emits decoded events to a Sink.
// It is not safe for concurrent use by multiple goroutines; callers
// feeding it from more than one source must serialize externally (the
// TashTenHat driver does this with its own lock around every bit its
// matchers pass through).
type Processor struct {
	allBitsMode bool
	sink        Sink
	logger      *log.Logger

	bits  []byte
	zeros int
}

// New returns a Processor. allBitsMode enables the XTB-523
// "return all bits" framing rules (§4.5 step 3); it is false for CM11A,
// PL513, TW523, and XTB-523 normal mode.
func New(sink Sink, allBitsMode bool, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{sink: sink, allBitsMode: allBitsMode, logger: logger}
}

// FeedBit feeds one decoded line bit (0 or 1).
func (p *Processor) FeedBit(bit int) {
	if bit != 0 {
		for ; p.zeros > 0; p.zeros-- {
			p.bits = append(p.bits, 0)
		}
		p.bits = append(p.bits, 1)
		return
	}
	if len(p.bits) == 0 {
		return
	}
	p.zeros++
	if p.zeros >= interframeZeroes {
		p.processFrame()
		p.reset()
	}
}

func (p *Processor) reset() {
	p.bits = p.bits[:0]
	p.zeros = 0
}

// processFrame runs the decode rules in §4.5 against the buffered bits.
func (p *Processor) processFrame() {
	bits := p.bits
	if len(bits)%2 != 0 {
		bits = append(bits, 0)
	}
	if len(bits) < 22 {
		p.logger.Warn("received frame too short", "bits", bitString(bits))
		return
	}

	copies := 1
	if p.allBitsMode {
		trimmed, count, ok := trimAllBits(bits)
		if !ok {
			p.logger.Warn("received frame failed all-bits error check", "bits", bitString(bits))
			return
		}
		bits = trimmed
		copies = count
	}

	d := newDecoder(bits)
	preamble, ok := d.take(4)
	if !ok || bitString(preamble) != x10.Preamble {
		return // noise; discard silently
	}

	house, ok := d.nibble()
	if !ok {
		return
	}
	key, ok := d.nibble()
	if !ok {
		return
	}
	d16, ok := d.bit()
	if !ok {
		return
	}
	residual := d.remaining()

	switch {
	case d16 == 0 && residual == 0:
		p.sink.Event(x10.AddressEvent{House: x10.Code(house), Unit: x10.Code(key)})

	case d16 == 0:
		p.logger.Warn("unit address event with extra bits, ignoring", "bits", bitString(bits))
		p.sink.Event(x10.AddressEvent{House: x10.Code(house), Unit: x10.Code(key)})

	case d16 == 1 && isDimKey(key) && residual == 0:
		if p.allBitsMode {
			qty := copies
			if qty > x10.RelativeDimSteps {
				qty = x10.RelativeDimSteps
			}
			sign := 1
			if x10.Function(key) == x10.FnDim {
				sign = -1
			}
			p.sink.Event(x10.RelativeDimEvent{House: x10.Code(house), Dim: float64(sign*qty) / float64(x10.RelativeDimSteps)})
		} else {
			sign := 1
			if x10.Function(key) == x10.FnDim {
				sign = -1
			}
			p.sink.DimPulse(DimPulse{House: x10.Code(house), Sign: sign})
		}

	case d16 == 1 && x10.Function(key) == x10.FnExtCode && residual == 40:
		unit, _ := d.nibble()
		dataHi, _ := d.nibble()
		dataLo, _ := d.nibble()
		cmdHi, _ := d.nibble()
		cmdLo, _ := d.nibble()
		p.sink.Event(x10.ExtendedCodeEvent{
			House:    x10.Code(house),
			Unit:     x10.Code(unit),
			DataByte: byte(dataHi<<4 | dataLo),
			CmdByte:  byte(cmdHi<<4 | cmdLo),
		})

	case d16 == 1 && isPresetDimKey(key) && residual == 0:
		level := float64(house) / 31
		if x10.Function(key) == x10.FnPresetDim1 {
			level = float64(16+house) / 31
		}
		p.sink.Event(x10.AbsoluteDimEvent{Dim: level})

	case d16 == 1 && residual == 0:
		p.sink.Event(x10.FunctionEvent{House: x10.Code(house), Function: x10.Function(key)})

	case d16 == 1:
		p.logger.Warn("function event with extra bits, ignoring", "bits", bitString(bits))
		p.sink.Event(x10.FunctionEvent{House: x10.Code(house), Function: x10.Function(key)})
	}
}

func isDimKey(key uint8) bool {
	return x10.Function(key) == x10.FnDim || x10.Function(key) == x10.FnBright
}

func isPresetDimKey(key uint8) bool {
	return x10.Function(key) == x10.FnPresetDim0 || x10.Function(key) == x10.FnPresetDim1
}

// trimAllBits applies the XTB-523 "return all bits" framing rules: strip
// one trailing preamble artifact if present, then verify the remainder
// is an exact repetition of one copy starting with the preamble.
func trimAllBits(bits []byte) (oneCopy []byte, copies int, ok bool) {
	s := bitString(bits)
	if strings.HasSuffix(s, x10.Preamble) {
		s = s[:len(s)-len(x10.Preamble)]
	}
	count := strings.Count(s, x10.Preamble)
	if count == 0 || len(s)%count != 0 {
		return nil, 0, false
	}
	copyLen := len(s) / count
	if !strings.HasPrefix(s, x10.Preamble) {
		return nil, 0, false
	}
	one := s[:copyLen]
	if strings.Repeat(one, count) != s {
		return nil, 0, false
	}
	return bytesFromString(one), count, true
}

func bitString(bits []byte) string {
	var b strings.Builder
	b.Grow(len(bits))
	for _, v := range bits {
		if v != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func bytesFromString(s string) []byte {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '1' {
			out[i] = 1
		}
	}
	return out
}

// decoder walks a fully-buffered bit slice two half-cycles at a time,
// the way the original house/key/D16/payload fields are laid out.
type decoder struct {
	bits []byte
	pos  int
}

func newDecoder(bits []byte) *decoder { return &decoder{bits: bits} }

// take consumes n raw half-cycle bits.
func (d *decoder) take(n int) ([]byte, bool) {
	if d.pos+n > len(d.bits) {
		return nil, false
	}
	out := d.bits[d.pos : d.pos+n]
	d.pos += n
	return out, true
}

// bit consumes one logical bit (two half-cycles: "10" -> 1, "01" -> 0).
func (d *decoder) bit() (uint8, bool) {
	raw, ok := d.take(2)
	if !ok {
		return 0, false
	}
	switch {
	case raw[0] == 1 && raw[1] == 0:
		return 1, true
	case raw[0] == 0 && raw[1] == 1:
		return 0, true
	default:
		return 0, false
	}
}

// nibble consumes four logical bits (eight half-cycles), MSB first.
func (d *decoder) nibble() (uint8, bool) {
	var n uint8
	for i := 0; i < 4; i++ {
		b, ok := d.bit()
		if !ok {
			return 0, false
		}
		n = n<<1 | b
	}
	return n, true
}

// remaining reports the count of half-cycle bits left unconsumed.
func (d *decoder) remaining() int {
	return len(d.bits) - d.pos
}
