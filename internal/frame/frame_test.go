package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kg9x/x10d/x10"
)

type recordingSink struct {
	events []x10.Event
	pulses []DimPulse
}

func (r *recordingSink) Event(e x10.Event)   { r.events = append(r.events, e) }
func (r *recordingSink) DimPulse(p DimPulse) { r.pulses = append(r.pulses, p) }

func feed(p *Processor, bits string) {
	for _, c := range bits {
		if c == '1' {
			p.FeedBit(1)
		} else {
			p.FeedBit(0)
		}
	}
	for i := 0; i < interframeZeroes; i++ {
		p.FeedBit(0)
	}
}

func TestDecodesAddressEvent(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, false, nil)

	e := x10.AddressEvent{House: x10.MustHouseCode('A'), Unit: x10.MustUnitCode(1)}
	encoded, err := x10.EncodeEvent(e)
	require.NoError(t, err)
	feed(p, encoded)

	require.Len(t, sink.events, 1)
	assert.Equal(t, e, sink.events[0])
}

func TestDecodesFunctionEvent(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, false, nil)

	e := x10.FunctionEvent{House: x10.MustHouseCode('A'), Function: x10.FnOn}
	encoded, err := x10.EncodeEvent(e)
	require.NoError(t, err)
	feed(p, encoded)

	require.Len(t, sink.events, 1)
	assert.Equal(t, e, sink.events[0])
}

func TestDecodesExtendedCodeEvent(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, false, nil)

	e := x10.ExtendedCodeEvent{House: x10.MustHouseCode('P'), Unit: x10.MustUnitCode(16), DataByte: 0xFF, CmdByte: 0xFF}
	frame, _, err := x10.FrameAndQty(e)
	require.NoError(t, err)
	feed(p, frame) // single frame copy, as a non-all-bits transceiver delivers it

	require.Len(t, sink.events, 1)
	assert.Equal(t, e, sink.events[0])
}

func TestDecodesAbsoluteDimEvent(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, false, nil)

	e := x10.AbsoluteDimEvent{Dim: 1.0}
	frame, _, err := x10.FrameAndQty(e)
	require.NoError(t, err)
	feed(p, frame) // single frame copy, as a non-all-bits transceiver delivers it

	require.Len(t, sink.events, 1)
	got := sink.events[0].(x10.AbsoluteDimEvent)
	assert.InDelta(t, 1.0, got.Dim, 1e-9)
}

func TestNonAllBitsModeReportsDimAsPulse(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, false, nil)

	e := x10.RelativeDimEvent{House: x10.MustHouseCode('A'), Dim: -1.0}
	frame, _, err := x10.FrameAndQty(e)
	require.NoError(t, err)
	feed(p, frame) // single frame copy, as TW523/XTB-normal deliver it

	require.Empty(t, sink.events)
	require.Len(t, sink.pulses, 1)
	assert.Equal(t, -1, sink.pulses[0].Sign)
	assert.Equal(t, x10.MustHouseCode('A'), sink.pulses[0].House)
}

func TestAllBitsModeDecodesRelativeDimDirectly(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, true, nil)

	e := x10.RelativeDimEvent{House: x10.MustHouseCode('A'), Dim: 1.0}
	encoded, err := x10.EncodeEvent(e)
	require.NoError(t, err)
	feed(p, encoded)

	require.Len(t, sink.events, 1)
	got := sink.events[0].(x10.RelativeDimEvent)
	assert.InDelta(t, 1.0, got.Dim, 1e-9)
}

func TestShortFrameIsDiscarded(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, false, nil)
	feed(p, "1110")
	assert.Empty(t, sink.events)
	assert.Empty(t, sink.pulses)
}

func TestMissingPreambleIsDiscardedSilently(t *testing.T) {
	sink := &recordingSink{}
	p := New(sink, false, nil)
	feed(p, "01010101010101010101010101")
	assert.Empty(t, sink.events)
}
