package echo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kg9x/x10d/x10"
)

func TestTW523SimpleEventEchoesOnce(t *testing.T) {
	e := x10.FunctionEvent{House: x10.MustHouseCode('A'), Function: x10.FnOn}
	frame, _, err := x10.FrameAndQty(e)
	require.NoError(t, err)

	got, err := Expect(e, TW523)
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestTW523RelativeDimEchoesOneThird(t *testing.T) {
	e := x10.RelativeDimEvent{House: x10.MustHouseCode('A'), Dim: 1.0}
	frame, qty, err := x10.FrameAndQty(e)
	require.NoError(t, err)
	require.Equal(t, x10.RelativeDimSteps, qty)

	got, err := Expect(e, TW523)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat(frame, 8), got) // floor((22+2)/3) == 8
}

func TestTW523ExtendedCodeEchoesTruncatedTwice(t *testing.T) {
	e := x10.ExtendedCodeEvent{House: x10.MustHouseCode('A'), Unit: x10.MustUnitCode(1), DataByte: 0xAB, CmdByte: 0xCD}
	frame, _, err := x10.FrameAndQty(e)
	require.NoError(t, err)

	got, err := Expect(e, TW523)
	require.NoError(t, err)
	truncated := frame[:22]
	assert.Equal(t, strings.Repeat(truncated, 2), got)
	assert.Len(t, got, 44)
}

func TestXTB523NormalRelativeDimEchoesHalf(t *testing.T) {
	e := x10.RelativeDimEvent{House: x10.MustHouseCode('A'), Dim: 0.5}
	frame, qty, err := x10.FrameAndQty(e)
	require.NoError(t, err)

	got, err := Expect(e, XTB523Normal)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat(frame, (qty+1)/2), got)
}

func TestXTB523AllBitsEchoesEverything(t *testing.T) {
	e := x10.AddressEvent{House: x10.MustHouseCode('A'), Unit: x10.MustUnitCode(1)}
	frame, qty, err := x10.FrameAndQty(e)
	require.NoError(t, err)

	got, err := Expect(e, XTB523AllBits)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat(frame, qty), got)
}

func TestJoinBatchUsesInterframeGap(t *testing.T) {
	batch := x10.Batch{
		x10.AddressEvent{House: x10.MustHouseCode('A'), Unit: x10.MustUnitCode(1)},
		x10.FunctionEvent{House: x10.MustHouseCode('A'), Function: x10.FnOn},
	}
	a, err := Expect(batch[0], TW523)
	require.NoError(t, err)
	b, err := Expect(batch[1], TW523)
	require.NoError(t, err)

	got, err := JoinBatch(batch, TW523)
	require.NoError(t, err)
	assert.Equal(t, a+x10.InterframeGap+b, got)
}
