package fifocmd

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kg9x/x10d/x10"
)

type capturingPutter struct {
	batches []x10.Batch
}

func (c *capturingPutter) PutBatch(b x10.Batch, block bool) error {
	c.batches = append(c.batches, b)
	return nil
}

func newTestProcessor() (*CommandProcessor, *capturingPutter) {
	put := &capturingPutter{}
	return NewCommandProcessor(put, log.New(io.Discard)), put
}

func TestHouseAndUnitTokenEmitsAddress(t *testing.T) {
	p, put := newTestProcessor()
	p.ProcessLine("A1")
	require.Len(t, put.batches, 1)
	assert.Equal(t, x10.Batch{x10.AddressEvent{House: x10.MustHouseCode('A'), Unit: x10.MustUnitCode(1)}}, put.batches[0])
}

func TestHouseLetterAloneSetsCurrentHouseWithNoEmit(t *testing.T) {
	p, put := newTestProcessor()
	p.ProcessLine("B")
	assert.Empty(t, put.batches)
	p.ProcessLine("5")
	require.Len(t, put.batches, 1)
	assert.Equal(t, x10.Batch{x10.AddressEvent{House: x10.MustHouseCode('B'), Unit: x10.MustUnitCode(5)}}, put.batches[0])
}

func TestSimpleFunctionCommand(t *testing.T) {
	p, put := newTestProcessor()
	p.ProcessLine("A1 ON")
	require.Len(t, put.batches, 1)
	assert.Equal(t, x10.Batch{
		x10.AddressEvent{House: x10.MustHouseCode('A'), Unit: x10.MustUnitCode(1)},
		x10.FunctionEvent{House: x10.MustHouseCode('A'), Function: x10.FnOn},
	}, put.batches[0])
}

func TestAllOffAliasesShareFunction(t *testing.T) {
	p, put := newTestProcessor()
	p.ProcessLine("ALL-OFF")
	p.ProcessLine("ALL_UNITS_OFF")
	require.Len(t, put.batches, 2)
	assert.Equal(t, x10.FnAllOff, put.batches[0][0].(x10.FunctionEvent).Function)
	assert.Equal(t, x10.FnAllOff, put.batches[1][0].(x10.FunctionEvent).Function)
}

func TestRelativeDimWithSignAndPercent(t *testing.T) {
	p, put := newTestProcessor()
	p.ProcessLine("DIM(+50%)")
	require.Len(t, put.batches, 1)
	assert.Equal(t, x10.RelativeDimEvent{House: x10.MustHouseCode('A'), Dim: 0.5}, put.batches[0][0])

	p.ProcessLine("DIM(-10)")
	require.Len(t, put.batches, 2)
	assert.Equal(t, x10.RelativeDimEvent{House: x10.MustHouseCode('A'), Dim: -0.1}, put.batches[1][0])
}

func TestAbsoluteDimHasNoHouse(t *testing.T) {
	p, put := newTestProcessor()
	p.ProcessLine("DIM(75%)")
	require.Len(t, put.batches, 1)
	assert.Equal(t, x10.AbsoluteDimEvent{Dim: 0.75}, put.batches[0][0])
}

func TestExtCodeWithTwoBytes(t *testing.T) {
	p, put := newTestProcessor()
	p.ProcessLine("EXT-CODE(3,AB,CD)")
	require.Len(t, put.batches, 1)
	assert.Equal(t, x10.ExtendedCodeEvent{
		House: x10.MustHouseCode('A'), Unit: x10.MustUnitCode(3), DataByte: 0xAB, CmdByte: 0xCD,
	}, put.batches[0][0])
}

func TestExtCodeWithOneByteDefaultsDataToZero(t *testing.T) {
	p, put := newTestProcessor()
	p.ProcessLine("EXTCODE(3,CD)")
	require.Len(t, put.batches, 1)
	assert.Equal(t, x10.ExtendedCodeEvent{
		House: x10.MustHouseCode('A'), Unit: x10.MustUnitCode(3), DataByte: 0x00, CmdByte: 0xCD,
	}, put.batches[0][0])
}

func TestInvalidTokenAbortsEntireLine(t *testing.T) {
	p, put := newTestProcessor()
	p.ProcessLine("A1 GARBAGE ON")
	assert.Empty(t, put.batches)
}

func TestLineIsCaseInsensitive(t *testing.T) {
	p, put := newTestProcessor()
	p.ProcessLine("a1 on")
	require.Len(t, put.batches, 1)
	assert.Equal(t, x10.FnOn, put.batches[0][1].(x10.FunctionEvent).Function)
}

func TestBlankLineIsIgnored(t *testing.T) {
	p, put := newTestProcessor()
	p.ProcessLine("   ")
	assert.Empty(t, put.batches)
}
