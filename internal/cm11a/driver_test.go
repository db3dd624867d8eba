package cm11a

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kg9x/x10d/x10"
)

// fakePort is an in-memory stand-in for the serial connection to a
// CM11A, letting tests script exactly what bytes the "device" sends back
// and inspect exactly what was written to it.
type fakePort struct {
	mu      sync.Mutex
	toRead  chan byte
	written [][]byte
	closed  bool
}

func newFakePort() *fakePort {
	return &fakePort{toRead: make(chan byte, 256)}
}

func (p *fakePort) feed(bytes ...byte) {
	for _, b := range bytes {
		p.toRead <- b
	}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	b, ok := <-p.toRead
	if !ok {
		return 0, nil
	}
	buf[0] = b
	return 1, nil
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	cp := append([]byte(nil), data...)
	p.written = append(p.written, cp)
	p.mu.Unlock()
	return len(data), nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) lastWrite() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.written) == 0 {
		return nil
	}
	return p.written[len(p.written)-1]
}

// startReader starts d's readLoop against port, the same way Start
// would, and arranges for it to be stopped at test cleanup. Driver
// methods below the byteQueue (handleEvent, handlePollReceive, ...)
// only ever see bytes that readLoop has pulled off the port, so any
// test that feeds port and then calls one of those methods directly
// needs the reader running.
func startReader(t *testing.T, d *Driver, port *fakePort) {
	t.Helper()
	d.stopReader = make(chan struct{})
	d.readerDone = make(chan struct{})
	go d.readLoop()
	t.Cleanup(func() {
		close(port.toRead)
		close(d.stopReader)
		<-d.readerDone
	})
}

type recordingSink struct {
	mu     sync.Mutex
	events []x10.Event
}

func (s *recordingSink) PushEvent(e x10.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) snapshot() []x10.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]x10.Event, len(s.events))
	copy(out, s.events)
	return out
}

type noBatches struct{}

func (noBatches) NextBatch(time.Duration) (x10.Batch, bool) { return nil, false }
func (noBatches) BatchDone()                                {}

func TestBuildPacketAddress(t *testing.T) {
	e := x10.AddressEvent{House: x10.MustHouseCode('A'), Unit: x10.MustUnitCode(1)}
	packet, err := buildPacket(e)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, uint8(e.House)<<4 | uint8(e.Unit)}, packet)
}

func TestBuildPacketExtendedCode(t *testing.T) {
	e := x10.ExtendedCodeEvent{House: x10.MustHouseCode('A'), Unit: x10.MustUnitCode(1), DataByte: 0xAB, CmdByte: 0xCD}
	packet, err := buildPacket(e)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x07, uint8(e.House)<<4 | fnExtCode, uint8(e.Unit), 0xAB, 0xCD}, packet)
}

func TestHandleEventSucceedsOnGoodChecksumAndReady(t *testing.T) {
	port := newFakePort()
	sink := &recordingSink{}
	d := newDriver(port, sink, noBatches{})
	startReader(t, d, port)

	e := x10.FunctionEvent{House: x10.MustHouseCode('A'), Function: x10.FnOn}
	packet, _ := buildPacket(e)
	want := checksum(packet)

	port.feed(want, readyResp)

	ok, err := d.handleEvent(e)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []x10.Event{e}, sink.snapshot())
	assert.Equal(t, []byte{0x00}, port.lastWrite())
}

func TestHandleEventRetriesOnBadChecksum(t *testing.T) {
	port := newFakePort()
	sink := &recordingSink{}
	d := newDriver(port, sink, noBatches{})
	startReader(t, d, port)

	e := x10.FunctionEvent{House: x10.MustHouseCode('A'), Function: x10.FnOn}
	packet, _ := buildPacket(e)
	want := checksum(packet)

	port.feed(0x00, want, readyResp) // first response is garbage, second matches

	ok, err := d.handleEvent(e)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHandleEventDetectsInterruptedByPollDuringChecksum(t *testing.T) {
	port := newFakePort()
	sink := &recordingSink{}
	d := newDriver(port, sink, noBatches{})
	startReader(t, d, port)

	e := x10.FunctionEvent{House: x10.MustHouseCode('A'), Function: x10.FnOn}
	port.feed(pollRecv, pollRecv) // same poll byte twice in a row

	_, err := d.handleEvent(e)
	require.Error(t, err)
	var ibp *interruptedByPoll
	require.ErrorAs(t, err, &ibp)
	assert.Equal(t, byte(pollRecv), ibp.pollByte)
}

func TestHandlePollReceiveDecodesAddressAndFunction(t *testing.T) {
	port := newFakePort()
	sink := &recordingSink{}
	d := newDriver(port, sink, noBatches{})
	startReader(t, d, port)

	// size=3, mask=0b10 (byte0 is address, byte1 is function), then the two data bytes.
	port.feed(0x03, 0x02, 0x61 /* house A unit 5 */, 0x62 /* house A func On(0x2) */)

	d.handlePollReceive()

	events := sink.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, x10.AddressEvent{House: x10.Code(0x6), Unit: x10.Code(0x1)}, events[0])
	assert.Equal(t, x10.FunctionEvent{House: x10.Code(0x6), Function: x10.Function(0x2)}, events[1])
}
