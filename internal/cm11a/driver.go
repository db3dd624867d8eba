// Package cm11a implements the CM11A (and compatible XTB-232) serial
// transceiver protocol (§4.6): a polling handshake in which the device
// unilaterally interrupts the host to deliver received events or
// request the time, and the host sends outbound events through a
// checksum-verified packet exchange that must itself tolerate being
// interrupted by one of those polls mid-transmission.
package cm11a

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/term"

	"github.com/kg9x/x10d/x10"
)

const (
	baudRate = 4800

	pollRecv     = 0x5A
	pollRecvResp = 0xC3
	pollTime     = 0xA5
	pollTimeResp = 0x9B
	readyResp    = 0x55

	maxChecksumFailures = 5
	maxFailures         = 10
	readyTimeout        = 10 * time.Second
	serialByteTimeout   = 250 * time.Millisecond
	pollWaitTime        = 1500 * time.Millisecond
	resetDelay          = 1 * time.Second
)

// interruptedByPoll signals that a poll byte arrived while a send was in
// progress; the caller must service the poll and retry the send.
type interruptedByPoll struct{ pollByte byte }

func (e *interruptedByPoll) Error() string {
	return fmt.Sprintf("cm11a: interrupted by poll byte 0x%02X", e.pollByte)
}

func isPollByte(b byte) bool { return b == pollRecv || b == pollTime }

// serialPort is the subset of *term.Term a Driver needs; narrowed to an
// interface so tests can substitute a pseudo-terminal or an in-memory
// fake.
type serialPort interface {
	io.ReadWriter
	Close() error
}

// Driver implements x10.Driver for a CM11A reachable over a local serial
// device.
type Driver struct {
	port   serialPort
	in     x10.EventSink
	out    x10.BatchSource
	logger *log.Logger

	bytes *byteQueue

	stopReader chan struct{}
	readerDone chan struct{}
	stopMain   chan struct{}
	mainDone   chan struct{}
}

// New satisfies x10.Constructor; opts must contain "serial_port" naming
// the device (e.g. "/dev/ttyUSB0").
func New(opts map[string]string, in x10.EventSink, out x10.BatchSource) (x10.Driver, error) {
	device, ok := opts["serial_port"]
	if !ok {
		return nil, fmt.Errorf("cm11a: missing required parameter serial_port")
	}
	port, err := term.Open(device, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("cm11a: opening %s: %w", device, err)
	}
	if err := port.SetSpeed(baudRate); err != nil {
		port.Close()
		return nil, fmt.Errorf("cm11a: setting speed on %s: %w", device, err)
	}
	return newDriver(port, in, out), nil
}

func newDriver(port serialPort, in x10.EventSink, out x10.BatchSource) *Driver {
	return &Driver{
		port:   port,
		in:     in,
		out:    out,
		logger: log.Default().With("interface", "cm11a"),
		bytes:  newByteQueue(),
	}
}

// Params describes the configuration this Driver's Constructor accepts,
// for registration with an x10.Registry.
func Params() []x10.Param { return []x10.Param{{Name: "serial_port", Required: true}} }

// Start launches the serial reader and the protocol main loop.
func (d *Driver) Start() error {
	d.stopReader = make(chan struct{})
	d.readerDone = make(chan struct{})
	d.stopMain = make(chan struct{})
	d.mainDone = make(chan struct{})

	go d.readLoop()
	go d.mainLoop()
	return nil
}

// Stop blocks until both the reader and main loop have exited.
func (d *Driver) Stop() error {
	close(d.stopMain)
	<-d.mainDone
	close(d.stopReader)
	<-d.readerDone
	return d.port.Close()
}

// readLoop continuously reads single bytes off the serial port and
// enqueues them, mirroring the CM11A's tendency to interrupt the host at
// any moment. Reads use a 1-byte buffer; term.RawMode with VMIN=1 makes
// each call block until at least one byte is available.
func (d *Driver) readLoop() {
	defer close(d.readerDone)
	buf := make([]byte, 1)
	for {
		select {
		case <-d.stopReader:
			return
		default:
		}
		n, err := d.port.Read(buf)
		if err != nil || n == 0 {
			continue
		}
		d.bytes.Put(buf[0])
	}
}

// mainLoop alternates between servicing an unsolicited poll from the
// device and pulling the next outbound batch, at the cadence of
// serialByteTimeout, matching the CM11A's own insistence on short,
// frequent checks rather than long blocking waits (§4.6, §5).
func (d *Driver) mainLoop() {
	defer close(d.mainDone)
	for {
		select {
		case <-d.stopMain:
			return
		default:
		}

		if b, ok := d.bytes.Get(serialByteTimeout / 2); ok {
			d.handlePoll(b)
			continue
		}

		batch, ok := d.out.NextBatch(serialByteTimeout / 2)
		if !ok {
			continue
		}
		d.sendBatchWithRetries(batch)
		d.out.BatchDone()
	}
}

func (d *Driver) write(data []byte) error {
	_, err := d.port.Write(data)
	return err
}

// sendBatchWithRetries sends every event in a batch, servicing any poll
// that interrupts a send and retrying that event, up to maxFailures full
// attempts per event (§4.6).
func (d *Driver) sendBatchWithRetries(batch x10.Batch) {
	for _, event := range batch {
		sent := false
		for attempt := 0; attempt < maxFailures; attempt++ {
			ok, err := d.handleEvent(event)
			if err != nil {
				if poll, isPoll := err.(*interruptedByPoll); isPoll {
					d.handlePoll(poll.pollByte)
					continue
				}
			}
			if ok {
				sent = true
				break
			}
			time.Sleep(resetDelay)
		}
		if !sent {
			d.logger.Error("failed to send event after maximum attempts", "event", event.String(), "attempts", maxFailures)
		}
	}
}

// handleEvent runs the checksum handshake in §4.6 for a single event.
func (d *Driver) handleEvent(e x10.Event) (bool, error) {
	packet, err := buildPacket(e)
	if err != nil {
		return false, err
	}
	want := checksum(packet)

	matched := false
	for i := 0; i < maxChecksumFailures && !matched; i++ {
		if err := d.write(packet); err != nil {
			return false, fmt.Errorf("cm11a: writing packet: %w", err)
		}
		resp, ok := d.bytes.Get(pollWaitTime)
		if !ok {
			d.logger.Warn("no response from CM11A", "event", e.String())
			return false, nil
		}
		if resp == want {
			matched = true
			break
		}
		if isPollByte(resp) {
			// Same-byte-twice heuristic: any two identical poll-token
			// bytes in a row are taken as a poll collision, whatever the
			// device meant by the first one, so it can misread a reply as
			// a poll.
			resp2, ok := d.bytes.Get(pollWaitTime)
			if ok && resp2 == resp {
				return false, &interruptedByPoll{pollByte: resp}
			}
			if ok {
				d.logger.Warn("unprompted responses from CM11A", "first", resp, "second", resp2, "event", e.String())
			}
			// not a confirmed poll (or the second byte differed): treat
			// as a bad checksum and retry within this handshake (§4.6
			// step 3d), rather than falling out to the caller's retry.
			continue
		}
	}
	if !matched {
		d.logger.Warn("too many bad checksum responses from CM11A", "event", e.String())
		return false, nil
	}

	if err := d.write([]byte{0x00}); err != nil {
		return false, fmt.Errorf("cm11a: writing go byte: %w", err)
	}
	resp, ok := d.bytes.Get(readyTimeout)
	if !ok {
		d.logger.Warn("no ready response from CM11A", "event", e.String())
		return false, nil
	}
	if isPollByte(resp) && resp == want {
		return false, &interruptedByPoll{pollByte: resp}
	}
	if resp != readyResp {
		d.logger.Warn("bad ready response from CM11A", "response", resp, "event", e.String())
		return false, nil
	}

	d.in.PushEvent(e)
	return true, nil
}

// handlePoll services a poll byte received from the CM11A.
func (d *Driver) handlePoll(pollByte byte) {
	switch pollByte {
	case pollTime:
		d.handlePollTime()
	case pollRecv:
		d.handlePollReceive()
	default:
		d.logger.Error("unrecognized poll byte from CM11A", "byte", pollByte)
	}
}

func (d *Driver) handlePollTime() {
	if err := d.write([]byte{pollTimeResp}); err != nil {
		d.logger.Error("writing time-poll response", "error", err)
		return
	}
	time.Sleep(resetDelay)
}

func (d *Driver) handlePollReceive() {
	if err := d.write([]byte{pollRecvResp}); err != nil {
		d.logger.Error("writing receive-poll response", "error", err)
		return
	}

	var size byte
	for {
		b, ok := d.bytes.Get(serialByteTimeout)
		if !ok {
			d.logger.Error("size byte missing from CM11A receive poll response")
			return
		}
		if b != pollRecv {
			size = b
			break
		}
	}
	if size < 2 || size > 9 {
		d.logger.Error("size byte from CM11A receive poll response out of range", "size", size)
		return
	}

	funcMask, ok := d.bytes.Get(serialByteTimeout)
	if !ok {
		d.logger.Error("address/function mask missing from CM11A receive poll response")
		return
	}

	n := int(size) - 1
	type taggedByte struct {
		b      byte
		isFunc bool
	}
	recvBytes := make([]taggedByte, 0, n)
	for i := 0; i < n; i++ {
		b, ok := d.bytes.Get(serialByteTimeout)
		if !ok {
			d.logger.Error("byte missing from CM11A receive poll response", "index", i)
			return
		}
		recvBytes = append(recvBytes, taggedByte{b: b, isFunc: funcMask&0x1 != 0})
		funcMask >>= 1
	}

	pop := func() (taggedByte, bool) {
		if len(recvBytes) == 0 {
			return taggedByte{}, false
		}
		b := recvBytes[0]
		recvBytes = recvBytes[1:]
		return b, true
	}

	for len(recvBytes) > 0 {
		tb, _ := pop()
		house := x10.Code(tb.b >> 4)
		if !tb.isFunc {
			d.in.PushEvent(x10.AddressEvent{House: house, Unit: x10.Code(tb.b & 0xF)})
			continue
		}

		fn := tb.b & 0xF
		switch fn {
		case fnDim, fnBright:
			dimByte, ok := pop()
			if !ok {
				d.logger.Error("dim byte missing from CM11A receive poll response")
				return
			}
			dim := float64(dimByte.b) / 210
			if fn == fnDim {
				dim = -dim
			}
			d.in.PushEvent(x10.RelativeDimEvent{House: house, Dim: dim})
		case fnPresetDim0:
			d.in.PushEvent(x10.AbsoluteDimEvent{Dim: float64(tb.b>>4) / 31})
		case fnPresetDim1:
			d.in.PushEvent(x10.AbsoluteDimEvent{Dim: float64(16+int(tb.b>>4)) / 31})
		case fnExtCode:
			unit, ok1 := pop()
			data, ok2 := pop()
			cmd, ok3 := pop()
			if !ok1 || !ok2 || !ok3 {
				d.logger.Error("argument byte missing from CM11A extended-code receive poll response")
				return
			}
			d.in.PushEvent(x10.ExtendedCodeEvent{
				House: house, Unit: x10.Code(unit.b & 0xF), DataByte: data.b, CmdByte: cmd.b,
			})
		default:
			d.in.PushEvent(x10.FunctionEvent{House: house, Function: x10.Function(fn)})
		}
	}
}
