// Package tashtenhat implements the four TashTenHat I²C transceiver
// variants (§4.7): transmit-only PL513, and the three echo-capable
// variants (TW523/PSC05, XTB-523 normal, XTB-523 "return all bits")
// that differ only in how faithfully their hardware echoes what was
// sent and how the driver must therefore verify a transmission
// succeeded.
package tashtenhat

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kg9x/x10d/internal/dimacc"
	"github.com/kg9x/x10d/internal/echo"
	"github.com/kg9x/x10d/internal/frame"
	"github.com/kg9x/x10d/internal/matcher"
	"github.com/kg9x/x10d/x10"
)

const interframeZeroes = 6

// maxFailures and echoTimeout are vars rather than consts so tests can
// shrink them; production code never changes them from the §4.7 values.
var (
	maxFailures  = 5
	echoTimeout  = 5 * time.Second
	queueTimeout = 250 * time.Millisecond
)

// variant captures the behavioral differences between the four
// TashTenHat-attached devices this package drives.
type variant struct {
	name        string
	receives    bool           // false only for PL513
	allBitsMode bool           // true only for XTB-523 "return all bits"
	family      echo.Family    // meaningless when !receives
	dimFunc     dimacc.DimFunc // nil when allBitsMode or !receives
}

// Driver implements x10.Driver for one TashTenHat-attached transceiver.
type Driver struct {
	variant variant
	dev     i2cDevice
	in      x10.EventSink
	out     x10.BatchSource
	logger  *log.Logger

	dimRegistry *dimacc.Registry
	frameMu     sync.Mutex // serializes frameProc.FeedBit across matchers
	frameProc   *frame.Processor

	matcherMu      sync.Mutex
	activeMatcher  *matcher.Matcher
	defaultMatcher *matcher.Matcher

	stopReader chan struct{}
	readerDone chan struct{}
	stopMain   chan struct{}
	mainDone   chan struct{}
}

func newDriver(v variant, dev i2cDevice, in x10.EventSink, out x10.BatchSource) *Driver {
	d := &Driver{
		variant: v,
		dev:     dev,
		in:      in,
		out:     out,
		logger:  log.Default().With("interface", v.name),
	}
	if v.receives {
		d.frameProc = frame.New(d, v.allBitsMode, d.logger)
		if !v.allBitsMode {
			d.dimRegistry = dimacc.NewRegistry(v.dimFunc, in.PushEvent)
		}
		d.defaultMatcher = matcher.New("", d.frameProcFeedBit)
		d.activeMatcher = d.defaultMatcher
	}
	return d
}

// Event implements frame.Sink: a fully decoded event goes straight to
// the interface's inbound queue.
func (d *Driver) Event(e x10.Event) { d.in.PushEvent(e) }

// DimPulse implements frame.Sink: a lone dim/bright half-cycle frame is
// handed to this house's dim accumulator rather than emitted directly.
func (d *Driver) DimPulse(p frame.DimPulse) { d.dimRegistry.Pulse(p.House, p.Sign) }

func (d *Driver) frameProcFeedBit(bit int) {
	d.frameMu.Lock()
	defer d.frameMu.Unlock()
	d.frameProc.FeedBit(bit)
}

// Start launches the I²C reader (if this variant receives) and the
// outbound-send main loop.
func (d *Driver) Start() error {
	d.stopMain = make(chan struct{})
	d.mainDone = make(chan struct{})
	go d.mainLoop()

	if d.variant.receives {
		d.stopReader = make(chan struct{})
		d.readerDone = make(chan struct{})
		go d.readLoop()
	}
	return nil
}

// Stop blocks until the main loop (and reader, if any) have exited.
func (d *Driver) Stop() error {
	close(d.stopMain)
	<-d.mainDone
	if d.variant.receives {
		close(d.stopReader)
		<-d.readerDone
	}
	return d.dev.Close()
}

// readLoop polls the I²C device one byte at a time, coalescing
// consecutive zero bytes into one (§4.7: "zeros coalesced"), and feeds
// each resulting byte to whichever matcher currently owns the line.
func (d *Driver) readLoop() {
	defer close(d.readerDone)
	buf := make([]byte, 1)
	zeroFlag := false
	for {
		select {
		case <-d.stopReader:
			return
		default:
		}
		n, err := d.dev.Read(buf)
		if err != nil || n == 0 {
			continue
		}
		b := buf[0]
		if b == 0 {
			if zeroFlag {
				continue
			}
			zeroFlag = true
		} else {
			zeroFlag = false
		}
		d.currentMatcher().FeedByte(b)
	}
}

func (d *Driver) currentMatcher() *matcher.Matcher {
	d.matcherMu.Lock()
	defer d.matcherMu.Unlock()
	return d.activeMatcher
}

func (d *Driver) setMatcher(m *matcher.Matcher) {
	d.matcherMu.Lock()
	d.activeMatcher = m
	d.matcherMu.Unlock()
}

func (d *Driver) mainLoop() {
	defer close(d.mainDone)
	for {
		select {
		case <-d.stopMain:
			return
		default:
		}
		batch, ok := d.out.NextBatch(queueTimeout)
		if !ok {
			continue
		}
		if d.variant.receives {
			d.sendWithEcho(batch)
		} else {
			d.sendWithoutEcho(batch)
		}
		d.out.BatchDone()
	}
}

func outputBits(batch x10.Batch) (string, error) {
	parts := make([]string, len(batch))
	for i, e := range batch {
		s, err := x10.EncodeEvent(e)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, strings.Repeat("0", interframeZeroes)), nil
}

func (d *Driver) write(bits string) error {
	packed, err := x10.PackBits(bits)
	if err != nil {
		return err
	}
	_, err = d.dev.Write(append(packed, 0x00))
	return err
}

// sendWithoutEcho implements the PL513 path: there is no hardware echo,
// so every event is synthesized directly into the inbound queue after
// writing (§4.7).
func (d *Driver) sendWithoutEcho(batch x10.Batch) {
	bits, err := outputBits(batch)
	if err != nil {
		d.logger.Error("encoding batch", "error", err)
		return
	}
	if err := d.write(bits); err != nil {
		d.logger.Error("writing batch", "error", err)
		return
	}
	for _, e := range batch {
		d.in.PushEvent(e)
	}
}

// sendWithEcho implements the echo-verified path shared by TW523,
// XTB-523 normal, and XTB-523 all-bits.
func (d *Driver) sendWithEcho(batch x10.Batch) {
	bits, err := outputBits(batch)
	if err != nil {
		d.logger.Error("encoding batch", "error", err)
		return
	}
	echoBits, err := echo.JoinBatch(batch, d.variant.family)
	if err != nil {
		d.logger.Error("predicting echo", "error", err)
		return
	}

	for attempt := 0; attempt < maxFailures; attempt++ {
		m := matcher.New(echoBits, d.frameProcFeedBit)
		d.setMatcher(m)

		if err := d.write(bits); err != nil {
			d.logger.Error("writing batch", "error", err)
			d.setMatcher(d.defaultMatcher)
			return
		}

		matched := m.Wait(echoTimeout)
		d.setMatcher(d.defaultMatcher)
		if matched {
			for _, e := range batch {
				d.in.PushEvent(e)
			}
			return
		}

		if attempt+1 < maxFailures {
			d.logger.Warn("failed to send batch, retrying", "attempt", attempt+1)
		} else {
			d.logger.Warn("failed to send batch, giving up")
		}
	}
	d.logger.Error("failed to send batch after maximum attempts", "attempts", maxFailures)
}

// Params describes the configuration every TashTenHat variant's
// Constructor accepts, for registration with an x10.Registry.
func Params() []x10.Param { return []x10.Param{{Name: "i2c_device", Required: true}} }

func newFromOpts(opts map[string]string, in x10.EventSink, out x10.BatchSource, v variant) (x10.Driver, error) {
	path, ok := opts["i2c_device"]
	if !ok {
		return nil, fmt.Errorf("tashtenhat: missing required parameter i2c_device")
	}
	dev, err := openI2C(path, i2cBaseAddr)
	if err != nil {
		return nil, err
	}
	return newDriver(v, dev, in, out), nil
}

// NewPL513 satisfies x10.Constructor for a TashTenHat with a PL513
// attached: transmit-only, no echo.
func NewPL513(opts map[string]string, in x10.EventSink, out x10.BatchSource) (x10.Driver, error) {
	return newFromOpts(opts, in, out, variant{name: "tashtenhat_pl513", receives: false})
}

// NewTW523 satisfies x10.Constructor for a TashTenHat with a TW523 or
// PSC05 attached.
func NewTW523(opts map[string]string, in x10.EventSink, out x10.BatchSource) (x10.Driver, error) {
	return newFromOpts(opts, in, out, variant{
		name: "tashtenhat_tw523", receives: true, family: echo.TW523, dimFunc: dimacc.TW523DimFunc,
	})
}

// NewXTB523Normal satisfies x10.Constructor for a TashTenHat with an
// XTB-523 attached in normal receive mode.
func NewXTB523Normal(opts map[string]string, in x10.EventSink, out x10.BatchSource) (x10.Driver, error) {
	return newFromOpts(opts, in, out, variant{
		name: "tashtenhat_xtb523", receives: true, family: echo.XTB523Normal, dimFunc: dimacc.XTB523NormalDimFunc,
	})
}

// NewXTB523AllBits satisfies x10.Constructor for a TashTenHat with an
// XTB-523 attached in "return all bits" mode.
func NewXTB523AllBits(opts map[string]string, in x10.EventSink, out x10.BatchSource) (x10.Driver, error) {
	return newFromOpts(opts, in, out, variant{
		name: "tashtenhat_xtb523allbits", receives: true, allBitsMode: true, family: echo.XTB523AllBits,
	})
}
