package x10

import (
	"time"
)

// Driver is implemented by a transceiver protocol state machine (CM11A,
// or one of the TashTenHat variants). It owns the hardware connection and
// is started/stopped by the Interface facade (§4.8, §5).
type Driver interface {
	Start() error
	Stop() error
}

// EventSink lets a Driver push a decoded inbound event onto the
// interface's events_in queue (§3).
type EventSink interface {
	PushEvent(Event)
}

// BatchSource lets a Driver pull outbound batches off the interface's
// event_batches_out queue (§3), with a bounded poll interval so shutdown
// stays prompt (§5).
type BatchSource interface {
	NextBatch(timeout time.Duration) (Batch, bool)
	BatchDone()
}

type sinkAdapter struct{ q *eventQueue }

func (s sinkAdapter) PushEvent(e Event) { s.q.Put(e) }

type sourceAdapter struct{ q *batchQueue }

func (s sourceAdapter) NextBatch(timeout time.Duration) (Batch, bool) { return s.q.Get(timeout) }
func (s sourceAdapter) BatchDone()                                    { s.q.Done() }

// Interface is the uniform facade the surrounding application uses,
// regardless of which transceiver backs it (§4.8).
type Interface struct {
	in      *eventQueue
	out     *batchQueue
	driver  Driver
	started bool

	lastHouse Code
	haveHouse bool
}

// Constructor builds a Driver from configuration options, given the sink
// and source it should use to exchange events with the Interface that
// owns it.
type Constructor func(opts map[string]string, in EventSink, out BatchSource) (Driver, error)

// newInterfaceFromConstructor wires up the queues and asks ctor to build
// the concrete driver bound to them.
func newInterfaceFromConstructor(opts map[string]string, ctor Constructor) (*Interface, error) {
	iface := &Interface{
		in:  newEventQueue(),
		out: newBatchQueue(),
	}
	driver, err := ctor(opts, sinkAdapter{iface.in}, sourceAdapter{iface.out})
	if err != nil {
		return nil, err
	}
	iface.driver = driver
	return iface, nil
}

// Start begins the interface's hardware driver.
func (i *Interface) Start() error {
	if i.started {
		return nil
	}
	if err := i.driver.Start(); err != nil {
		return err
	}
	i.started = true
	return nil
}

// Stop blocks until the driver has shut down. Idempotent.
func (i *Interface) Stop() error {
	if !i.started {
		return nil
	}
	err := i.driver.Stop()
	i.started = false
	return err
}

// Get dequeues one inbound event, blocking up to timeout (<=0 blocks
// forever).
func (i *Interface) Get(timeout time.Duration) (Event, bool) {
	e, ok := i.in.Get(timeout)
	if ok {
		if addr, isAddr := e.(AddressEvent); isAddr {
			i.lastHouse, i.haveHouse = addr.House, true
		}
	}
	return e, ok
}

// Put enqueues a single event for transmission. When block is true, Put
// waits until the driver has fully drained the outbound queue of it.
func (i *Interface) Put(e Event, block bool) error {
	return i.PutBatch(Batch{e}, block)
}

// PutBatch enqueues an ordered batch of events to be transmitted as one
// atomic unit.
func (i *Interface) PutBatch(b Batch, block bool) error {
	if len(b) == 0 {
		return nil
	}
	i.out.Put(b)
	if block {
		i.out.Join()
	}
	return nil
}

// Controller returns a builder that accumulates a batch of events for the
// given house letter and sends them atomically through this interface.
func (i *Interface) Controller(houseLetter byte) (*Controller, error) {
	return newController(houseLetter, func(b Batch, block bool) error {
		return i.PutBatch(b, block)
	})
}

// LastAddressedHouse reports the house code of the most recently observed
// Address event on this interface, if any. Downstream collaborators (the
// scheduler, the event dispatcher) key their per-house state off this; it
// isn't part of the core transport but is cheap to expose here rather
// than have every collaborator maintain its own shadow state.
func (i *Interface) LastAddressedHouse() (Code, bool) {
	return i.lastHouse, i.haveHouse
}
