// Package dimacc coalesces a run of single dim/bright pulses into one
// relative-dim event (§4.4). TW523 and XTB-523 in normal mode cannot
// report a dim/bright sequence as a single transmission the way
// all-bits mode or CM11A can; each pulse arrives as its own minimal
// frame, so something has to glue a burst of them back into the
// RelativeDim the caller actually expects to see.
package dimacc

import (
	"sync"
	"time"

	"github.com/kg9x/x10d/x10"
)

// delay is how long the accumulator waits after the last pulse before
// emitting the coalesced event.
const delay = 1 * time.Second

// DimFunc maps a pulse count to a step count, encoding a transceiver's
// known pulse-to-step relationship (TW523: 3n-1; XTB-523 normal: 2n).
type DimFunc func(pulseCount int) int

// Accumulator coalesces pulses for a single house code.
type Accumulator struct {
	mu         sync.Mutex
	house      x10.Code
	dimFunc    DimFunc
	emit       func(x10.Event)
	pending    int
	timer      *time.Timer
	generation uint64
}

// New returns an Accumulator for house that calls emit with the
// coalesced RelativeDimEvent once a pulse burst settles.
func New(house x10.Code, dimFunc DimFunc, emit func(x10.Event)) *Accumulator {
	return &Accumulator{house: house, dimFunc: dimFunc, emit: emit}
}

func sgn(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}

// Pulse records one dim (-1) or bright (+1) pulse and resets the
// coalescing timer. Pulses of opposite sign cancel arithmetically
// before the timer fires.
func (a *Accumulator) Pulse(sign int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending += sign
	a.generation++
	gen := a.generation

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(delay, func() { a.fire(gen) })
}

func (a *Accumulator) fire(gen uint64) {
	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return
	}
	pending := a.pending
	a.pending = 0
	a.timer = nil
	a.mu.Unlock()

	if pending == 0 {
		return
	}

	steps := a.dimFunc(abs(pending))
	if steps > x10.RelativeDimSteps {
		steps = x10.RelativeDimSteps
	}
	dim := float64(sgn(pending)*steps) / float64(x10.RelativeDimSteps)
	a.emit(x10.RelativeDimEvent{House: a.house, Dim: dim})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Registry holds one Accumulator per house code, lazily created.
type Registry struct {
	mu    sync.Mutex
	accs  map[x10.Code]*Accumulator
	dimFn DimFunc
	emit  func(x10.Event)
}

// NewRegistry returns a Registry that lazily builds an Accumulator per
// house code the first time Pulse is called for it.
func NewRegistry(dimFn DimFunc, emit func(x10.Event)) *Registry {
	return &Registry{accs: make(map[x10.Code]*Accumulator), dimFn: dimFn, emit: emit}
}

// Pulse records a pulse for house, creating its Accumulator on first use.
func (r *Registry) Pulse(house x10.Code, sign int) {
	r.mu.Lock()
	acc, ok := r.accs[house]
	if !ok {
		acc = New(house, r.dimFn, r.emit)
		r.accs[house] = acc
	}
	r.mu.Unlock()
	acc.Pulse(sign)
}

// TW523DimFunc implements the TW523/PSC05 pulse-to-step mapping.
func TW523DimFunc(n int) int { return 3*n - 1 }

// XTB523NormalDimFunc implements the XTB-523 normal-mode pulse-to-step
// mapping.
func XTB523NormalDimFunc(n int) int { return 2 * n }
