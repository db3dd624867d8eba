// Package zerocross watches a GPIO line wired to a raw AC zero-crossing
// signal, independent of whatever transceiver is decoding X10 frames.
// It exists purely as a health signal: if 50/60Hz edges stop arriving,
// the AC mains feed the transceiver relies on for timing has a problem
// that has nothing to do with the X10 driver itself.
package zerocross

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Watcher records zero-crossing edges observed on one GPIO line, keeping
// up to 64 unread edges and dropping further edges while that buffer is
// full.
type Watcher struct {
	line *gpiocdev.Line

	edges chan time.Time
}

// Watch requests offset on chip (e.g. "gpiochip0") as an input reporting
// both rising and falling edges.
func Watch(chip string, offset int) (*Watcher, error) {
	edges := make(chan time.Time, 64)
	w := &Watcher{edges: edges}

	l, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			select {
			case edges <- time.Now():
			default:
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("zerocross: requesting %s line %d: %w", chip, offset, err)
	}
	w.line = l
	return w, nil
}

// Close releases the underlying GPIO line request.
func (w *Watcher) Close() error {
	return w.line.Close()
}

// Healthy waits up to window for an edge and reports whether one was
// available, i.e. mains power is still present and the line is wired up.
// It takes one edge from the buffer per call, so an unread edge recorded
// before the call began also counts.
func (w *Watcher) Healthy(window time.Duration) bool {
	deadline := time.NewTimer(window)
	defer deadline.Stop()
	select {
	case <-w.edges:
		return true
	case <-deadline.C:
		return false
	}
}
