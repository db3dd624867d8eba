// Package matcher implements the bit-stream matcher used to confirm a
// transmitted X10 event against the stream a transceiver echoes back
// (§4.3). It gates a downstream passthrough sink behind an expected bit
// string: while the expected stream hasn't been seen, bits are held in a
// bounded window, and a bit pushed out of the full window is forwarded to
// the sink. Runs of more than six zeros are cut to six while matching.
// Once the window matches, the matched bits stay in the matcher and every
// later bit is forwarded; if the wait times out first, the held bits are
// forwarded in order, and so is every later bit.
package matcher

import (
	"sync"
	"time"
)

// maxHeldZeros caps the run of consecutive zero half-cycles retained in
// the matching window. TW523 does not reliably emit a full six-zero
// inter-frame gap, so longer runs are truncated rather than causing a
// match to stall indefinitely.
const maxHeldZeros = 6

// Matcher watches an incoming bit stream for an exact expected sequence.
type Matcher struct {
	mu       sync.Mutex
	cond     *sync.Cond
	expected []byte
	held     []byte
	zeros    int
	matched  bool
	passed   bool // true once phase has switched to passthrough (match or timeout)

	passthroughFeedBit func(bit int)
}

// New builds a Matcher for the given expected bit string ('0'/'1'
// characters). passthroughFeedBit receives every bit pushed out of the
// full window before a match, and every bit once the matcher has
// committed to passthrough, whether because of a match or a timeout.
func New(expectedBits string, passthroughFeedBit func(bit int)) *Matcher {
	expected := make([]byte, 0, len(expectedBits))
	zeros := 0
	for i := 0; i < len(expectedBits); i++ {
		if expectedBits[i] == '1' {
			expected = append(expected, 1)
			zeros = 0
		} else if zeros < maxHeldZeros {
			expected = append(expected, 0)
			zeros++
		}
	}
	m := &Matcher{expected: expected, passthroughFeedBit: passthroughFeedBit}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// FeedBit feeds one bit (0 or 1) into the matcher.
func (m *Matcher) FeedBit(bit int) {
	m.mu.Lock()
	if m.passed {
		m.mu.Unlock()
		m.passthroughFeedBit(bit)
		return
	}

	if bit != 0 {
		m.held = append(m.held, 1)
		m.zeros = 0
	} else if m.zeros < maxHeldZeros {
		m.held = append(m.held, 0)
		m.zeros++
	}

	var overflow []byte
	for len(m.held) > len(m.expected) {
		overflow = append(overflow, m.held[0])
		m.held = m.held[1:]
	}

	if !m.matched && len(m.held) == len(m.expected) && bytesEqual(m.held, m.expected) {
		m.matched = true
		m.passed = true
		m.cond.Broadcast()
	}
	m.mu.Unlock()

	for _, b := range overflow {
		m.passthroughFeedBit(int(b))
	}
}

// FeedByte feeds a byte into the matcher, MSB first.
func (m *Matcher) FeedByte(b byte) {
	for i := 7; i >= 0; i-- {
		m.FeedBit(int((b >> uint(i)) & 1))
	}
}

// Wait blocks until a match occurs or timeout elapses (<=0 means forever),
// returning true on a match. On timeout, the held window is drained
// through the passthrough sink in order and the matcher permanently
// switches to passthrough.
func (m *Matcher) Wait(timeout time.Duration) bool {
	m.mu.Lock()
	if timeout > 0 {
		deadline := time.Now().Add(timeout)
		timer := time.AfterFunc(timeout, func() {
			m.mu.Lock()
			if !m.matched {
				m.cond.Broadcast()
			}
			m.mu.Unlock()
		})
		defer timer.Stop()

		for !m.matched && time.Now().Before(deadline) {
			m.cond.Wait()
		}
	} else {
		for !m.matched {
			m.cond.Wait()
		}
	}

	matched := m.matched
	var held []byte
	if !matched {
		held = m.held
		m.held = nil
		m.passed = true
	}
	m.mu.Unlock()

	for _, b := range held {
		m.passthroughFeedBit(int(b))
	}
	return matched
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
