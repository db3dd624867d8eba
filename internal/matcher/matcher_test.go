package matcher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMatchesExpectedStream(t *testing.T) {
	var passed []int
	var mu sync.Mutex
	m := New("101", func(bit int) {
		mu.Lock()
		passed = append(passed, bit)
		mu.Unlock()
	})

	m.FeedBit(1)
	m.FeedBit(0)
	m.FeedBit(1)

	matched := m.Wait(time.Second)
	assert.True(t, matched)

	m.FeedBit(1)
	m.FeedBit(1)
	mu.Lock()
	assert.Equal(t, []int{1, 1}, passed)
	mu.Unlock()
}

func TestTimeoutDrainsHeldBitsInOrder(t *testing.T) {
	var passed []int
	var mu sync.Mutex
	m := New("1111", func(bit int) {
		mu.Lock()
		passed = append(passed, bit)
		mu.Unlock()
	})

	m.FeedBit(1)
	m.FeedBit(0)

	matched := m.Wait(20 * time.Millisecond)
	assert.False(t, matched)

	mu.Lock()
	assert.Equal(t, []int{1, 0}, passed)
	mu.Unlock()

	m.FeedBit(1)
	mu.Lock()
	assert.Equal(t, []int{1, 0, 1}, passed)
	mu.Unlock()
}

func TestExcessZerosBeyondSixAreSuppressed(t *testing.T) {
	var passed []int
	var mu sync.Mutex
	m := New("10000000000000001", func(bit int) { // fifteen zeros in expected; only 6 retained
		mu.Lock()
		passed = append(passed, bit)
		mu.Unlock()
	})
	// Expected window collapses runs > 6 zeros, so it should be shorter than the literal string.
	assert.LessOrEqual(t, len(m.expected), 8)
}

func TestOverflowBitsPassThroughBeforeMatch(t *testing.T) {
	var passed []int
	var mu sync.Mutex
	m := New("11", func(bit int) {
		mu.Lock()
		passed = append(passed, bit)
		mu.Unlock()
	})

	m.FeedBit(0) // window: [0], not yet full
	m.FeedBit(1) // window: [0,1], not a match, still at capacity 2
	m.FeedBit(1) // window would grow to 3 -> oldest (0) passes through, window becomes [1,1] -> match

	matched := m.Wait(time.Second)
	assert.True(t, matched)
	mu.Lock()
	assert.Equal(t, []int{0}, passed)
	mu.Unlock()
}
