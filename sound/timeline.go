package sound

import (
	"math"
	"sync"
)

// Timeline is the audio clock and mixing surface for scheduled buffers.
// The clock advances only as the output device pulls samples through
// Render, so it is monotonic and independent of wall-clock drift. Every
// rendered block passes through the high-pass filter before it leaves.
type Timeline struct {
	mu      sync.Mutex
	rate    int
	pos     int64
	pending []Buffer
	filter  *Biquad
}

var (
	_ Clock  = (*Timeline)(nil)
	_ Output = (*Timeline)(nil)
)

// NewTimeline creates a timeline at rate. filter may be nil.
func NewTimeline(rate int, filter *Biquad) *Timeline {
	return &Timeline{rate: rate, filter: filter}
}

// Now returns the number of seconds rendered so far.
func (t *Timeline) Now() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.pos) / float64(t.rate)
}

// Schedule queues b and returns it as placed. A start earlier than the
// render position is moved up to it under the same lock Render takes, so
// no head samples are lost to a concurrent callback. Callers schedule in
// non-decreasing start order.
func (t *Timeline) Schedule(b Buffer) Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now := float64(t.pos) / float64(t.rate); b.Start < now {
		b.Start = now
	}
	t.pending = append(t.pending, b)
	return b
}

// Pending returns the number of buffers not yet fully rendered.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Render fills out with the next len(out) samples and advances the clock.
// It is called from the output device callback.
func (t *Timeline) Render(out []float32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	clear(out)
	from := t.pos
	to := from + int64(len(out))

	keep := 0
	for _, b := range t.pending {
		start := int64(math.Round(b.Start * float64(t.rate)))
		end := start + int64(len(b.Samples))
		if start < to && end > from {
			lo, hi := max(start, from), min(end, to)
			for i := lo; i < hi; i++ {
				out[i-from] += b.Samples[i-start]
			}
		}
		if end > to {
			t.pending[keep] = b
			keep++
		}
	}
	clear(t.pending[keep:])
	t.pending = t.pending[:keep]
	t.pos = to

	if t.filter != nil {
		t.filter.Process(out)
	}
}
