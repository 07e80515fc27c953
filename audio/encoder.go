package audio

import (
	"context"

	"github.com/d1nch8g/voiceorder/observe"
)

// Encoder turns captured blocks into frames and posts them to a bounded
// queue without ever blocking the capture context.
type Encoder struct {
	out     chan<- Frame
	ready   func() bool
	metrics *observe.Metrics
}

// NewEncoder creates an encoder posting to out. Frames are only posted
// while ready reports true; a nil ready always posts.
func NewEncoder(out chan<- Frame, ready func() bool, metrics *observe.Metrics) *Encoder {
	if metrics == nil {
		metrics = observe.Discard()
	}
	return &Encoder{out: out, ready: ready, metrics: metrics}
}

// Push encodes block and posts it. It reports whether the frame was
// queued; frames are dropped when the outbound channel is not open or
// the queue is full.
func (e *Encoder) Push(block []float32) bool {
	if len(block) == 0 {
		return false
	}
	ctx := context.Background()
	e.metrics.FramesCaptured.Add(ctx, 1)

	if e.ready != nil && !e.ready() {
		e.metrics.FramesDropped.Add(ctx, 1, observe.DropNotOpen)
		return false
	}

	select {
	case e.out <- Encode(block):
		return true
	default:
		// Drop audio if channel is full
		e.metrics.FramesDropped.Add(ctx, 1, observe.DropQueueFull)
		return false
	}
}
