package sound

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/d1nch8g/voiceorder/observe"
)

// OutputSampleRate is the rate of inbound synthesized speech in Hz.
const OutputSampleRate = 24000

type SchedulerConfig struct {
	SampleRate int
	// Fade is the length of the linear ramp at each end of a buffer.
	Fade time.Duration
}

// Scheduler turns inbound PCM16 frames into buffers placed back-to-back on
// the audio clock. The cursor holds the end time of the last scheduled
// buffer and only ever moves forward; each new buffer starts at
// max(cursor, clock.Now()), so buffers never overlap and playback snaps
// forward if it fell behind real time.
type Scheduler struct {
	clock       Clock
	out         Output
	rate        int
	fadeSamples int
	metrics     *observe.Metrics

	mu     sync.Mutex
	cursor float64
}

func NewScheduler(clock Clock, out Output, cfg SchedulerConfig, metrics *observe.Metrics) *Scheduler {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = OutputSampleRate
	}
	if metrics == nil {
		metrics = observe.Discard()
	}
	return &Scheduler{
		clock:       clock,
		out:         out,
		rate:        cfg.SampleRate,
		fadeSamples: int(math.Round(cfg.Fade.Seconds() * float64(cfg.SampleRate))),
		metrics:     metrics,
		cursor:      clock.Now(),
	}
}

// Enqueue decodes pcm and schedules it for playback. Buffers shorter than
// one sample are discarded; an odd trailing byte is trimmed.
func (s *Scheduler) Enqueue(pcm []byte) (Buffer, bool) {
	ctx := context.Background()
	if len(pcm) < 2 {
		s.metrics.MalformedPayloads.Add(ctx, 1, observe.MalformedAudio)
		return Buffer{}, false
	}
	if len(pcm)%2 != 0 {
		slog.Warn("odd-length PCM packet, trimming last byte", "bytes", len(pcm))
		pcm = pcm[:len(pcm)-1]
	}

	samples := Decode(pcm)
	ApplyFade(samples, s.fadeSamples)

	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.cursor, s.clock.Now())
	b := s.out.Schedule(Buffer{Start: start, Samples: samples, SampleRate: s.rate})
	if b.Start > s.cursor {
		s.metrics.PlaybackSnaps.Add(ctx, 1)
	}
	s.cursor = max(s.cursor, b.End())

	s.metrics.FramesPlayed.Add(ctx, 1)
	return b, true
}

// Cursor returns the scheduled end of the last queued buffer.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Decode converts little-endian PCM16 to floats in [-1, 1).
func Decode(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return samples
}

// ApplyFade ramps gain linearly 0→1 over the first n samples and 1→0 over
// the last n, so the first and last samples are silent. Buffers shorter
// than 2n use half their length per ramp.
func ApplyFade(samples []float32, n int) {
	if n > len(samples)/2 {
		n = len(samples) / 2
	}
	if n <= 0 {
		return
	}
	total := len(samples)
	for i := 0; i < n; i++ {
		samples[i] *= float32(i) / float32(n)
	}
	tail := float32(max(n-1, 1))
	for i := total - n; i < total; i++ {
		samples[i] *= float32(total-1-i) / tail
	}
}
