package sound

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"
	"time"
)

func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// manualClock is a settable audio clock.
type manualClock struct {
	mu  sync.Mutex
	now float64
}

func (c *manualClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t float64) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// recorder captures scheduled buffers in order.
type recorder struct {
	buffers []Buffer
}

func (r *recorder) Schedule(b Buffer) Buffer {
	r.buffers = append(r.buffers, b)
	return b
}

func newTestScheduler(clock Clock, out Output) *Scheduler {
	return NewScheduler(clock, out, SchedulerConfig{SampleRate: OutputSampleRate, Fade: 5 * time.Millisecond}, nil)
}

func TestScheduler_DiscardsShortBuffers(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(&manualClock{}, rec)

	for _, pcm := range [][]byte{nil, {}, {0x01}} {
		if _, ok := s.Enqueue(pcm); ok {
			t.Errorf("Enqueue(%v) scheduled a buffer", pcm)
		}
	}
	if len(rec.buffers) != 0 {
		t.Errorf("got %d scheduled buffers, want 0", len(rec.buffers))
	}
	if s.Cursor() != 0 {
		t.Errorf("cursor moved to %v", s.Cursor())
	}
}

func TestScheduler_TrimsOddLength(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(&manualClock{}, rec, SchedulerConfig{SampleRate: OutputSampleRate}, nil)

	pcm := append(pcm16(16384, -16384), 0x7f)
	b, ok := s.Enqueue(pcm)
	if !ok {
		t.Fatal("expected buffer to be scheduled")
	}
	if len(b.Samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(b.Samples))
	}
	if b.Samples[0] != 0.5 || b.Samples[1] != -0.5 {
		t.Errorf("samples = %v, want [0.5 -0.5]", b.Samples)
	}
}

func TestScheduler_NoOverlapInRapidSuccession(t *testing.T) {
	rec := &recorder{}
	clock := &manualClock{}
	s := newTestScheduler(clock, rec)

	// Arrivals with no real-time gap between them.
	for i := range 50 {
		if _, ok := s.Enqueue(pcm16(make([]int16, 240+i)...)); !ok {
			t.Fatalf("frame %d not scheduled", i)
		}
	}
	for i := 1; i < len(rec.buffers); i++ {
		prev, cur := rec.buffers[i-1], rec.buffers[i]
		if cur.Start < prev.End() {
			t.Fatalf("buffer %d starts at %v before previous end %v", i, cur.Start, prev.End())
		}
	}
	last := rec.buffers[len(rec.buffers)-1]
	if s.Cursor() != last.End() {
		t.Errorf("cursor = %v, want %v", s.Cursor(), last.End())
	}
}

func TestScheduler_SnapsForwardWhenBehind(t *testing.T) {
	rec := &recorder{}
	clock := &manualClock{}
	s := newTestScheduler(clock, rec)

	first, _ := s.Enqueue(pcm16(make([]int16, 2400)...)) // 100 ms
	if first.Start != 0 {
		t.Fatalf("first start = %v, want 0", first.Start)
	}

	clock.Set(1.0)
	second, _ := s.Enqueue(pcm16(make([]int16, 2400)...))
	if second.Start != 1.0 {
		t.Errorf("second start = %v, want 1.0 (snapped to clock)", second.Start)
	}

	// The clock is still at 1.0, so the next buffer follows the cursor.
	third, _ := s.Enqueue(pcm16(make([]int16, 2400)...))
	if math.Abs(third.Start-second.End()) > 1e-12 {
		t.Errorf("third start = %v, want %v", third.Start, second.End())
	}
}

func TestScheduler_CursorNeverMovesBackwards(t *testing.T) {
	clock := &manualClock{}
	s := newTestScheduler(clock, &recorder{})

	prev := s.Cursor()
	for i, now := range []float64{0, 0.5, 0.2, 3, 1, 1} {
		clock.Set(now)
		s.Enqueue(pcm16(make([]int16, 480)...))
		if c := s.Cursor(); c < prev {
			t.Fatalf("step %d: cursor went from %v to %v", i, prev, c)
		}
		prev = s.Cursor()
	}
}

func TestApplyFade(t *testing.T) {
	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = 1
	}
	ApplyFade(samples, 120)

	if samples[0] != 0 {
		t.Errorf("first sample gain = %v, want 0", samples[0])
	}
	if got := samples[60]; math.Abs(float64(got)-0.5) > 1e-6 {
		t.Errorf("mid ramp-in gain = %v, want 0.5", got)
	}
	for i := 120; i < 880; i++ {
		if samples[i] != 1 {
			t.Fatalf("hold region sample %d = %v, want 1", i, samples[i])
		}
	}
	if samples[880] != 1 {
		t.Errorf("ramp-out start gain = %v, want 1", samples[880])
	}
	if samples[999] != 0 {
		t.Errorf("last sample gain = %v, want 0", samples[999])
	}
	for i := 881; i < 1000; i++ {
		if samples[i] >= samples[i-1] {
			t.Fatalf("ramp-out not decreasing at %d", i)
		}
	}
}

func TestApplyFade_ShortBuffer(t *testing.T) {
	samples := []float32{1, 1, 1, 1}
	ApplyFade(samples, 120)
	want := []float32{0, 0.5, 1, 0}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestTimeline_RendersBackToBack(t *testing.T) {
	tl := NewTimeline(10, nil)
	s := NewScheduler(tl, tl, SchedulerConfig{SampleRate: 10}, nil)

	s.Enqueue(pcm16(8192, 8192, 8192))
	s.Enqueue(pcm16(-8192, -8192))

	out := make([]float32, 4)
	tl.Render(out)
	want := []float32{0.25, 0.25, 0.25, -0.25}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
	if tl.Now() != 0.4 {
		t.Errorf("clock = %v, want 0.4", tl.Now())
	}

	tl.Render(out)
	want = []float32{-0.25, 0, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("second block out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
	if tl.Pending() != 0 {
		t.Errorf("pending = %d, want 0", tl.Pending())
	}

	// The clock has moved past the cursor; the next buffer starts now.
	b, _ := s.Enqueue(pcm16(8192))
	if b.Start != tl.Now() {
		t.Errorf("start = %v, want clock %v", b.Start, tl.Now())
	}
}

func TestTimeline_ScheduleMovesStaleStartToNow(t *testing.T) {
	tl := NewTimeline(10, nil)
	tl.Render(make([]float32, 4))

	// Start was computed before the render above advanced the clock.
	placed := tl.Schedule(Buffer{Start: 0.2, Samples: []float32{0.5, 0.25}, SampleRate: 10})
	if placed.Start != 0.4 {
		t.Fatalf("placed start = %v, want 0.4", placed.Start)
	}

	out := make([]float32, 4)
	tl.Render(out)
	want := []float32{0.5, 0.25, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestHighPass_RemovesDC(t *testing.T) {
	f := NewHighPass(20, 0.7, OutputSampleRate)
	buf := make([]float32, OutputSampleRate)
	for i := range buf {
		buf[i] = 0.5
	}
	f.Process(buf)
	if tail := buf[len(buf)-1]; math.Abs(float64(tail)) > 1e-3 {
		t.Errorf("DC not removed: last sample = %v", tail)
	}
}

func TestHighPass_PassesSpeechBand(t *testing.T) {
	f := NewHighPass(20, 0.7, OutputSampleRate)
	buf := make([]float32, OutputSampleRate/2)
	for i := range buf {
		buf[i] = float32(math.Sin(2 * math.Pi * 1000 * float64(i) / OutputSampleRate))
	}
	f.Process(buf)

	var peak float64
	for _, s := range buf[len(buf)/2:] {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	if peak < 0.95 || peak > 1.05 {
		t.Errorf("1 kHz peak after filter = %v, want ~1", peak)
	}
}
