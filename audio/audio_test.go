package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"
)

func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{1.0, 32767},
		{-1.0, -32768},
		{0.0, 0},
		{0.5, 16383},
		{-0.5, -16384},
		{2.5, 32767},
		{-7, -32768},
		{float32(math.NaN()), 0},
	}
	for _, tc := range tests {
		if got := Quantize(tc.in); got != tc.want {
			t.Errorf("Quantize(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestEncode(t *testing.T) {
	frame := Encode([]float32{1, -1, 0})
	if len(frame) != 6 {
		t.Fatalf("len = %d, want 6", len(frame))
	}
	if frame.Samples() != 3 {
		t.Errorf("Samples() = %d, want 3", frame.Samples())
	}
	want := []int16{32767, -32768, 0}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(frame[i*2:])); got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestEncoder_DropsWhenNotReady(t *testing.T) {
	out := make(chan Frame, 4)
	open := false
	enc := NewEncoder(out, func() bool { return open }, nil)

	if enc.Push([]float32{0.1}) {
		t.Error("expected frame to be dropped while channel is not open")
	}
	if len(out) != 0 {
		t.Fatalf("queue has %d frames, want 0", len(out))
	}

	open = true
	if !enc.Push([]float32{0.1}) {
		t.Error("expected frame to be queued while channel is open")
	}
	if len(out) != 1 {
		t.Fatalf("queue has %d frames, want 1", len(out))
	}
}

func TestEncoder_DropsWhenQueueFull(t *testing.T) {
	out := make(chan Frame, 2)
	enc := NewEncoder(out, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 10 {
			enc.Push([]float32{0.25, -0.25})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked on a full queue")
	}
	if len(out) != 2 {
		t.Errorf("queue has %d frames, want 2", len(out))
	}
}

func TestEncoder_IgnoresEmptyBlock(t *testing.T) {
	out := make(chan Frame, 1)
	enc := NewEncoder(out, nil, nil)
	if enc.Push(nil) {
		t.Error("empty block should not be queued")
	}
}

// fakeStereo is an in-memory 16-bit stereo PCM source.
type fakeStereo struct {
	r    io.Reader
	rate int
}

func (f *fakeStereo) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *fakeStereo) SampleRate() int            { return f.rate }

func stereoPCM16(frames [][2]int16) []byte {
	var buf bytes.Buffer
	for _, fr := range frames {
		_ = binary.Write(&buf, binary.LittleEndian, fr[0])
		_ = binary.Write(&buf, binary.LittleEndian, fr[1])
	}
	return buf.Bytes()
}

func TestFileStreamer_DownmixAndResample(t *testing.T) {
	// 32 kHz stereo ramp resampled to 16 kHz keeps every other frame.
	frames := make([][2]int16, 64)
	for i := range frames {
		frames[i] = [2]int16{int16(i * 100), int16(i * 300)}
	}
	f := NewFileStreamer("", Config{SampleRate: 16000, FramesPerBuffer: 8})
	if err := f.reset(&fakeStereo{r: bytes.NewReader(stereoPCM16(frames)), rate: 32000}); err != nil {
		t.Fatalf("reset: %v", err)
	}

	block := make([]float32, 8)
	n, err := f.nextBlock(block)
	if err != nil {
		t.Fatalf("nextBlock: %v", err)
	}
	if n != 8 {
		t.Fatalf("n = %d, want 8", n)
	}
	for i, got := range block {
		src := 2 * i
		want := float32(src*100+src*300) / 2 / 32768
		if math.Abs(float64(got-want)) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, got, want)
		}
	}
}

func TestFileStreamer_EOF(t *testing.T) {
	frames := make([][2]int16, 5)
	f := NewFileStreamer("", Config{SampleRate: 16000, FramesPerBuffer: 8})
	if err := f.reset(&fakeStereo{r: bytes.NewReader(stereoPCM16(frames)), rate: 16000}); err != nil {
		t.Fatalf("reset: %v", err)
	}

	block := make([]float32, 8)
	n, err := f.nextBlock(block)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
	if n != 4 {
		t.Errorf("n = %d, want 4", n)
	}
}

func TestFileStreamer_StartCaptureRunsToEnd(t *testing.T) {
	frames := make([][2]int16, 40)
	for i := range frames {
		frames[i] = [2]int16{1000, 1000}
	}
	f := NewFileStreamer("", Config{SampleRate: 16000, FramesPerBuffer: 16})
	if err := f.reset(&fakeStereo{r: bytes.NewReader(stereoPCM16(frames)), rate: 16000}); err != nil {
		t.Fatalf("reset: %v", err)
	}

	out := make(chan Frame, 8)
	if err := f.StartCapture(t.Context(), NewEncoder(out, nil, nil)); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if len(out) != 3 {
		t.Errorf("got %d frames, want 3", len(out))
	}
}

// fakeStreamer records lifecycle calls.
type fakeStreamer struct {
	mu         sync.Mutex
	initErr    error
	openErr    error
	captureErr error
	returnNow  bool

	initialized, opened, closed, terminated int
}

func (f *fakeStreamer) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized++
	return f.initErr
}

func (f *fakeStreamer) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated++
	return nil
}

func (f *fakeStreamer) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return f.openErr
}

func (f *fakeStreamer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeStreamer) StartCapture(ctx context.Context, enc *Encoder) error {
	if f.returnNow {
		return f.captureErr
	}
	enc.Push([]float32{0.5})
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeStreamer) counts() (int, int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized, f.opened, f.closed, f.terminated
}

func TestRecordingSession_StopReleases(t *testing.T) {
	fs := &fakeStreamer{}
	out := make(chan Frame, 1)
	s, err := StartRecording(t.Context(), fs, NewEncoder(out, nil, nil))
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if s.ID == "" {
		t.Error("expected a session id")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	_, _, closed, terminated := fs.counts()
	if closed != 1 || terminated != 1 {
		t.Errorf("closed=%d terminated=%d, want 1 and 1", closed, terminated)
	}
	// A second Stop must not release twice.
	_ = s.Stop()
	_, _, closed, terminated = fs.counts()
	if closed != 1 || terminated != 1 {
		t.Errorf("after second Stop: closed=%d terminated=%d", closed, terminated)
	}
}

func TestRecordingSession_ParentCancelReleases(t *testing.T) {
	fs := &fakeStreamer{}
	ctx, cancel := context.WithCancel(t.Context())
	s, err := StartRecording(ctx, fs, NewEncoder(make(chan Frame, 1), nil, nil))
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not end after parent cancellation")
	}
	_, _, closed, terminated := fs.counts()
	if closed != 1 || terminated != 1 {
		t.Errorf("closed=%d terminated=%d, want 1 and 1", closed, terminated)
	}
}

func TestRecordingSession_CaptureErrorReleases(t *testing.T) {
	fs := &fakeStreamer{returnNow: true, captureErr: errors.New("device lost")}
	s, err := StartRecording(t.Context(), fs, NewEncoder(make(chan Frame, 1), nil, nil))
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	<-s.Done()
	_, _, closed, terminated := fs.counts()
	if closed != 1 || terminated != 1 {
		t.Errorf("closed=%d terminated=%d, want 1 and 1", closed, terminated)
	}
}

func TestStartRecording_AcquisitionFailure(t *testing.T) {
	t.Run("initialize fails", func(t *testing.T) {
		fs := &fakeStreamer{initErr: errors.New("permission denied")}
		s, err := StartRecording(t.Context(), fs, NewEncoder(make(chan Frame, 1), nil, nil))
		if err == nil || s != nil {
			t.Fatalf("expected error and no session, got %v, %v", s, err)
		}
		_, opened, _, _ := fs.counts()
		if opened != 0 {
			t.Errorf("stream opened %d times after init failure", opened)
		}
	})

	t.Run("open fails", func(t *testing.T) {
		fs := &fakeStreamer{openErr: errors.New("device unavailable")}
		s, err := StartRecording(t.Context(), fs, NewEncoder(make(chan Frame, 1), nil, nil))
		if err == nil || s != nil {
			t.Fatalf("expected error and no session, got %v, %v", s, err)
		}
		_, _, _, terminated := fs.counts()
		if terminated != 1 {
			t.Errorf("terminated = %d, want 1", terminated)
		}
	})
}
