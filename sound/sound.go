package sound

import "context"

// Player defines the interface for audio output devices that drive a
// [Timeline]
type Player interface {
	// Initialize initializes the audio playback system
	Initialize() error

	// Terminate terminates the audio playback system
	Terminate() error

	// Open opens the output stream
	Open() error

	// Close closes the output stream
	Close() error

	// PlayStream renders the timeline to the output until ctx is cancelled
	PlayStream(ctx context.Context) error
}

// Clock reports the audio clock in seconds. It never goes backwards.
type Clock interface {
	Now() float64
}

// Output accepts buffers scheduled at an absolute audio-clock time.
// Schedule returns the buffer as placed; an output driven by a clock moves
// a start that is already in the past up to the current time.
type Output interface {
	Schedule(b Buffer) Buffer
}

// Buffer is a mono float buffer scheduled to start at Start seconds on the
// audio clock. Gain has already been applied to Samples.
type Buffer struct {
	Start      float64
	Samples    []float32
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// End returns the audio-clock time at which the buffer finishes.
func (b Buffer) End() float64 {
	return b.Start + b.Duration()
}
