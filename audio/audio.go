package audio

import "context"

// AudioStreamer defines the interface for capture implementations
type AudioStreamer interface {
	// Initialize acquires the host audio context
	Initialize() error

	// Terminate releases the host audio context
	Terminate() error

	// Open opens the capture stream with configured parameters
	Open() error

	// Close closes the capture stream
	Close() error

	// StartCapture starts delivering blocks to enc from the capture context.
	// The method blocks until the context is cancelled or the source is
	// exhausted, in which case it returns nil.
	StartCapture(ctx context.Context, enc *Encoder) error
}

// Config describes the capture stream.
type Config struct {
	SampleRate      float64
	FramesPerBuffer int
	// InputOnly skips the zero-gain monitor output.
	InputOnly bool
}

func GetDefaultConfig() Config {
	return Config{
		SampleRate:      CaptureSampleRate,
		FramesPerBuffer: 320,
	}
}
