package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrNotRecording is returned when stopping a session that already ended.
var ErrNotRecording = errors.New("audio: not recording")

// RecordingSession owns a capture stream and its host audio context from
// "start recording" until "stop recording". Both are released exactly once,
// whichever way the session ends: an explicit Stop, cancellation of the
// parent context, or the streamer returning on its own.
type RecordingSession struct {
	ID string

	streamer AudioStreamer
	cancel   context.CancelFunc
	done     chan struct{}

	releaseOnce sync.Once
	releaseErr  error
}

// StartRecording acquires the capture context and stream and starts
// delivering frames to enc. On failure nothing is left acquired and no
// session is returned.
func StartRecording(ctx context.Context, streamer AudioStreamer, enc *Encoder) (*RecordingSession, error) {
	if err := streamer.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize capture: %w", err)
	}
	if err := streamer.Open(); err != nil {
		_ = streamer.Terminate()
		return nil, fmt.Errorf("failed to open capture stream: %w", err)
	}

	captureCtx, cancel := context.WithCancel(ctx)
	s := &RecordingSession{
		ID:       uuid.NewString(),
		streamer: streamer,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer s.release()
		err := streamer.StartCapture(captureCtx, enc)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("audio capture error", "session", s.ID, "err", err)
			return
		}
		slog.Debug("audio capture ended", "session", s.ID)
	}()

	slog.Info("recording started", "session", s.ID)
	return s, nil
}

// Stop stops posting frames, waits for the capture loop to exit and
// returns any error from releasing the stream and context.
func (s *RecordingSession) Stop() error {
	s.cancel()
	<-s.done
	slog.Info("recording stopped", "session", s.ID)
	return s.releaseErr
}

// Done is closed once the session has ended and released its resources.
func (s *RecordingSession) Done() <-chan struct{} {
	return s.done
}

func (s *RecordingSession) release() {
	s.releaseOnce.Do(func() {
		s.cancel()
		s.releaseErr = errors.Join(s.streamer.Close(), s.streamer.Terminate())
	})
}
