package audio

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// monitorGain is applied to the microphone signal on its way to the output
// device. Zero keeps the duplex stream running without audible loopback.
const monitorGain = 0

type PortaudioStreamer struct {
	stream  *portaudio.Stream
	config  Config
	encoder atomic.Pointer[Encoder]
}

var _ AudioStreamer = (*PortaudioStreamer)(nil)

func NewPortaudioStreamer(config Config) *PortaudioStreamer {
	return &PortaudioStreamer{config: config}
}

func (a *PortaudioStreamer) Initialize() error {
	return portaudio.Initialize()
}

func (a *PortaudioStreamer) Terminate() error {
	return portaudio.Terminate()
}

func (a *PortaudioStreamer) Open() error {
	var (
		stream *portaudio.Stream
		err    error
	)
	if a.config.InputOnly {
		stream, err = portaudio.OpenDefaultStream(1, 0, a.config.SampleRate, a.config.FramesPerBuffer, a.capture)
	} else {
		stream, err = portaudio.OpenDefaultStream(1, 1, a.config.SampleRate, a.config.FramesPerBuffer, a.monitor)
	}
	if err != nil {
		return err
	}
	a.stream = stream
	return nil
}

func (a *PortaudioStreamer) Close() error {
	if a.stream == nil {
		return nil
	}
	err := a.stream.Close()
	a.stream = nil
	return err
}

func (a *PortaudioStreamer) StartCapture(ctx context.Context, enc *Encoder) error {
	if a.stream == nil {
		return errors.New("stream not opened")
	}

	a.encoder.Store(enc)
	defer a.encoder.Store(nil)

	if err := a.stream.Start(); err != nil {
		return err
	}
	defer a.stream.Stop()

	<-ctx.Done()
	return ctx.Err()
}

// capture runs on the PortAudio callback thread.
func (a *PortaudioStreamer) capture(in []float32) {
	if enc := a.encoder.Load(); enc != nil {
		enc.Push(in)
	}
}

// monitor runs on the PortAudio callback thread of a duplex stream and
// routes the input to the output at zero gain.
func (a *PortaudioStreamer) monitor(in, out []float32) {
	a.capture(in)
	for i := range out {
		if i < len(in) {
			out[i] = in[i] * monitorGain
		} else {
			out[i] = 0
		}
	}
}
