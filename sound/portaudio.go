package sound

import (
	"context"
	"errors"
	"time"

	"github.com/gordonklaus/portaudio"
)

type PlayerConfig struct {
	SampleRate      float64
	FramesPerBuffer int
}

func GetDefaultConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate:      OutputSampleRate,
		FramesPerBuffer: 480,
	}
}

// PortaudioPlayer pulls rendered blocks from a Timeline on the PortAudio
// callback thread.
type PortaudioPlayer struct {
	stream   *portaudio.Stream
	config   PlayerConfig
	timeline *Timeline
}

var _ Player = (*PortaudioPlayer)(nil)

func NewPortaudioPlayer(config PlayerConfig, timeline *Timeline) *PortaudioPlayer {
	return &PortaudioPlayer{
		config:   config,
		timeline: timeline,
	}
}

func (p *PortaudioPlayer) Initialize() error {
	return portaudio.Initialize()
}

func (p *PortaudioPlayer) Open() error {
	stream, err := portaudio.OpenDefaultStream(
		0,
		1,
		p.config.SampleRate,
		p.config.FramesPerBuffer,
		p.timeline.Render,
	)
	if err != nil {
		return err
	}
	p.stream = stream
	return nil
}

func (p *PortaudioPlayer) PlayStream(ctx context.Context) error {
	if p.stream == nil {
		return errors.New("stream not opened")
	}

	if err := p.stream.Start(); err != nil {
		return err
	}
	defer p.stream.Stop()

	<-ctx.Done()
	return ctx.Err()
}

func (p *PortaudioPlayer) Close() error {
	if p.stream != nil {
		return p.stream.Close()
	}
	return nil
}

func (p *PortaudioPlayer) Terminate() error {
	return portaudio.Terminate()
}

// HeadlessPlayer advances a Timeline at wall-clock pace and discards the
// output. It keeps scheduling correct on machines without an output device.
type HeadlessPlayer struct {
	config   PlayerConfig
	timeline *Timeline
}

var _ Player = (*HeadlessPlayer)(nil)

func NewHeadlessPlayer(config PlayerConfig, timeline *Timeline) *HeadlessPlayer {
	return &HeadlessPlayer{config: config, timeline: timeline}
}

func (h *HeadlessPlayer) Initialize() error { return nil }
func (h *HeadlessPlayer) Terminate() error  { return nil }
func (h *HeadlessPlayer) Open() error       { return nil }
func (h *HeadlessPlayer) Close() error      { return nil }

func (h *HeadlessPlayer) PlayStream(ctx context.Context) error {
	block := make([]float32, h.config.FramesPerBuffer)
	period := time.Duration(float64(time.Second) * float64(len(block)) / h.config.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.timeline.Render(block)
		}
	}
}
