// Package engine wires the client together. An [Engine] is the session
// context: it owns both transport channels, the router, the playback
// timeline and the recording toggle, and tears all of them down when its
// Start context ends.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/d1nch8g/voiceorder/api"
	"github.com/d1nch8g/voiceorder/audio"
	"github.com/d1nch8g/voiceorder/config"
	"github.com/d1nch8g/voiceorder/observe"
	"github.com/d1nch8g/voiceorder/router"
	"github.com/d1nch8g/voiceorder/sound"
	"github.com/d1nch8g/voiceorder/store"
	"github.com/d1nch8g/voiceorder/transport"
)

var (
	// ErrNotRunning is returned by operations that need a started engine.
	ErrNotRunning = errors.New("engine is not running")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("engine already started")
)

// Deps holds the collaborators an Engine does not build itself.
// Every field is optional.
type Deps struct {
	Store   *store.Store
	Metrics *observe.Metrics
	API     *api.Client

	// Streamer returns a fresh capture source for each recording.
	// Defaults to the PortAudio microphone.
	Streamer func() audio.AudioStreamer

	// Player returns the output device driving the timeline. Defaults to
	// PortAudio; any acquisition failure falls back to a headless player.
	Player func(*sound.Timeline) sound.Player
}

// Engine orchestrates capture, transport, routing and playback
type Engine struct {
	config  *config.Config
	metrics *observe.Metrics
	store   *store.Store
	api     *api.Client

	audioCh *transport.Channel
	textCh  *transport.Channel

	timeline  *sound.Timeline
	scheduler *sound.Scheduler
	router    *router.Router

	newStreamer func() audio.AudioStreamer
	newPlayer   func(*sound.Timeline) sound.Player

	frames  chan audio.Frame
	encoder *audio.Encoder

	runMu   sync.Mutex
	runCtx  context.Context
	started bool

	recMu sync.Mutex
	rec   *audio.RecordingSession
}

// NewEngine creates an engine from cfg. Nothing is opened until Start.
func NewEngine(cfg *config.Config, deps Deps) *Engine {
	e := &Engine{
		config:      cfg,
		metrics:     deps.Metrics,
		store:       deps.Store,
		api:         deps.API,
		newStreamer: deps.Streamer,
		newPlayer:   deps.Player,
	}
	if e.metrics == nil {
		e.metrics = observe.Discard()
	}
	if e.store == nil {
		e.store = store.New()
	}
	if e.api == nil && cfg.Transport.APIURL != "" {
		e.api = api.NewClient(cfg.Transport.APIURL)
	}
	if e.newStreamer == nil {
		e.newStreamer = func() audio.AudioStreamer {
			return audio.NewPortaudioStreamer(audio.Config{
				SampleRate:      cfg.Capture.SampleRate,
				FramesPerBuffer: cfg.Capture.FramesPerBuffer,
				InputOnly:       cfg.Capture.InputOnly,
			})
		}
	}
	if e.newPlayer == nil {
		e.newPlayer = func(tl *sound.Timeline) sound.Player {
			return sound.NewPortaudioPlayer(e.playerConfig(), tl)
		}
	}

	rate := int(cfg.Playback.SampleRate)
	var filter *sound.Biquad
	if cfg.Playback.HighPassHz > 0 {
		filter = sound.NewHighPass(cfg.Playback.HighPassHz, cfg.Playback.HighPassQ, cfg.Playback.SampleRate)
	}
	e.timeline = sound.NewTimeline(rate, filter)
	e.scheduler = sound.NewScheduler(e.timeline, e.timeline, sound.SchedulerConfig{
		SampleRate: rate,
		Fade:       cfg.Playback.Fade,
	}, e.metrics)
	e.router = router.New(e.scheduler, e.store, e.metrics)

	e.audioCh = e.newChannel("audio", cfg.Transport.AudioURL)
	e.textCh = e.newChannel("text", cfg.Transport.TextURL)

	e.frames = make(chan audio.Frame, cfg.Capture.QueueSize)
	e.encoder = audio.NewEncoder(e.frames, e.audioCh.IsOpen, e.metrics)
	return e
}

func (e *Engine) newChannel(name, url string) *transport.Channel {
	return transport.New(transport.Config{
		Name:             name,
		URL:              url,
		ReconnectDelay:   e.config.Transport.ReconnectDelay,
		HandshakeTimeout: e.config.Transport.HandshakeTimeout,
		WriteTimeout:     e.config.Transport.WriteTimeout,
		ReadLimit:        e.config.Transport.ReadLimit,
		Handler:          e.router.Handle,
		OnStatus:         e.store.SetChannelStatus,
		Metrics:          e.metrics,
	})
}

func (e *Engine) playerConfig() sound.PlayerConfig {
	return sound.PlayerConfig{
		SampleRate:      e.config.Playback.SampleRate,
		FramesPerBuffer: e.config.Playback.FramesPerBuffer,
	}
}

// Store returns the state store the engine feeds.
func (e *Engine) Store() *store.Store { return e.store }

// Start opens both channels and runs the sender and playback loops until
// ctx is cancelled. On return every channel, stream and recording has
// been released. An Engine can be started once.
func (e *Engine) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	e.runMu.Lock()
	if e.started {
		e.runMu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.runCtx = gctx
	e.runMu.Unlock()

	for _, ch := range []*transport.Channel{e.audioCh, e.textCh} {
		if err := ch.Open(gctx); err != nil {
			return fmt.Errorf("failed to open %s channel: %w", ch.Name(), err)
		}
	}
	slog.Info("engine started",
		"audio_url", e.config.Transport.AudioURL,
		"text_url", e.config.Transport.TextURL,
	)

	g.Go(func() error { return e.sendLoop(gctx) })
	g.Go(func() error { return e.playLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		e.shutdown()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	slog.Info("engine stopped")
	return err
}

// shutdown stops recording and closes both channels. Pending reconnects
// are cancelled by Close.
func (e *Engine) shutdown() {
	if err := e.StopRecording(); err != nil && !errors.Is(err, audio.ErrNotRecording) {
		slog.Warn("failed to release recording", "err", err)
	}
	for _, ch := range []*transport.Channel{e.audioCh, e.textCh} {
		if err := ch.Close(); err != nil {
			slog.Warn("failed to close channel", "channel", ch.Name(), "err", err)
		}
	}
}

// sendLoop drains captured frames into the audio channel.
func (e *Engine) sendLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-e.frames:
			if e.audioCh.Send(ctx, transport.Message{Kind: transport.Binary, Data: frame}) {
				e.metrics.FramesSent.Add(ctx, 1)
			} else {
				e.metrics.FramesDropped.Add(ctx, 1, observe.DropNotOpen)
			}
		}
	}
}

// playLoop drives the timeline from the output device. It falls back to a
// headless player when the device cannot be acquired or fails mid-stream.
func (e *Engine) playLoop(ctx context.Context) error {
	player := e.newPlayer(e.timeline)
	if err := acquire(player); err != nil {
		slog.Warn("audio output unavailable, playing headless", "err", err)
		player = sound.NewHeadlessPlayer(e.playerConfig(), e.timeline)
	}

	err := player.PlayStream(ctx)
	release(player)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		slog.Error("audio output failed, playing headless", "err", err)
	}
	return sound.NewHeadlessPlayer(e.playerConfig(), e.timeline).PlayStream(ctx)
}

func acquire(p sound.Player) error {
	if err := p.Initialize(); err != nil {
		return err
	}
	if err := p.Open(); err != nil {
		_ = p.Terminate()
		return err
	}
	return nil
}

func release(p sound.Player) {
	if err := errors.Join(p.Close(), p.Terminate()); err != nil {
		slog.Warn("failed to release audio output", "err", err)
	}
}

// Recording reports whether a recording session is live.
func (e *Engine) Recording() bool {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	return e.rec != nil
}

// ToggleRecording starts recording if idle and stops it otherwise.
func (e *Engine) ToggleRecording() error {
	if e.Recording() {
		return e.StopRecording()
	}
	return e.StartRecording()
}

// StartRecording acquires a capture source and starts streaming frames.
// Acquisition failures are reported and leave the engine idle, so the
// caller may retry.
func (e *Engine) StartRecording() error {
	e.runMu.Lock()
	ctx := e.runCtx
	e.runMu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return ErrNotRunning
	}

	e.recMu.Lock()
	defer e.recMu.Unlock()
	if e.rec != nil {
		return nil
	}

	rec, err := audio.StartRecording(ctx, e.newStreamer(), e.encoder)
	if err != nil {
		slog.Error("failed to start recording", "err", err)
		e.store.SetNotice("microphone unavailable: " + err.Error())
		return err
	}
	e.rec = rec
	e.store.SetRecording(true)

	go e.watchRecording(rec)
	return nil
}

// watchRecording clears the session when capture ends on its own, e.g.
// at the end of an input file or on a device error.
func (e *Engine) watchRecording(rec *audio.RecordingSession) {
	<-rec.Done()
	e.recMu.Lock()
	current := e.rec == rec
	if current {
		e.rec = nil
	}
	e.recMu.Unlock()
	if current {
		e.store.SetRecording(false)
	}
}

// StopRecording stops posting frames and releases the capture source.
// Playback already scheduled keeps playing.
func (e *Engine) StopRecording() error {
	e.recMu.Lock()
	rec := e.rec
	e.rec = nil
	e.recMu.Unlock()
	if rec == nil {
		return audio.ErrNotRecording
	}

	err := rec.Stop()
	e.store.SetRecording(false)
	return err
}

type textMessage struct {
	Text string `json:"text"`
}

// SendText sends one user message on the text channel and reports
// whether it was written. Blank input is ignored.
func (e *Engine) SendText(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	data, err := json.Marshal(textMessage{Text: text})
	if err != nil {
		return false
	}
	if !e.textCh.Send(ctx, transport.Message{Kind: transport.Text, Data: data}) {
		e.store.SetNotice("text channel is not connected; message not sent")
		return false
	}
	e.store.SetNotice("")
	return true
}

// RefreshMenu fetches the menu over REST and replaces the stored one.
func (e *Engine) RefreshMenu(ctx context.Context) error {
	if e.api == nil {
		return errors.New("no api_url configured")
	}
	items, err := e.api.Menu(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch menu: %w", err)
	}
	e.store.SetMenu(items)
	return nil
}

// LookupOrder fetches one order over REST.
func (e *Engine) LookupOrder(ctx context.Context, id string) (*api.Order, error) {
	if e.api == nil {
		return nil, errors.New("no api_url configured")
	}
	order, err := e.api.Order(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %s: %w", id, err)
	}
	return order, nil
}
