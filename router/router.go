// Package router dispatches inbound transport messages: binary frames go to
// playback, text payloads are parsed into protocol events for the state
// store. Nothing a peer sends can make the router fail; bad payloads are
// dropped and counted.
package router

import (
	"context"
	"errors"
	"log/slog"

	"github.com/d1nch8g/voiceorder/observe"
	"github.com/d1nch8g/voiceorder/sound"
	"github.com/d1nch8g/voiceorder/transport"
)

// Player accepts raw inbound PCM16 frames.
type Player interface {
	Enqueue(pcm []byte) (sound.Buffer, bool)
}

// Sink receives parsed protocol events in arrival order.
type Sink interface {
	Apply(Event)
}

// Router is safe for concurrent use if its Player and Sink are.
type Router struct {
	player  Player
	sink    Sink
	metrics *observe.Metrics
}

func New(player Player, sink Sink, metrics *observe.Metrics) *Router {
	if metrics == nil {
		metrics = observe.Discard()
	}
	return &Router{player: player, sink: sink, metrics: metrics}
}

// Handle routes one message. It is installed as the Handler of both
// transport channels.
func (r *Router) Handle(msg transport.Message) {
	if msg.Kind == transport.Binary {
		r.player.Enqueue(msg.Data)
		return
	}

	ev, err := Parse(msg.Data)
	if err != nil {
		opt := observe.MalformedShape
		if errors.Is(err, ErrMalformed) {
			opt = observe.MalformedJSON
		}
		r.metrics.MalformedPayloads.Add(context.Background(), 1, opt)
		slog.Debug("text payload dropped", "err", err, "size", len(msg.Data))
		return
	}

	r.metrics.ProtocolEvents.Add(context.Background(), 1, observe.Kind(ev.Kind().String()))
	r.sink.Apply(ev)
}
