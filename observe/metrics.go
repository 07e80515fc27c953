// Package observe holds the logging and metrics plumbing shared by the
// capture, transport and playback components.
//
// Metrics are recorded through the OpenTelemetry Metrics API. Components
// receive a *Metrics explicitly; [Discard] returns a no-op instance for tests
// and for callers that do not care about telemetry.
package observe

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/d1nch8g/voiceorder"

// Precomputed attribute options. The capture callback records drops on the
// real-time audio thread, so the hot paths avoid building attribute sets.
var (
	DropNotOpen   = metric.WithAttributeSet(attribute.NewSet(attribute.String("reason", "not_open")))
	DropQueueFull = metric.WithAttributeSet(attribute.NewSet(attribute.String("reason", "queue_full")))

	MalformedAudio = metric.WithAttributeSet(attribute.NewSet(attribute.String("kind", "audio")))
	MalformedJSON  = metric.WithAttributeSet(attribute.NewSet(attribute.String("kind", "json")))
	MalformedShape = metric.WithAttributeSet(attribute.NewSet(attribute.String("kind", "shape")))
)

// Metrics holds the instruments for the client pipeline.
// All fields are safe for concurrent use.
type Metrics struct {
	// FramesCaptured counts blocks delivered by the capture callback.
	FramesCaptured metric.Int64Counter

	// FramesDropped counts captured frames that never reached the socket.
	// Attribute "reason": not_open | queue_full.
	FramesDropped metric.Int64Counter

	// FramesSent counts binary frames written to the audio channel.
	FramesSent metric.Int64Counter

	// FramesPlayed counts inbound frames scheduled for playback.
	FramesPlayed metric.Int64Counter

	// PlaybackSnaps counts frames whose start snapped forward to the
	// audio clock because scheduling fell behind real time.
	PlaybackSnaps metric.Int64Counter

	// ProtocolEvents counts applied events. Attribute "kind".
	ProtocolEvents metric.Int64Counter

	// MalformedPayloads counts dropped inbound payloads.
	// Attribute "kind": audio | json | shape.
	MalformedPayloads metric.Int64Counter

	// Reconnects counts scheduled reconnect attempts. Attribute "channel".
	Reconnects metric.Int64Counter

	// OpenChannels tracks how many transport channels are currently open.
	OpenChannels metric.Int64UpDownCounter
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesCaptured, err = m.Int64Counter("voiceorder.capture.frames",
		metric.WithDescription("Audio blocks produced by the capture callback."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voiceorder.capture.dropped",
		metric.WithDescription("Captured frames dropped before reaching the socket."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("voiceorder.capture.sent",
		metric.WithDescription("Binary frames written to the audio channel."),
	); err != nil {
		return nil, err
	}
	if met.FramesPlayed, err = m.Int64Counter("voiceorder.playback.frames",
		metric.WithDescription("Inbound frames scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackSnaps, err = m.Int64Counter("voiceorder.playback.snaps",
		metric.WithDescription("Frames whose start snapped forward to the audio clock."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolEvents, err = m.Int64Counter("voiceorder.protocol.events",
		metric.WithDescription("Protocol events applied to the state store."),
	); err != nil {
		return nil, err
	}
	if met.MalformedPayloads, err = m.Int64Counter("voiceorder.protocol.malformed",
		metric.WithDescription("Inbound payloads dropped as malformed."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("voiceorder.transport.reconnects",
		metric.WithDescription("Reconnect attempts scheduled after a channel closed."),
	); err != nil {
		return nil, err
	}
	if met.OpenChannels, err = m.Int64UpDownCounter("voiceorder.transport.open",
		metric.WithDescription("Transport channels currently open."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Default returns metrics bound to the global OTel meter provider. Call it
// after [InitProvider] so that instruments reach the exporter.
func Default() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return Discard()
	}
	return m
}

// Discard returns metrics backed by a no-op provider.
func Discard() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

// Channel returns the attribute option identifying a transport channel.
func Channel(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("channel", name))
}

// Kind returns the attribute option identifying an event kind.
func Kind(kind string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", kind))
}
