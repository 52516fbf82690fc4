// Package telephony adapts the gateway to the wire protocols of the phone
// providers. Each provider supplies its codec, frame geometry, event
// parsing, and answer documents; the stream bridge stays provider-agnostic.
package telephony

import (
	"time"

	"github.com/voxgate-labs/voxgate-ai/src/audio"
)

// EventType classifies an inbound WebSocket message.
type EventType int

const (
	EventUnknown EventType = iota
	EventConnected
	EventStart
	EventMedia
	EventStop
	EventDTMF
	EventMark
)

// Event is one decoded provider message. Audio holds the raw wire-format
// payload for media events; StreamSID and CallSID are set on start.
type Event struct {
	Type      EventType
	StreamSID string
	CallSID   string
	Audio     []byte
	Digit     string
	Mark      string
	// Custom carries provider custom parameters from the start event.
	Custom map[string]string
}

// AnswerParams feed the answer document for a call.
type AnswerParams struct {
	// StreamURL is the WebSocket URL the provider should connect to.
	StreamURL string
	// PlayURL optionally plays a hosted recording before streaming.
	PlayURL string
	// Custom parameters passed through to the start event.
	Custom map[string]string
}

// Provider is one telephony integration. Implementations are stateless and
// shared across calls.
type Provider interface {
	Name() string

	// Wire audio format of the media stream.
	Codec() audio.Codec
	SampleRate() int

	// Outbound frame geometry: frames of FrameSize bytes, the final short
	// frame zero-padded to a PadMultiple boundary, paced by ChunkDelay.
	FrameSize() int
	PadMultiple() int
	ChunkDelay() time.Duration

	// ParseEvent decodes one inbound WebSocket message.
	ParseEvent(data []byte) (Event, error)

	// MediaMessage wraps one outbound audio frame. The stream identifier
	// from the start event is required.
	MediaMessage(streamSID string, frame []byte) ([]byte, error)

	// MarkMessage requests a playback-position marker. Providers without
	// marks return (nil, nil).
	MarkMessage(streamSID, name string) ([]byte, error)

	// ClearMessage drops the provider's buffered outbound audio, cutting
	// off playback. Providers without clear return (nil, nil).
	ClearMessage(streamSID string) ([]byte, error)

	// AnswerDocument renders the document that connects the call to the
	// media stream (TwiML or Exotel XML).
	AnswerDocument(params AnswerParams) string
}
