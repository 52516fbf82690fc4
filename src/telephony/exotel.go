package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/voxgate-labs/voxgate-ai/src/audio"
)

// Exotel voicebot streams: 8 kHz 16-bit little-endian PCM, base64 payloads
// in a snake_case JSON envelope. Outbound chunks must be multiples of 320
// bytes; 3200 bytes is 200 ms and keeps message counts low.
type Exotel struct{}

// NewExotel returns the Exotel provider adapter.
func NewExotel() *Exotel { return &Exotel{} }

func (e *Exotel) Name() string              { return "exotel" }
func (e *Exotel) Codec() audio.Codec        { return audio.Linear16Codec{} }
func (e *Exotel) SampleRate() int           { return 8000 }
func (e *Exotel) FrameSize() int            { return 3200 }
func (e *Exotel) PadMultiple() int          { return 320 }
func (e *Exotel) ChunkDelay() time.Duration { return 20 * time.Millisecond }

// MaxChunkBytes is Exotel's hard cap on a single media payload.
const MaxChunkBytes = 100000

type exotelMessage struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"stream_sid,omitempty"`
	Start     *exotelStart `json:"start,omitempty"`
	Media     *exotelMedia `json:"media,omitempty"`
	DTMF      *exotelDTMF  `json:"dtmf,omitempty"`
}

type exotelStart struct {
	StreamSid        string            `json:"stream_sid"`
	CallSid          string            `json:"call_sid"`
	CustomParameters map[string]string `json:"custom_parameters,omitempty"`
}

type exotelMedia struct {
	Chunk     int    `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type exotelDTMF struct {
	Digit string `json:"digit"`
}

func (e *Exotel) ParseEvent(data []byte) (Event, error) {
	var msg exotelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, fmt.Errorf("unmarshaling exotel message: %w", err)
	}

	switch msg.Event {
	case "connected":
		return Event{Type: EventConnected}, nil

	case "start":
		if msg.Start == nil {
			return Event{}, fmt.Errorf("start event without start payload")
		}
		return Event{
			Type:      EventStart,
			StreamSID: msg.Start.StreamSid,
			CallSID:   msg.Start.CallSid,
			Custom:    msg.Start.CustomParameters,
		}, nil

	case "media":
		if msg.Media == nil {
			return Event{}, fmt.Errorf("media event without media payload")
		}
		payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return Event{}, fmt.Errorf("decoding media payload: %w", err)
		}
		return Event{Type: EventMedia, StreamSID: msg.StreamSid, Audio: payload}, nil

	case "stop":
		return Event{Type: EventStop}, nil

	case "dtmf":
		ev := Event{Type: EventDTMF}
		if msg.DTMF != nil {
			ev.Digit = msg.DTMF.Digit
		}
		return ev, nil

	default:
		return Event{Type: EventUnknown}, nil
	}
}

func (e *Exotel) MediaMessage(streamSID string, frame []byte) ([]byte, error) {
	if streamSID == "" {
		return nil, fmt.Errorf("media message requires a stream SID")
	}
	if len(frame)%e.PadMultiple() != 0 {
		return nil, fmt.Errorf("exotel chunk of %d bytes is not a multiple of %d", len(frame), e.PadMultiple())
	}
	if len(frame) > MaxChunkBytes {
		return nil, fmt.Errorf("exotel chunk of %d bytes exceeds the %d byte cap", len(frame), MaxChunkBytes)
	}
	return json.Marshal(exotelMessage{
		Event:     "media",
		StreamSid: streamSID,
		Media:     &exotelMedia{Payload: base64.StdEncoding.EncodeToString(frame)},
	})
}

// Exotel has no playback markers.
func (e *Exotel) MarkMessage(streamSID, name string) ([]byte, error) {
	return nil, nil
}

// Exotel has no clear message either; buffered audio always plays out.
func (e *Exotel) ClearMessage(streamSID string) ([]byte, error) {
	return nil, nil
}

// AnswerDocument renders the Exotel applet XML pointing at the voicebot
// stream.
func (e *Exotel) AnswerDocument(params AnswerParams) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("\n<Response>")
	if params.PlayURL != "" {
		fmt.Fprintf(&b, "\n  <Play>%s</Play>", xmlEscape(params.PlayURL))
	}
	fmt.Fprintf(&b, "\n  <Voicebot url=%q />", xmlEscape(params.StreamURL))
	b.WriteString("\n</Response>")
	return b.String()
}

// WebsocketAnswer is the JSON body Exotel's dynamic URL endpoint expects.
type WebsocketAnswer struct {
	URL string `json:"url"`
}
