package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/voxgate-labs/voxgate-ai/src/audio"
)

// Twilio media streams: 8 kHz mu-law, base64 payloads in a camelCase JSON
// envelope. 320 mu-law bytes is 40 ms of audio.
type Twilio struct{}

// NewTwilio returns the Twilio provider adapter.
func NewTwilio() *Twilio { return &Twilio{} }

func (t *Twilio) Name() string              { return "twilio" }
func (t *Twilio) Codec() audio.Codec        { return audio.MulawCodec{} }
func (t *Twilio) SampleRate() int           { return 8000 }
func (t *Twilio) FrameSize() int            { return 320 }
func (t *Twilio) PadMultiple() int          { return 320 }
func (t *Twilio) ChunkDelay() time.Duration { return 20 * time.Millisecond }

type twilioMessage struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid,omitempty"`
	Start     *twilioStart `json:"start,omitempty"`
	Media     *twilioMedia `json:"media,omitempty"`
	DTMF      *twilioDTMF  `json:"dtmf,omitempty"`
	Mark      *twilioMark  `json:"mark,omitempty"`
}

type twilioStart struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type twilioMedia struct {
	Payload string `json:"payload"`
}

type twilioDTMF struct {
	Digit string `json:"digit"`
}

type twilioMark struct {
	Name string `json:"name"`
}

func (t *Twilio) ParseEvent(data []byte) (Event, error) {
	var msg twilioMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, fmt.Errorf("unmarshaling twilio message: %w", err)
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

	case "mark":
		ev := Event{Type: EventMark}
		if msg.Mark != nil {
			ev.Mark = msg.Mark.Name
		}
		return ev, nil

	default:
		return Event{Type: EventUnknown}, nil
	}
}

func (t *Twilio) MediaMessage(streamSID string, frame []byte) ([]byte, error) {
	if streamSID == "" {
		return nil, fmt.Errorf("media message requires a stream SID")
	}
	return json.Marshal(twilioMessage{
		Event:     "media",
		StreamSid: streamSID,
		Media:     &twilioMedia{Payload: base64.StdEncoding.EncodeToString(frame)},
	})
}

func (t *Twilio) MarkMessage(streamSID, name string) ([]byte, error) {
	if streamSID == "" {
		return nil, fmt.Errorf("mark message requires a stream SID")
	}
	return json.Marshal(twilioMessage{
		Event:     "mark",
		StreamSid: streamSID,
		Mark:      &twilioMark{Name: name},
	})
}

// ClearMessage tells Twilio to drop buffered outbound audio, cutting off
// playback mid-clip.
func (t *Twilio) ClearMessage(streamSID string) ([]byte, error) {
	if streamSID == "" {
		return nil, fmt.Errorf("clear message requires a stream SID")
	}
	return json.Marshal(twilioMessage{Event: "clear", StreamSid: streamSID})
}

// AnswerDocument renders TwiML connecting the call to the media stream.
func (t *Twilio) AnswerDocument(params AnswerParams) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("\n<Response>")
	if params.PlayURL != "" {
		fmt.Fprintf(&b, "\n  <Play>%s</Play>", xmlEscape(params.PlayURL))
	}
	fmt.Fprintf(&b, "\n  <Connect>\n    <Stream url=%q>", xmlEscape(params.StreamURL))
	for _, name := range sortedKeys(params.Custom) {
		fmt.Fprintf(&b, "\n      <Parameter name=%q value=%q />",
			xmlEscape(name), xmlEscape(params.Custom[name]))
	}
	b.WriteString("\n    </Stream>\n  </Connect>\n</Response>")
	return b.String()
}

// TransferDocument renders TwiML that dials a human agent, used when a
// caller asks to speak to a person.
func (t *Twilio) TransferDocument(number string) string {
	return fmt.Sprintf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<Response>\n  <Dial>%s</Dial>\n</Response>",
		xmlEscape(number))
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;",
)

func xmlEscape(s string) string { return xmlEscaper.Replace(s) }

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
