package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwilioParseStart(t *testing.T) {
	tw := NewTwilio()

	msg := `{"event":"start","streamSid":"MZ1","start":{"streamSid":"MZ1","callSid":"CA1","customParameters":{"direction":"outbound"}}}`
	ev, err := tw.ParseEvent([]byte(msg))
	require.NoError(t, err)
	assert.Equal(t, EventStart, ev.Type)
	assert.Equal(t, "MZ1", ev.StreamSID)
	assert.Equal(t, "CA1", ev.CallSID)
	assert.Equal(t, "outbound", ev.Custom["direction"])
}

func TestTwilioParseMedia(t *testing.T) {
	tw := NewTwilio()

	audio := []byte{0x7F, 0xFF, 0x00, 0x80}
	msg := fmt.Sprintf(`{"event":"media","streamSid":"MZ1","media":{"payload":"%s"}}`,
		base64.StdEncoding.EncodeToString(audio))

	ev, err := tw.ParseEvent([]byte(msg))
	require.NoError(t, err)
	assert.Equal(t, EventMedia, ev.Type)
	assert.Equal(t, audio, ev.Audio)
}

func TestTwilioParseOtherEvents(t *testing.T) {
	tw := NewTwilio()

	ev, err := tw.ParseEvent([]byte(`{"event":"connected"}`))
	require.NoError(t, err)
	assert.Equal(t, EventConnected, ev.Type)

	ev, err = tw.ParseEvent([]byte(`{"event":"stop"}`))
	require.NoError(t, err)
	assert.Equal(t, EventStop, ev.Type)

	ev, err = tw.ParseEvent([]byte(`{"event":"dtmf","dtmf":{"digit":"5"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventDTMF, ev.Type)
	assert.Equal(t, "5", ev.Digit)

	ev, err = tw.ParseEvent([]byte(`{"event":"mark","mark":{"name":"m1"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventMark, ev.Type)
	assert.Equal(t, "m1", ev.Mark)

	ev, err = tw.ParseEvent([]byte(`{"event":"somethingelse"}`))
	require.NoError(t, err)
	assert.Equal(t, EventUnknown, ev.Type)
}

func TestTwilioParseMalformed(t *testing.T) {
	tw := NewTwilio()

	_, err := tw.ParseEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = tw.ParseEvent([]byte(`{"event":"media"}`))
	assert.Error(t, err)

	_, err = tw.ParseEvent([]byte(`{"event":"media","media":{"payload":"!!!not-base64!!!"}}`))
	assert.Error(t, err)
}

func TestTwilioMediaMessageRoundTrip(t *testing.T) {
	tw := NewTwilio()

	frame := make([]byte, 320)
	for i := range frame {
		frame[i] = byte(i)
	}

	msg, err := tw.MediaMessage("MZ1", frame)
	require.NoError(t, err)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(msg, &envelope))
	assert.Equal(t, "media", envelope["event"])
	assert.Equal(t, "MZ1", envelope["streamSid"])

	ev, err := tw.ParseEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, frame, ev.Audio)
}

func TestTwilioMediaMessageRequiresStreamSID(t *testing.T) {
	tw := NewTwilio()
	_, err := tw.MediaMessage("", []byte{1})
	assert.Error(t, err)
}

func TestTwilioMarkAndClear(t *testing.T) {
	tw := NewTwilio()

	mark, err := tw.MarkMessage("MZ1", "end-of-reply")
	require.NoError(t, err)
	assert.Contains(t, string(mark), `"mark":{"name":"end-of-reply"}`)

	clear, err := tw.ClearMessage("MZ1")
	require.NoError(t, err)
	assert.Contains(t, string(clear), `"event":"clear"`)
}

func TestTwilioAnswerDocument(t *testing.T) {
	tw := NewTwilio()

	doc := tw.AnswerDocument(AnswerParams{
		StreamURL: "wss://gw.example.com/twilio/media",
		PlayURL:   "https://gw.example.com/greeting.mp3",
		Custom:    map[string]string{"direction": "inbound"},
	})

	assert.Contains(t, doc, "<Connect>")
	assert.Contains(t, doc, `<Stream url="wss://gw.example.com/twilio/media">`)
	assert.Contains(t, doc, "<Play>https://gw.example.com/greeting.mp3</Play>")
	assert.Contains(t, doc, `<Parameter name="direction" value="inbound" />`)
}

func TestTwilioTransferDocument(t *testing.T) {
	tw := NewTwilio()
	doc := tw.TransferDocument("+15550001111")
	assert.Contains(t, doc, "<Dial>+15550001111</Dial>")
	assert.NotContains(t, doc, "<Connect>")
}

func TestTwilioFrameGeometry(t *testing.T) {
	tw := NewTwilio()
	assert.Equal(t, 320, tw.FrameSize())
	assert.Equal(t, 320, tw.PadMultiple())
	assert.Equal(t, 8000, tw.SampleRate())
	assert.Equal(t, "mulaw", tw.Codec().Name())
}
