package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// fakeRecognizerServer upgrades to WebSocket and lets the handler script
// the Deepgram side of the conversation.
func fakeRecognizerServer(t *testing.T, handler func(*http.Request, *websocket.Conn)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(r, conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDialSendsAuthAndParams(t *testing.T) {
	gotReq := make(chan *http.Request, 1)
	server := fakeRecognizerServer(t, func(r *http.Request, conn *websocket.Conn) {
		gotReq <- r
		conn.ReadMessage()
	})

	stream, err := Dial(context.Background(), Config{
		APIKey:     "dg-secret",
		Language:   "en",
		Model:      "nova-2",
		Encoding:   "mulaw",
		SampleRate: 8000,
		BaseURL:    wsURL(server),
	})
	require.NoError(t, err)
	defer stream.Close()

	r := <-gotReq
	assert.Equal(t, "Token dg-secret", r.Header.Get("Authorization"))
	q := r.URL.Query()
	assert.Equal(t, "en", q.Get("language"))
	assert.Equal(t, "nova-2", q.Get("model"))
	assert.Equal(t, "mulaw", q.Get("encoding"))
	assert.Equal(t, "8000", q.Get("sample_rate"))
	assert.Equal(t, "true", q.Get("interim_results"))
}

func TestStreamDeliversTranscripts(t *testing.T) {
	server := fakeRecognizerServer(t, func(_ *http.Request, conn *websocket.Conn) {
		results := []string{
			`{"is_final":false,"channel":{"alternatives":[{"transcript":"hello","confidence":0.8}]}}`,
			`{"is_final":false,"channel":{"alternatives":[{"transcript":"","confidence":0}]}}`,
			`not json at all`,
			`{"is_final":true,"channel":{"alternatives":[{"transcript":"hello there","confidence":0.95}]}}`,
		}
		for _, r := range results {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(r)); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	stream, err := Dial(context.Background(), Config{APIKey: "k", BaseURL: wsURL(server)})
	require.NoError(t, err)
	defer stream.Close()

	var events []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				// Empty transcripts and unparseable frames never surface.
				require.Len(t, events, 2)
				assert.Equal(t, "hello", events[0].Transcript)
				assert.False(t, events[0].IsFinal)
				assert.Equal(t, "hello there", events[1].Transcript)
				assert.True(t, events[1].IsFinal)
				return
			}
			require.NoError(t, ev.Err)
			events = append(events, ev)
		case <-timeout:
			t.Fatal("event channel never closed")
		}
	}
}

func TestStreamSendForwardsAudio(t *testing.T) {
	received := make(chan []byte, 1)
	server := fakeRecognizerServer(t, func(_ *http.Request, conn *websocket.Conn) {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.BinaryMessage {
			received <- data
		}
		conn.ReadMessage()
	})

	stream, err := Dial(context.Background(), Config{APIKey: "k", BaseURL: wsURL(server)})
	require.NoError(t, err)
	defer stream.Close()

	audio := []byte{0x7F, 0x7F, 0x00, 0xFF}
	require.NoError(t, stream.Send(audio))

	select {
	case got := <-received:
		assert.Equal(t, audio, got)
	case <-time.After(2 * time.Second):
		t.Fatal("audio never reached the server")
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	server := fakeRecognizerServer(t, func(_ *http.Request, conn *websocket.Conn) {
		conn.ReadMessage()
	})

	stream, err := Dial(context.Background(), Config{APIKey: "k", BaseURL: wsURL(server)})
	require.NoError(t, err)

	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())

	// The event channel closes without surfacing an error.
	select {
	case ev, ok := <-stream.Events():
		if ok {
			assert.NoError(t, ev.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event channel never closed after Close")
	}
}

func TestDialFailsWhenUnreachable(t *testing.T) {
	_, err := Dial(context.Background(), Config{
		APIKey:  "k",
		BaseURL: "ws://127.0.0.1:1/v1/listen",
	})
	assert.Error(t, err)
}
