// Package stt streams call audio to Deepgram and surfaces transcription
// results as a typed event channel.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxgate-labs/voxgate-ai/src/logger"
)

// Event is one recognition result or a terminal stream error. After an
// error event the channel closes; the stream is done.
type Event struct {
	Transcript string
	IsFinal    bool
	Err        error
}

// Config holds the connection parameters for a live recognition stream.
type Config struct {
	APIKey     string
	Language   string // e.g. "en"
	Model      string // e.g. "nova-2"
	Encoding   string // "mulaw" or "linear16", matching the call leg
	SampleRate int    // telephony streams are 8000
	BaseURL    string // overrides the live endpoint, for tests
}

// Stream is one live Deepgram connection. Audio goes in via Send; results
// come out of Events. The socket-read goroutine is the only writer to the
// event channel, so consumers see results in arrival order.
type Stream struct {
	conn   *websocket.Conn
	connMu sync.Mutex // serializes writes: audio, keepalive, close frames

	events    chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	log *logger.Logger
}

// Dial connects a recognition stream. The stream keeps itself alive with
// periodic keepalive messages until Close.
func Dial(ctx context.Context, cfg Config) (*Stream, error) {
	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 8000
	}

	params := url.Values{}
	params.Set("language", cfg.Language)
	params.Set("model", cfg.Model)
	params.Set("encoding", cfg.Encoding)
	params.Set("sample_rate", strconv.Itoa(sampleRate))
	params.Set("channels", "1")
	params.Set("interim_results", "true")

	base := cfg.BaseURL
	if base == "" {
		base = "wss://api.deepgram.com/v1/listen"
	}
	wsURL := fmt.Sprintf("%s?%s", base, params.Encode())
	header := map[string][]string{
		"Authorization": {fmt.Sprintf("Token %s", cfg.APIKey)},
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("connecting to recognizer: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		conn:   conn,
		events: make(chan Event, 32),
		ctx:    sctx,
		cancel: cancel,
		log:    logger.WithPrefix("DeepgramSTT"),
	}

	go s.readLoop()
	go s.keepaliveLoop()

	s.log.Info("Connected (%s @ %d Hz, model %s)", cfg.Encoding, sampleRate, cfg.Model)
	return s, nil
}

// Events returns the result channel. It closes when the stream ends.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Send forwards raw call audio to the recognizer.
func (s *Stream) Send(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("sending audio: %w", err)
	}
	return nil
}

// Finalize asks the recognizer to flush the current utterance. Used when
// the caller interrupts so stale fragments don't leak into the next turn.
func (s *Stream) Finalize() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn.WriteJSON(map[string]string{"type": "Finalize"})
}

// Close tears the stream down. Safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.Close()
	})
	return nil
}

func (s *Stream) readLoop() {
	defer close(s.events)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				s.log.Debug("Connection closed")
				return
			}
			s.log.Error("Read error: %v", err)
			select {
			case s.events <- Event{Err: err}:
			case <-s.ctx.Done():
			}
			return
		}

		var response struct {
			IsFinal bool `json:"is_final"`
			Channel struct {
				Alternatives []struct {
					Transcript string  `json:"transcript"`
					Confidence float64 `json:"confidence"`
				} `json:"alternatives"`
			} `json:"channel"`
		}
		if err := json.Unmarshal(message, &response); err != nil {
			s.log.Warn("Unparseable response: %v", err)
			continue
		}

		if len(response.Channel.Alternatives) == 0 {
			continue
		}
		transcript := response.Channel.Alternatives[0].Transcript
		if transcript == "" {
			continue
		}

		s.log.Debug("Transcript (final=%v): %s", response.IsFinal, transcript)
		select {
		case s.events <- Event{Transcript: transcript, IsFinal: response.IsFinal}:
		case <-s.ctx.Done():
			return
		}
	}
}

// Deepgram drops the connection after ~10s without traffic; ping it every 5.
func (s *Stream) keepaliveLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			err := s.conn.WriteJSON(map[string]string{"type": "KeepAlive"})
			s.connMu.Unlock()
			if err != nil {
				s.log.Debug("Keepalive failed: %v", err)
				return
			}
		}
	}
}
