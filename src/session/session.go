// Package session tracks per-call conversational state: the transcript
// buffer feeding utterance detection, collected caller details, and the
// running dialogue history.
package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voxgate-labs/voxgate-ai/src/logger"
)

// Direction of a call relative to the gateway.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Speakers recorded in the dialogue history.
const (
	SpeakerCaller = "caller"
	SpeakerBot    = "bot"
)

// Turn is one entry in the dialogue history.
type Turn struct {
	Speaker string
	Content string
	At      time.Time
}

// Config holds per-session settings.
type Config struct {
	// SilenceThreshold is the trailing-silence gap that ends an utterance.
	SilenceThreshold time.Duration
	// SlotNames lists the caller details this session collects.
	SlotNames []string
}

// DefaultSlotNames are the caller details a service-booking call collects.
var DefaultSlotNames = []string{
	"name", "phone", "service_type", "urgency", "property_type",
	"location", "preferred_date", "preferred_time", "booking_status",
}

// Session is the state of one live call. One mutex covers everything: the
// recognition consumer, the silence poller, and HTTP handlers all touch it.
type Session struct {
	ID        string
	Direction string
	CreatedAt time.Time

	mu           sync.Mutex
	slots        map[string]string
	lead         map[string]string
	history      []Turn
	buffer       []string
	lastSpeechAt time.Time
	pending      string
	processing   bool
	streamSID    string
	introPlayed  bool
	threshold    time.Duration

	log *logger.Logger
}

// New creates a session for a call.
func New(id, direction string, cfg Config) *Session {
	names := cfg.SlotNames
	if len(names) == 0 {
		names = DefaultSlotNames
	}
	slots := make(map[string]string, len(names))
	for _, name := range names {
		slots[name] = ""
	}

	threshold := cfg.SilenceThreshold
	if threshold <= 0 {
		threshold = 400 * time.Millisecond
	}

	return &Session{
		ID:        id,
		Direction: direction,
		CreatedAt: time.Now(),
		slots:     slots,
		threshold: threshold,
		log:       logger.WithPrefix("Session " + id),
	}
}

// AddTranscript feeds a recognition fragment into the utterance buffer.
// Interim fragments and empty text are ignored, as is anything that arrives
// while a turn is being processed (the recognizer keeps streaming while the
// bot is speaking).
func (s *Session) AddTranscript(text string, isFinal bool) {
	text = strings.TrimSpace(text)
	if !isFinal || text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		s.log.Debug("Dropping fragment during turn processing: %q", text)
		return
	}
	s.buffer = append(s.buffer, text)
	s.lastSpeechAt = time.Now()
}

// CheckCompletion reports whether the buffered speech has gone quiet long
// enough to count as a finished utterance. On success the buffer moves to
// the pending utterance and detection disarms until the next fragment, so
// the same transcript is never yielded twice.
func (s *Session) CheckCompletion(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing || len(s.buffer) == 0 || s.lastSpeechAt.IsZero() {
		return false
	}
	if now.Sub(s.lastSpeechAt) < s.threshold {
		return false
	}

	s.pending = strings.Join(s.buffer, " ")
	s.buffer = nil
	s.lastSpeechAt = time.Time{}
	return true
}

// ConsumeUtterance takes the pending utterance and marks the session as
// processing a turn. Returns "" if nothing is pending.
func (s *Session) ConsumeUtterance() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.pending
	s.pending = ""
	if u != "" {
		s.processing = true
	}
	return u
}

// FinishTurn re-arms utterance detection after a turn completes, whether it
// succeeded or fell back.
func (s *Session) FinishTurn() {
	s.mu.Lock()
	s.processing = false
	s.mu.Unlock()
}

// ResetListening clears partial speech after a recognizer error. History and
// any pending utterance survive.
func (s *Session) ResetListening() {
	s.mu.Lock()
	s.buffer = nil
	s.lastSpeechAt = time.Time{}
	s.mu.Unlock()
}

// AddHistory appends a dialogue turn.
func (s *Session) AddHistory(speaker, content string) {
	s.mu.Lock()
	s.history = append(s.history, Turn{Speaker: speaker, Content: content, At: time.Now()})
	s.mu.Unlock()
}

// History returns a copy of the dialogue so far.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// UpdateSlot records a collected caller detail. Unknown slot names are
// rejected so extraction typos surface in logs instead of silently growing
// the slot map.
func (s *Session) UpdateSlot(name, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.slots[name]
	if !ok {
		s.log.Warn("Ignoring unknown slot %q", name)
		return false
	}
	if old != value {
		s.log.Info("Slot %s: %q -> %q", name, old, value)
	}
	s.slots[name] = value
	return true
}

// Slot returns a collected detail and whether the slot exists.
func (s *Session) Slot(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.slots[name]
	return v, ok
}

// Slots returns a copy of all slots.
func (s *Session) Slots() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.slots))
	for k, v := range s.slots {
		out[k] = v
	}
	return out
}

// SetLead attaches campaign lead data to an outbound session.
func (s *Session) SetLead(lead map[string]string) {
	s.mu.Lock()
	s.lead = lead
	s.mu.Unlock()
}

// Lead returns the campaign lead data, if any.
func (s *Session) Lead() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lead
}

// SetStreamSID records the media stream identifier from the start event.
func (s *Session) SetStreamSID(sid string) {
	s.mu.Lock()
	s.streamSID = sid
	s.mu.Unlock()
}

// StreamSID returns the media stream identifier, or "" before start.
func (s *Session) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

// MarkIntroPlayed flags the greeting as played, returning whether it had
// already been played.
func (s *Session) MarkIntroPlayed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.introPlayed
	s.introPlayed = true
	return was
}

// PromptContext renders the filled slots and recent history for a language
// model prompt.
func (s *Session) PromptContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder

	var filled []string
	for name, value := range s.slots {
		if value != "" {
			filled = append(filled, fmt.Sprintf("%s=%s", name, value))
		}
	}
	if len(filled) > 0 {
		sort.Strings(filled)
		b.WriteString("Known caller details: ")
		b.WriteString(strings.Join(filled, ", "))
		b.WriteString("\n")
	}

	start := 0
	if len(s.history) > 10 {
		start = len(s.history) - 10
	}
	for _, turn := range s.history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", turn.Speaker, turn.Content)
	}
	return b.String()
}
