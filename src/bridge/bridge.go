// Package bridge runs one live call: it shuttles caller audio from the
// provider WebSocket into speech recognition, watches for finished
// utterances, and streams replies back out. The same bridge serves every
// provider; all wire differences live behind telephony.Provider.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxgate-labs/voxgate-ai/src/audio"
	"github.com/voxgate-labs/voxgate-ai/src/calllog"
	"github.com/voxgate-labs/voxgate-ai/src/logger"
	"github.com/voxgate-labs/voxgate-ai/src/responder"
	"github.com/voxgate-labs/voxgate-ai/src/session"
	"github.com/voxgate-labs/voxgate-ai/src/stt"
	"github.com/voxgate-labs/voxgate-ai/src/telephony"
	"github.com/voxgate-labs/voxgate-ai/src/tts"
)

// State of a bridge. Transitions run one way: Connecting -> Streaming ->
// Closing -> Closed.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Conn is the subset of *websocket.Conn the bridge needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Recognizer is a live recognition stream.
type Recognizer interface {
	Events() <-chan stt.Event
	Send(audio []byte) error
	Finalize() error
	Close() error
}

// Synthesizer renders text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*tts.Result, error)
}

// Responder produces the reply for a finished utterance.
type Responder interface {
	Respond(ctx context.Context, transcript string, sess *session.Session) (responder.Reply, error)
}

// Deps are the shared services a bridge uses.
type Deps struct {
	Registry *session.Registry
	Library  *audio.Library
	Synth    Synthesizer
	Resp     Responder
	Logs     *calllog.Writer
	// Cache holds synthesized wire audio keyed by codec, rate, and text, so
	// repeated lines (greetings, fallbacks) skip the synthesis API.
	Cache *audio.Library
}

// Config holds the per-call settings.
type Config struct {
	Direction        string // session.DirectionInbound or DirectionOutbound
	SilenceThreshold time.Duration
	PollInterval     time.Duration
	// Greeting is a clip chain played once after the stream starts.
	// GreetingText is synthesized instead when the chain is empty or
	// incomplete.
	Greeting     string
	GreetingText string
	// Fallback is spoken whenever a turn fails.
	Fallback string
	STT      stt.Config
	// Dial overrides recognizer dialing, for tests. Defaults to stt.Dial.
	Dial func(ctx context.Context, cfg stt.Config) (Recognizer, error)
	// Transfer hands the call to a human agent once the caller has asked
	// for one. Nil when the deployment has no transfer target.
	Transfer func(ctx context.Context, callSID string) error
}

// Bridge is one live call.
type Bridge struct {
	provider telephony.Provider
	conn     Conn
	writeMu  sync.Mutex
	chunker  *audio.Chunker
	deps     Deps
	cfg      Config

	state atomic.Int32

	mu          sync.Mutex
	sess        *session.Session
	rec         Recognizer
	redialed    bool
	transferred bool
	turns       int
	startedAt   time.Time
	cancel      context.CancelFunc

	log *logger.Logger
}

// New builds a bridge for one provider WebSocket.
func New(provider telephony.Provider, conn Conn, deps Deps, cfg Config) (*Bridge, error) {
	chunker, err := audio.NewChunker(provider.FrameSize(), provider.PadMultiple(), provider.ChunkDelay())
	if err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.Direction == "" {
		cfg.Direction = session.DirectionInbound
	}
	if cfg.Dial == nil {
		cfg.Dial = func(ctx context.Context, c stt.Config) (Recognizer, error) {
			return stt.Dial(ctx, c)
		}
	}
	return &Bridge{
		provider: provider,
		conn:     conn,
		chunker:  chunker,
		deps:     deps,
		cfg:      cfg,
		log:      logger.WithPrefix("Bridge/" + provider.Name()),
	}, nil
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Run drives the call until the provider hangs up or the transport fails.
// It owns the socket read loop; recognition consumption and silence polling
// run on their own goroutines once the stream starts.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.startedAt = time.Now()
	b.mu.Unlock()
	defer b.shutdown()

	for {
		if ctx.Err() != nil {
			return nil
		}

		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if b.State() >= StateClosing || ctx.Err() != nil {
				return nil
			}
			b.log.Info("Transport closed: %v", err)
			return nil
		}

		ev, err := b.provider.ParseEvent(data)
		if err != nil {
			// One malformed message never ends a call.
			b.log.Warn("Dropping unparseable message: %v", err)
			continue
		}

		switch ev.Type {
		case telephony.EventConnected:
			b.log.Debug("Provider connected")

		case telephony.EventStart:
			b.handleStart(ctx, ev)

		case telephony.EventMedia:
			b.handleMedia(ctx, ev)

		case telephony.EventDTMF:
			b.log.Info("DTMF digit: %s", ev.Digit)

		case telephony.EventMark:
			b.log.Debug("Mark acknowledged: %s", ev.Mark)

		case telephony.EventStop:
			b.log.Info("Stop event, ending call")
			return nil
		}
	}
}

func (b *Bridge) handleStart(ctx context.Context, ev telephony.Event) {
	b.mu.Lock()
	if b.sess != nil {
		b.mu.Unlock()
		// Duplicate start keeps the original session untouched.
		b.log.Warn("Duplicate start event for stream %s, ignoring", ev.StreamSID)
		return
	}
	b.mu.Unlock()

	callSID := ev.CallSID
	if callSID == "" {
		callSID = uuid.NewString()
		b.log.Warn("Start event without call SID, generated %s", callSID)
	}

	direction := b.cfg.Direction
	if d, ok := ev.Custom["direction"]; ok && d != "" {
		direction = d
	}

	sess, err := b.deps.Registry.Create(callSID, direction, session.Config{
		SilenceThreshold: b.cfg.SilenceThreshold,
	})
	if err != nil {
		b.log.Warn("Reusing existing session for %s", callSID)
	}
	sess.SetStreamSID(ev.StreamSID)

	b.mu.Lock()
	b.sess = sess
	b.mu.Unlock()

	if b.deps.Logs != nil {
		b.deps.Logs.CallStart(callSID, direction, "stream "+ev.StreamSID)
	}
	b.log.Info("Stream started: call %s, stream %s", callSID, ev.StreamSID)

	b.state.Store(int32(StateStreaming))

	// The recognizer handshake and greeting playback take real time; both
	// run off the read loop so inbound frames keep flowing.
	go b.startRecognizer(ctx)
	go b.pollSilence(ctx)

	if !sess.MarkIntroPlayed() {
		go b.speakGreeting(ctx)
	}
}

func (b *Bridge) startRecognizer(ctx context.Context) {
	rec, err := b.cfg.Dial(ctx, b.cfg.STT)
	if err != nil {
		b.log.Error("Recognizer dial failed: %v", err)
		b.speakDegraded(ctx)
		return
	}
	if b.State() >= StateClosing || ctx.Err() != nil {
		rec.Close()
		return
	}
	b.mu.Lock()
	b.rec = rec
	b.mu.Unlock()
	go b.consumeRecognition(ctx, rec)
}

func (b *Bridge) handleMedia(ctx context.Context, ev telephony.Event) {
	b.mu.Lock()
	rec := b.rec
	b.mu.Unlock()
	if rec == nil {
		return
	}

	if err := rec.Send(ev.Audio); err != nil {
		b.log.Warn("Recognizer send failed: %v", err)
		b.dropRecognizer(rec)
		go b.redialRecognizer(ctx, rec)
	}
}

// dropRecognizer detaches a failed stream so further media is not sent to it
// while the redial runs.
func (b *Bridge) dropRecognizer(rec Recognizer) {
	b.mu.Lock()
	if b.rec == rec {
		b.rec = nil
	}
	b.mu.Unlock()
}

// consumeRecognition drains recognition events into the session. It is the
// only writer to the transcript buffer, so fragments land in order.
func (b *Bridge) consumeRecognition(ctx context.Context, rec Recognizer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-rec.Events():
			if !ok {
				return
			}
			if ev.Err != nil {
				b.log.Error("Recognition error: %v", ev.Err)
				b.mu.Lock()
				sess := b.sess
				b.mu.Unlock()
				if sess != nil {
					sess.ResetListening()
				}
				b.dropRecognizer(rec)
				b.redialRecognizer(ctx, rec)
				return
			}
			b.mu.Lock()
			sess := b.sess
			b.mu.Unlock()
			if sess != nil {
				sess.AddTranscript(ev.Transcript, ev.IsFinal)
			}
		}
	}
}

// redialRecognizer replaces a failed recognition stream once per call.
// A second failure degrades the call: the bot apologizes and the caller can
// only hang up or wait.
func (b *Bridge) redialRecognizer(ctx context.Context, old Recognizer) {
	if b.State() >= StateClosing || ctx.Err() != nil {
		return
	}

	b.mu.Lock()
	if b.redialed {
		b.mu.Unlock()
		b.speakDegraded(ctx)
		return
	}
	b.redialed = true
	b.mu.Unlock()

	if old != nil {
		old.Close()
	}

	rec, err := b.cfg.Dial(ctx, b.cfg.STT)
	if err != nil {
		b.log.Error("Recognizer redial failed: %v", err)
		b.speakDegraded(ctx)
		return
	}

	b.mu.Lock()
	b.rec = rec
	b.mu.Unlock()
	b.log.Info("Recognizer reconnected")
	go b.consumeRecognition(ctx, rec)
}

// pollSilence wakes every poll interval and processes the turn when the
// caller has gone quiet. Turn processing happens here, off the socket read
// loop, so inbound media keeps flowing while the bot thinks and speaks.
func (b *Bridge) pollSilence(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.mu.Lock()
			sess := b.sess
			b.mu.Unlock()
			if sess != nil && sess.CheckCompletion(now) {
				b.processTurn(ctx, sess)
			}
		}
	}
}

// processTurn handles one utterance end to end. Every failure inside a turn
// is contained: the caller hears the fallback line and the call goes on.
func (b *Bridge) processTurn(ctx context.Context, sess *session.Session) {
	utterance := sess.ConsumeUtterance()
	if utterance == "" {
		return
	}
	defer sess.FinishTurn()

	b.mu.Lock()
	rec := b.rec
	b.mu.Unlock()
	if rec != nil {
		// Flush buffered recognition so tail fragments of this utterance
		// don't leak into the next turn.
		if err := rec.Finalize(); err != nil {
			b.log.Debug("Finalize failed: %v", err)
		}
	}

	b.log.Info("Utterance: %q", utterance)
	sess.AddHistory(session.SpeakerCaller, utterance)
	if b.deps.Logs != nil {
		b.deps.Logs.Turn(sess.ID, session.SpeakerCaller, utterance)
	}

	reply, err := b.deps.Resp.Respond(ctx, utterance, sess)
	if err != nil {
		b.log.Error("Responder failed: %v", err)
		reply = responder.Reply{Kind: responder.ReplySay, Content: b.cfg.Fallback}
	}

	// The greeting or a previous reply may still sit in the provider's
	// playback buffer; clear it so this reply doesn't queue behind it.
	b.clearPlayback(sess.StreamSID())

	if err := b.speak(ctx, reply); err != nil {
		b.log.Error("Speaking reply failed: %v", err)
		if reply.Content != b.cfg.Fallback {
			if err := b.speak(ctx, responder.Reply{Kind: responder.ReplySay, Content: b.cfg.Fallback}); err != nil {
				b.log.Error("Fallback also failed: %v", err)
			}
		}
	} else {
		sess.AddHistory(session.SpeakerBot, reply.Content)
		if b.deps.Logs != nil {
			b.deps.Logs.Turn(sess.ID, session.SpeakerBot, reply.Content)
		}
	}

	if status, _ := sess.Slot("booking_status"); status == "transfer_requested" {
		b.transferToAgent(ctx, sess)
	}

	b.mu.Lock()
	b.turns++
	b.mu.Unlock()
}

// transferToAgent redirects the call to a human after the transfer line has
// played. At most one transfer per call; a failed attempt may retry on a
// later turn.
func (b *Bridge) transferToAgent(ctx context.Context, sess *session.Session) {
	if b.cfg.Transfer == nil {
		return
	}
	b.mu.Lock()
	if b.transferred {
		b.mu.Unlock()
		return
	}
	b.transferred = true
	b.mu.Unlock()

	if err := b.cfg.Transfer(ctx, sess.ID); err != nil {
		b.log.Error("Agent transfer failed: %v", err)
		b.mu.Lock()
		b.transferred = false
		b.mu.Unlock()
		return
	}

	b.log.Info("Call %s transferred to agent", sess.ID)
	if b.deps.Logs != nil {
		b.deps.Logs.CallStatus(sess.ID, "transferred")
	}
}

func (b *Bridge) clearPlayback(streamSID string) {
	if streamSID == "" {
		return
	}
	msg, err := b.provider.ClearMessage(streamSID)
	if err != nil || msg == nil {
		return
	}
	if err := b.write(msg); err != nil {
		b.log.Debug("Clear send failed: %v", err)
	}
}

func (b *Bridge) speakGreeting(ctx context.Context) {
	if b.cfg.Greeting != "" && len(b.deps.Library.ValidateChain(b.cfg.Greeting)) == 0 {
		err := b.speak(ctx, responder.Reply{Kind: responder.ReplyAudio, Content: b.cfg.Greeting})
		if err == nil {
			return
		}
		b.log.Error("Greeting playback failed: %v", err)
	}
	if b.cfg.GreetingText != "" {
		if err := b.speak(ctx, responder.Reply{Kind: responder.ReplySay, Content: b.cfg.GreetingText}); err != nil {
			b.log.Error("Greeting synthesis failed: %v", err)
		}
	}
}

func (b *Bridge) speakDegraded(ctx context.Context) {
	msg := "I'm having trouble hearing you right now. Please call back in a few minutes."
	if err := b.speak(ctx, responder.Reply{Kind: responder.ReplySay, Content: msg}); err != nil {
		b.log.Error("Degraded-mode apology failed: %v", err)
	}
}

// speak renders a reply to wire audio and streams it out in paced frames.
func (b *Bridge) speak(ctx context.Context, reply responder.Reply) error {
	b.mu.Lock()
	sess := b.sess
	b.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("no session")
	}
	streamSID := sess.StreamSID()
	if streamSID == "" {
		return fmt.Errorf("no stream SID before start event")
	}

	wire, err := b.renderWire(ctx, reply)
	if err != nil {
		return err
	}

	frames := b.chunker.Split(wire)
	err = b.chunker.Send(ctx, frames, func(frame []byte) error {
		msg, err := b.provider.MediaMessage(streamSID, frame)
		if err != nil {
			return err
		}
		return b.write(msg)
	})
	if err != nil {
		return err
	}

	if mark, err := b.provider.MarkMessage(streamSID, uuid.NewString()); err == nil && mark != nil {
		if err := b.write(mark); err != nil {
			b.log.Debug("Mark send failed: %v", err)
		}
	}
	return nil
}

// renderWire produces audio in the provider's wire format: library clips
// are stored as 8 kHz linear PCM, synthesis output varies by configured
// format.
func (b *Bridge) renderWire(ctx context.Context, reply responder.Reply) ([]byte, error) {
	codec := b.provider.Codec()

	if reply.Kind == responder.ReplyAudio {
		pcmBytes, err := b.deps.Library.Concat(reply.Content)
		if err != nil {
			return nil, err
		}
		pcm := audio.Linear16Codec{}.Decode(pcmBytes)
		if rate := b.deps.Library.SampleRate(); rate != b.provider.SampleRate() {
			pcm = audio.Resample(pcm, rate, b.provider.SampleRate())
		}
		return codec.Encode(pcm), nil
	}

	cacheKey := fmt.Sprintf("%s:%d:%s", codec.Name(), b.provider.SampleRate(), reply.Content)
	if b.deps.Cache != nil {
		if wire, ok := b.deps.Cache.Get(cacheKey); ok {
			return wire, nil
		}
	}

	res, err := b.deps.Synth.Synthesize(ctx, reply.Content)
	if err != nil {
		return nil, err
	}

	var wire []byte
	if res.Codec == codec.Name() && res.SampleRate == b.provider.SampleRate() {
		wire = res.Audio
	} else {
		var pcm []int16
		switch res.Codec {
		case "linear16":
			pcm = audio.Linear16Codec{}.Decode(res.Audio)
		case "mulaw":
			pcm = audio.MulawCodec{}.Decode(res.Audio)
		default:
			return nil, fmt.Errorf("unsupported synthesis codec %q", res.Codec)
		}
		if res.SampleRate != b.provider.SampleRate() {
			pcm = audio.Resample(pcm, res.SampleRate, b.provider.SampleRate())
		}
		wire = codec.Encode(pcm)
	}

	if b.deps.Cache != nil {
		b.deps.Cache.Put(cacheKey, wire)
	}
	return wire, nil
}

func (b *Bridge) write(data []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

func (b *Bridge) shutdown() {
	b.state.Store(int32(StateClosing))

	b.mu.Lock()
	cancel := b.cancel
	rec := b.rec
	sess := b.sess
	turns := b.turns
	startedAt := b.startedAt
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if rec != nil {
		rec.Close()
	}
	b.conn.Close()

	if sess != nil {
		if b.deps.Logs != nil {
			b.deps.Logs.ExportSession(sess)
			b.deps.Logs.CallEnd(sess.ID, sess.Direction, time.Since(startedAt), turns)
		}
		b.deps.Registry.Remove(sess.ID)
		b.log.Info("Call %s closed after %d turns", sess.ID, turns)
	}

	b.state.Store(int32(StateClosed))
}
