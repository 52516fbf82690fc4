// Package responder turns a finished caller utterance into a reply: either
// a chain of pre-recorded clips or text for synthesis. A rule pre-pass
// extracts caller details and handles booking and agent transfer; anything
// it doesn't short-circuit goes to a language model.
package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxgate-labs/voxgate-ai/src/audio"
	"github.com/voxgate-labs/voxgate-ai/src/logger"
	"github.com/voxgate-labs/voxgate-ai/src/session"
)

// ReplyKind distinguishes pre-recorded playback from synthesized speech.
type ReplyKind int

const (
	// ReplyAudio plays a clip chain like "greet.pcm + ask_name.pcm".
	ReplyAudio ReplyKind = iota
	// ReplySay synthesizes the content as speech.
	ReplySay
)

// Reply is what gets spoken back to the caller.
type Reply struct {
	Kind    ReplyKind
	Content string
}

// Generator produces a raw model reply for an utterance. Implementations
// wrap OpenAI-compatible or Gemini endpoints.
type Generator interface {
	Generate(ctx context.Context, sess *session.Session, transcript string) (string, error)
}

// Router runs the rule pre-pass and falls through to a Generator. Model
// output uses two directives:
//
//	AUDIO: a.pcm + b.pcm   play clips from the library
//	TTS: some sentence     synthesize the text
//
// Bare text is treated as TTS.
type Router struct {
	rules   *Rules
	gen     Generator
	library *audio.Library
	log     *logger.Logger
}

// NewRouter wires the rule pre-pass with an optional generator. A nil
// generator leaves the rules and their generic fallback answer in charge.
func NewRouter(rules *Rules, gen Generator, library *audio.Library) *Router {
	return &Router{
		rules:   rules,
		gen:     gen,
		library: library,
		log:     logger.WithPrefix("Responder"),
	}
}

// Respond produces the reply for one caller utterance. Slot extraction
// always runs, even when the model answers.
func (r *Router) Respond(ctx context.Context, transcript string, sess *session.Session) (Reply, error) {
	if reply, handled := r.rules.Apply(transcript, sess); handled {
		r.log.Debug("Rule reply for %q", transcript)
		return reply, nil
	}

	if r.gen == nil {
		// Without a model, prefer a recorded fallback line over synthesis
		// so repeat callers don't hear the exact same take every turn.
		if r.library != nil {
			if clip, ok := r.library.PickByPrefix("fallback_"); ok {
				return Reply{Kind: ReplyAudio, Content: clip}, nil
			}
		}
		return Reply{Kind: ReplySay, Content: r.rules.GenericAnswer()}, nil
	}

	raw, err := r.gen.Generate(ctx, sess, transcript)
	if err != nil {
		return Reply{}, fmt.Errorf("generating reply: %w", err)
	}
	return r.parse(raw)
}

func (r *Router) parse(raw string) (Reply, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reply{}, fmt.Errorf("empty model reply")
	}

	if chain, ok := strings.CutPrefix(raw, "AUDIO:"); ok {
		chain = strings.TrimSpace(chain)
		if missing := r.library.ValidateChain(chain); len(missing) > 0 {
			return Reply{}, fmt.Errorf("model requested missing clips %v in %q", missing, chain)
		}
		return Reply{Kind: ReplyAudio, Content: chain}, nil
	}
	if text, ok := strings.CutPrefix(raw, "TTS:"); ok {
		return Reply{Kind: ReplySay, Content: strings.TrimSpace(text)}, nil
	}
	return Reply{Kind: ReplySay, Content: raw}, nil
}

// SystemPrompt builds the instruction block shared by all generators,
// listing the clips the model may chain.
func SystemPrompt(library *audio.Library) string {
	var b strings.Builder
	b.WriteString("You are a polite phone receptionist for a home-services company. ")
	b.WriteString("Keep answers short and speakable, one or two sentences. ")
	b.WriteString("Reply with exactly one directive per turn:\n")
	b.WriteString("  AUDIO: <clip> + <clip>  to play pre-recorded clips\n")
	b.WriteString("  TTS: <text>             to speak synthesized text\n")
	if library != nil && library.Count() > 0 {
		b.WriteString("Available clips: ")
		b.WriteString(strings.Join(library.Names(), ", "))
		b.WriteString("\n")
	}
	b.WriteString("Use AUDIO only with clips from the list. When unsure, use TTS.")
	return b.String()
}
