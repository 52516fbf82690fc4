package responder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxgate-labs/voxgate-ai/src/audio"
	"github.com/voxgate-labs/voxgate-ai/src/session"
)

type stubGenerator struct {
	out string
	err error
}

func (s stubGenerator) Generate(context.Context, *session.Session, string) (string, error) {
	return s.out, s.err
}

func newTestLibrary() *audio.Library {
	lib := audio.NewLibrary(8000)
	lib.Put("greet.pcm", make([]byte, 320))
	lib.Put("ask_name.pcm", make([]byte, 320))
	return lib
}

func TestRouterAudioDirective(t *testing.T) {
	lib := newTestLibrary()
	router := NewRouter(NewRules(RulesConfig{}), stubGenerator{out: "AUDIO: greet.pcm + ask_name.pcm"}, lib)

	reply, err := router.Respond(context.Background(), "hello", newTestRulesSession())
	require.NoError(t, err)
	assert.Equal(t, ReplyAudio, reply.Kind)
	assert.Equal(t, "greet.pcm + ask_name.pcm", reply.Content)
}

func TestRouterAudioDirectiveMissingClip(t *testing.T) {
	lib := newTestLibrary()
	router := NewRouter(NewRules(RulesConfig{}), stubGenerator{out: "AUDIO: greet.pcm + nope.pcm"}, lib)

	_, err := router.Respond(context.Background(), "hello", newTestRulesSession())
	assert.Error(t, err)
}

func TestRouterTTSDirective(t *testing.T) {
	router := NewRouter(NewRules(RulesConfig{}), stubGenerator{out: "TTS: Sure, one moment."}, newTestLibrary())

	reply, err := router.Respond(context.Background(), "hello", newTestRulesSession())
	require.NoError(t, err)
	assert.Equal(t, ReplySay, reply.Kind)
	assert.Equal(t, "Sure, one moment.", reply.Content)
}

func TestRouterBareTextIsSpoken(t *testing.T) {
	router := NewRouter(NewRules(RulesConfig{}), stubGenerator{out: "Happy to help with that."}, newTestLibrary())

	reply, err := router.Respond(context.Background(), "hello", newTestRulesSession())
	require.NoError(t, err)
	assert.Equal(t, ReplySay, reply.Kind)
	assert.Equal(t, "Happy to help with that.", reply.Content)
}

func TestRouterGeneratorErrorPropagates(t *testing.T) {
	router := NewRouter(NewRules(RulesConfig{}), stubGenerator{err: errors.New("model down")}, newTestLibrary())

	_, err := router.Respond(context.Background(), "hello", newTestRulesSession())
	assert.Error(t, err)
}

func TestRouterEmptyReplyIsError(t *testing.T) {
	router := NewRouter(NewRules(RulesConfig{}), stubGenerator{out: "   "}, newTestLibrary())

	_, err := router.Respond(context.Background(), "hello", newTestRulesSession())
	assert.Error(t, err)
}

func TestRouterWithoutGenerator(t *testing.T) {
	router := NewRouter(NewRules(RulesConfig{}), nil, newTestLibrary())

	reply, err := router.Respond(context.Background(), "tell me about your company", newTestRulesSession())
	require.NoError(t, err)
	assert.Equal(t, ReplySay, reply.Kind)
	assert.NotEmpty(t, reply.Content)
}

func TestRouterWithoutGeneratorPrefersRecordedFallback(t *testing.T) {
	lib := newTestLibrary()
	lib.Put("fallback_1.pcm", make([]byte, 320))
	router := NewRouter(NewRules(RulesConfig{}), nil, lib)

	reply, err := router.Respond(context.Background(), "tell me about your company", newTestRulesSession())
	require.NoError(t, err)
	assert.Equal(t, ReplyAudio, reply.Kind)
	assert.Equal(t, "fallback_1.pcm", reply.Content)
}

func TestRouterRulesShortCircuit(t *testing.T) {
	// The generator must not be consulted when a rule takes the turn.
	router := NewRouter(NewRules(RulesConfig{}), stubGenerator{err: errors.New("should not be called")}, newTestLibrary())

	reply, err := router.Respond(context.Background(), "get me a human agent", newTestRulesSession())
	require.NoError(t, err)
	assert.Equal(t, ReplySay, reply.Kind)
}

func TestSystemPromptListsClips(t *testing.T) {
	prompt := SystemPrompt(newTestLibrary())
	assert.Contains(t, prompt, "greet.pcm")
	assert.Contains(t, prompt, "AUDIO:")
	assert.Contains(t, prompt, "TTS:")
}
