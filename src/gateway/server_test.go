package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxgate-labs/voxgate-ai/src/audio"
	"github.com/voxgate-labs/voxgate-ai/src/config"
	"github.com/voxgate-labs/voxgate-ai/src/responder"
	"github.com/voxgate-labs/voxgate-ai/src/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noopResponder struct{}

func (noopResponder) Respond(context.Context, string, *session.Session) (responder.Reply, error) {
	return responder.Reply{Kind: responder.ReplySay, Content: "ok"}, nil
}

func newTestServer(t *testing.T) (*Server, *session.Registry) {
	t.Helper()
	cfg := &config.Config{PublicHost: "gw.example.com", TransferNumber: "+15550009999"}
	registry := session.NewRegistry()
	return New(cfg, registry, audio.NewLibrary(8000), noopResponder{}, nil, nil), registry
}

func postForm(t *testing.T, s *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, registry := newTestServer(t)
	_, err := registry.Create("CA1", session.DirectionInbound, session.Config{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status         string `json:"status"`
		ActiveSessions int    `json:"active_sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.ActiveSessions)
}

func TestTwilioVoiceReturnsStreamDocument(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postForm(t, s, "/twilio/voice", url.Values{
		"CallSid": {"CA1"},
		"From":    {"+15551234567"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "<Connect>")
	assert.Contains(t, body, `url="wss://gw.example.com/twilio/media"`)
	assert.Contains(t, body, `value="inbound"`)
}

func TestTwilioOutboundMarksDirection(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postForm(t, s, "/twilio/outbound", url.Values{"CallSid": {"CA1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="outbound"`)
}

func TestTwilioTransferRoute(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postForm(t, s, "/twilio/transfer", url.Values{"CallSid": {"CA1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Dial>+15550009999</Dial>")
}

func TestTwilioStatusEvictsTerminalCalls(t *testing.T) {
	s, registry := newTestServer(t)
	_, err := registry.Create("CA1", session.DirectionInbound, session.Config{})
	require.NoError(t, err)

	rec := postForm(t, s, "/twilio/status", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"ringing"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, registry.Count())

	rec = postForm(t, s, "/twilio/status", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"completed"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, registry.Count())
}

func TestExotelWebsocketEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exotel/get_websocket", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "wss://gw.example.com/exotel/media", body.URL)
}

func TestExotelVoiceReturnsVoicebotDocument(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postForm(t, s, "/exotel/voice", url.Values{"CallSid": {"EX1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<Voicebot url="wss://gw.example.com/exotel/media" />`)
}

func TestExotelStatusAcceptsBothFieldNames(t *testing.T) {
	s, registry := newTestServer(t)
	_, err := registry.Create("EX1", session.DirectionInbound, session.Config{})
	require.NoError(t, err)

	rec := postForm(t, s, "/exotel/status", url.Values{
		"CallSid": {"EX1"},
		"Status":  {"completed"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, registry.Count())
}

func TestCampaignStartWithoutOutboundConfig(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/campaign/start",
		strings.NewReader(`{"leads":[{"name":"Asha","phone":"+15551234567"}]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCampaignStatusIdle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaign/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status CampaignStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Running)
	assert.Zero(t, status.Total)
}

func TestCampaignStopRoute(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/campaign/stop", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status CampaignStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Running)
}
