// Package gateway exposes the HTTP surface: provider webhooks, the media
// WebSocket endpoints, health and debug views, and the campaign dialer.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/voxgate-labs/voxgate-ai/src/audio"
	"github.com/voxgate-labs/voxgate-ai/src/bridge"
	"github.com/voxgate-labs/voxgate-ai/src/calllog"
	"github.com/voxgate-labs/voxgate-ai/src/config"
	"github.com/voxgate-labs/voxgate-ai/src/logger"
	"github.com/voxgate-labs/voxgate-ai/src/session"
	"github.com/voxgate-labs/voxgate-ai/src/stt"
	"github.com/voxgate-labs/voxgate-ai/src/telephony"
	"github.com/voxgate-labs/voxgate-ai/src/tts"
)

// Server wires the HTTP routes to the call machinery.
type Server struct {
	cfg      *config.Config
	registry *session.Registry
	library  *audio.Library
	resp     bridge.Responder
	logs     *calllog.Writer
	rest     *telephony.RestClient // nil when outbound dialing is not configured

	twilio *telephony.Twilio
	exotel *telephony.Exotel

	campaign *Campaign
	engine   *gin.Engine
	upgrader websocket.Upgrader
	ttsCache *audio.Library
	log      *logger.Logger
}

// New builds the server and registers all routes.
func New(cfg *config.Config, registry *session.Registry, library *audio.Library,
	resp bridge.Responder, logs *calllog.Writer, rest *telephony.RestClient) *Server {

	s := &Server{
		cfg:      cfg,
		registry: registry,
		library:  library,
		resp:     resp,
		logs:     logs,
		rest:     rest,
		twilio:   telephony.NewTwilio(),
		exotel:   telephony.NewExotel(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Providers connect from their own clouds; origin checks
			// don't apply to server-to-server WebSockets.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ttsCache: audio.NewLibrary(0),
		log:      logger.WithPrefix("Gateway"),
	}
	s.campaign = NewCampaign(cfg, registry, rest)

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/", s.handleHealth)

	engine.POST("/twilio/voice", s.handleTwilioVoice)
	engine.POST("/twilio/outbound", s.handleTwilioOutbound)
	engine.POST("/twilio/transfer", s.handleTwilioTransfer)
	engine.POST("/twilio/status", s.handleTwilioStatus)
	engine.GET("/twilio/media", s.handleTwilioMedia)

	engine.POST("/exotel/voice", s.handleExotelVoice)
	engine.GET("/exotel/get_websocket", s.handleExotelWebsocket)
	engine.POST("/exotel/status", s.handleExotelStatus)
	engine.GET("/exotel/media", s.handleExotelMedia)
	engine.GET("/exotel/debug", s.handleExotelDebug)

	engine.POST("/campaign/start", s.handleCampaignStart)
	engine.POST("/campaign/stop", s.handleCampaignStop)
	engine.GET("/campaign/status", s.handleCampaignStatus)

	s.engine = engine
	return s
}

// Engine returns the gin engine, for serving and for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) streamURL(provider string) string {
	return fmt.Sprintf("wss://%s/%s/media", s.cfg.PublicHost, provider)
}

// AnswerURL is the document Twilio fetches when an outbound callee answers.
func (s *Server) AnswerURL() string {
	return fmt.Sprintf("https://%s/twilio/outbound", s.cfg.PublicHost)
}

// StatusURL receives Twilio status callbacks.
func (s *Server) StatusURL() string {
	return fmt.Sprintf("https://%s/twilio/status", s.cfg.PublicHost)
}

// TransferURL is the document an in-progress call is redirected to when the
// caller asks for a human agent.
func (s *Server) TransferURL() string {
	return fmt.Sprintf("https://%s/twilio/transfer", s.cfg.PublicHost)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"active_sessions": s.registry.Count(),
		"cached_clips":    s.library.Count(),
	})
}

func (s *Server) handleTwilioVoice(c *gin.Context) {
	callSID := c.PostForm("CallSid")
	s.log.Info("Inbound Twilio call %s from %s", callSID, c.PostForm("From"))

	doc := s.twilio.AnswerDocument(telephony.AnswerParams{
		StreamURL: s.streamURL("twilio"),
		Custom:    map[string]string{"direction": session.DirectionInbound},
	})
	c.Data(http.StatusOK, "application/xml", []byte(doc))
}

func (s *Server) handleTwilioOutbound(c *gin.Context) {
	callSID := c.PostForm("CallSid")
	s.log.Info("Outbound Twilio call %s answered", callSID)

	doc := s.twilio.AnswerDocument(telephony.AnswerParams{
		StreamURL: s.streamURL("twilio"),
		Custom:    map[string]string{"direction": session.DirectionOutbound},
	})
	c.Data(http.StatusOK, "application/xml", []byte(doc))
}

func (s *Server) handleTwilioTransfer(c *gin.Context) {
	s.log.Info("Transferring call %s to %s", c.PostForm("CallSid"), s.cfg.TransferNumber)
	c.Data(http.StatusOK, "application/xml", []byte(s.twilio.TransferDocument(s.cfg.TransferNumber)))
}

func (s *Server) handleTwilioStatus(c *gin.Context) {
	callSID := c.PostForm("CallSid")
	status := c.PostForm("CallStatus")
	s.log.Info("Status callback for %s: %s", callSID, status)

	if s.logs != nil {
		s.logs.CallStatus(callSID, status)
	}
	if telephony.TerminalStatuses[status] {
		s.registry.Remove(callSID)
		s.registry.ForgetOutbound(callSID)
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleTwilioMedia(c *gin.Context) {
	s.serveMedia(c, s.twilio, "ulaw_8000", "mulaw")
}

func (s *Server) handleExotelVoice(c *gin.Context) {
	s.log.Info("Inbound Exotel call %s from %s", c.PostForm("CallSid"), c.PostForm("From"))

	doc := s.exotel.AnswerDocument(telephony.AnswerParams{
		StreamURL: s.streamURL("exotel"),
	})
	c.Data(http.StatusOK, "application/xml", []byte(doc))
}

// Exotel resolves the voicebot stream URL at call time through this JSON
// endpoint.
func (s *Server) handleExotelWebsocket(c *gin.Context) {
	c.JSON(http.StatusOK, telephony.WebsocketAnswer{URL: s.streamURL("exotel")})
}

func (s *Server) handleExotelStatus(c *gin.Context) {
	callSID := c.PostForm("CallSid")
	status := c.PostForm("Status")
	if status == "" {
		status = c.PostForm("CallStatus")
	}
	s.log.Info("Exotel status for %s: %s", callSID, status)

	if s.logs != nil {
		s.logs.CallStatus(callSID, status)
	}
	if telephony.TerminalStatuses[status] {
		s.registry.Remove(callSID)
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleExotelMedia(c *gin.Context) {
	s.serveMedia(c, s.exotel, "pcm_16000", "linear16")
}

func (s *Server) handleExotelDebug(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_sessions": s.registry.Active(),
		"clips":           s.library.Names(),
		"stream_url":      s.streamURL("exotel"),
	})
}

// serveMedia upgrades the provider WebSocket and runs a bridge until the
// call ends.
func (s *Server) serveMedia(c *gin.Context, provider telephony.Provider, ttsFormat, sttEncoding string) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed: %v", err)
		return
	}

	synth := tts.New(tts.Config{
		APIKey:       s.cfg.ElevenLabsAPIKey,
		VoiceID:      s.cfg.ElevenLabsVoiceID,
		Model:        s.cfg.ElevenLabsModel,
		OutputFormat: ttsFormat,
	})

	// Agent transfer needs the Twilio REST API and a configured target.
	var transfer func(ctx context.Context, callSID string) error
	if provider.Name() == "twilio" && s.rest != nil && s.cfg.TransferNumber != "" {
		transfer = func(ctx context.Context, callSID string) error {
			return s.rest.Redirect(ctx, callSID, s.TransferURL())
		}
	}

	br, err := bridge.New(provider, conn, bridge.Deps{
		Registry: s.registry,
		Library:  s.library,
		Synth:    synth,
		Resp:     s.resp,
		Logs:     s.logs,
		Cache:    s.ttsCache,
	}, bridge.Config{
		SilenceThreshold: s.cfg.SilenceThreshold,
		PollInterval:     s.cfg.PollInterval,
		Greeting:         s.cfg.GreetingChain,
		GreetingText:     "Hello! Thanks for calling. How can I help you today?",
		Fallback:         s.cfg.FallbackUtterance,
		STT: stt.Config{
			APIKey:     s.cfg.DeepgramAPIKey,
			Language:   s.cfg.DeepgramLanguage,
			Model:      s.cfg.DeepgramModel,
			Encoding:   sttEncoding,
			SampleRate: provider.SampleRate(),
		},
		Transfer: transfer,
	})
	if err != nil {
		s.log.Error("Bridge setup failed: %v", err)
		conn.Close()
		return
	}

	if err := br.Run(c.Request.Context()); err != nil {
		s.log.Error("Bridge ended with error: %v", err)
	}
}

func (s *Server) handleCampaignStart(c *gin.Context) {
	if s.rest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outbound dialing is not configured"})
		return
	}

	var req struct {
		Leads []Lead `json:"leads" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.campaign.Start(req.Leads, s.AnswerURL(), s.StatusURL()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": len(req.Leads)})
}

func (s *Server) handleCampaignStop(c *gin.Context) {
	s.campaign.Stop()
	c.JSON(http.StatusOK, s.campaign.Status())
}

func (s *Server) handleCampaignStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.campaign.Status())
}
