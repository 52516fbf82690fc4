package responder

import (
	"strings"

	"github.com/voxgate-labs/voxgate-ai/src/logger"
	"github.com/voxgate-labs/voxgate-ai/src/session"
)

// RulesConfig configures the rule pre-pass.
type RulesConfig struct {
	// AvailabilitySlots are the appointment windows offered to callers,
	// e.g. "tomorrow morning", "Friday 2 to 4 PM".
	AvailabilitySlots []string
	// TransferMessage is spoken when the caller asks for a human.
	TransferMessage string
}

var agentKeywords = []string{
	"agent", "human", "representative", "real person", "speak to someone",
	"talk to someone", "operator", "manager",
}

// Rules is the deterministic pre-pass that runs before any model call. It
// extracts caller details from every utterance and short-circuits the
// booking flow and agent-transfer requests.
type Rules struct {
	cfg RulesConfig
	log *logger.Logger
}

// NewRules creates the rule pre-pass.
func NewRules(cfg RulesConfig) *Rules {
	if cfg.TransferMessage == "" {
		cfg.TransferMessage = "Of course, let me connect you to one of our team members. Please hold."
	}
	if len(cfg.AvailabilitySlots) == 0 {
		cfg.AvailabilitySlots = []string{"tomorrow morning", "tomorrow afternoon", "day after tomorrow morning"}
	}
	return &Rules{cfg: cfg, log: logger.WithPrefix("Rules")}
}

// Apply extracts slots from the utterance and returns a reply if a rule
// handles the turn outright. Extraction happens regardless of the outcome.
func (r *Rules) Apply(transcript string, sess *session.Session) (Reply, bool) {
	for name, value := range ExtractSlots(transcript) {
		sess.UpdateSlot(name, value)
	}

	lower := strings.ToLower(transcript)

	for _, kw := range agentKeywords {
		if strings.Contains(lower, kw) {
			sess.UpdateSlot("booking_status", "transfer_requested")
			return Reply{Kind: ReplySay, Content: r.cfg.TransferMessage}, true
		}
	}

	if reply, ok := r.bookingReply(lower, sess); ok {
		return reply, true
	}

	return Reply{}, false
}

// GenericAnswer is the no-model fallback reply.
func (r *Rules) GenericAnswer() string {
	return "I can help you book a service visit. Could you tell me what you need and when works for you?"
}
