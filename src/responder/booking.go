package responder

import (
	"fmt"
	"strings"

	"github.com/voxgate-labs/voxgate-ai/src/session"
)

var bookingKeywords = []string{
	"book", "appointment", "schedule", "send someone", "fix a time", "visit",
}

var confirmKeywords = []string{
	"yes", "yeah", "sure", "okay", "ok", "sounds good", "that works", "confirm",
}

// bookingReply drives the deterministic appointment flow. It only takes the
// turn when the caller is clearly booking or confirming; open questions stay
// with the model.
func (r *Rules) bookingReply(lower string, sess *session.Session) (Reply, bool) {
	status, _ := sess.Slot("booking_status")

	// A pending offer plus an affirmation confirms the appointment.
	if status == "offered" {
		for _, kw := range confirmKeywords {
			if strings.Contains(lower, kw) {
				sess.UpdateSlot("booking_status", "confirmed")
				r.log.Info("Booking confirmed for session %s", sess.ID)
				return Reply{
					Kind:    ReplySay,
					Content: "Perfect, your appointment is confirmed. You will get a confirmation message shortly. Is there anything else?",
				}, true
			}
		}
	}

	booking := false
	for _, kw := range bookingKeywords {
		if strings.Contains(lower, kw) {
			booking = true
			break
		}
	}
	if !booking || status == "confirmed" {
		return Reply{}, false
	}

	date, _ := sess.Slot("preferred_date")
	timePref, _ := sess.Slot("preferred_time")

	// With a concrete preference, offer that window for confirmation.
	if date != "" && timePref != "" {
		sess.UpdateSlot("booking_status", "offered")
		window := fmt.Sprintf("%s %s", strings.ReplaceAll(date, "_", " "), timePref)
		return Reply{
			Kind:    ReplySay,
			Content: fmt.Sprintf("I can book a technician for %s. Shall I confirm that?", window),
		}, true
	}

	// Otherwise offer the configured availability.
	sess.UpdateSlot("booking_status", "offered")
	return Reply{
		Kind:    ReplySay,
		Content: fmt.Sprintf("We have %s available. Which works best for you?", joinSlots(r.cfg.AvailabilitySlots)),
	}, true
}

func joinSlots(slots []string) string {
	switch len(slots) {
	case 0:
		return "a few times"
	case 1:
		return slots[0]
	default:
		return strings.Join(slots[:len(slots)-1], ", ") + " or " + slots[len(slots)-1]
	}
}
