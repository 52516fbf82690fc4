package responder

import (
	"regexp"
	"strings"
)

// Slot extraction is keyword and pattern based. It errs on the side of not
// filling a slot; the model can always ask again.

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is (\w+)`),
	regexp.MustCompile(`(?i)\bthis is (\w+)`),
	regexp.MustCompile(`(?i)\bi am (\w+)`),
	regexp.MustCompile(`(?i)\bi'm (\w+)`),
}

var phonePattern = regexp.MustCompile(`\b\d{10}\b|\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`)

// Words that follow name patterns but are never names.
var nonNames = map[string]bool{
	"calling": true, "looking": true, "interested": true, "having": true,
	"not": true, "here": true, "a": true, "an": true, "the": true,
}

var serviceKeywords = map[string][]string{
	"plumbing":     {"plumb", "leak", "pipe", "tap", "faucet", "drain", "toilet"},
	"electrical":   {"electric", "wiring", "switch", "socket", "fan", "light not working", "power"},
	"cleaning":     {"clean", "deep clean", "sofa", "carpet", "bathroom cleaning"},
	"pest_control": {"pest", "cockroach", "termite", "bed bug", "rodent", "ant"},
	"painting":     {"paint", "repaint", "wall finish"},
	"appliance":    {"ac ", "air condition", "fridge", "refrigerator", "washing machine", "geyser"},
}

var urgencyKeywords = map[string][]string{
	"high": {"emergency", "urgent", "asap", "right now", "immediately", "today itself", "flooding"},
	"low":  {"no rush", "whenever", "next week", "sometime", "no hurry"},
}

var propertyKeywords = map[string][]string{
	"apartment": {"apartment", "flat"},
	"house":     {"house", "bungalow", "villa"},
	"office":    {"office", "shop", "commercial"},
}

var timeKeywords = map[string][]string{
	"morning":   {"morning"},
	"afternoon": {"afternoon", "noon"},
	"evening":   {"evening", "night"},
}

var dateKeywords = map[string][]string{
	"today":              {"today"},
	"tomorrow":           {"tomorrow"},
	"day_after_tomorrow": {"day after"},
	"weekend":            {"weekend", "saturday", "sunday"},
}

// ExtractSlots pulls caller details out of one utterance. Only slots with a
// confident match appear in the result.
func ExtractSlots(transcript string) map[string]string {
	out := make(map[string]string)
	lower := strings.ToLower(transcript)

	for _, pattern := range namePatterns {
		if m := pattern.FindStringSubmatch(transcript); m != nil {
			candidate := strings.ToLower(m[1])
			if !nonNames[candidate] {
				out["name"] = strings.ToUpper(candidate[:1]) + candidate[1:]
				break
			}
		}
	}

	if m := phonePattern.FindString(transcript); m != "" {
		out["phone"] = strings.NewReplacer("-", "", ".", "", " ", "").Replace(m)
	}

	matchKeyword(lower, serviceKeywords, "service_type", out)
	matchKeyword(lower, urgencyKeywords, "urgency", out)
	matchKeyword(lower, propertyKeywords, "property_type", out)
	matchKeyword(lower, timeKeywords, "preferred_time", out)
	matchKeyword(lower, dateKeywords, "preferred_date", out)

	return out
}

func matchKeyword(lower string, table map[string][]string, slot string, out map[string]string) {
	for value, words := range table {
		for _, w := range words {
			if strings.Contains(lower, w) {
				out[slot] = value
				return
			}
		}
	}
}
