package triage

import (
	"strings"
	"unicode/utf8"

	"github.com/linnemanlabs/intake/internal/ticket"
)

// burstRunes are the punctuation characters that indicate keyboard mashing
// when a message is long, unbroken by whitespace, and contains them.
const burstRunes = "!@#$%^&*()_+=[]{}<>?/\\|~`"

const fallbackSummaryLen = 50

// Fallback produces a structurally complete classification from local
// heuristics only. It is total: any input, including the empty string, yields
// a usable result. Used whenever the gateway fails.
func Fallback(text string) *Classification {
	trimmed := strings.TrimSpace(text)

	if reason, spam := spamHeuristic(trimmed); spam {
		return &Classification{
			Summary:      "Discarded: no actionable request detected",
			Category:     "Spam",
			Priority:     ticket.PriorityNone,
			Spam:         true,
			SpamReason:   reason,
			Role:         ticket.RolePrimary,
			FromFallback: true,
		}
	}

	return &Classification{
		Summary:              fallbackSummary(trimmed),
		Category:             "Other",
		Priority:             ticket.PriorityMedium,
		Department:           ticket.DeptSoftware,
		DepartmentConfidence: 100,
		Sentiment:            ticket.SentimentCalm,
		Complete:             true,
		Active:               true,
		Role:                 ticket.RolePrimary,
		FromFallback:         true,
	}
}

// spamHeuristic applies the deterministic spam rules: too short or a bare
// greeting means no intent; a long unbroken punctuation burst means random
// text.
func spamHeuristic(trimmed string) (ticket.SpamReason, bool) {
	if len(trimmed) < 3 {
		return ticket.SpamNoIntent, true
	}
	if strings.EqualFold(trimmed, "hi") {
		return ticket.SpamNoIntent, true
	}
	if len(trimmed) > 10 &&
		!strings.ContainsAny(trimmed, " \t\n\r") &&
		strings.ContainsAny(trimmed, burstRunes) {
		return ticket.SpamRandomText, true
	}
	return "", false
}

func fallbackSummary(trimmed string) string {
	s := trimmed
	if len(s) > fallbackSummaryLen {
		// Back off to a rune boundary so the cut never splits a multi-byte
		// character.
		cut := fallbackSummaryLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return "Review required: " + s
}
