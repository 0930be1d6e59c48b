package triage

import "github.com/linnemanlabs/intake/internal/ticket"

// DeriveStatus maps a resolved classification to the ticket's entry status.
// Total and pure: every classification maps to exactly one status. Only
// cancelled, waiting and processing are reachable from triage; under_review
// and resolved require a later human action.
func DeriveStatus(c *Classification) ticket.Status {
	switch {
	case c.Spam:
		return ticket.StatusCancelled
	case !c.Complete:
		return ticket.StatusWaiting
	default:
		return ticket.StatusProcessing
	}
}
