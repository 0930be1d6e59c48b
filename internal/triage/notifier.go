package triage

import (
	"context"
	"errors"

	"github.com/linnemanlabs/intake/internal/ticket"
)

// Event describes one ticket change for downstream consumers. Delivery is
// best effort; the pipeline never waits on it.
type Event struct {
	Event    string          `json:"event"`
	TicketID string          `json:"ticket_id"`
	Status   ticket.Status   `json:"status"`
	Spam     bool            `json:"is_spam"`
	Active   bool            `json:"is_active"`
	Priority ticket.Priority `json:"priority"`
	Summary  string          `json:"summary"`
}

// NewEvent builds the ticket_updated event for a persisted ticket.
func NewEvent(t *ticket.Ticket) *Event {
	return &Event{
		Event:    "ticket_updated",
		TicketID: t.ID,
		Status:   t.Status,
		Spam:     t.Spam,
		Active:   t.Active,
		Priority: t.Priority,
		Summary:  t.Summary,
	}
}

// Notifier publishes ticket change events.
type Notifier interface {
	Publish(ctx context.Context, ev *Event) error
}

// Fanout publishes to every notifier and joins their errors.
type Fanout []Notifier

// Publish implements Notifier.
func (f Fanout) Publish(ctx context.Context, ev *Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
