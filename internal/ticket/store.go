package ticket

import "context"

// Store is the persistence interface for tickets. Implementations must
// enforce uniqueness of the generated ticket id and be safe for concurrent
// readers on the active-incident path.
type Store interface {
	// Insert stores a newly triaged ticket. The id must not already exist.
	Insert(ctx context.Context, t *Ticket) error

	// Get retrieves a ticket by its public id.
	Get(ctx context.Context, id string) (*Ticket, bool, error)

	// List returns tickets newest first.
	List(ctx context.Context, limit, offset int) ([]*Ticket, error)

	// ActivePrimaryIncidents returns open primary tickets as duplicate-matching
	// context for the classifier.
	ActivePrimaryIncidents(ctx context.Context) ([]IncidentRef, error)

	// UpdateStatus sets a ticket's lifecycle status (admin action).
	UpdateStatus(ctx context.Context, id string, status Status) (*Ticket, bool, error)

	// Assign sets the admin a ticket is assigned to (admin action).
	Assign(ctx context.Context, id, admin string) (*Ticket, bool, error)

	// Stats aggregates counts by priority, source and status.
	Stats(ctx context.Context) (*Stats, error)
}
