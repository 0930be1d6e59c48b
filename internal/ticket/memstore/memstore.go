// Package memstore provides an in-memory implementation of ticket.Store.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/intake/internal/ticket"
)

// Store holds tickets in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	tickets map[string]*ticket.Ticket // ticket ID -> ticket
	order   []string                  // insertion order, oldest first
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{tickets: make(map[string]*ticket.Ticket)}
}

// Insert stores a copy of the ticket. The id must be new.
func (s *Store) Insert(_ context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[t.ID]; exists {
		return fmt.Errorf("ticket %q already exists", t.ID)
	}
	cp := *t
	s.tickets[t.ID] = &cp
	s.order = append(s.order, t.ID)
	return nil
}

// Get retrieves a ticket by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*ticket.Ticket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, false, nil
	}
	cp := *t
	return &cp, true, nil
}

// List returns copies of stored tickets, newest first.
func (s *Store) List(_ context.Context, limit, offset int) ([]*ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.order)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = n
	}

	out := make([]*ticket.Ticket, 0, limit)
	for i := n - 1 - offset; i >= 0 && len(out) < limit; i-- {
		cp := *s.tickets[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}

// ActivePrimaryIncidents returns open primary tickets, oldest first, as
// duplicate-matching context for the classifier.
func (s *Store) ActivePrimaryIncidents(_ context.Context) ([]ticket.IncidentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []ticket.IncidentRef
	for _, id := range s.order {
		t := s.tickets[id]
		if !activeForMatching(t) {
			continue
		}
		refs = append(refs, ticket.IncidentRef{
			IncidentID: t.ID,
			Summary:    t.Summary,
			Status:     t.Status,
		})
	}
	return refs, nil
}

func activeForMatching(t *ticket.Ticket) bool {
	if t.Spam || t.Role != ticket.RolePrimary {
		return false
	}
	switch t.Status {
	case ticket.StatusReceived, ticket.StatusProcessing, ticket.StatusUnderReview:
		return true
	}
	return false
}

// UpdateStatus sets a ticket's lifecycle status. Returns a copy.
func (s *Store) UpdateStatus(_ context.Context, id string, status ticket.Status) (*ticket.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, false, nil
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, true, nil
}

// Assign sets the admin a ticket is assigned to. Returns a copy.
func (s *Store) Assign(_ context.Context, id, admin string) (*ticket.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, false, nil
	}
	t.AssignedTo = admin
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, true, nil
}

// Stats aggregates ticket counts. Spam tickets are counted under a dedicated
// "spam" status bucket rather than "cancelled".
func (s *Store) Stats(_ context.Context) (*ticket.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ticket.Stats{
		ByPriority: make(map[string]int),
		BySource:   make(map[string]int),
		ByStatus:   make(map[string]int),
	}
	for _, t := range s.tickets {
		stats.ByPriority[string(t.Priority)]++
		stats.BySource[string(t.Source)]++
		if t.Spam {
			stats.ByStatus["spam"]++
		} else {
			stats.ByStatus[string(t.Status)]++
		}
	}
	return stats, nil
}
