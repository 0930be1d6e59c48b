package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/intake/internal/ticket"
)

// Service runs the intake pipeline: active-incident lookup, bounded
// classification with deterministic fallback, rule enforcement, lifecycle
// derivation, persistence, and best-effort notification. One call per inbound
// message; calls are independent and safe to run concurrently.
type Service struct {
	store    ticket.Store
	gateway  *Gateway
	notifier Notifier
	logger   log.Logger
	metrics  *Metrics
}

// NewService creates the intake service. notifier and metrics may be nil.
func NewService(store ticket.Store, gateway *Gateway, notifier Notifier, logger log.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Intake triages one inbound message and persists the resulting ticket.
// The classifier failing never fails the call; a storage failure does.
// If ctx is cancelled before the classifier resolves, nothing is persisted.
func (s *Service) Intake(ctx context.Context, msg *InboundMessage) (*ticket.Ticket, error) {
	start := time.Now()

	L := s.logger.With("source", msg.Source, "sender", msg.Sender)

	active, err := s.store.ActivePrimaryIncidents(ctx)
	if err != nil {
		// Degraded but not fatal: classify without duplicate context.
		L.Warn(ctx, "active incident lookup failed, classifying without duplicate context", "error", err.Error())
		active = nil
	}

	var notes []string
	raw, rawOutput, err := s.gateway.Classify(ctx, msg.Text, active)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			// Caller abandoned the request; do not persist a partial ticket.
			return nil, cerr
		}
		L.Warn(ctx, "classifier unavailable, using fallback", "error", err.Error())
		if s.metrics != nil {
			s.metrics.FallbacksTotal.Inc()
		}
		raw = Fallback(msg.Text)
		notes = append(notes, "classifier unavailable: "+err.Error())
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	resolved, rnotes := Resolve(raw, active)
	for _, n := range rnotes {
		L.Warn(ctx, "triage override", "note", n)
	}
	notes = append(notes, rnotes...)

	if raw.Duplicate && !resolved.Duplicate && s.metrics != nil {
		s.metrics.DuplicateDrops.Inc()
	}

	status := DeriveStatus(&resolved)

	now := time.Now().UTC()
	t := &ticket.Ticket{
		ID:                    NewTicketID(),
		Source:                msg.Source,
		Sender:                msg.Sender,
		Message:               msg.Text,
		Summary:               resolved.Summary,
		Category:              resolved.Category,
		Priority:              resolved.Priority,
		Department:            resolved.Department,
		DepartmentConfidence:  resolved.DepartmentConfidence,
		ReassignedBy:          resolved.ReassignedBy,
		Flagged:               resolved.Flagged,
		Sentiment:             resolved.Sentiment,
		Spam:                  resolved.Spam,
		SpamReason:            resolved.SpamReason,
		Duplicate:             resolved.Duplicate,
		ParentIncidentID:      resolved.ParentIncidentID,
		Role:                  resolved.Role,
		SimilarityScore:       resolved.SimilarityScore,
		SwarmReason:           resolved.SwarmReason,
		Complete:              resolved.Complete,
		ClarificationQuestion: resolved.ClarificationQuestion,
		Active:                resolved.Active,
		HandoffSummary:        resolved.HandoffSummary,
		AIAttempts:            resolved.AIAttempts,
		NextBestAction:        resolved.NextBestAction,
		Status:                status,
		RawOutput:             rawOutput,
		TriageNotes:           joinNotes(notes),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("store ticket: %w", err)
	}

	s.observe(t, time.Since(start).Seconds())

	L.Info(ctx, "ticket triaged",
		"ticket_id", t.ID,
		"status", t.Status,
		"priority", t.Priority,
		"department", t.Department,
		"spam", t.Spam,
		"duplicate", t.Duplicate,
		"fallback", raw.FromFallback,
	)

	// Fire and forget; the triage outcome is already committed.
	if s.notifier != nil {
		go s.publish(context.WithoutCancel(ctx), NewEvent(t))
	}

	return t, nil
}

func (s *Service) publish(ctx context.Context, ev *Event) {
	if err := s.notifier.Publish(ctx, ev); err != nil {
		if s.metrics != nil {
			s.metrics.NotifyFailures.Inc()
		}
		s.logger.Error(ctx, err, "ticket event publish failed", "ticket_id", ev.TicketID)
	}
}

func (s *Service) observe(t *ticket.Ticket, seconds float64) {
	if s.metrics == nil {
		return
	}
	s.metrics.TicketsTotal.WithLabelValues(string(t.Status)).Inc()
	s.metrics.TriageDuration.WithLabelValues(string(t.Status)).Observe(seconds)
	if t.Spam {
		s.metrics.SpamTotal.WithLabelValues(string(t.SpamReason)).Inc()
	}
	if t.Duplicate {
		s.metrics.DuplicatesLinked.Inc()
	}
	if t.ReassignedBy != "" {
		s.metrics.ReroutesTotal.WithLabelValues(string(ValidationReroute)).Inc()
	} else if t.Flagged {
		s.metrics.ReroutesTotal.WithLabelValues(string(ValidationFlagForHuman)).Inc()
	}
}

func joinNotes(notes []string) string {
	return strings.Join(notes, "; ")
}

// NewTicketID generates the public, human-readable ticket id.
func NewTicketID() string {
	return "TCK-" + ulid.Make().String()
}

// Get retrieves a ticket by id.
func (s *Service) Get(ctx context.Context, id string) (*ticket.Ticket, bool, error) {
	return s.store.Get(ctx, id)
}

// List returns tickets newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*ticket.Ticket, error) {
	return s.store.List(ctx, limit, offset)
}

// UpdateStatus applies an admin status change and notifies.
func (s *Service) UpdateStatus(ctx context.Context, id string, status ticket.Status) (*ticket.Ticket, bool, error) {
	t, ok, err := s.store.UpdateStatus(ctx, id, status)
	if err != nil || !ok {
		return t, ok, err
	}
	if s.notifier != nil {
		go s.publish(context.WithoutCancel(ctx), NewEvent(t))
	}
	return t, true, nil
}

// Assign assigns a ticket to an admin.
func (s *Service) Assign(ctx context.Context, id, admin string) (*ticket.Ticket, bool, error) {
	return s.store.Assign(ctx, id, admin)
}

// Stats aggregates ticket counts.
func (s *Service) Stats(ctx context.Context) (*ticket.Stats, error) {
	return s.store.Stats(ctx)
}
