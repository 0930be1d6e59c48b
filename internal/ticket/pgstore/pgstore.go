// Package pgstore provides a PostgreSQL implementation of ticket.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/intake/internal/ticket"
)

var tracer = otel.Tracer("github.com/linnemanlabs/intake/internal/ticket/pgstore")

//go:embed schema.sql
var schema string

// Store persists tickets in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store.
// The pool stays owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const ticketColumns = `id, source, sender, message, summary, category, priority,
	department, department_confidence, reassigned_by, flagged, sentiment,
	is_spam, spam_reason, is_duplicate, parent_incident_id, ticket_role,
	similarity_score, swarm_reason, is_complete, clarification_question,
	is_active, handoff_summary, ai_attempts, next_best_action, status,
	assigned_to, raw_output, triage_notes, created_at, updated_at`

// Insert stores a newly triaged ticket. The id must not already exist.
func (s *Store) Insert(ctx context.Context, t *ticket.Ticket) error {
	ctx, span := tracer.Start(ctx, "pgstore.Insert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	query := `INSERT INTO tickets (` + ticketColumns + `) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
		$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, string(t.Source), t.Sender, t.Message, t.Summary, t.Category, string(t.Priority),
		string(t.Department), t.DepartmentConfidence, t.ReassignedBy, t.Flagged, string(t.Sentiment),
		t.Spam, string(t.SpamReason), t.Duplicate, t.ParentIncidentID, string(t.Role),
		t.SimilarityScore, t.SwarmReason, t.Complete, t.ClarificationQuestion,
		t.Active, t.HandoffSummary, t.AIAttempts, t.NextBestAction, string(t.Status),
		t.AssignedTo, t.RawOutput, t.TriageNotes, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// Get retrieves a ticket by its public id.
func (s *Store) Get(ctx context.Context, id string) (*ticket.Ticket, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	t, err := scanTicketRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if t == nil {
		return nil, false, nil
	}
	return t, true, nil
}

// List returns tickets newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*ticket.Ticket, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var out []*ticket.Ticket
	for rows.Next() {
		t, err := scanTicketRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}
	return out, nil
}

// ActivePrimaryIncidents returns open primary tickets, oldest first, as
// duplicate-matching context for the classifier.
func (s *Store) ActivePrimaryIncidents(ctx context.Context) ([]ticket.IncidentRef, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ActivePrimaryIncidents", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, summary, status FROM tickets
		 WHERE NOT is_spam
		   AND ticket_role = 'Primary'
		   AND status IN ('received', 'processing', 'under_review')
		 ORDER BY created_at`,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query active incidents: %w", err)
	}
	defer rows.Close()

	var refs []ticket.IncidentRef
	for rows.Next() {
		var (
			ref    ticket.IncidentRef
			status string
		)
		if err := rows.Scan(&ref.IncidentID, &ref.Summary, &status); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		ref.Status = ticket.Status(status)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return refs, nil
}

// UpdateStatus sets a ticket's lifecycle status.
func (s *Store) UpdateStatus(ctx context.Context, id string, status ticket.Status) (*ticket.Ticket, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.UpdateStatus", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	query := `UPDATE tickets SET status = $2, updated_at = now() WHERE id = $1 RETURNING ` + ticketColumns
	t, err := scanTicketRow(s.pool.QueryRow(ctx, query, id, string(status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if t == nil {
		return nil, false, nil
	}
	return t, true, nil
}

// Assign sets the admin a ticket is assigned to.
func (s *Store) Assign(ctx context.Context, id, admin string) (*ticket.Ticket, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Assign", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	query := `UPDATE tickets SET assigned_to = $2, updated_at = now() WHERE id = $1 RETURNING ` + ticketColumns
	t, err := scanTicketRow(s.pool.QueryRow(ctx, query, id, admin))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if t == nil {
		return nil, false, nil
	}
	return t, true, nil
}

// Stats aggregates ticket counts. Spam tickets are counted under a dedicated
// "spam" status bucket rather than "cancelled".
func (s *Store) Stats(ctx context.Context) (*ticket.Stats, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Stats", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT priority, source,
		        CASE WHEN is_spam THEN 'spam' ELSE status END,
		        count(*)
		 FROM tickets
		 GROUP BY 1, 2, 3`,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := &ticket.Stats{
		ByPriority: make(map[string]int),
		BySource:   make(map[string]int),
		ByStatus:   make(map[string]int),
	}
	for rows.Next() {
		var (
			priority, source, status string
			n                        int
		)
		if err := rows.Scan(&priority, &source, &status, &n); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByPriority[priority] += n
		stats.BySource[source] += n
		stats.ByStatus[status] += n
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// scanTicketRow scans a single row into a ticket.Ticket.
// Returns (nil, nil) when no row is found.
func scanTicketRow(row pgx.Row) (*ticket.Ticket, error) {
	var (
		t          ticket.Ticket
		source     string
		priority   string
		department string
		sentiment  string
		spamReason string
		role       string
		status     string
	)

	err := row.Scan(
		&t.ID, &source, &t.Sender, &t.Message, &t.Summary, &t.Category, &priority,
		&department, &t.DepartmentConfidence, &t.ReassignedBy, &t.Flagged, &sentiment,
		&t.Spam, &spamReason, &t.Duplicate, &t.ParentIncidentID, &role,
		&t.SimilarityScore, &t.SwarmReason, &t.Complete, &t.ClarificationQuestion,
		&t.Active, &t.HandoffSummary, &t.AIAttempts, &t.NextBestAction, &status,
		&t.AssignedTo, &t.RawOutput, &t.TriageNotes, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	t.Source = ticket.Source(source)
	t.Priority = ticket.Priority(priority)
	t.Department = ticket.Department(department)
	t.Sentiment = ticket.Sentiment(sentiment)
	t.SpamReason = ticket.SpamReason(spamReason)
	t.Role = ticket.Role(role)
	t.Status = ticket.Status(status)

	return &t, nil
}
