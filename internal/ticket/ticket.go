// Package ticket defines the persisted support-ticket record, the enums the
// triage pipeline decides over, and the Store interface for persistence.
package ticket

import "time"

// Status is the canonical lifecycle stage of a ticket.
type Status string

const (
	// StatusReceived means stored but not yet picked up by anyone.
	StatusReceived Status = "received"

	// StatusWaiting means triage needs clarification from the sender.
	StatusWaiting Status = "waiting"

	// StatusProcessing means triaged and in the active work queue.
	StatusProcessing Status = "processing"

	// StatusUnderReview means a human is actively looking at it.
	StatusUnderReview Status = "under_review"

	// StatusResolved means closed successfully.
	StatusResolved Status = "resolved"

	// StatusCancelled means discarded, e.g. spam.
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a status string from an API caller.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusReceived, StatusWaiting, StatusProcessing, StatusUnderReview, StatusResolved, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

// Source identifies the intake channel a message arrived on.
type Source string

const (
	SourceChat  Source = "Chat"
	SourceEmail Source = "Email"
	SourceWeb   Source = "Web"
)

// Priority is the classifier-assigned urgency. PriorityNone is only valid on
// spam tickets.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
	PriorityNone     Priority = "None"
)

// Valid reports whether p is a known priority value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical, PriorityNone:
		return true
	}
	return false
}

// Department is the team a ticket is routed to. Empty means unrouted
// (spam, or revalidation could not settle on one).
type Department string

const (
	DeptNetwork  Department = "Network"
	DeptHardware Department = "Hardware"
	DeptSoftware Department = "Software"
	DeptAccess   Department = "Access"
)

// Valid reports whether d is a known department value.
func (d Department) Valid() bool {
	switch d {
	case DeptNetwork, DeptHardware, DeptSoftware, DeptAccess:
		return true
	}
	return false
}

// Sentiment is the classifier's read of the sender's tone. Empty iff spam.
type Sentiment string

const (
	SentimentCalm       Sentiment = "Calm"
	SentimentFrustrated Sentiment = "Frustrated"
	SentimentAngry      Sentiment = "Angry"
)

// Valid reports whether s is a known sentiment value.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentCalm, SentimentFrustrated, SentimentAngry:
		return true
	}
	return false
}

// Role marks a ticket's place in a duplicate cluster. The first report of an
// incident is Primary; later reports of the same incident are Followers.
type Role string

const (
	RolePrimary  Role = "Primary"
	RoleFollower Role = "Follower"
)

// SpamReason tags why a ticket was judged spam.
type SpamReason string

const (
	SpamNoIntent   SpamReason = "no_intent"
	SpamRandomText SpamReason = "random_text"
)

// Ticket is the durable record produced by one triage run. The triage core
// creates it exactly once; only later admin actions mutate it.
type Ticket struct {
	ID      string `json:"ticket_id"`
	Source  Source `json:"source"`
	Sender  string `json:"sender"`
	Message string `json:"message"`

	Summary  string   `json:"summary"`
	Category string   `json:"category"`
	Priority Priority `json:"priority"`

	Department           Department `json:"department,omitempty"`
	DepartmentConfidence int        `json:"department_confidence"`
	ReassignedBy         string     `json:"reassigned_by,omitempty"`
	Flagged              bool       `json:"flagged"`

	Sentiment Sentiment `json:"sentiment,omitempty"`

	Spam       bool       `json:"is_spam"`
	SpamReason SpamReason `json:"spam_reason,omitempty"`

	Duplicate        bool   `json:"is_duplicate"`
	ParentIncidentID string `json:"parent_incident_id,omitempty"`
	Role             Role   `json:"ticket_role"`
	SimilarityScore  int    `json:"similarity_score,omitempty"`
	SwarmReason      string `json:"swarm_reason,omitempty"`

	Complete              bool   `json:"is_complete"`
	ClarificationQuestion string `json:"clarification_question,omitempty"`

	Active bool `json:"is_active"`

	HandoffSummary string `json:"handoff_summary,omitempty"`
	AIAttempts     string `json:"ai_attempts,omitempty"`
	NextBestAction string `json:"next_best_action,omitempty"`

	Status     Status `json:"status"`
	AssignedTo string `json:"assigned_to,omitempty"`

	RawOutput   string `json:"raw_output,omitempty"`
	TriageNotes string `json:"triage_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IncidentRef is a read-only snapshot of an open primary incident, supplied to
// the classifier as duplicate-matching context.
type IncidentRef struct {
	IncidentID string `json:"incident_id"`
	Summary    string `json:"summary"`
	Status     Status `json:"status"`
}

// Stats aggregates ticket counts for the dashboard. Spam is counted under its
// own status bucket instead of "cancelled".
type Stats struct {
	ByPriority map[string]int `json:"by_priority"`
	BySource   map[string]int `json:"by_source"`
	ByStatus   map[string]int `json:"by_status"`
}
