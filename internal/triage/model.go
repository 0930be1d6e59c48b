package triage

import "github.com/linnemanlabs/intake/internal/ticket"

// InboundMessage is one raw support message handed to the pipeline. The
// transport layer validates sender and text before invoking Intake.
type InboundMessage struct {
	Source ticket.Source
	Sender string
	Text   string
}

// Classification is the working classification of one message. The gateway or
// fallback produces it, Resolve enforces the business rules over it, and the
// resolved form is copied onto the persisted Ticket.
type Classification struct {
	Summary  string
	Category string
	Priority ticket.Priority

	Department           ticket.Department
	DepartmentConfidence int
	ReassignedBy         string
	Flagged              bool

	Sentiment ticket.Sentiment

	Spam       bool
	SpamReason ticket.SpamReason

	Duplicate        bool
	ParentIncidentID string
	Role             ticket.Role
	SimilarityScore  int
	SwarmReason      string

	Complete              bool
	ClarificationQuestion string

	Active bool

	HandoffSummary string
	AIAttempts     string
	NextBestAction string

	// Validation carries the department revalidation verdict, when the
	// secondary pass completed. Resolve applies it.
	Validation *DeptValidation

	// FromFallback marks classifications produced by the local heuristics
	// instead of the model.
	FromFallback bool
}

// ValidationAction is the department validator's verdict.
type ValidationAction string

const (
	ValidationReroute      ValidationAction = "reroute"
	ValidationKeep         ValidationAction = "keep"
	ValidationFlagForHuman ValidationAction = "flag_for_human"
)

// DeptValidation is the decoded output of the department revalidation pass.
type DeptValidation struct {
	Action     ValidationAction
	Department ticket.Department
	Confidence int // 0..100
}
