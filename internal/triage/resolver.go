package triage

import (
	"fmt"

	"github.com/linnemanlabs/intake/internal/ticket"
)

// Resolve enforces the business rules over a raw classification and returns
// the final form plus audit notes for anything it had to override. Pure: no
// I/O, no hidden state; callers log the notes.
//
// Enforcement order matters; each step may override the previous:
// spam lockdown, completeness check, duplicate linkage, department
// revalidation, handoff narrative.
func Resolve(raw *Classification, active []ticket.IncidentRef) (Classification, []string) {
	c := *raw
	var notes []string

	// Spam overrides everything. A spam ticket carries no department,
	// sentiment or duplicate linkage, and is never active.
	if c.Spam {
		c.Priority = ticket.PriorityNone
		c.Department = ""
		c.DepartmentConfidence = 0
		c.ReassignedBy = ""
		c.Flagged = false
		c.Sentiment = ""
		c.Active = false
		c.Duplicate = false
		c.ParentIncidentID = ""
		c.Role = ticket.RolePrimary
		c.SimilarityScore = 0
		c.SwarmReason = ""
		c.Complete = true
		c.ClarificationQuestion = ""
		c.Validation = nil
		if c.SpamReason == "" {
			c.SpamReason = ticket.SpamNoIntent
		}
		return c, notes
	}

	c.Active = true
	c.SpamReason = ""

	// A non-spam priority of None is a classifier inconsistency.
	if !c.Priority.Valid() || c.Priority == ticket.PriorityNone {
		notes = append(notes, fmt.Sprintf("invalid priority %q replaced with Medium", c.Priority))
		c.Priority = ticket.PriorityMedium
	}

	// Incomplete tickets must carry a clarification question; without one the
	// claim is unusable and gets dropped.
	if !c.Complete && c.ClarificationQuestion == "" {
		notes = append(notes, "incomplete claim without clarification question dropped")
		c.Complete = true
	}

	// Duplicate linkage is only trusted when the parent is actually in the
	// active-incident set supplied for this call.
	if c.Duplicate {
		if inActiveSet(c.ParentIncidentID, active) {
			c.Role = ticket.RoleFollower
		} else {
			notes = append(notes, fmt.Sprintf("duplicate claim dropped: parent %q not in active incident set", c.ParentIncidentID))
			c.Duplicate = false
			c.ParentIncidentID = ""
			c.Role = ticket.RolePrimary
			c.SimilarityScore = 0
			c.SwarmReason = ""
		}
	} else {
		c.ParentIncidentID = ""
		c.Role = ticket.RolePrimary
	}

	applyValidation(&c, &notes)
	c.Validation = nil

	return c, notes
}

// applyValidation folds the department revalidation verdict into the
// classification. No verdict leaves the department untouched at full
// confidence.
func applyValidation(c *Classification, notes *[]string) {
	v := c.Validation
	if v == nil {
		if c.DepartmentConfidence == 0 {
			c.DepartmentConfidence = 100
		}
		return
	}

	switch v.Action {
	case ValidationReroute:
		if !v.Department.Valid() {
			*notes = append(*notes, fmt.Sprintf("reroute to unknown department %q ignored, flagged for review", v.Department))
			c.Flagged = true
			c.DepartmentConfidence = v.Confidence
			return
		}
		c.Department = v.Department
		c.ReassignedBy = "AI"
		c.DepartmentConfidence = v.Confidence
	case ValidationFlagForHuman:
		c.Flagged = true
		c.DepartmentConfidence = v.Confidence
	default:
		c.DepartmentConfidence = v.Confidence
		if c.DepartmentConfidence == 0 {
			c.DepartmentConfidence = 100
		}
	}
}

func inActiveSet(id string, active []ticket.IncidentRef) bool {
	if id == "" {
		return false
	}
	for _, ref := range active {
		if ref.IncidentID == id {
			return true
		}
	}
	return false
}
