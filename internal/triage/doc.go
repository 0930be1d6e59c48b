// Package triage is the business boundary for the intake pipeline. It defines
// the classifier Gateway (bounded AI call), the deterministic Fallback, the
// pure Resolve and DeriveStatus decision functions, and the Service that ties
// them to persistence and notification.
package triage
