// File: api/schemas/results.go
package schemas

import "time"

// MatchRule records which resolver rule selected a candidate, for diagnostics
// and for the translation memory's learning signal.
type MatchRule string

const (
	MatchExact       MatchRule = "exact"
	MatchTranslation MatchRule = "translation"
	MatchFuzzy       MatchRule = "fuzzy"
	MatchOrdinal     MatchRule = "ordinal"
	MatchSpatial     MatchRule = "spatial"
	MatchContainer   MatchRule = "container"
	MatchMenu        MatchRule = "menu"
	MatchShortcut    MatchRule = "shortcut"
)

// Candidate is a scored Element proposed as the referent of a descriptor.
// It exists only for the duration of one resolution call; the Element pointer
// is owned by the Snapshot it was resolved against.
type Candidate struct {
	Element   *Element  `json:"element"`
	Score     float64   `json:"score"`
	Rule      MatchRule `json:"rule"`
	Rationale string    `json:"rationale,omitempty"`
}

// Suggestion is one rejected near-miss returned with a NotFound outcome so
// callers can render a "did you mean" list.
type Suggestion struct {
	Label string  `json:"label"`
	Role  Role    `json:"role"`
	Score float64 `json:"score"`
}

// ElementRef identifies an element across snapshots by structural identity
// (role + label + tree path), not by the volatile platform handle.
type ElementRef struct {
	Identity string `json:"identity"`
	Role     Role   `json:"role"`
	Label    string `json:"label"`
	Bounds   Rect   `json:"bounds"`
}

// ElementChange describes one element present in both snapshots whose label,
// bounds, or flags changed.
type ElementChange struct {
	Ref     ElementRef `json:"ref"`
	Changed []string   `json:"changed"` // subset of "label", "bounds", "flags"
	Before  string     `json:"before,omitempty"`
	After   string     `json:"after,omitempty"`
}

// DiffResult is the structural comparison of two Snapshots of the same
// application. An element with identical identity and identical subtree hash
// in both captures is never reported.
type DiffResult struct {
	Added    []ElementRef    `json:"added,omitempty"`
	Removed  []ElementRef    `json:"removed,omitempty"`
	Modified []ElementChange `json:"modified,omitempty"`
}

// Empty reports whether the diff observed no structural change. An empty diff
// after an action is meaningful and is surfaced, not hidden.
func (d *DiffResult) Empty() bool {
	return d == nil || (len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0)
}

// SegmentResult reports one segment of an intent chain.
type SegmentResult struct {
	Raw        string      `json:"raw"`
	Candidate  *ElementRef `json:"candidate,omitempty"`
	Rule       MatchRule   `json:"rule,omitempty"`
	Dispatched bool        `json:"dispatched"`
	Diff       *DiffResult `json:"diff,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// ExecutionResult bundles the outcome of one act call: per-segment reports
// and how far the chain got. A chain aborts at the first failed segment.
type ExecutionResult struct {
	OperationID string          `json:"operation_id"`
	Segments    []SegmentResult `json:"segments"`
	Attempted   int             `json:"attempted"`
	Completed   int             `json:"completed"`
	Total       int             `json:"total"`
}

// Succeeded reports whether every segment of the chain completed.
func (r *ExecutionResult) Succeeded() bool {
	return r != nil && r.Completed == r.Total
}

// ActionJournalEntry is one append-only record of an attempted action. It
// serves both verification reporting and the translation memory's training
// signal.
type ActionJournalEntry struct {
	ID          string      `json:"id"`
	OperationID string      `json:"operation_id"`
	AppID       string      `json:"app_id"`
	Intent      string      `json:"intent"`
	Descriptor  string      `json:"descriptor,omitempty"`
	Candidate   *ElementRef `json:"candidate,omitempty"`
	Failure     string      `json:"failure,omitempty"`
	DiffSummary string      `json:"diff_summary,omitempty"`
	At          time.Time   `json:"at"`
}

// TranslationEntry is a learned label substitution scoped to one application.
// Canonical is the Descriptor.String() form the caller asked for; Substitute
// is the label that actually succeeded.
type TranslationEntry struct {
	AppID      string    `json:"app_id"`
	Canonical  string    `json:"canonical"`
	Substitute string    `json:"substitute"`
	Role       Role      `json:"role,omitempty"`
	Confidence int       `json:"confidence"`
	LastSeen   time.Time `json:"last_seen"`
}

// Preference is a learned shortcut for a canonical action under one app,
// offered to the executor as a faster first attempt. Weight is demoted, not
// deleted, when the shortcut's post-action diff shows no relevant change.
type Preference struct {
	AppID    string    `json:"app_id"`
	Action   string    `json:"action"`
	Shortcut []string  `json:"shortcut"` // key sequence
	Weight   int       `json:"weight"`
	LastUsed time.Time `json:"last_used"`
}
