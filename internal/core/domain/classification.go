package domain

import "strings"

// Holding locations, relative to the taxonomy root.
const (
	// UnsortedDestination receives files no rule matched.
	UnsortedDestination = "09_Inbox/01_Unsorted"

	// UnresolvedDestination receives files whose winning template had a
	// placeholder that could not be resolved.
	UnresolvedDestination = "09_Inbox/02_Unresolved"

	// DefaultReviewFloor is the confidence below which review is forced.
	DefaultReviewFloor = 0.70
)

// ReviewReason explains why a result needs review.
type ReviewReason string

const (
	ReviewReasonNone                ReviewReason = ""
	ReviewReasonNoMatch             ReviewReason = "no_match"
	ReviewReasonLowConfidence       ReviewReason = "low_confidence"
	ReviewReasonUnresolvedTemplates ReviewReason = "unresolved_placeholder"
)

// RuleMatch is one rule that matched a file.
type RuleMatch struct {
	// Rule is the rule name.
	Rule string

	// Index is the rule's position in the rule set.
	Index int

	// Signal is the rule's signal type.
	Signal SignalType

	// Destination is the rendered folder; unresolved placeholders remain
	// in braces.
	Destination string

	// Strength is the match-strength multiplier in (0,1].
	Strength float64

	// Confidence is the rule's base confidence scaled by Strength.
	Confidence float64

	// Unresolved lists placeholders the template could not resolve.
	Unresolved []string

	// Conflicting is true when the match proposed a destination other
	// than the winner.
	Conflicting bool
}

// ClassificationResult is the Rule Engine output for one record.
// It is never mutated; reclassifying produces a new result.
type ClassificationResult struct {
	// Path is the classified file.
	Path string

	// Destination is the relative destination path including the file name.
	// Holding locations are used when review is forced by missing matches
	// or unresolved placeholders.
	Destination string

	// Proposed is the winning template as rendered, placeholders and all.
	Proposed string

	// Confidence is the winning destination's maximum rule confidence.
	Confidence float64

	// Matches lists every matching rule in rule order.
	Matches []RuleMatch

	// NeedsReview routes the file to the review queue.
	NeedsReview bool

	// Reason explains NeedsReview.
	Reason ReviewReason

	// RuleSetVersion identifies the rules that produced the result.
	RuleSetVersion string
}

// Winner returns the first non-conflicting match, if any.
func (r *ClassificationResult) Winner() (RuleMatch, bool) {
	for _, m := range r.Matches {
		if !m.Conflicting && m.Confidence == r.Confidence {
			return m, true
		}
	}
	return RuleMatch{}, false
}

// InHolding reports whether the destination is a holding location.
func (r *ClassificationResult) InHolding() bool {
	return r.Reason == ReviewReasonNoMatch || r.Reason == ReviewReasonUnresolvedTemplates
}

// IsHoldingDestination reports whether a relative destination lies in one
// of the holding locations.
func IsHoldingDestination(dest string) bool {
	dest = strings.TrimPrefix(dest, "/")
	return strings.HasPrefix(dest, UnsortedDestination) || strings.HasPrefix(dest, UnresolvedDestination)
}
