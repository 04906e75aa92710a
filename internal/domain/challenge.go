package domain

import "time"

// ResolutionStatus tracks where a challenged question sits in the
// dispute workflow.
type ResolutionStatus string

const (
	ResolutionOpen        ResolutionStatus = "open"
	ResolutionUnderReview ResolutionStatus = "under_review"
	ResolutionResolved    ResolutionStatus = "resolved"
)

// PolicyKind selects how a reconciled question is rescored.
type PolicyKind string

const (
	// PolicyVoid removes the question from scoring entirely.
	PolicyVoid PolicyKind = "void"
	// PolicyAwardAll grants every player the question's points.
	PolicyAwardAll PolicyKind = "award_all"
	// PolicyAcceptMultiple grants points for any choice in the accepted
	// set. The original correct index is always accepted.
	PolicyAcceptMultiple PolicyKind = "accept_multiple"
)

// ChallengeSubmission is one player's dispute against one question.
// At most one per (question index, player); submissions are additive
// and never overwritten.
type ChallengeSubmission struct {
	QuestionIndex int       `json:"questionIndex"`
	PlayerID      string    `json:"playerId"`
	Nickname      string    `json:"nickname"`
	Note          string    `json:"note,omitempty"`
	Category      string    `json:"category,omitempty"`
	Source        string    `json:"source,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ChallengeResolution is the host-managed state of a challenged question.
// Published gates whether players can see it in personalized results.
type ChallengeResolution struct {
	QuestionIndex int              `json:"questionIndex"`
	Status        ResolutionStatus `json:"status"`
	Verdict       string           `json:"verdict,omitempty"`
	Note          string           `json:"note,omitempty"`
	Published     bool             `json:"published"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// AIVerification is the external collaborator's opinion on a disputed
// question. It is independent of the resolution and independently published.
type AIVerification struct {
	QuestionIndex    int       `json:"questionIndex"`
	Verdict          string    `json:"verdict"`
	Confidence       float64   `json:"confidence"`
	Rationale        string    `json:"rationale,omitempty"`
	SuggestedCorrect *int      `json:"suggestedCorrect,omitempty"`
	Published        bool      `json:"published"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ReconciliationPolicy is the host-applied rescoring rule for one question.
// Re-applying replaces the prior policy; the audit log keeps the history.
type ReconciliationPolicy struct {
	QuestionIndex   int        `json:"questionIndex"`
	Kind            PolicyKind `json:"kind"`
	AcceptedOptions []int      `json:"acceptedOptions,omitempty"`
	AppliedBy       string     `json:"appliedBy,omitempty"`
	AppliedAt       time.Time  `json:"appliedAt"`
}

// Accepts reports whether choice earns points under this policy.
func (p ReconciliationPolicy) Accepts(choice, originalCorrect int) bool {
	switch p.Kind {
	case PolicyVoid:
		return false
	case PolicyAwardAll:
		return true
	case PolicyAcceptMultiple:
		if choice == originalCorrect {
			return true
		}
		for _, accepted := range p.AcceptedOptions {
			if choice == accepted {
				return true
			}
		}
		return false
	default:
		return choice == originalCorrect
	}
}

// ScoreAuditEntry records one reconciliation application and the score
// delta it produced per player. Entries are immutable and append-only,
// giving a replayable history of every scoring change.
type ScoreAuditEntry struct {
	QuestionIndex int                  `json:"questionIndex"`
	Policy        ReconciliationPolicy `json:"policy"`
	Deltas        map[string]int       `json:"deltas"` // playerId -> score delta
	AppliedAt     time.Time            `json:"appliedAt"`
}
