package app

import (
	"sort"

	"pulsequiz/internal/domain"
)

// submitChallenge records one player's dispute against a question. The
// first submission for a question auto-creates an open resolution record.
// A player may challenge a given question once; repeats are rejected, and
// later submissions from other players are additive.
func (s *Session) submitChallenge(playerID string, questionIndex int, note, category, source string) (domain.ChallengeSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[playerID]
	if !ok {
		return domain.ChallengeSubmission{}, domain.ErrPlayerNotFound
	}
	if s.status == domain.StatusLobby {
		return domain.ChallengeSubmission{}, domain.ErrNotPlaying
	}
	if questionIndex < 0 || questionIndex >= len(s.questions) {
		return domain.ChallengeSubmission{}, domain.ErrQuestionNotFound
	}
	if _, ok := s.challenges[questionIndex][playerID]; ok {
		return domain.ChallengeSubmission{}, domain.ErrDuplicateChallenge
	}

	submission := &domain.ChallengeSubmission{
		QuestionIndex: questionIndex,
		PlayerID:      playerID,
		Nickname:      player.Nickname,
		Note:          note,
		Category:      category,
		Source:        source,
		CreatedAt:     s.clock.Now(),
	}
	if s.challenges[questionIndex] == nil {
		s.challenges[questionIndex] = make(map[string]*domain.ChallengeSubmission)
	}
	s.challenges[questionIndex][playerID] = submission

	if _, ok := s.resolutions[questionIndex]; !ok {
		s.resolutions[questionIndex] = &domain.ChallengeResolution{
			QuestionIndex: questionIndex,
			Status:        domain.ResolutionOpen,
			UpdatedAt:     s.clock.Now(),
		}
	}
	return *submission, nil
}

var resolutionOrder = map[domain.ResolutionStatus]int{
	domain.ResolutionOpen:        0,
	domain.ResolutionUnderReview: 1,
	domain.ResolutionResolved:    2,
}

// resolveChallenge updates the resolution record for a challenged
// question. Status only moves forward; verdict, note and published may be
// updated at any stage, so a resolved dispute can still be re-published.
func (s *Session) resolveChallenge(questionIndex int, status domain.ResolutionStatus, verdict, note string, published bool) (domain.ChallengeResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.resolutions[questionIndex]
	if !ok {
		return domain.ChallengeResolution{}, domain.ErrQuestionNotFound
	}
	if _, known := resolutionOrder[status]; !known {
		return domain.ChallengeResolution{}, domain.ErrValidation
	}
	if resolutionOrder[status] < resolutionOrder[res.Status] {
		return domain.ChallengeResolution{}, domain.ErrInvalidPhase
	}

	res.Status = status
	res.Verdict = verdict
	res.Note = note
	res.Published = published
	res.UpdatedAt = s.clock.Now()
	return *res, nil
}

// recordVerification stores the external collaborator's opinion. It is
// unpublished until the host explicitly discloses it.
func (s *Session) recordVerification(v domain.AIVerification) (domain.AIVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.QuestionIndex < 0 || v.QuestionIndex >= len(s.questions) {
		return domain.AIVerification{}, domain.ErrQuestionNotFound
	}
	v.CreatedAt = s.clock.Now()
	s.verifications[v.QuestionIndex] = &v
	return v, nil
}

func (s *Session) setVerificationPublished(questionIndex int, published bool) (domain.AIVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.verifications[questionIndex]
	if !ok {
		return domain.AIVerification{}, domain.ErrQuestionNotFound
	}
	v.Published = published
	return *v, nil
}

// reconcile applies a score-correction policy to one question and
// recomputes every player's score. Only permitted once revealed. Applying
// a new policy replaces the prior one; each application appends exactly
// one immutable ScoreAuditEntry capturing the per-player delta.
func (s *Session) reconcile(questionIndex int, kind domain.PolicyKind, acceptedOptions []int, actor string) (domain.ScoreAuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusRevealed {
		return domain.ScoreAuditEntry{}, domain.ErrNotRevealed
	}
	if questionIndex < 0 || questionIndex >= len(s.questions) {
		return domain.ScoreAuditEntry{}, domain.ErrQuestionNotFound
	}

	question := s.questions[questionIndex]
	policy := domain.ReconciliationPolicy{
		QuestionIndex: questionIndex,
		Kind:          kind,
		AppliedBy:     actor,
		AppliedAt:     s.clock.Now(),
	}

	switch kind {
	case domain.PolicyVoid, domain.PolicyAwardAll:
	case domain.PolicyAcceptMultiple:
		accepted := map[int]bool{question.Correct: true}
		for _, opt := range acceptedOptions {
			if opt < 0 || opt >= len(question.Options) {
				return domain.ScoreAuditEntry{}, domain.ErrValidation
			}
			accepted[opt] = true
		}
		policy.AcceptedOptions = make([]int, 0, len(accepted))
		for opt := range accepted {
			policy.AcceptedOptions = append(policy.AcceptedOptions, opt)
		}
		sort.Ints(policy.AcceptedOptions)
	default:
		return domain.ScoreAuditEntry{}, domain.ErrValidation
	}

	before := make(map[string]int, len(s.players))
	for id, p := range s.players {
		before[id] = p.Score
	}

	s.policies[questionIndex] = &policy
	s.calculateScoresLocked()

	entry := domain.ScoreAuditEntry{
		QuestionIndex: questionIndex,
		Policy:        policy,
		Deltas:        make(map[string]int, len(s.players)),
		AppliedAt:     policy.AppliedAt,
	}
	for id, p := range s.players {
		entry.Deltas[id] = p.Score - before[id]
	}
	s.audit = append(s.audit, entry)
	return entry, nil
}

// ChallengeBoard exposes the workflow state for the host dashboard.
type ChallengeBoard struct {
	Submissions   []domain.ChallengeSubmission  `json:"submissions"`
	Resolutions   []domain.ChallengeResolution  `json:"resolutions"`
	Verifications []domain.AIVerification       `json:"verifications"`
	Policies      []domain.ReconciliationPolicy `json:"policies"`
}

func (s *Session) challengeState() ChallengeBoard {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := ChallengeBoard{
		Submissions:   []domain.ChallengeSubmission{},
		Resolutions:   []domain.ChallengeResolution{},
		Verifications: []domain.AIVerification{},
		Policies:      []domain.ReconciliationPolicy{},
	}
	for _, byPlayer := range s.challenges {
		for _, sub := range byPlayer {
			snap.Submissions = append(snap.Submissions, *sub)
		}
	}
	sort.Slice(snap.Submissions, func(i, j int) bool {
		a, b := snap.Submissions[i], snap.Submissions[j]
		if a.QuestionIndex != b.QuestionIndex {
			return a.QuestionIndex < b.QuestionIndex
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	for _, res := range s.resolutions {
		snap.Resolutions = append(snap.Resolutions, *res)
	}
	sort.Slice(snap.Resolutions, func(i, j int) bool {
		return snap.Resolutions[i].QuestionIndex < snap.Resolutions[j].QuestionIndex
	})
	for _, v := range s.verifications {
		snap.Verifications = append(snap.Verifications, *v)
	}
	sort.Slice(snap.Verifications, func(i, j int) bool {
		return snap.Verifications[i].QuestionIndex < snap.Verifications[j].QuestionIndex
	})
	for _, p := range s.policies {
		snap.Policies = append(snap.Policies, *p)
	}
	sort.Slice(snap.Policies, func(i, j int) bool {
		return snap.Policies[i].QuestionIndex < snap.Policies[j].QuestionIndex
	})
	return snap
}

// auditLog returns the append-only reconciliation ledger in application
// order.
func (s *Session) auditLog() []domain.ScoreAuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ScoreAuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// currentPolicy is the derived last-write-wins view of a question's
// active reconciliation policy.
func (s *Session) currentPolicy(questionIndex int) (domain.ReconciliationPolicy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[questionIndex]
	if !ok {
		return domain.ReconciliationPolicy{}, false
	}
	return *p, true
}

// question returns a copy of the question at the given index.
func (s *Session) question(questionIndex int) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if questionIndex < 0 || questionIndex >= len(s.questions) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return s.questions[questionIndex], nil
}

// challengeNotes collects the free-text notes players attached to a
// question's challenges, for the verification prompt.
func (s *Session) challengeNotes(questionIndex int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var notes []string
	for _, sub := range s.challenges[questionIndex] {
		if sub.Note != "" {
			notes = append(notes, sub.Note)
		}
	}
	sort.Strings(notes)
	return notes
}
