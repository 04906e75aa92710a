package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"pulsequiz/internal/ai"
	"pulsequiz/internal/domain"
	"pulsequiz/internal/realtime"
)

// SubmitChallenge records a player's dispute against a question and tells
// the host about it. Observers never see dispute traffic.
func (s *Service) SubmitChallenge(code, playerID string, questionIndex int, note, category, source string) (domain.ChallengeSubmission, error) {
	sess, err := s.session(code)
	if err != nil {
		return domain.ChallengeSubmission{}, err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	submission, err := sess.submitChallenge(playerID, questionIndex, note, category, source)
	if err != nil {
		return domain.ChallengeSubmission{}, err
	}
	s.hub.Broadcast(code, domain.Event{
		Type:     domain.EventChallengeSubmitted,
		Payload:  map[string]any{"challenge": submission},
		HostOnly: true,
	}, realtime.BroadcastOptions{})
	return submission, nil
}

// Challenges returns the full workflow state for the host dashboard.
func (s *Service) Challenges(code, hostToken string) (ChallengeBoard, error) {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return ChallengeBoard{}, err
	}
	return sess.challengeState(), nil
}

// ResolveChallenge updates a challenged question's resolution record. A
// published resolution is announced to everyone but observers; an
// unpublished one only to the host.
func (s *Service) ResolveChallenge(code, hostToken string, questionIndex int, status domain.ResolutionStatus, verdict, note string, published bool) (domain.ChallengeResolution, error) {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return domain.ChallengeResolution{}, err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	resolution, err := sess.resolveChallenge(questionIndex, status, verdict, note, published)
	if err != nil {
		return domain.ChallengeResolution{}, err
	}
	s.hub.Broadcast(code, domain.Event{
		Type:             domain.EventChallengeResolved,
		Payload:          map[string]any{"resolution": resolution},
		HostOnly:         !resolution.Published,
		ExcludeObservers: true,
	}, realtime.BroadcastOptions{})
	return resolution, nil
}

// VerifyChallenge asks the text-generation collaborator for an opinion on
// a disputed question. It is host-triggered only, bounded by the client's
// timeout, and the session is never locked across the call. The verdict is
// stored unpublished.
func (s *Service) VerifyChallenge(ctx context.Context, code, hostToken string, questionIndex int) (domain.AIVerification, error) {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return domain.AIVerification{}, err
	}
	question, err := sess.question(questionIndex)
	if err != nil {
		return domain.AIVerification{}, err
	}
	if s.gen == nil {
		return domain.AIVerification{}, domain.ErrUpstreamUnavailable
	}

	verdict, err := ai.VerifyAnswer(ctx, s.gen, ai.VerifyInput{
		Question:       question,
		ChallengeNotes: sess.challengeNotes(questionIndex),
	})
	if err != nil {
		log.Warn().Err(err).Str("session", code).Int("question_index", questionIndex).Msg("verification failed")
		return domain.AIVerification{}, err
	}

	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	verification, err := sess.recordVerification(domain.AIVerification{
		QuestionIndex:    questionIndex,
		Verdict:          verdict.Verdict,
		Confidence:       verdict.Confidence,
		Rationale:        verdict.Rationale,
		SuggestedCorrect: verdict.SuggestedCorrect,
	})
	if err != nil {
		return domain.AIVerification{}, err
	}
	s.hub.Broadcast(code, domain.Event{
		Type:     domain.EventVerificationReady,
		Payload:  map[string]any{"verification": verification},
		HostOnly: true,
	}, realtime.BroadcastOptions{})
	return verification, nil
}

// PublishVerification toggles player visibility of a stored verification.
func (s *Service) PublishVerification(code, hostToken string, questionIndex int, published bool) (domain.AIVerification, error) {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return domain.AIVerification{}, err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	verification, err := sess.setVerificationPublished(questionIndex, published)
	if err != nil {
		return domain.AIVerification{}, err
	}
	s.hub.Broadcast(code, domain.Event{
		Type:             domain.EventVerificationReady,
		Payload:          map[string]any{"verification": verification},
		HostOnly:         !verification.Published,
		ExcludeObservers: true,
	}, realtime.BroadcastOptions{})
	return verification, nil
}

// Reconcile applies a score-correction policy to a revealed question,
// appends the audit entry and announces the new standings. Per-player
// deltas are withheld from observers.
func (s *Service) Reconcile(code, hostToken string, questionIndex int, kind domain.PolicyKind, acceptedOptions []int, actor string) (domain.ScoreAuditEntry, error) {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return domain.ScoreAuditEntry{}, err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	entry, err := sess.reconcile(questionIndex, kind, acceptedOptions, actor)
	if err != nil {
		return domain.ScoreAuditEntry{}, err
	}
	s.hub.Broadcast(code, domain.Event{
		Type:             domain.EventScoresReconciled,
		Payload:          map[string]any{"audit": entry},
		ExcludeObservers: true,
	}, realtime.BroadcastOptions{})
	log.Info().
		Str("session", code).
		Int("question_index", questionIndex).
		Str("policy", string(kind)).
		Msg("scores reconciled")
	return entry, nil
}

// AuditLog returns the append-only reconciliation ledger.
func (s *Service) AuditLog(code, hostToken string) ([]domain.ScoreAuditEntry, error) {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return nil, err
	}
	return sess.auditLog(), nil
}
