package app

import (
	"math"
	"sort"

	"pulsequiz/internal/domain"
)

// questionOutcome is the single per-question scoring rule shared by the
// final reveal and the live leaderboard. No policy: exact match with the
// original correct index. Void: the question contributes nothing.
// Award-all: every player earns the points and counts as correct,
// answered or not. Accept-multiple: any choice in the accepted set earns
// points; the original correct index is implicitly always accepted.
func questionOutcome(q domain.Question, policy *domain.ReconciliationPolicy, choice int, answered bool) (points int, correct bool) {
	if policy != nil {
		switch policy.Kind {
		case domain.PolicyVoid:
			return 0, false
		case domain.PolicyAwardAll:
			return q.PointValue(), true
		case domain.PolicyAcceptMultiple:
			if answered && policy.Accepts(choice, q.Correct) {
				return q.PointValue(), true
			}
			return 0, false
		}
	}
	if answered && choice == q.Correct {
		return q.PointValue(), true
	}
	return 0, false
}

// calculateScoresLocked recomputes every player's cumulative score from
// scratch, walking questions in index order and applying each recorded
// reconciliation policy. Caller holds s.mu.
func (s *Session) calculateScoresLocked() {
	for _, p := range s.players {
		score := 0
		for i, q := range s.questions {
			choice, answered := p.Answers[i]
			points, _ := questionOutcome(q, s.policies[i], choice, answered)
			score += points
		}
		p.Score = score
	}
}

// totalAnswerTime is the ranking tie-breaker: the total time a player
// spent answering, across all answered questions.
func totalAnswerTime(p *domain.Player) float64 {
	var total float64
	for _, t := range p.AnswerTimes {
		total += t
	}
	return total
}

// rankedPlayers sorts by score descending, tie-broken by ascending total
// answer time. Rank is the 1-based position; ties are not collapsed.
func (s *Session) rankedPlayersLocked() []*domain.Player {
	ranked := make([]*domain.Player, 0, len(s.players))
	for _, p := range s.players {
		ranked = append(ranked, p)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return totalAnswerTime(ranked[i]) < totalAnswerTime(ranked[j])
	})
	return ranked
}

// leaderboard computes the live standings with the same per-question rule
// as the reveal, so the two views can never disagree.
func (s *Session) leaderboard() []domain.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct {
		player    *domain.Player
		score     int
		correct   int
		totalTime float64
	}
	rows := make([]row, 0, len(s.players))
	for _, p := range s.players {
		r := row{player: p, totalTime: totalAnswerTime(p)}
		for i, q := range s.questions {
			choice, answered := p.Answers[i]
			points, correct := questionOutcome(q, s.policies[i], choice, answered)
			r.score += points
			if correct {
				r.correct++
			}
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].totalTime < rows[j].totalTime
	})

	entries := make([]domain.LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = domain.LeaderboardEntry{
			ID:             r.player.ID,
			Nickname:       r.player.Nickname,
			Score:          r.score,
			Rank:           i + 1,
			CorrectAnswers: r.correct,
			TotalAnswers:   len(r.player.Answers),
		}
	}
	return entries
}

// revealResults builds the end-of-round disclosure. With an empty playerID
// the full host view is returned: every question's metadata plus all
// resolution and verification details. With a player's ID, each question
// additionally carries that player's own answer and correctness, and
// resolutions and verifications appear only when published.
func (s *Session) revealResults(playerID string) domain.RevealResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealResultsLocked(playerID)
}

func (s *Session) revealResultsLocked(playerID string) domain.RevealResults {
	s.calculateScoresLocked()

	ranked := s.rankedPlayersLocked()
	players := make([]domain.PlayerResult, len(ranked))
	for i, p := range ranked {
		players[i] = domain.PlayerResult{
			ID:        p.ID,
			Nickname:  p.Nickname,
			Score:     p.Score,
			Rank:      i + 1,
			TotalTime: math.Round(totalAnswerTime(p)*100) / 100,
		}
	}

	requesting := s.players[playerID]
	hostView := playerID == ""

	questions := make([]domain.QuestionResult, len(s.questions))
	for i, q := range s.questions {
		result := domain.QuestionResult{
			Question:    q.Question,
			Options:     q.Options,
			Correct:     q.Correct,
			Explanation: q.Explanation,
			Points:      q.PointValue(),
		}

		if requesting != nil {
			if choice, ok := requesting.Answers[i]; ok {
				c := choice
				result.YourAnswer = &c
				_, correct := questionOutcome(q, s.policies[i], choice, true)
				result.AnsweredCorrectly = &correct
			}
		}

		if res, ok := s.resolutions[i]; ok && (hostView || res.Published) {
			copied := *res
			result.Resolution = &copied
		}
		if ver, ok := s.verifications[i]; ok && (hostView || ver.Published) {
			copied := *ver
			result.Verification = &copied
		}
		if pol, ok := s.policies[i]; ok {
			copied := *pol
			result.Policy = &copied
		}
		questions[i] = result
	}

	return domain.RevealResults{Players: players, Questions: questions}
}

// revealedPayload is the "revealed" event payload. The shared form carries
// the host view; PersonalizeFor swaps in the recipient player's
// personalized results, precomputed at reveal time so the broadcast router
// never re-enters the aggregate.
type revealedPayload struct {
	Results domain.RevealResults `json:"results"`

	personal map[string]domain.RevealResults
}

func (p revealedPayload) PersonalizeFor(role domain.Role, recipientID string) (any, bool) {
	if role != domain.RolePlayer {
		return nil, false
	}
	results, ok := p.personal[recipientID]
	if !ok {
		return nil, false
	}
	return revealedPayload{Results: results}, true
}

// revealPayload snapshots the shared and per-player reveal results in one
// locked pass.
func (s *Session) revealPayload() revealedPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := revealedPayload{
		Results:  s.revealResultsLocked(""),
		personal: make(map[string]domain.RevealResults, len(s.players)),
	}
	for id := range s.players {
		payload.personal[id] = s.revealResultsLocked(id)
	}
	return payload
}
