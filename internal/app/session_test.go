package app

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"pulsequiz/internal/domain"
)

func testQuestions() []domain.Question {
	return []domain.Question{
		{
			Question:    "What is 2 + 2?",
			Options:     []string{"3", "4", "5", "22"},
			Correct:     1,
			Explanation: "Basic arithmetic.",
		},
		{
			Question: "Which planet is closest to the sun?",
			Options:  []string{"Venus", "Earth", "Mercury", "Mars"},
			Correct:  2,
			Points:   2,
		},
	}
}

func newGame(t *testing.T) (*Session, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	sess := NewSessionWithClock("ABC234", "token", domain.GameSettings{
		TimerSeconds:        15,
		AutoProgressPercent: 90,
	}, clock)
	return sess, clock
}

func startedGame(t *testing.T) (*Session, *clockwork.FakeClock, domain.Player, domain.Player) {
	t.Helper()
	sess, clock := newGame(t)
	ann, err := sess.join("Ann")
	if err != nil {
		t.Fatalf("join Ann: %v", err)
	}
	bo, err := sess.join("Bo")
	if err != nil {
		t.Fatalf("join Bo: %v", err)
	}
	if err := sess.uploadQuestions(testQuestions()); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := sess.start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return sess, clock, ann, bo
}

func TestJoinLifecycle(t *testing.T) {
	sess, _ := newGame(t)

	if _, err := sess.join("Ann"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := sess.join("ann"); !errors.Is(err, domain.ErrDuplicateNickname) {
		t.Fatalf("expected duplicate nickname error, got %v", err)
	}
	if _, err := sess.join("Bo"); err != nil {
		t.Fatalf("join Bo: %v", err)
	}

	if err := sess.uploadQuestions(testQuestions()); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := sess.start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := sess.join("Cal"); !errors.Is(err, domain.ErrNotInLobby) {
		t.Fatalf("expected lobby error after start, got %v", err)
	}
}

func TestObserversJoinInAnyPhase(t *testing.T) {
	sess, _, _, _ := startedGame(t)

	id := sess.addObserver()
	if id == "" || !sess.hasObserver(id) {
		t.Fatalf("observer not registered")
	}
	if sess.hasObserver("nope") {
		t.Fatalf("unknown observer reported present")
	}
}

func TestQuestionUploadPhases(t *testing.T) {
	sess, _ := newGame(t)

	if err := sess.uploadQuestions(nil); !errors.Is(err, domain.ErrEmptyBatch) {
		t.Fatalf("expected empty batch error, got %v", err)
	}
	if err := sess.start(); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected no questions error, got %v", err)
	}
	if err := sess.uploadQuestions(testQuestions()); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := sess.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := sess.uploadQuestions(testQuestions()); !errors.Is(err, domain.ErrNotInLobby) {
		t.Fatalf("expected replace to be frozen after start, got %v", err)
	}
	total, err := sess.appendQuestions(testQuestions()[:1])
	if err != nil {
		t.Fatalf("append while playing: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 questions after append, got %d", total)
	}

	sess.reveal()
	if _, err := sess.appendQuestions(testQuestions()[:1]); !errors.Is(err, domain.ErrAlreadyRevealed) {
		t.Fatalf("expected append rejected after reveal, got %v", err)
	}
}

func TestSubmitAnswerGuards(t *testing.T) {
	sess, _, ann, _ := startedGame(t)

	if _, err := sess.submitAnswer("ghost", 0, 1, -1); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player error, got %v", err)
	}
	if _, err := sess.submitAnswer(ann.ID, 1, 1, -1); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected stale question error, got %v", err)
	}
	if _, err := sess.submitAnswer(ann.ID, 0, 1, -1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := sess.submitAnswer(ann.ID, 0, 2, -1); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate answer error, got %v", err)
	}

	sess.reveal()
	if _, err := sess.submitAnswer(ann.ID, 0, 1, -1); !errors.Is(err, domain.ErrNotPlaying) {
		t.Fatalf("expected not playing error after reveal, got %v", err)
	}
}

func TestScoringAndRanking(t *testing.T) {
	sess, _, ann, bo := startedGame(t)

	// Ann answers correctly and fast, Bo wrong and slower.
	if _, err := sess.submitAnswer(ann.ID, 0, 1, 1500); err != nil {
		t.Fatalf("Ann answer: %v", err)
	}
	if _, err := sess.submitAnswer(bo.ID, 0, 3, 4000); err != nil {
		t.Fatalf("Bo answer: %v", err)
	}
	if _, err := sess.advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	// Both correct on the 2-point question.
	if _, err := sess.submitAnswer(ann.ID, 1, 2, 2000); err != nil {
		t.Fatalf("Ann answer q1: %v", err)
	}
	if _, err := sess.submitAnswer(bo.ID, 1, 2, 2500); err != nil {
		t.Fatalf("Bo answer q1: %v", err)
	}
	sess.reveal()

	results := sess.revealResults("")
	if len(results.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(results.Players))
	}
	first, second := results.Players[0], results.Players[1]
	if first.ID != ann.ID || first.Score != 3 || first.Rank != 1 {
		t.Fatalf("expected Ann first with 3 points, got %+v", first)
	}
	if second.ID != bo.ID || second.Score != 2 || second.Rank != 2 {
		t.Fatalf("expected Bo second with 2 points, got %+v", second)
	}
	if first.TotalTime != 3.5 {
		t.Fatalf("expected Ann total time 3.5s, got %v", first.TotalTime)
	}
}

func TestTieBrokenByAnswerTime(t *testing.T) {
	sess, _, ann, bo := startedGame(t)

	if _, err := sess.submitAnswer(bo.ID, 0, 1, 900); err != nil {
		t.Fatalf("Bo answer: %v", err)
	}
	if _, err := sess.submitAnswer(ann.ID, 0, 1, 3100); err != nil {
		t.Fatalf("Ann answer: %v", err)
	}
	sess.reveal()

	results := sess.revealResults("")
	if results.Players[0].ID != bo.ID {
		t.Fatalf("expected faster Bo to win the tie, got %+v", results.Players)
	}
	if results.Players[0].Score != results.Players[1].Score {
		t.Fatalf("expected equal scores, got %+v", results.Players)
	}
}

func TestServerSideElapsedFallback(t *testing.T) {
	sess, clock, ann, _ := startedGame(t)

	clock.Advance(4 * time.Second)
	if _, err := sess.submitAnswer(ann.ID, 0, 1, -1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sess.mu.Lock()
	elapsed := sess.players[ann.ID].AnswerTimes[0]
	sess.mu.Unlock()
	if elapsed != 4 {
		t.Fatalf("expected 4s derived from question start, got %v", elapsed)
	}
}

func TestStateMasksAnswersWhilePlaying(t *testing.T) {
	sess, _, _, _ := startedGame(t)

	state := sess.state()
	if state.Status != domain.StatusPlaying {
		t.Fatalf("expected playing, got %s", state.Status)
	}
	for i, q := range state.Questions {
		if q.Correct != -1 || q.Explanation != "" {
			t.Fatalf("question %d leaked answer: %+v", i, q)
		}
	}

	sess.reveal()
	state = sess.state()
	if state.Questions[0].Correct != 1 || state.Questions[0].Explanation == "" {
		t.Fatalf("expected answers visible after reveal, got %+v", state.Questions[0])
	}
}

func TestAdvanceOrRevealIdempotent(t *testing.T) {
	sess, _, _, _ := startedGame(t)

	result, ok := sess.advanceOrReveal(0)
	if !ok || result.Revealed || result.NewIndex != 1 {
		t.Fatalf("expected advance to question 1, got %+v ok=%v", result, ok)
	}
	// A racing trigger for the same superseded question is a no-op.
	if _, ok := sess.advanceOrReveal(0); ok {
		t.Fatalf("expected second trigger for question 0 to be ignored")
	}

	result, ok = sess.advanceOrReveal(1)
	if !ok || !result.Revealed {
		t.Fatalf("expected final question to reveal, got %+v ok=%v", result, ok)
	}
	if _, ok := sess.advanceOrReveal(1); ok {
		t.Fatalf("expected trigger after reveal to be ignored")
	}
}

func TestQuorum(t *testing.T) {
	sess, _, ann, bo := startedGame(t)
	if _, err := sess.updateSettings(domain.GameSettings{
		AutoProgressMode:    true,
		AutoProgressPercent: 100,
		TimerSeconds:        15,
	}); err != nil {
		t.Fatalf("settings: %v", err)
	}

	quorum, err := sess.submitAnswer(ann.ID, 0, 1, -1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if quorum {
		t.Fatalf("quorum reported at 50%% with a 100%% threshold")
	}
	quorum, err = sess.submitAnswer(bo.ID, 0, 0, -1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !quorum {
		t.Fatalf("expected quorum once every player answered")
	}
}

func TestSettingsFrozenAfterReveal(t *testing.T) {
	sess, _, _, _ := startedGame(t)
	sess.reveal()
	if _, err := sess.updateSettings(domain.GameSettings{TimerSeconds: 5}); !errors.Is(err, domain.ErrAlreadyRevealed) {
		t.Fatalf("expected settings frozen after reveal, got %v", err)
	}
}

func TestSettingsRejectOutOfRange(t *testing.T) {
	sess, _ := newGame(t)
	cases := []domain.GameSettings{
		{TimerSeconds: 0, AutoProgressPercent: 90},
		{TimerSeconds: -5, AutoProgressPercent: 90},
		{TimerSeconds: 15, AutoProgressPercent: 0},
		{TimerSeconds: 15, AutoProgressPercent: 101},
	}
	for _, settings := range cases {
		if _, err := sess.updateSettings(settings); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", settings, err)
		}
	}
	// A rejected update leaves the prior settings untouched.
	if got := sess.settingsSnapshot(); got.TimerSeconds != 15 || got.AutoProgressPercent != 90 {
		t.Fatalf("settings mutated by rejected update: %+v", got)
	}
}

func TestQuestionStatsAndAnswerStatus(t *testing.T) {
	sess, _, ann, bo := startedGame(t)
	if _, err := sess.submitAnswer(ann.ID, 0, 1, -1); err != nil {
		t.Fatalf("submit: %v", err)
	}

	stats := sess.questionStats(0)
	if stats.TotalPlayers != 2 || stats.AnsweredCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.Distribution) != 4 || stats.Distribution[1] != 1 {
		t.Fatalf("unexpected distribution: %+v", stats.Distribution)
	}

	status := sess.answerStatus(0)
	if len(status.Answered) != 1 || status.Answered[0] != ann.ID {
		t.Fatalf("unexpected answered list: %+v", status.Answered)
	}
	if len(status.Waiting) != 1 || status.Waiting[0] != bo.ID {
		t.Fatalf("unexpected waiting list: %+v", status.Waiting)
	}
}

func TestLeaderboardAgreesWithReveal(t *testing.T) {
	sess, _, ann, bo := startedGame(t)
	if _, err := sess.submitAnswer(ann.ID, 0, 1, 1000); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := sess.submitAnswer(bo.ID, 0, 0, 2000); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sess.reveal()
	if _, err := sess.reconcile(0, domain.PolicyAwardAll, nil, "host"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	board := sess.leaderboard()
	results := sess.revealResults("")
	if len(board) != len(results.Players) {
		t.Fatalf("row count mismatch: %d vs %d", len(board), len(results.Players))
	}
	for i := range board {
		if board[i].ID != results.Players[i].ID || board[i].Score != results.Players[i].Score {
			t.Fatalf("leaderboard and reveal disagree at %d: %+v vs %+v", i, board[i], results.Players[i])
		}
	}
}
