package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"pulsequiz/internal/domain"
)

// Session is the in-memory aggregate for one live trivia game. It owns all
// mutable state for the session: phase, roster, questions, answers,
// challenges and reconciliation history. Every check-then-mutate sequence
// runs under the session mutex, which is what makes the timer, the
// auto-advance rule and manual host actions safe to race.
type Session struct {
	code      string
	hostToken string
	clock     clockwork.Clock

	// ordMu is held across each aggregate mutation and the broadcast it
	// causes, so events reach the hub in the exact order the operations
	// were applied. It is never held across timer waits or calls to the
	// text-generation collaborator, and it is always acquired before mu.
	ordMu sync.Mutex

	mu                   sync.Mutex
	status               domain.Status
	currentQuestionIndex int
	players              map[string]*domain.Player
	observers            map[string]time.Time
	questions            []domain.Question
	questionStartTimes   map[int]time.Time
	settings             domain.GameSettings
	theme                any

	timerCancel    context.CancelFunc
	timerIndex     int
	timerRemaining *int

	challenges    map[int]map[string]*domain.ChallengeSubmission
	resolutions   map[int]*domain.ChallengeResolution
	verifications map[int]*domain.AIVerification
	policies      map[int]*domain.ReconciliationPolicy
	audit         []domain.ScoreAuditEntry
}

// NewSession is exported for the store layer that seeds sessions.
func NewSession(code, hostToken string, settings domain.GameSettings) *Session {
	return NewSessionWithClock(code, hostToken, settings, clockwork.NewRealClock())
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(code, hostToken string, settings domain.GameSettings, clock clockwork.Clock) *Session {
	return &Session{
		code:               code,
		hostToken:          hostToken,
		clock:              clock,
		status:             domain.StatusLobby,
		players:            make(map[string]*domain.Player),
		observers:          make(map[string]time.Time),
		questionStartTimes: make(map[int]time.Time),
		settings:           settings,
		challenges:         make(map[int]map[string]*domain.ChallengeSubmission),
		resolutions:        make(map[int]*domain.ChallengeResolution),
		verifications:      make(map[int]*domain.AIVerification),
		policies:           make(map[int]*domain.ReconciliationPolicy),
	}
}

// Code returns the session's short join code.
func (s *Session) Code() string { return s.code }

// HostToken returns the opaque host capability token.
func (s *Session) HostToken() string { return s.hostToken }

func (s *Session) checkHostToken(token string) error {
	if token != s.hostToken {
		return domain.ErrInvalidHostToken
	}
	return nil
}

// join registers a new player while the session is in the lobby.
func (s *Session) join(nickname string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusLobby {
		return domain.Player{}, domain.ErrNotInLobby
	}
	for _, p := range s.players {
		if strings.EqualFold(p.Nickname, nickname) {
			return domain.Player{}, domain.ErrDuplicateNickname
		}
	}

	player := &domain.Player{
		ID:          domain.NewPlayerID(),
		Nickname:    nickname,
		Answers:     make(map[int]int),
		AnswerTimes: make(map[int]float64),
	}
	s.players[player.ID] = player
	return *player, nil
}

// addObserver registers a read-only audience member. Observers may join in
// any phase.
func (s *Session) addObserver() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := domain.NewPlayerID()
	s.observers[id] = s.clock.Now()
	return id
}

func (s *Session) hasObserver(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.observers[id]
	return ok
}

func (s *Session) hasPlayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.players[id]
	return ok
}

// uploadQuestions replaces the question list. Only allowed in the lobby;
// once play starts the list is frozen except for append-only extension.
func (s *Session) uploadQuestions(questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusLobby {
		return domain.ErrNotInLobby
	}
	if len(questions) == 0 {
		return domain.ErrEmptyBatch
	}
	s.questions = append([]domain.Question(nil), questions...)
	return nil
}

// appendQuestions extends the list mid-game. Allowed in lobby or playing,
// never once revealed; existing questions are never touched.
func (s *Session) appendQuestions(questions []domain.Question) (total int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusRevealed {
		return 0, domain.ErrAlreadyRevealed
	}
	if len(questions) == 0 {
		return 0, domain.ErrEmptyBatch
	}
	s.questions = append(s.questions, questions...)
	return len(s.questions), nil
}

// start moves lobby -> playing and stamps the first question's start time.
func (s *Session) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusLobby {
		return domain.ErrNotInLobby
	}
	if len(s.questions) == 0 {
		return domain.ErrNoQuestions
	}
	s.status = domain.StatusPlaying
	s.currentQuestionIndex = 0
	s.questionStartTimes[0] = s.clock.Now()
	return nil
}

// advance is the manual host transition to the next question. The timer for
// the superseded question is cancelled before any state changes.
func (s *Session) advance() (newIndex int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusPlaying {
		return 0, domain.ErrNotPlaying
	}
	if s.currentQuestionIndex >= len(s.questions)-1 {
		return 0, domain.ErrNoMoreQuestions
	}
	s.cancelTimerLocked()
	s.currentQuestionIndex++
	s.questionStartTimes[s.currentQuestionIndex] = s.clock.Now()
	return s.currentQuestionIndex, nil
}

// reveal terminates the round and recomputes all scores from scratch,
// applying every recorded reconciliation policy.
func (s *Session) reveal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	s.status = domain.StatusRevealed
	s.calculateScoresLocked()
}

// advanceOrReveal is the single transition routine shared by the timer
// expiry path and the auto-advance rule. It is a no-op unless the session
// is still playing fromIndex, which makes racing triggers idempotent.
type transition struct {
	Revealed bool
	NewIndex int
}

func (s *Session) advanceOrReveal(fromIndex int) (transition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusPlaying || s.currentQuestionIndex != fromIndex {
		return transition{}, false
	}
	s.cancelTimerLocked()

	if s.currentQuestionIndex >= len(s.questions)-1 {
		s.status = domain.StatusRevealed
		s.calculateScoresLocked()
		return transition{Revealed: true}, true
	}
	s.currentQuestionIndex++
	s.questionStartTimes[s.currentQuestionIndex] = s.clock.Now()
	return transition{NewIndex: s.currentQuestionIndex}, true
}

// submitAnswer records a player's answer for the current question. The
// client-supplied elapsed time wins when present and non-negative,
// otherwise it is derived from the server-side start time. The returned
// flag reports whether the auto-progress quorum has been reached.
func (s *Session) submitAnswer(playerID string, questionIndex, choice int, clientElapsedMs int64) (quorum bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[playerID]
	if !ok {
		return false, domain.ErrPlayerNotFound
	}
	if s.status != domain.StatusPlaying {
		return false, domain.ErrNotPlaying
	}
	if questionIndex != s.currentQuestionIndex {
		return false, domain.ErrStaleQuestion
	}
	if _, answered := player.Answers[questionIndex]; answered {
		return false, domain.ErrDuplicateAnswer
	}

	player.Answers[questionIndex] = choice
	player.AnswerTimes[questionIndex] = s.elapsedLocked(questionIndex, clientElapsedMs)

	return s.quorumReachedLocked(questionIndex), nil
}

func (s *Session) elapsedLocked(questionIndex int, clientElapsedMs int64) float64 {
	if clientElapsedMs >= 0 {
		return float64(clientElapsedMs) / 1000
	}
	started, ok := s.questionStartTimes[questionIndex]
	if !ok {
		return 0
	}
	return s.clock.Now().Sub(started).Seconds()
}

func (s *Session) quorumReachedLocked(questionIndex int) bool {
	if !s.settings.AutoProgressMode || len(s.players) == 0 {
		return false
	}
	answered := 0
	for _, p := range s.players {
		if _, ok := p.Answers[questionIndex]; ok {
			answered++
		}
	}
	pct := float64(answered) / float64(len(s.players)) * 100
	return pct >= float64(s.settings.AutoProgressPercent)
}

// updateSettings replaces the timing knobs. Frozen once revealed;
// out-of-range values are rejected, never clamped.
func (s *Session) updateSettings(settings domain.GameSettings) (domain.GameSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == domain.StatusRevealed {
		return domain.GameSettings{}, domain.ErrAlreadyRevealed
	}
	if settings.TimerSeconds <= 0 {
		return domain.GameSettings{}, domain.ErrBadSettings
	}
	if settings.AutoProgressPercent <= 0 || settings.AutoProgressPercent > 100 {
		return domain.GameSettings{}, domain.ErrBadSettings
	}
	s.settings = settings
	return s.settings, nil
}

func (s *Session) setTheme(theme any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme = theme
}

func (s *Session) settingsSnapshot() domain.GameSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// state builds the client-facing snapshot. During play the correct indices
// are masked and explanations stripped so pull clients cannot cheat.
func (s *Session) state() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	players := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, clonePlayer(p))
	}

	questions := make([]domain.Question, len(s.questions))
	copy(questions, s.questions)
	if s.status == domain.StatusPlaying {
		for i := range questions {
			questions[i].Correct = -1
			questions[i].Explanation = ""
		}
	}

	var remaining *int
	if s.timerRemaining != nil {
		v := *s.timerRemaining
		remaining = &v
	}

	return domain.SessionState{
		Code:                 s.code,
		Status:               s.status,
		CurrentQuestionIndex: s.currentQuestionIndex,
		Players:              players,
		Questions:            questions,
		Settings:             s.settings,
		TimerRemaining:       remaining,
		Theme:                s.theme,
	}
}

func clonePlayer(p *domain.Player) domain.Player {
	out := *p
	out.Answers = make(map[int]int, len(p.Answers))
	for k, v := range p.Answers {
		out.Answers[k] = v
	}
	out.AnswerTimes = make(map[int]float64, len(p.AnswerTimes))
	for k, v := range p.AnswerTimes {
		out.AnswerTimes[k] = v
	}
	return out
}

// questionStats returns the answer distribution for one question.
func (s *Session) questionStats(questionIndex int) domain.QuestionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.QuestionStats{
		QuestionIndex: questionIndex,
		TotalPlayers:  len(s.players),
	}
	if questionIndex < 0 || questionIndex >= len(s.questions) {
		return stats
	}

	stats.Distribution = make([]int, len(s.questions[questionIndex].Options))
	for _, p := range s.players {
		choice, ok := p.Answers[questionIndex]
		if !ok {
			continue
		}
		stats.AnsweredCount++
		if choice >= 0 && choice < len(stats.Distribution) {
			stats.Distribution[choice]++
		}
	}
	return stats
}

// answerStatus lists who has and has not answered a question.
func (s *Session) answerStatus(questionIndex int) domain.AnswerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := domain.AnswerStatus{Answered: []string{}, Waiting: []string{}}
	for _, p := range s.players {
		if _, ok := p.Answers[questionIndex]; ok {
			status.Answered = append(status.Answered, p.ID)
		} else {
			status.Waiting = append(status.Waiting, p.ID)
		}
	}
	return status
}

func (s *Session) currentIndex() (int, domain.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentQuestionIndex, s.status
}
