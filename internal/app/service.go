package app

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/ai"
	"pulsequiz/internal/domain"
	"pulsequiz/internal/realtime"
)

// SessionStore abstracts how live sessions are registered. The store is
// the single owner of all Session aggregates; it is injected everywhere,
// never an ambient singleton.
type SessionStore interface {
	// Create picks a code unique among live sessions and registers the
	// session the build callback constructs for it.
	Create(build func(code, hostToken string) *Session) *Session
	Get(code string) (*Session, bool)
	Delete(code string)
	Count() int
}

// Service contains the session use cases: everything a host, player or
// observer can do, independent of transport. Mutations go through the
// aggregate, then notify the broadcast hub, with the session's ordering
// lock held across both steps.
type Service struct {
	store    SessionStore
	hub      *realtime.Hub
	clock    clockwork.Clock
	gen      ai.Generator // optional; nil disables AI-backed operations
	defaults domain.GameSettings
}

func NewService(store SessionStore, hub *realtime.Hub, gen ai.Generator, clock clockwork.Clock, defaults domain.GameSettings) *Service {
	return &Service{store: store, hub: hub, clock: clock, gen: gen, defaults: defaults}
}

// Hub exposes the broadcast hub for the push transport.
func (s *Service) Hub() *realtime.Hub { return s.hub }

// SessionCredentials identify a freshly created session to its host.
type SessionCredentials struct {
	Code      string `json:"code"`
	HostToken string `json:"hostToken"`
}

// CreateSession registers a new session under a fresh unique code.
func (s *Service) CreateSession() SessionCredentials {
	sess := s.store.Create(func(code, hostToken string) *Session {
		return NewSessionWithClock(code, hostToken, s.defaults, s.clock)
	})
	log.Info().Str("session", sess.Code()).Int("live_sessions", s.store.Count()).Msg("session created")
	return SessionCredentials{Code: sess.Code(), HostToken: sess.HostToken()}
}

func (s *Service) session(code string) (*Session, error) {
	sess, ok := s.store.Get(code)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) hostSession(code, hostToken string) (*Session, error) {
	sess, err := s.session(code)
	if err != nil {
		return nil, err
	}
	if err := sess.checkHostToken(hostToken); err != nil {
		return nil, err
	}
	return sess, nil
}

// Join adds a player to a lobby and announces the arrival.
func (s *Service) Join(code, nickname string) (domain.Player, error) {
	sess, err := s.session(code)
	if err != nil {
		return domain.Player{}, err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	player, err := sess.join(nickname)
	if err != nil {
		return domain.Player{}, err
	}
	s.hub.Broadcast(code, domain.Event{
		Type:    domain.EventPlayerJoined,
		Payload: map[string]any{"player": player},
	}, realtime.BroadcastOptions{})
	return player, nil
}

// JoinObserver registers a read-only audience member.
func (s *Service) JoinObserver(code string) (string, error) {
	sess, err := s.session(code)
	if err != nil {
		return "", err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	id := sess.addObserver()
	s.hub.Broadcast(code, domain.Event{
		Type:     domain.EventObserverJoined,
		Payload:  map[string]any{"observerId": id},
		HostOnly: true,
	}, realtime.BroadcastOptions{})
	return id, nil
}

// UploadQuestions replaces the question list while in the lobby.
func (s *Service) UploadQuestions(code, hostToken string, questions []domain.Question) (int, error) {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return 0, err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	if err := sess.uploadQuestions(questions); err != nil {
		return 0, err
	}
	s.hub.Broadcast(code, domain.Event{
		Type:     domain.EventQuestionsUpdated,
		Payload:  map[string]any{"count": len(questions)},
		HostOnly: true,
	}, realtime.BroadcastOptions{})
	return len(questions), nil
}

// AppendQuestions extends the question list mid-game.
func (s *Service) AppendQuestions(code, hostToken string, questions []domain.Question) (int, error) {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return 0, err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	total, err := sess.appendQuestions(questions)
	if err != nil {
		return 0, err
	}
	s.hub.Broadcast(code, domain.Event{
		Type:     domain.EventQuestionsUpdated,
		Payload:  map[string]any{"count": total},
		HostOnly: true,
	}, realtime.BroadcastOptions{})
	return total, nil
}

// Start begins the round: lobby -> playing, question 0, timer armed when
// timer mode is on.
func (s *Service) Start(code, hostToken string) error {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	if err := sess.start(); err != nil {
		return err
	}
	s.broadcastQuestionStarted(sess, 0)
	s.broadcastState(sess)
	s.startTimer(sess, 0)
	return nil
}

// Advance is the manual host move to the next question.
func (s *Service) Advance(code, hostToken string) error {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	newIndex, err := sess.advance()
	if err != nil {
		return err
	}
	s.broadcastQuestionStarted(sess, newIndex)
	s.startTimer(sess, newIndex)
	return nil
}

// Reveal ends the round, recomputes all scores and discloses results.
// Player connections receive their personalized view.
func (s *Service) Reveal(code, hostToken string) error {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	sess.reveal()
	s.broadcastRevealed(sess)
	return nil
}

// SubmitAnswer records a player's answer, tells the host someone answered,
// and fires the auto-advance transition when the quorum is reached.
func (s *Service) SubmitAnswer(code, playerID string, questionIndex, choice int, clientElapsedMs int64) error {
	sess, err := s.session(code)
	if err != nil {
		return err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	quorum, err := sess.submitAnswer(playerID, questionIndex, choice, clientElapsedMs)
	if err != nil {
		return err
	}
	s.hub.Broadcast(code, domain.Event{
		Type:     domain.EventAnswerReceived,
		Payload:  map[string]any{"playerId": playerID, "questionIndex": questionIndex},
		HostOnly: true,
	}, realtime.BroadcastOptions{})

	if quorum {
		s.completeQuestion(sess, questionIndex)
	}
	return nil
}

// completeQuestion is the shared advance-or-reveal transition used by
// timer expiry and the auto-advance rule. The caller must hold ordMu. The
// aggregate applies it only if the session is still playing fromIndex, so a
// race between "quorum reached" and "timer expired" cannot double-advance.
func (s *Service) completeQuestion(sess *Session, fromIndex int) {
	result, ok := sess.advanceOrReveal(fromIndex)
	if !ok {
		return
	}
	if result.Revealed {
		s.broadcastRevealed(sess)
		return
	}
	s.broadcastQuestionStarted(sess, result.NewIndex)
	s.startTimer(sess, result.NewIndex)
}

func (s *Service) broadcastQuestionStarted(sess *Session, questionIndex int) {
	s.hub.Broadcast(sess.Code(), domain.Event{
		Type:    domain.EventQuestionStarted,
		Payload: map[string]any{"questionIndex": questionIndex},
	}, realtime.BroadcastOptions{})
}

func (s *Service) broadcastState(sess *Session) {
	s.hub.Broadcast(sess.Code(), domain.Event{
		Type:    domain.EventSessionState,
		Payload: map[string]any{"state": sess.state()},
	}, realtime.BroadcastOptions{})
}

func (s *Service) broadcastRevealed(sess *Session) {
	s.hub.Broadcast(sess.Code(), domain.Event{
		Type:    domain.EventRevealed,
		Payload: sess.revealPayload(),
	}, realtime.BroadcastOptions{})
	log.Info().Str("session", sess.Code()).Msg("results revealed")
}

// UpdateSettings lets the host tune timer and auto-progress modes.
func (s *Service) UpdateSettings(code, hostToken string, settings domain.GameSettings) (domain.GameSettings, error) {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return domain.GameSettings{}, err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	applied, err := sess.updateSettings(settings)
	if err != nil {
		return domain.GameSettings{}, err
	}
	s.hub.Broadcast(code, domain.Event{
		Type:    domain.EventSettingsUpdated,
		Payload: map[string]any{"settings": applied},
	}, realtime.BroadcastOptions{})
	return applied, nil
}

// SetTheme stores an opaque theme payload and announces it.
func (s *Service) SetTheme(code, hostToken string, theme any) error {
	sess, err := s.hostSession(code, hostToken)
	if err != nil {
		return err
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	sess.setTheme(theme)
	s.hub.Broadcast(code, domain.Event{
		Type:    domain.EventThemeUpdated,
		Payload: map[string]any{"theme": theme},
	}, realtime.BroadcastOptions{})
	return nil
}

// EndSession discards a session and its realtime channels.
func (s *Service) EndSession(code, hostToken string) error {
	if _, err := s.hostSession(code, hostToken); err != nil {
		return err
	}
	s.store.Delete(code)
	s.hub.Drop(code)
	log.Info().Str("session", code).Msg("session ended")
	return nil
}

// State returns the client-facing snapshot for pull clients.
func (s *Service) State(code string) (domain.SessionState, error) {
	sess, err := s.session(code)
	if err != nil {
		return domain.SessionState{}, err
	}
	return sess.state(), nil
}

// Leaderboard returns the live standings.
func (s *Service) Leaderboard(code string) ([]domain.LeaderboardEntry, error) {
	sess, err := s.session(code)
	if err != nil {
		return nil, err
	}
	return sess.leaderboard(), nil
}

// QuestionStats returns the answer distribution for one question.
func (s *Service) QuestionStats(code string, questionIndex int) (domain.QuestionStats, error) {
	sess, err := s.session(code)
	if err != nil {
		return domain.QuestionStats{}, err
	}
	return sess.questionStats(questionIndex), nil
}

// AnswerStatus reports who has answered a question so far.
func (s *Service) AnswerStatus(code string, questionIndex int) (domain.AnswerStatus, error) {
	sess, err := s.session(code)
	if err != nil {
		return domain.AnswerStatus{}, err
	}
	return sess.answerStatus(questionIndex), nil
}

// RevealResults returns the end-of-round disclosure. An empty playerID
// yields the host view; a player ID personalizes it and applies the
// published gates.
func (s *Service) RevealResults(code, playerID string) (domain.RevealResults, error) {
	sess, err := s.session(code)
	if err != nil {
		return domain.RevealResults{}, err
	}
	if _, status := sess.currentIndex(); status != domain.StatusRevealed {
		return domain.RevealResults{}, domain.ErrNotRevealed
	}
	if playerID != "" && !sess.hasPlayer(playerID) {
		return domain.RevealResults{}, domain.ErrPlayerNotFound
	}
	return sess.revealResults(playerID), nil
}

// EventsSince serves the pull fallback: all retained events after sinceID,
// filtered and personalized for the caller. Clients that have rotated past
// the cap must fall back to a full State fetch.
func (s *Service) EventsSince(code string, sinceID int64, role domain.Role, identity string) ([]domain.Event, int64, error) {
	if _, err := s.session(code); err != nil {
		return nil, 0, err
	}
	events, lastID := s.hub.Events(code).Since(sinceID, role, identity)
	return events, lastID, nil
}

// Identify authenticates a connection's claimed role against the session.
func (s *Service) Identify(code string, role domain.Role, credential string) (identity string, err error) {
	sess, err := s.session(code)
	if err != nil {
		return "", err
	}
	switch role {
	case domain.RoleHost:
		if err := sess.checkHostToken(credential); err != nil {
			return "", err
		}
		return "host", nil
	case domain.RolePlayer:
		if !sess.hasPlayer(credential) {
			return "", domain.ErrPlayerNotFound
		}
		return credential, nil
	case domain.RoleObserver:
		if !sess.hasObserver(credential) {
			return "", domain.ErrObserverNotFound
		}
		return credential, nil
	}
	return "", domain.ErrValidation
}

// AnnouncePlayerLeft tells the room a player's connection dropped.
func (s *Service) AnnouncePlayerLeft(code, playerID, excludeConnectionID string) {
	sess, err := s.session(code)
	if err != nil {
		return
	}
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	s.hub.Broadcast(code, domain.Event{
		Type:    domain.EventPlayerLeft,
		Payload: map[string]any{"playerId": playerID},
	}, realtime.BroadcastOptions{ExcludeConnectionID: excludeConnectionID})
}

// DraftQuestions asks the text-generation collaborator for a question
// batch. Exposed to the host and the CLI; never called implicitly.
func (s *Service) DraftQuestions(ctx context.Context, topic string, count int) ([]domain.Question, error) {
	if s.gen == nil {
		return nil, domain.ErrUpstreamUnavailable
	}
	return ai.DraftQuestions(ctx, s.gen, topic, count)
}
