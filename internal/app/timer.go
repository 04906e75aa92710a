package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"pulsequiz/internal/domain"
	"pulsequiz/internal/realtime"
)

// armTimer cancels any previous countdown and binds a new cancellation
// token to the given question index. Any transition that supersedes the
// countdown invalidates the token before mutating shared state.
func (s *Session) armTimer(questionIndex int) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	ctx, cancel := context.WithCancel(context.Background())
	s.timerCancel = cancel
	s.timerIndex = questionIndex
	return ctx
}

func (s *Session) cancelTimerLocked() {
	if s.timerCancel != nil {
		s.timerCancel()
		s.timerCancel = nil
	}
	s.timerRemaining = nil
}

// timerGuard reports whether the session is still playing the question the
// countdown was armed for. Re-reading shared state is the only
// synchronization the timer needs: once the session moves on, the next
// guard check turns the countdown into a no-op.
func (s *Session) timerGuard(questionIndex int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == domain.StatusPlaying && s.currentQuestionIndex == questionIndex
}

func (s *Session) setTimerRemaining(remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := remaining
	s.timerRemaining = &v
}

type timerTickPayload struct {
	QuestionIndex int `json:"questionIndex"`
	Remaining     int `json:"remaining"`
}

// startTimer arms one cancellable countdown for (session, questionIndex)
// and runs it on its own goroutine.
func (s *Service) startTimer(sess *Session, questionIndex int) {
	settings := sess.settingsSnapshot()
	if !settings.TimerMode || settings.TimerSeconds <= 0 {
		return
	}
	ctx := sess.armTimer(questionIndex)
	go s.runTimer(ctx, sess, questionIndex, settings.TimerSeconds)
}

// runTimer drives automatic question expiry: a tick per second while the
// session is still playing the guarded question, a final zero tick, one
// grace second for a racing manual action to win, then the same
// advance-or-reveal transition the host and the quorum rule use. Any
// panic aborts this countdown only; the game stays manually advanceable.
func (s *Service) runTimer(ctx context.Context, sess *Session, questionIndex, seconds int) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("session", sess.Code()).
				Int("question_index", questionIndex).
				Interface("panic", r).
				Msg("timer task aborted")
		}
	}()

	for remaining := seconds; remaining > 0; remaining-- {
		if !s.broadcastTick(sess, questionIndex, remaining) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(time.Second):
		}
	}

	if !s.broadcastTick(sess, questionIndex, 0) {
		return
	}

	// Grace second: a manual advance or reveal racing the expiry wins.
	select {
	case <-ctx.Done():
		return
	case <-s.clock.After(time.Second):
	}

	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	if !sess.timerGuard(questionIndex) {
		return
	}
	s.completeQuestion(sess, questionIndex)
}

// broadcastTick updates the remaining-seconds counter and announces it
// under the ordering lock. Returns false once the session has moved past
// the guarded question.
func (s *Service) broadcastTick(sess *Session, questionIndex, remaining int) bool {
	sess.ordMu.Lock()
	defer sess.ordMu.Unlock()
	if !sess.timerGuard(questionIndex) {
		return false
	}
	sess.setTimerRemaining(remaining)
	s.hub.Broadcast(sess.Code(), domain.Event{
		Type:    domain.EventTimerTick,
		Payload: timerTickPayload{QuestionIndex: questionIndex, Remaining: remaining},
	}, realtime.BroadcastOptions{})
	return true
}
