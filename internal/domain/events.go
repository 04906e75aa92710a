package domain

import "time"

// Event is one broadcastable notification. ID is a dense, session-local
// sequence number starting at 0; visibility flags steer role filtering in
// both the push and pull delivery paths but are never serialized.
type Event struct {
	ID        int64     `json:"_eventId"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"_timestamp"`

	HostOnly         bool `json:"-"`
	ExcludeObservers bool `json:"-"`
}

// PersonalPayload is implemented by event payloads whose player-visible
// form differs from the shared form (e.g. reveal results). The router and
// the pull path call it per recipient; a false return keeps the shared
// payload.
type PersonalPayload interface {
	PersonalizeFor(role Role, recipientID string) (any, bool)
}

// Personalized returns the event with its payload adjusted for the
// recipient, or the event unchanged when no personalization applies.
func (e Event) Personalized(role Role, recipientID string) Event {
	if p, ok := e.Payload.(PersonalPayload); ok {
		if payload, changed := p.PersonalizeFor(role, recipientID); changed {
			e.Payload = payload
		}
	}
	return e
}

// Event types emitted by the session service.
const (
	EventPlayerJoined        = "player_joined"
	EventPlayerLeft          = "player_left"
	EventObserverJoined      = "observer_joined"
	EventSessionState        = "session_state"
	EventQuestionStarted     = "question_started"
	EventQuestionsUpdated    = "questions_updated"
	EventAnswerReceived      = "answer_received"
	EventTimerTick           = "timer_tick"
	EventRevealed            = "revealed"
	EventSettingsUpdated     = "settings_updated"
	EventThemeUpdated        = "theme_updated"
	EventChallengeSubmitted  = "challenge_submitted"
	EventChallengeResolved   = "challenge_resolved"
	EventVerificationReady   = "verification_ready"
	EventScoresReconciled    = "scores_reconciled"
)
