package domain

import (
	"errors"
	"fmt"
)

// Taxonomy roots. Specific errors wrap exactly one of these so transports
// can map any core failure to a status with errors.Is.
var (
	// ErrNotFound covers unknown sessions, players, observers and questions.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned on a host-token mismatch.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidPhase is returned when an operation is attempted in the
	// wrong session state.
	ErrInvalidPhase = errors.New("invalid phase")
	// ErrConflict covers duplicate nicknames, duplicate answers and
	// duplicate challenges.
	ErrConflict = errors.New("conflict")
	// ErrValidation covers malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrUpstreamUnavailable is returned when the text-generation
	// collaborator is unreachable, timed out or unauthenticated.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

var (
	ErrSessionNotFound  = fmt.Errorf("%w: session", ErrNotFound)
	ErrPlayerNotFound   = fmt.Errorf("%w: player", ErrNotFound)
	ErrObserverNotFound = fmt.Errorf("%w: observer", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("%w: question", ErrNotFound)

	ErrInvalidHostToken = fmt.Errorf("%w: invalid host token", ErrForbidden)

	ErrNotInLobby      = fmt.Errorf("%w: session already in progress", ErrInvalidPhase)
	ErrNotPlaying      = fmt.Errorf("%w: round not in progress", ErrInvalidPhase)
	ErrNotRevealed     = fmt.Errorf("%w: results not revealed yet", ErrInvalidPhase)
	ErrAlreadyRevealed = fmt.Errorf("%w: results already revealed", ErrInvalidPhase)
	ErrStaleQuestion   = fmt.Errorf("%w: wrong question", ErrInvalidPhase)

	ErrDuplicateNickname  = fmt.Errorf("%w: nickname already taken", ErrConflict)
	ErrDuplicateAnswer    = fmt.Errorf("%w: already answered", ErrConflict)
	ErrDuplicateChallenge = fmt.Errorf("%w: already challenged", ErrConflict)

	ErrNoQuestions     = fmt.Errorf("%w: no questions loaded", ErrValidation)
	ErrEmptyBatch      = fmt.Errorf("%w: empty question batch", ErrValidation)
	ErrNoMoreQuestions = fmt.Errorf("%w: no more questions", ErrValidation)
	ErrBadSettings     = fmt.Errorf("%w: settings out of range", ErrValidation)
)
