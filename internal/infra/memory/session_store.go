package memory

import (
	"sync"

	"pulsequiz/internal/app"
	"pulsequiz/internal/domain"
)

// SessionStore is the in-memory implementation of app.SessionStore. It is
// the exclusive owner of all live session aggregates; lifetime equals
// process lifetime, deliberately.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

// Create picks a code unique among live sessions, builds the session and
// registers it under the store's lock so two creations can never collide.
func (s *SessionStore) Create(build func(code, hostToken string) *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := domain.NewSessionCode()
	for {
		if _, taken := s.sessions[code]; !taken {
			break
		}
		code = domain.NewSessionCode()
	}

	session := build(code, domain.NewHostToken())
	s.sessions[code] = session
	return session
}

func (s *SessionStore) Get(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	return session, ok
}

func (s *SessionStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
}

func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
