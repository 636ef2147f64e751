package session

import (
	"sync"
	"time"
)

// Turn is one question/answer pair within a conversation.
type Turn struct {
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	RetrievedIDs []string  `json:"retrieved_ids"`
	At           time.Time `json:"at"`
}

type conversation struct {
	mu    sync.Mutex
	turns []Turn
}

// Store holds per-conversation turn history keyed by session id.
// Sessions are created lazily on first append, are append-only, and
// never expire here; expiry is the caller's policy. Appends for one
// session are strictly ordered while different sessions only share the
// map lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*conversation
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*conversation)}
}

func (s *Store) Append(sessionID string, turn Turn) {
	if turn.At.IsZero() {
		turn.At = time.Now()
	}

	s.mu.Lock()
	conv, ok := s.sessions[sessionID]
	if !ok {
		conv = &conversation{}
		s.sessions[sessionID] = conv
	}
	s.mu.Unlock()

	conv.mu.Lock()
	conv.turns = append(conv.turns, turn)
	conv.mu.Unlock()
}

// History returns the session's turns oldest first. Unknown sessions
// yield an empty history.
func (s *Store) History(sessionID string) []Turn {
	s.mu.RLock()
	conv, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	return append([]Turn(nil), conv.turns...)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
