package session

import (
	"sync"
	"time"
)

// SessionStore is the only shared mutable structure in the bridge
// (spec §5); every access is mutex-guarded, closing the concurrency gap
// spec §9 flags in the source's unlocked cleanup(). The canonical owner
// is the sessionID-keyed map; callID is a secondary index populated once
// a provider's CallStarted event supplies it.
type SessionStore struct {
	mu        sync.RWMutex
	bySession map[string]*CallSession
	byCall    map[string]string
}

// NewSessionStore builds an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		bySession: make(map[string]*CallSession),
		byCall:    make(map[string]string),
	}
}

// Add registers a session under its SessionID.
func (s *SessionStore) Add(cs *CallSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySession[cs.SessionID] = cs
}

// IndexCallID links a call_id to an already-registered session, called
// once the provider's CallStarted event supplies the call_id (spec
// §4.6.1).
func (s *SessionStore) IndexCallID(sessionID, callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCall[callID] = sessionID
}

// Get looks up a session by its SessionID.
func (s *SessionStore) Get(sessionID string) (*CallSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.bySession[sessionID]
	return cs, ok
}

// GetByCallID looks up a session by its call_id.
func (s *SessionStore) GetByCallID(callID string) (*CallSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionID, ok := s.byCall[callID]
	if !ok {
		return nil, false
	}
	cs, ok := s.bySession[sessionID]
	return cs, ok
}

// Remove deletes a session and its call_id index entry, if any.
func (s *SessionStore) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.bySession[sessionID]
	if !ok {
		return
	}
	delete(s.bySession, sessionID)
	if cs.CallID != "" {
		delete(s.byCall, cs.CallID)
	}
}

// Len reports the number of sessions tracked, including ended sessions
// that have not yet been removed.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySession)
}

// Cleanup removes every ended session whose EndedAt is older than
// maxAge, returning the number removed. Grounded in the source's
// SessionStore.cleanup() intent (spec §9), fixed to hold the lock for
// the whole scan rather than iterating an unguarded map.
func (s *SessionStore) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, cs := range s.bySession {
		if cs.IsActive() {
			continue
		}
		if cs.EndedAt.Before(cutoff) {
			delete(s.bySession, id)
			if cs.CallID != "" {
				delete(s.byCall, cs.CallID)
			}
			removed++
		}
	}
	return removed
}
