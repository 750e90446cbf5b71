package session

import (
	"sync"
	"time"

	"nai-prompt-bot/internal/engine"
	"nai-prompt-bot/internal/preset"
)

// Settings are the generation choices a user makes in chat.
type Settings struct {
	PresetID string
	Gender   preset.Gender
	Scope    preset.Scope
}

// Context returns the generation context for these settings.
func (s Settings) Context() engine.Context {
	return engine.Context{TargetGender: s.Gender, RequestedScope: s.Scope}
}

type Session struct {
	UserID       int64
	Username     string
	Settings     Settings
	History      []engine.Result
	LastActivity time.Time
}

type Options struct {
	// MaxResults bounds the per-user result history.
	MaxResults int
	// Defaults seeds the settings of new sessions.
	Defaults Settings
}

type Store struct {
	mu         sync.Mutex
	sessions   map[int64]*Session
	maxHistory int
	defaults   Settings
}

func NewStore(opts Options) *Store {
	maxHistory := opts.MaxResults
	if maxHistory <= 0 {
		maxHistory = 10
	}

	return &Store{
		sessions:   make(map[int64]*Session),
		maxHistory: maxHistory,
		defaults:   opts.Defaults,
	}
}

func (s *Store) Settings(userID int64, username string) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = time.Now()
	return sess.Settings
}

// Update applies fn to the user's settings and returns the result.
func (s *Store) Update(userID int64, username string, fn func(*Settings)) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = time.Now()
	fn(&sess.Settings)
	return sess.Settings
}

func (s *Store) AppendResult(userID int64, username string, res engine.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = time.Now()

	sess.History = append(sess.History, res)
	if len(sess.History) > s.maxHistory {
		sess.History = sess.History[len(sess.History)-s.maxHistory:]
	}
}

// LastResult returns the most recent result of the user, if any.
func (s *Store) LastResult(userID int64) (engine.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok || len(sess.History) == 0 {
		return engine.Result{}, false
	}
	return sess.History[len(sess.History)-1], true
}

func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		sess.History = nil
		sess.Settings = s.defaults
		sess.LastActivity = time.Now()
	}
}

// Prune drops sessions idle for longer than maxIdle and returns how many
// were removed.
func (s *Store) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *Store) getOrCreateLocked(userID int64, username string) *Session {
	if sess, ok := s.sessions[userID]; ok {
		if sess.Username == "" && username != "" {
			sess.Username = username
		}
		return sess
	}

	sess := &Session{
		UserID:       userID,
		Username:     username,
		Settings:     s.defaults,
		LastActivity: time.Now(),
	}
	s.sessions[userID] = sess
	return sess
}
