// Package session keeps short, bounded conversation histories in memory and
// expires them after a period of inactivity.
package session

import (
	"log"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tokligence/labgate/internal/clock"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

const (
	DefaultTimeout       = 30 * time.Minute
	DefaultMaxMessages   = 10
	DefaultSweepInterval = 5 * time.Minute
)

// Message is one turn of a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a snapshot of a conversation. Values returned by the store are
// copies; mutating them does not affect stored state.
type Session struct {
	ID           string         `json:"id"`
	Messages     []Message      `json:"messages"`
	LastActivity time.Time      `json:"lastActivity"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (s *Session) clone() Session {
	out := Session{
		ID:           s.ID,
		Messages:     copyMessages(s.Messages),
		LastActivity: s.LastActivity,
	}
	if s.Metadata != nil {
		out.Metadata = maps.Clone(s.Metadata)
	}
	return out
}

func copyMessages(in []Message) []Message {
	out := make([]Message, len(in))
	copy(out, in)
	return out
}

// Config holds configuration for the store.
type Config struct {
	// Timeout is the inactivity period after which a session expires.
	Timeout time.Duration
	// MaxMessages bounds each session's history; the oldest are evicted first.
	MaxMessages int
	// SweepInterval controls the background expiry sweep. Negative disables it.
	SweepInterval time.Duration

	Clock  clock.Clock
	Logger *log.Logger
}

// Store is an in-memory session store safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	timeout     time.Duration
	maxMessages int
	clock       clock.Clock
	logger      *log.Logger

	stopSweep chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// NewStore creates a store and starts its background sweep.
func NewStore(cfg Config) *Store {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	s := &Store{
		sessions:    make(map[string]*Session),
		timeout:     cfg.Timeout,
		maxMessages: cfg.MaxMessages,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		stopSweep:   make(chan struct{}),
		sweepDone:   make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go s.sweepLoop(cfg.Clock.NewTicker(cfg.SweepInterval))
	} else {
		close(s.sweepDone)
	}
	return s
}

// Create starts a new empty session seeded with metadata and returns its id.
func (s *Store) Create(metadata map[string]any) string {
	id := uuid.NewString()
	sess := &Session{
		ID:           id,
		Messages:     make([]Message, 0, s.maxMessages),
		LastActivity: s.clock.Now(),
	}
	if len(metadata) > 0 {
		sess.Metadata = maps.Clone(metadata)
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return id
}

// Get returns a copy of the session. Unknown and expired ids report false;
// an expired session is removed as a side effect.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.liveLocked(id, s.clock.Now())
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// AddMessage appends a message and trims history to the cap. It returns
// false when the session is missing or expired or the role is unknown.
func (s *Store) AddMessage(id string, role Role, content string) bool {
	if !role.Valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	sess, ok := s.liveLocked(id, now)
	if !ok {
		return false
	}
	sess.Messages = append(sess.Messages, Message{Role: role, Content: content, Timestamp: now})
	if over := len(sess.Messages) - s.maxMessages; over > 0 {
		kept := make([]Message, s.maxMessages)
		copy(kept, sess.Messages[over:])
		sess.Messages = kept
	}
	return true
}

// Messages returns the session history oldest first, or an empty slice
// when the session is missing or expired.
func (s *Store) Messages(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.liveLocked(id, s.clock.Now())
	if !ok {
		return []Message{}
	}
	return copyMessages(sess.Messages)
}

// UpdateMetadata merges partial into the session metadata, overwriting
// existing keys.
func (s *Store) UpdateMetadata(id string, partial map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.liveLocked(id, s.clock.Now())
	if !ok {
		return false
	}
	if sess.Metadata == nil {
		sess.Metadata = make(map[string]any, len(partial))
	}
	maps.Copy(sess.Metadata, partial)
	return true
}

// Delete removes the session. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of sessions held, including expired ones not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes every expired session and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Close stops the background sweep. It is safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopSweep)
	})
	<-s.sweepDone
	return nil
}

// liveLocked returns the session if it exists and has not expired, touching
// its activity time. Expired sessions are deleted.
func (s *Store) liveLocked(id string, now time.Time) (*Session, bool) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expired(sess, now) {
		delete(s.sessions, id)
		return nil, false
	}
	sess.LastActivity = now
	return sess, true
}

func (s *Store) expired(sess *Session, now time.Time) bool {
	return now.Sub(sess.LastActivity) > s.timeout
}

func (s *Store) sweepLoop(ticker clock.Ticker) {
	defer close(s.sweepDone)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			if removed := s.Sweep(); removed > 0 && s.logger != nil {
				s.logger.Printf("session sweep removed %d expired session(s)", removed)
			}
		case <-s.stopSweep:
			return
		}
	}
}
