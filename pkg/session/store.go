// Package session tracks which users are in an active dialogue, which intake
// stage each dialogue is in, and a bounded global conversation history.
package session

import (
	"sync"
	"time"
)

// DefaultHistoryLimit bounds the global history when no limit is given.
const DefaultHistoryLimit = 100

// Stage is the intake phase of a session.
type Stage int

const (
	StageIntake Stage = iota
	StageDiagnosis
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageIntake:
		return "intake"
	case StageDiagnosis:
		return "diagnosis"
	case StageComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Entry is one line of conversation history.
type Entry struct {
	SpeakerID string
	Text      string
	InReplyTo string // set on bot replies produced by an extractor turn
	At        time.Time
}

// Session is a snapshot of one user's engagement.
type Session struct {
	UserID    string
	Active    bool
	Stage     Stage
	UpdatedAt time.Time
}

// Store owns session flags and the global history ring. Sessions are never
// deleted for the process lifetime.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	active   int

	historyMu sync.Mutex
	history   []Entry
	head      int // index of the oldest entry once the ring is full
	limit     int
}

func NewStore(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Store{
		sessions: make(map[string]*Session),
		history:  make([]Entry, 0, historyLimit),
		limit:    historyLimit,
	}
}

// RecordMessage appends to the history, evicting the oldest entry at capacity.
func (s *Store) RecordMessage(userID, text string) {
	s.append(Entry{SpeakerID: userID, Text: text, At: time.Now()})
}

// RecordReply appends a bot reply tied to the input that produced it.
func (s *Store) RecordReply(botID, input, reply string) {
	s.append(Entry{SpeakerID: botID, Text: reply, InReplyTo: input, At: time.Now()})
}

func (s *Store) append(e Entry) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	if len(s.history) < s.limit {
		s.history = append(s.history, e)
		return
	}
	s.history[s.head] = e
	s.head = (s.head + 1) % s.limit
}

// History returns a copy of the history, oldest first.
func (s *Store) History() []Entry {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	out := make([]Entry, 0, len(s.history))
	out = append(out, s.history[s.head:]...)
	out = append(out, s.history[:s.head]...)
	return out
}

func (s *Store) HistoryLen() int {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	return len(s.history)
}

func (s *Store) getOrCreate(userID string) *Session {
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{UserID: userID, Stage: StageIntake}
		s.sessions[userID] = sess
	}
	return sess
}

// Activate marks the user active. It reports whether the flag changed.
func (s *Store) Activate(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreate(userID)
	if sess.Active {
		return false
	}
	sess.Active = true
	sess.Stage = StageIntake
	sess.UpdatedAt = time.Now()
	s.active++
	return true
}

// Deactivate marks the user inactive. It reports whether the flag changed.
func (s *Store) Deactivate(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok || !sess.Active {
		return false
	}
	sess.Active = false
	sess.UpdatedAt = time.Now()
	s.active--
	return true
}

func (s *Store) IsActive(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	return ok && sess.Active
}

// ActiveCount returns the number of active sessions.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Store) Stage(userID string) Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess.Stage
	}
	return StageIntake
}

// SetStage moves the session to stage. Unknown users are created inactive.
func (s *Store) SetStage(userID string, stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreate(userID)
	sess.Stage = stage
	sess.UpdatedAt = time.Now()
}

// Get returns a snapshot of the user's session.
func (s *Store) Get(userID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}
