package usecase

import (
	"sync"
	"time"

	"versusmatch/internal/domain"
	"versusmatch/internal/ports"
)

// Store holds the canonical match state. It performs no validation; turn
// invariants are enforced by the Arbiter. Mutations are collected until
// Publish, which delivers at most one notification per logical event.
type Store struct {
	sink ports.EventSink
	now  func() time.Time

	mu    sync.RWMutex
	state domain.MatchState
	dirty bool
}

func NewStore(initial domain.MatchState, sink ports.EventSink, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	if initial.TranscriptMessages == nil {
		initial.TranscriptMessages = []domain.TranscriptMessage{}
	}
	return &Store{sink: sink, now: now, state: initial.Clone()}
}

// State returns an immutable snapshot.
func (s *Store) State() domain.MatchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// MatchStarted reports whether a match is running without copying the state.
func (s *Store) MatchStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.MatchStarted
}

// Update merges a partial update, last writer wins per field.
func (s *Store) Update(patch domain.MatchPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	patch.Apply(&s.state)
	s.dirty = true
}

// AddTranscriptMessage appends msg, stamping it with the current time when it
// carries none.
func (s *Store) AddTranscriptMessage(msg domain.TranscriptMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TranscriptMessages = append(s.state.TranscriptMessages, msg)
	s.dirty = true
}

func (s *Store) ClearTranscriptMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TranscriptMessages = []domain.TranscriptMessage{}
	s.dirty = true
}

// Reset replaces the whole state.
func (s *Store) Reset(state domain.MatchState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
	s.dirty = true
}

// Publish notifies the sink if anything changed since the last publication.
func (s *Store) Publish(reason domain.StateReason) bool {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return false
	}
	s.dirty = false
	snapshot := s.state.Clone()
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.MatchStateChanged(snapshot, reason)
	}
	return true
}
