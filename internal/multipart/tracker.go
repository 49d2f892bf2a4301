package multipart

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// SessionStatus represents the status of a multipart session
type SessionStatus string

const (
	SessionInitiated  SessionStatus = "initiated"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionAborted    SessionStatus = "aborted"
)

// IsTerminal returns true if the session can make no further progress
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionAborted
}

// Session tracks one server-side multipart upload
type Session struct {
	UploadID      string        `json:"upload_id"`
	Scheme        string        `json:"scheme"`
	Bucket        string        `json:"bucket"`
	Key           string        `json:"key"`
	Parts         []Part        `json:"parts"`
	BytesUploaded int64         `json:"bytes_uploaded"`
	StartedAt     time.Time     `json:"started_at"`
	LastUpdatedAt time.Time     `json:"last_updated_at"`
	Status        SessionStatus `json:"status"`

	abort func(ctx context.Context) error
}

// Tracker records the multipart sessions of a bundle so they can be reported and aborted
// when the bundle shuts down.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session // key is upload ID
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*Session)}
}

// Track starts tracking a session. abort cancels it server side.
func (t *Tracker) Track(s *Session, abort func(ctx context.Context) error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	s.StartedAt, s.LastUpdatedAt = now, now
	s.Status = SessionInitiated
	s.abort = abort
	t.sessions[s.UploadID] = s
}

// Get returns a copy of a tracked session
func (t *Tracker) Get(uploadID string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[uploadID]
	if !ok {
		return Session{}, false
	}
	cp := *s
	cp.Parts = append([]Part(nil), s.Parts...)
	return cp, true
}

// RecordPart marks a part as uploaded
func (t *Tracker) RecordPart(uploadID string, part Part) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[uploadID]
	if !ok {
		return
	}
	s.Parts = append(s.Parts, part)
	s.BytesUploaded += part.Size
	s.LastUpdatedAt = time.Now()
	s.Status = SessionInProgress
}

func (t *Tracker) setStatus(uploadID string, status SessionStatus) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[uploadID]; ok {
		s.Status = status
		s.LastUpdatedAt = time.Now()
	}
}

// MarkCompleted marks a session as completed
func (t *Tracker) MarkCompleted(uploadID string) { t.setStatus(uploadID, SessionCompleted) }

// MarkFailed marks a session as failed
func (t *Tracker) MarkFailed(uploadID string) { t.setStatus(uploadID, SessionFailed) }

// MarkAborted marks a session as aborted
func (t *Tracker) MarkAborted(uploadID string) { t.setStatus(uploadID, SessionAborted) }

// Remove stops tracking a session
func (t *Tracker) Remove(uploadID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.sessions, uploadID)
}

// Active returns the sessions that are not in a terminal state, oldest first
func (t *Tracker) Active() []Session {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Session, 0)
	for _, s := range t.sessions {
		if !s.Status.IsTerminal() {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Count returns the number of tracked sessions
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.sessions)
}

// Cleanup removes sessions that have been terminal for longer than maxAge
func (t *Tracker) Cleanup(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, s := range t.sessions {
		if s.Status.IsTerminal() && !s.LastUpdatedAt.After(cutoff) {
			delete(t.sessions, id)
			removed++
		}
	}
	return removed
}

// AbortActive cancels every non-terminal session server side. It returns the joined abort
// errors; sessions are marked aborted either way.
func (t *Tracker) AbortActive(ctx context.Context) (int, error) {
	t.mu.Lock()
	var pending []*Session
	for _, s := range t.sessions {
		if !s.Status.IsTerminal() {
			pending = append(pending, s)
		}
	}
	t.mu.Unlock()

	var errs []error
	for _, s := range pending {
		if s.abort != nil {
			if err := s.abort(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		t.MarkAborted(s.UploadID)
	}
	return len(pending), errors.Join(errs...)
}
