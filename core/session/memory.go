package session

import (
	"context"
	"sync"
	"time"
)

var nowFunc = time.Now // mockable

type memSession struct {
	userID   string
	lastSeen time.Time
}

// MemoryTracker keeps sessions in process memory.
// Sessions do not survive restarts and are not shared between instances.
type MemoryTracker struct {
	mu       sync.Mutex
	idle     time.Duration
	sessions map[string]memSession
}

var _ Tracker = (*MemoryTracker)(nil)

func NewMemoryTracker(idleTimeout time.Duration) *MemoryTracker {
	return &MemoryTracker{
		idle:     idleTimeout,
		sessions: make(map[string]memSession),
	}
}

func (t *MemoryTracker) Start(_ context.Context, sid, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[sid] = memSession{userID: userID, lastSeen: nowFunc()}
	t.gc()
	return nil
}

func (t *MemoryTracker) Touch(_ context.Context, sid string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sid]
	if !ok {
		return ErrExpired
	}
	now := nowFunc()
	if now.Sub(s.lastSeen) > t.idle {
		delete(t.sessions, sid)
		return ErrExpired
	}
	s.lastSeen = now
	t.sessions[sid] = s
	return nil
}

func (t *MemoryTracker) Revoke(_ context.Context, sid string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sid)
	return nil
}

func (t *MemoryTracker) RevokeUser(_ context.Context, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for sid, s := range t.sessions {
		if s.userID == userID {
			delete(t.sessions, sid)
		}
	}
	return nil
}

// Len returns the number of tracked sessions, expired ones included until collected.
func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// gc drops idle sessions. Callers must hold t.mu.
func (t *MemoryTracker) gc() {
	now := nowFunc()
	for sid, s := range t.sessions {
		if now.Sub(s.lastSeen) > t.idle {
			delete(t.sessions, sid)
		}
	}
}
