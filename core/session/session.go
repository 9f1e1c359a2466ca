// Package session tracks authenticated sessions and expires the idle ones.
//
// Every access token carries a session id. Each authenticated request touches its
// session; a session untouched for longer than the idle timeout is expired and the
// token carrying it is rejected, even if the token itself is still valid.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrExpired is returned when a session is unknown, revoked or idle for too long.
var ErrExpired = errors.New("session expired")

// Tracker is any store able to track sessions.
type Tracker interface {
	// Start registers a new session for userID.
	Start(ctx context.Context, sid, userID string) error
	// Touch extends a live session, or returns ErrExpired.
	Touch(ctx context.Context, sid string) error
	// Revoke ends a session immediately.
	Revoke(ctx context.Context, sid string) error
	// RevokeUser ends every session of userID.
	RevokeUser(ctx context.Context, userID string) error
}

// NewID returns a new random session id.
func NewID() string {
	return uuid.NewString()
}
