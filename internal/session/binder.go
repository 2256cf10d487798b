package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Keys under which the binder keeps the pair in the visitor Store.
const (
	UserIDKey    = "ae_user_id"
	SessionIDKey = "ae_session_id"
)

// ErrNoSessionID is returned when the runtime created a session but sent back no identifier.
var ErrNoSessionID = errors.New("session creation returned no identifier")

// Pair identifies a visitor's remote conversation.
type Pair struct {
	UserID    string
	SessionID string
}

// Creator opens remote sessions.
type Creator interface {
	CreateSession(ctx context.Context, userID string) (string, error)
}

// Binder ensures each visitor has exactly one remote session per Store lifetime.
type Binder struct {
	creator   Creator
	newUserID func() string
	logger    *slog.Logger
}

// NewBinder returns a Binder creating sessions through creator.
func NewBinder(creator Creator, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{creator: creator, newUserID: NewUserID, logger: logger}
}

// NewUserID returns a short random user id prefixed for traceability.
func NewUserID() string {
	return "web-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Ensure returns the visitor's pair, generating the user id and creating the
// remote session only when they are not yet stored.
func (b *Binder) Ensure(ctx context.Context, store Store) (Pair, error) {
	userID, ok, err := store.Get(ctx, UserIDKey)
	if err != nil {
		return Pair{}, fmt.Errorf("load user id: %w", err)
	}
	if !ok || userID == "" {
		userID = b.newUserID()
		if err := store.Set(ctx, UserIDKey, userID); err != nil {
			return Pair{}, fmt.Errorf("store user id: %w", err)
		}
	}

	sessionID, ok, err := store.Get(ctx, SessionIDKey)
	if err != nil {
		return Pair{}, fmt.Errorf("load session id: %w", err)
	}
	if ok && sessionID != "" {
		return Pair{UserID: userID, SessionID: sessionID}, nil
	}

	sessionID, err = b.creator.CreateSession(ctx, userID)
	if err != nil {
		return Pair{}, err
	}
	if sessionID == "" {
		return Pair{}, ErrNoSessionID
	}
	if err := store.Set(ctx, SessionIDKey, sessionID); err != nil {
		return Pair{}, fmt.Errorf("store session id: %w", err)
	}
	b.logger.Info("Created agent session", "user_id", userID, "session_id", sessionID)

	return Pair{UserID: userID, SessionID: sessionID}, nil
}

// Reset forgets the remote session so the next Ensure creates a fresh one.
// The user id is kept.
func Reset(ctx context.Context, store Store) error {
	return store.Clear(ctx, SessionIDKey)
}
