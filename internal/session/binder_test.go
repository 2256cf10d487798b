package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

type fakeCreator struct {
	calls atomic.Int32
	id    string
	err   error
	users []string
}

func (f *fakeCreator) CreateSession(_ context.Context, userID string) (string, error) {
	f.calls.Add(1)
	f.users = append(f.users, userID)
	return f.id, f.err
}

func TestBinderEnsureIsIdempotent(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{id: "sess-1"}
	binder := NewBinder(creator, nil)
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := binder.Ensure(ctx, store)
	if err != nil {
		t.Fatalf("first Ensure failed: %v", err)
	}
	second, err := binder.Ensure(ctx, store)
	if err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}

	if first != second {
		t.Fatalf("expected same pair, got %+v and %+v", first, second)
	}
	if got := creator.calls.Load(); got != 1 {
		t.Fatalf("expected CreateSession once, got %d", got)
	}
	if !strings.HasPrefix(first.UserID, "web-") || len(first.UserID) != len("web-")+8 {
		t.Fatalf("unexpected user id %q", first.UserID)
	}
	if creator.users[0] != first.UserID {
		t.Fatalf("session created for %q, want %q", creator.users[0], first.UserID)
	}
}

func TestBinderKeepsExistingUserID(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{id: "sess-2"}
	binder := NewBinder(creator, nil)
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Set(ctx, UserIDKey, "web-existing")

	pair, err := binder.Ensure(ctx, store)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if pair.UserID != "web-existing" || pair.SessionID != "sess-2" {
		t.Fatalf("unexpected pair %+v", pair)
	}
}

func TestBinderResetCreatesFreshSession(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{id: "sess-a"}
	binder := NewBinder(creator, nil)
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := binder.Ensure(ctx, store)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if err := Reset(ctx, store); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	creator.id = "sess-b"
	second, err := binder.Ensure(ctx, store)
	if err != nil {
		t.Fatalf("Ensure after reset failed: %v", err)
	}
	if second.SessionID != "sess-b" {
		t.Fatalf("expected fresh session, got %q", second.SessionID)
	}
	if second.UserID != first.UserID {
		t.Fatalf("user id changed across reset: %q -> %q", first.UserID, second.UserID)
	}
	if got := creator.calls.Load(); got != 2 {
		t.Fatalf("expected 2 CreateSession calls, got %d", got)
	}
}

func TestBinderEmptySessionID(t *testing.T) {
	t.Parallel()

	binder := NewBinder(&fakeCreator{}, nil)
	store := NewMemoryStore()

	_, err := binder.Ensure(context.Background(), store)
	if !errors.Is(err, ErrNoSessionID) {
		t.Fatalf("expected ErrNoSessionID, got %v", err)
	}
	if _, ok, _ := store.Get(context.Background(), SessionIDKey); ok {
		t.Fatal("session id must not be stored on failure")
	}
}

func TestBinderCreateError(t *testing.T) {
	t.Parallel()

	boom := errors.New("runtime unavailable")
	binder := NewBinder(&fakeCreator{err: boom}, nil)

	_, err := binder.Ensure(context.Background(), NewMemoryStore())
	if !errors.Is(err, boom) {
		t.Fatalf("expected runtime error, got %v", err)
	}
}
