package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dietnavigator/nutrition-chat/internal/identity"
	"github.com/dietnavigator/nutrition-chat/internal/store"
)

var errNoVisitor = errors.New("no visitor id on request")

// RepoProvider keeps visitor sessions server-side in a store.Repository,
// keyed by the identity visitor cookie. It must run behind identity.Middleware.
type RepoProvider struct {
	repo store.Repository
}

// NewRepoProvider returns a provider backed by repo.
func NewRepoProvider(repo store.Repository) *RepoProvider {
	return &RepoProvider{repo: repo}
}

// Bind returns the Store for the requesting visitor.
func (p *RepoProvider) Bind(_ http.ResponseWriter, r *http.Request) (Store, error) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	if visitorID == "" {
		return nil, errNoVisitor
	}
	return &repoStore{repo: p.repo, visitorID: visitorID}, nil
}

type repoStore struct {
	repo      store.Repository
	visitorID string
}

func (s *repoStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.repo.GetValue(ctx, s.visitorID, key)
}

func (s *repoStore) Set(ctx context.Context, key, value string) error {
	return s.repo.SetValue(ctx, s.visitorID, key, value)
}

func (s *repoStore) Clear(ctx context.Context, key string) error {
	return s.repo.DeleteValue(ctx, s.visitorID, key)
}

const sweepInterval = 5 * time.Minute

// StartSweeper runs a background goroutine that periodically deletes visitor
// sessions idle for longer than ttl.
func StartSweeper(ctx context.Context, repo store.Repository, ttl time.Duration) {
	startSweeper(ctx, repo, ttl, sweepInterval)
}

func startSweeper(ctx context.Context, repo store.Repository, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, repo, ttl)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, repo store.Repository, ttl time.Duration) {
	deleted, err := repo.DeleteIdleVisitors(ctx, ttl)
	if err != nil {
		slog.Error("Session sweeper failed to delete idle visitors", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Session sweeper removed idle visitor state", "rows", deleted)
	}
}
