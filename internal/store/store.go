// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"
)

// Repository defines the interface for persisting server-side visitor sessions.
type Repository interface {
	// GetValue retrieves the value stored under key for a visitor.
	GetValue(ctx context.Context, visitorID, key string) (string, bool, error)

	// SetValue creates or replaces the value stored under key for a visitor.
	SetValue(ctx context.Context, visitorID, key, value string) error

	// DeleteValue removes key for a visitor. Missing keys are not an error.
	DeleteValue(ctx context.Context, visitorID, key string) error

	// DeleteIdleVisitors removes every value of visitors untouched for longer than ttl.
	DeleteIdleVisitors(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
