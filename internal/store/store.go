// Package store provides the user state store: a document store keyed by user
// ID with merge-update semantics.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/alexi/internal/domain"
)

// AnyVersion disables the optimistic version check on MergeUser.
const AnyVersion int64 = -1

// ErrVersionConflict is returned by MergeUser when the stored version does not
// match the expected one.
var ErrVersionConflict = errors.New("optimistic lock failed: document version changed")

// Repository defines the interface for persisting user documents.
type Repository interface {
	// GetUser retrieves a user document. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// MergeUser merges fields into the user document, creating it when absent.
	// Nested maps are merged key by key; other values are replaced.
	// If expectedVersion is not AnyVersion, the write only happens when the
	// stored version equals expectedVersion (0 means "document must not exist").
	// Returns the new document version.
	MergeUser(ctx context.Context, userID string, fields map[string]any, expectedVersion int64) (int64, error)

	// Ping verifies connectivity and returns an error if the store is unreachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
