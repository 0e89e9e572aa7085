// Package store defines the fill journal for the matching engine.
// Implementations include PostgreSQL (durable audit trail), Redis (read-through
// cache in front of another store), and in-memory (for testing).
//
// The journal is write-only history: nothing here is ever read back into the
// engine.
package store

import (
	"context"

	"github.com/vmbid/matching-engine/internal/model"
)

// Store is the fill journal interface.
type Store interface {
	// InsertFills appends immutable fill records.
	InsertFills(ctx context.Context, fills []model.Fill) error

	// GetFillsByUser returns all fills for a user, oldest first.
	GetFillsByUser(ctx context.Context, username string) ([]model.Fill, error)
}
