// Package events streams fills to downstream consumers.
package events

import (
	"context"

	"github.com/vmbid/matching-engine/internal/model"
)

// Publisher delivers fills outside the process.
type Publisher interface {
	Publish(ctx context.Context, fills []model.Fill) error
	Close() error
}
