// Package dedupe guards inbound webhook events against concurrent duplicate
// processing. A message id is admitted at most once while its marker is held;
// releasing the marker makes the id admissible again.
package dedupe

import (
	"context"
	"errors"
)

// Deduplicator admits an inbound message id once until it is released.
type Deduplicator interface {
	Admit(ctx context.Context, messageID string) (bool, error)
	Release(ctx context.Context, messageID string) error
}

// ErrEmptyID is returned when a caller tries to admit a blank message id.
var ErrEmptyID = errors.New("dedupe: message id is required")
