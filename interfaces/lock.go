package interfaces

import (
	"context"
	"time"
)

// Locker hands out short-lived exclusive locks keyed by name.
type Locker interface {
	// TryLock never blocks; acquired is false when another owner holds key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), acquired bool, err error)
}
