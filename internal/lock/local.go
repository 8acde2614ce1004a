package lock

import (
	"context"
	"sync"
	"time"

	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/utils"
)

// localLocker is used when no Redis is configured. It only excludes callers within this process.
type localLocker struct {
	mu   sync.Mutex
	held map[string]localLease
}

type localLease struct {
	token     string
	expiresAt time.Time
}

func NewLocalLocker() interfaces.Locker {
	return &localLocker{
		held: make(map[string]localLease),
	}
}

func (l *localLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if lease, ok := l.held[key]; ok && now.Before(lease.expiresAt) {
		return nil, false, nil
	}

	token := utils.GenerateNanoId(12)
	l.held[key] = localLease{token: token, expiresAt: now.Add(ttl)}

	unlock := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if lease, ok := l.held[key]; ok && lease.token == token {
			delete(l.held, key)
		}
	}
	return unlock, true, nil
}
