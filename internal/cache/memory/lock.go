// Package memory provides in-process implementations of the cache and store
// interfaces, used when Redis or PostgreSQL are not configured and in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

type lease struct {
	token   string
	expires time.Time
}

// LockManager implements domain.LockManager with a mutex-guarded map of
// leases. An expired lease counts as free.
type LockManager struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

// Acquire takes key for ttl. It returns domain.ErrLockHeld while another
// live lease holds key. The returned unlock is idempotent and only releases
// the caller's own lease.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	if l, ok := lm.leases[key]; ok && now.Before(l.expires) {
		return nil, domain.ErrLockHeld
	}
	token := uuid.NewString()
	lm.leases[key] = lease{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if l, ok := lm.leases[key]; ok && l.token == token {
				delete(lm.leases, key)
			}
		})
	}, nil
}

// Held reports the number of live leases.
func (lm *LockManager) Held() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	now := lm.now()
	n := 0
	for key, l := range lm.leases {
		if now.Before(l.expires) {
			n++
		} else {
			delete(lm.leases, key)
		}
	}
	return n
}

var _ domain.LockManager = (*LockManager)(nil)
