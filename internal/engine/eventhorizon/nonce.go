package eventhorizon

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceStore remembers state nonces so each state token completes a login
// at most once.
type NonceStore interface {
	// Claim reports true the first time nonce is seen within ttl.
	Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

type MemoryNonceStore struct {
	store sync.Map // map[nonce]time.Time (expiry)
	now   func() time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{now: time.Now}
}

// Claim never resurrects an expired nonce: the state token carrying it has
// expired as well and fails verification first.
func (s *MemoryNonceStore) Claim(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	_, loaded := s.store.LoadOrStore(nonce, s.now().Add(ttl))
	return !loaded, nil
}

// Sweep drops nonces past their expiry.
func (s *MemoryNonceStore) Sweep() int {
	now := s.now()
	removed := 0
	s.store.Range(func(key, value any) bool {
		if now.After(value.(time.Time)) {
			s.store.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *MemoryNonceStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

const nonceKeyPrefix = "tasker:oauth:nonce:"

// RedisNonceStore shares claimed nonces across server instances.
type RedisNonceStore struct {
	client redis.UniversalClient
}

func NewRedisNonceStore(client redis.UniversalClient) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func (s *RedisNonceStore) Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, nonceKeyPrefix+nonce, 1, ttl).Result()
}
