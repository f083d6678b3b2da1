package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"NewsDigest/internal/ports"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the expiry only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLease serialises runs across processes with a SET NX key.
type RedisLease struct {
	client redis.UniversalClient
	key    string
}

var _ ports.RunLease = (*RedisLease)(nil)

// NewRedisLease wraps an existing client.
func NewRedisLease(client redis.UniversalClient, key string) *RedisLease {
	if key == "" {
		key = "newsdigest:run-lease"
	}
	return &RedisLease{client: client, key: key}
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// Acquire takes the lease for ttl and keeps extending it every ttl/3 until released,
// so a run that outlives ttl still holds the key. The returned func stops the renewal
// and deletes the key if still owned.
func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return nil, ports.ErrLeaseHeld
	}

	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(renewCtx, ttl/3, func(ctx context.Context) (bool, error) {
			n, err := extendScript.Run(ctx, l.client, []string{l.key}, token, ttl.Milliseconds()).Int64()
			return n == 1, err
		})
	}()

	var once sync.Once
	release := func(ctx context.Context) error {
		once.Do(func() {
			stop()
			<-done
		})
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("release lease %s: %w", l.key, err)
		}
		return nil
	}
	return release, nil
}

// keepAlive calls extend on every tick until ctx ends or the lease is reported lost.
// A transient error is retried on the next tick.
func keepAlive(ctx context.Context, interval time.Duration, extend func(context.Context) (bool, error)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			owned, err := extend(ctx)
			if err == nil && !owned {
				return
			}
		}
	}
}
