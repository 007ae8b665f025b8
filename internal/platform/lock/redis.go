package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Compare-and-delete so a holder whose lease expired cannot release the
// next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions tunes the distributed locker.
type RedisOptions struct {
	// TTL bounds how long a crashed holder keeps the lock.
	TTL time.Duration
	// PollInterval is the wait between acquisition attempts.
	PollInterval time.Duration
}

type redisLocker struct {
	client redis.Cmdable
	opts   RedisOptions
}

// NewRedis returns a Locker shared by every process using client.
func NewRedis(client redis.Cmdable, opts RedisOptions) Locker {
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	return &redisLocker{client: client, opts: opts}
}

func (l *redisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()
	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return &redisLease{client: l.client, key: key, token: token}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type redisLease struct {
	client redis.Cmdable
	key    string
	token  string
}

func (r *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", r.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
