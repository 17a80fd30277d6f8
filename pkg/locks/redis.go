package locks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "crm:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the TTL only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type RedisOptions struct {
	// TTL bounds how long a crashed holder can keep a key.
	TTL time.Duration
	// Poll is the retry interval while waiting in WithLock.
	Poll   time.Duration
	Prefix string
}

// Redis is a Coordinator shared by every process talking to the same Redis.
// Keys are claimed with SET NX PX and a random token; a watchdog extends the
// TTL while fn runs.
type Redis struct {
	client redis.UniversalClient
	opts   RedisOptions
}

func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = 25 * time.Millisecond
	}
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	return &Redis{client: client, opts: opts}
}

func (r *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return ErrEmptyKey
	}
	redisKey := r.opts.Prefix + key
	token := uuid.NewString()

	start := time.Now()
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.opts.TTL).Result()
		if err != nil {
			return err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.Poll):
		}
	}
	observeWait("redis", start)

	return r.hold(ctx, redisKey, token, fn)
}

func (r *Redis) TryWithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	redisKey := r.opts.Prefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, redisKey, token, r.opts.TTL).Result()
	if err != nil {
		return false, err
	}
	observeTry("redis", ok)
	if !ok {
		return false, nil
	}
	return true, r.hold(ctx, redisKey, token, fn)
}

func (r *Redis) hold(ctx context.Context, redisKey, token string, fn func(ctx context.Context) error) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.opts.TTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = extendScript.Run(context.WithoutCancel(ctx), r.client, []string{redisKey}, token, r.opts.TTL.Milliseconds()).Err()
			}
		}
	}()

	defer func() {
		close(stop)
		<-done
		_ = releaseScript.Run(context.WithoutCancel(ctx), r.client, []string{redisKey}, token).Err()
	}()

	return fn(ctx)
}
