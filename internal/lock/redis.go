package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/logger"
	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/internal/utils"
)

const keyPrefix = "domainstack:lock:"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	log    logger.Logger
	client *redis.Client
}

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}
	return client, nil
}

func NewRedisLocker(log logger.Logger, client *redis.Client) interfaces.Locker {
	return &redisLocker{
		log:    log,
		client: client,
	}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RedisLocker.TryLock")
	defer span.Finish()
	span.LogKV("key", key, "ttl", ttl.String())

	token := utils.GenerateNanoId(21)
	redisKey := keyPrefix + key

	acquired, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, false, errors.Wrap(err, "failed to acquire lock")
	}
	if !acquired {
		span.LogKV("acquired", false)
		return nil, false, nil
	}

	unlock := func() {
		// the caller's context may already be done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
			l.log.Warnf("Failed to release lock %s: %v", key, err)
		}
	}
	return unlock, true, nil
}
