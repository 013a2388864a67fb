package locksvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/staffhub/backend/core"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extendScript renews the expiry only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Redis is a lock shared by every process using the same key.
// The TTL bounds how long a crashed run can hold it; a live holder renews it
// every third of the TTL until released.
type Redis struct {
	client redisClient
	key    string
	ttl    time.Duration
	logger core.Logger
}

func NewRedis(client *redis.Client, key string, ttl time.Duration, logger core.Logger) *Redis {
	return &Redis{client: client, key: key, ttl: ttl, logger: logger}
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "connecting to redis")
	}
	return client, nil
}

func (l *Redis) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "acquiring run lock")
	}
	if !ok {
		return nil, ErrLocked
	}

	stop, stopped := make(chan struct{}), make(chan struct{})
	go l.keepAlive(token, stop, stopped)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-stopped

			// the run context may be done by now
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
				l.logger.Warn(fmt.Sprintf("releasing run lock %s: %v", l.key, err), err)
			}
		})
	}
	return release, nil
}

// keepAlive extends the lock until stop is closed or the lock is lost.
func (l *Redis) keepAlive(token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	if l.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
		n, err := extendScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			l.logger.Warn(fmt.Sprintf("extending run lock %s: %v", l.key, err), err)
		case n == 0:
			l.logger.Error(fmt.Sprintf("run lock %s was lost before the run ended", l.key))
			return
		}
	}
}
