package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// unlockLua deletes the key only while it still holds our token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Redis is an AccountLock shared by every process pointed at the same
// Redis database. Keys expire after ttl so a crashed holder cannot wedge
// the account.
type Redis struct {
	rdb    *redis.Client
	unlock *redis.Script
	ttl    time.Duration
	logger *zap.Logger
}

// DialRedis connects and pings before returning.
func DialRedis(ctx context.Context, addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return NewRedis(rdb, ttl, logger), nil
}

func NewRedis(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	return &Redis{
		rdb:    rdb,
		unlock: redis.NewScript(unlockLua),
		ttl:    ttl,
		logger: logger,
	}
}

func Key(account common.Address) string {
	return "flasharb:lock:" + account.Hex()
}

func (r *Redis) Acquire(ctx context.Context, account common.Address) (func(), error) {
	token := uuid.NewString()
	key := Key(account)

	ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.unlock.Run(releaseCtx, r.rdb, []string{key}, token).Err(); err != nil {
				r.logger.Warn("Failed to release account lock", zap.String("key", key), zap.Error(err))
			}
		})
	}
	return release, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

var _ AccountLock = (*Redis)(nil)
