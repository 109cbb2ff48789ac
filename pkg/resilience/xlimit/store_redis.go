package xlimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript 原子自增，仅在计数刚创建时设置过期（毫秒）
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisStore 基于 Redis 的共享计数存储
//
// 不关闭注入的客户端，客户端生命周期由调用方管理。
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore 创建 Redis 计数存储
func NewRedisStore(rdb redis.UniversalClient) (*RedisStore, error) {
	if rdb == nil {
		return nil, ErrNilStore
	}
	return &RedisStore{rdb: rdb}, nil
}

// Client 返回底层客户端
func (s *RedisStore) Client() redis.UniversalClient {
	return s.rdb
}

// Get 执行 GET
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeError("get", key, err)
	}
	return val, true, nil
}

// SetWithExpiry 执行 SET key value PX ttl
func (s *RedisStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return storeError("set", key, err)
	}
	return nil
}

// IncrementWithExpiryOnCreate 通过 Lua 脚本执行 INCR，并在新值为 1 时设置过期
func (s *RedisStore) IncrementWithExpiryOnCreate(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := incrScript.Run(ctx, s.rdb, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		if isNotIntegerReply(err) {
			return 0, &CounterError{Key: key, Err: err}
		}
		return 0, storeError("incr", key, err)
	}
	return n, nil
}

// CompareAndSet 通过 WATCH/MULTI 实现乐观写入
//
// 事务执行前键被修改时返回 ErrCASConflict。
func (s *RedisStore) CompareAndSet(ctx context.Context, key, expected string, found bool, value string, ttl time.Duration) error {
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Result()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}
		if exists != found || (exists && cur != expected) {
			return ErrCASConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCASConflict), errors.Is(err, redis.TxFailedErr):
		return ErrCASConflict
	default:
		return storeError("cas", key, err)
	}
}

// isNotIntegerReply 服务端拒绝对非整数值执行 INCR
func isNotIntegerReply(err error) bool {
	var rerr redis.Error
	if !errors.As(err, &rerr) {
		return false
	}
	return strings.Contains(rerr.Error(), "not an integer")
}

var (
	_ AtomicCounterStore = (*RedisStore)(nil)
	_ CASCounterStore    = (*RedisStore)(nil)
)
