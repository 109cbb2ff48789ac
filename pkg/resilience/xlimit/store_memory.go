package xlimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内计数存储
//
// 支持按键过期、原子自增与比较并设置。适用于单实例部署和测试；
// 多实例部署时各实例计数互不可见，应使用 RedisStore。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value    string
	expireAt time.Time // 零值表示不过期
}

// MemoryStoreOption MemoryStore 配置选项
type MemoryStoreOption func(*MemoryStore)

// WithClock 设置时钟，用于测试过期行为
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore 创建进程内计数存储
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get 读取键的当前值
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.load(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

// SetWithExpiry 写入值并重置过期时间；ttl <= 0 表示不过期
func (s *MemoryStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, expireAt: s.expireAt(ttl)}
	return nil
}

// IncrementWithExpiryOnCreate 原子自增，仅在计数创建时设置过期时间
func (s *MemoryStore) IncrementWithExpiryOnCreate(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.load(key)
	if !ok {
		s.entries[key] = memoryEntry{value: "1", expireAt: s.expireAt(ttl)}
		return 1, nil
	}

	n, err := parseCount(key, e.value)
	if err != nil {
		return 0, err
	}
	n++
	e.value = formatCount(n)
	s.entries[key] = e
	return n, nil
}

// CompareAndSet 当键状态未变化时写入
func (s *MemoryStore) CompareAndSet(ctx context.Context, key, expected string, found bool, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.load(key)
	if ok != found || (ok && e.value != expected) {
		return ErrCASConflict
	}
	s.entries[key] = memoryEntry{value: value, expireAt: s.expireAt(ttl)}
	return nil
}

// TTL 返回键的剩余存活时间；键不存在时 ok 为 false，不过期时返回 -1
func (s *MemoryStore) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.load(key)
	if !ok {
		return 0, false
	}
	if e.expireAt.IsZero() {
		return -1, true
	}
	return e.expireAt.Sub(s.now()), true
}

// Delete 删除键
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len 返回未过期的键数量
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.entries {
		if _, ok := s.load(key); ok {
			n++
		}
	}
	return n
}

// load 读取未过期的条目，过期条目被惰性删除。调用方需持有锁。
func (s *MemoryStore) load(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expireAt.IsZero() && !s.now().Before(e.expireAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) expireAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

var (
	_ AtomicCounterStore = (*MemoryStore)(nil)
	_ CASCounterStore    = (*MemoryStore)(nil)
)
