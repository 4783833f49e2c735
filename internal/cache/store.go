// Package cache はページキャッシュと再検証（invalidation path）を提供する。
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store はページキャッシュの保存先。
// Redisが設定されていればRedisStore、なければMemoryStoreを使用する。
type Store interface {
	// Get はキーに対応する値を返す。存在しない場合は (nil, false, nil)。
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set は値をTTL付きで保存する。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix はプレフィックスに一致するキーを全て削除し、削除件数を返す。
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore はプロセス内のStore実装。単一インスタンス構成とテストで使用する。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// コンパイル時にインターフェース実装を検証する。
var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}
