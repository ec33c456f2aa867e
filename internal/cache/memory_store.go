package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// NewMemoryStore 构建进程内缓存：条目存放在 ristretto 中，代际索引单独维护，
// 以便枚举和整代删除。maxCost 以编码后的字节数计。
func NewMemoryStore(maxCost int64) (Store, error) {
	if maxCost <= 0 {
		return nil, errors.New("memory store: max cost must be positive")
	}
	counters := maxCost / 100
	if counters < 10000 {
		counters = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        counters,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	return &memoryStore{
		cache:       c,
		generations: make(map[string]map[string]struct{}),
	}, nil
}

type memoryStore struct {
	cache *ristretto.Cache

	mu          sync.RWMutex
	generations map[string]map[string]struct{}
}

type memoryBucket struct {
	store *memoryStore
	name  string
}

func (s *memoryStore) Open(ctx context.Context, generation string) (Bucket, error) {
	if err := validateGeneration(generation); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if _, ok := s.generations[generation]; !ok {
		s.generations[generation] = make(map[string]struct{})
	}
	s.mu.Unlock()
	return &memoryBucket{store: s, name: generation}, nil
}

func (s *memoryStore) Has(ctx context.Context, generation string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.generations[generation]
	return ok, nil
}

func (s *memoryStore) Delete(ctx context.Context, generation string) (bool, error) {
	s.mu.Lock()
	keys, ok := s.generations[generation]
	delete(s.generations, generation)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	for key := range keys {
		s.cache.Del(key)
	}
	return true, nil
}

func (s *memoryStore) Generations(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	result := make([]string, 0, len(s.generations))
	for name := range s.generations {
		result = append(result, name)
	}
	s.mu.RUnlock()
	sort.Strings(result)
	return result, nil
}

func (s *memoryStore) Close() error {
	s.cache.Close()
	return nil
}

func (b *memoryBucket) Name() string {
	return b.name
}

func (b *memoryBucket) Match(ctx context.Context, u *url.URL, header http.Header, opts MatchOptions) (*Entry, error) {
	value, ok := b.store.cache.Get(b.cacheKey(KeyFor(u)))
	if !ok {
		return nil, ErrNotFound
	}
	data, _ := value.([]byte)
	if data == nil {
		return nil, ErrNotFound
	}
	entry, err := decodeEntry(data)
	if err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if !entry.Matches(u, header, opts) {
		return nil, ErrNotFound
	}
	return entry, nil
}

func (b *memoryBucket) Put(ctx context.Context, entry *Entry) error {
	key := entry.Key()
	if key == "" {
		return fmt.Errorf("invalid entry url: %q", entry.URL)
	}
	data, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	// 持锁完成写入与登记，避免与 Delete 交错后把已删除的代际写回来。
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	keys, ok := b.store.generations[b.name]
	if !ok {
		return ErrNotFound
	}

	cacheKey := b.cacheKey(key)
	if !b.store.cache.Set(cacheKey, data, int64(len(data))) {
		return ErrRejected
	}
	// Set 经由缓冲区异步生效，Wait 之后读路径才能看到新值。
	b.store.cache.Wait()
	keys[cacheKey] = struct{}{}
	return nil
}

func (b *memoryBucket) cacheKey(key string) string {
	return b.name + "\x00" + key
}
