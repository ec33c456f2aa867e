package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/redis/go-redis/v9"
)

// ErrNilClient 表示未注入 Redis 客户端。
var ErrNilClient = errors.New("redis store: nil client")

// putScript 仅在代际仍登记在 generations 集合中时写入条目，
// 其他实例已删除的代际不会被迟到的写入复活。
var putScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("SET", KEYS[3], ARGV[2])
redis.call("SADD", KEYS[2], KEYS[3])
return 1
`)

// NewRedisStore 使用 Redis 保存缓存代际。键布局：
//
//	<prefix>:generations              SET   全部代际
//	<prefix>:gen:<g>:keys             SET   代际内全部条目键
//	<prefix>:gen:<g>:entry:<sha1>     STRING msgpack 编码的 Entry
//
// closeClient 为 true 时 Close 会一并关闭客户端。
func NewRedisStore(client redis.UniversalClient, prefix string, closeClient bool) (Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if prefix == "" {
		prefix = "edgehub"
	}
	return &redisStore{rdb: client, prefix: prefix, closeClient: closeClient}, nil
}

type redisStore struct {
	rdb         redis.UniversalClient
	prefix      string
	closeClient bool
}

type redisBucket struct {
	store *redisStore
	name  string
}

func (s *redisStore) generationsKey() string {
	return s.prefix + ":generations"
}

func (s *redisStore) keysKey(generation string) string {
	return s.prefix + ":gen:" + generation + ":keys"
}

func (s *redisStore) entryKey(generation, key string) string {
	sum := sha1.Sum([]byte(key))
	return s.prefix + ":gen:" + generation + ":entry:" + hex.EncodeToString(sum[:])
}

func (s *redisStore) Open(ctx context.Context, generation string) (Bucket, error) {
	if err := validateGeneration(generation); err != nil {
		return nil, err
	}
	if err := s.rdb.SAdd(ctx, s.generationsKey(), generation).Err(); err != nil {
		return nil, fmt.Errorf("redis sadd: %w", err)
	}
	return &redisBucket{store: s, name: generation}, nil
}

func (s *redisStore) Has(ctx context.Context, generation string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, s.generationsKey(), generation).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

func (s *redisStore) Delete(ctx context.Context, generation string) (bool, error) {
	exists, err := s.Has(ctx, generation)
	if err != nil || !exists {
		return false, err
	}
	entryKeys, err := s.rdb.SMembers(ctx, s.keysKey(generation)).Result()
	if err != nil {
		return false, fmt.Errorf("redis smembers: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(entryKeys) > 0 {
			pipe.Del(ctx, entryKeys...)
		}
		pipe.Del(ctx, s.keysKey(generation))
		pipe.SRem(ctx, s.generationsKey(), generation)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis delete generation: %w", err)
	}
	return true, nil
}

func (s *redisStore) Generations(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, s.generationsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *redisStore) Close() error {
	if s.closeClient {
		return s.rdb.Close()
	}
	return nil
}

func (b *redisBucket) Name() string {
	return b.name
}

func (b *redisBucket) Match(ctx context.Context, u *url.URL, header http.Header, opts MatchOptions) (*Entry, error) {
	data, err := b.store.rdb.Get(ctx, b.store.entryKey(b.name, KeyFor(u))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
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

func (b *redisBucket) Put(ctx context.Context, entry *Entry) error {
	key := entry.Key()
	if key == "" {
		return fmt.Errorf("invalid entry url: %q", entry.URL)
	}
	data, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	entryKey := b.store.entryKey(b.name, key)
	keys := []string{b.store.generationsKey(), b.store.keysKey(b.name), entryKey}
	written, err := putScript.Run(ctx, b.store.rdb, keys, b.name, data).Int()
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	if written == 0 {
		return ErrNotFound
	}
	return nil
}
