package cache

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// Store 管理多个缓存代际（generation），每个代际对应一个 worker 版本。
type Store interface {
	// Open 返回指定代际的 Bucket，不存在时自动创建。
	Open(ctx context.Context, generation string) (Bucket, error)

	// Has 判断代际是否已经存在，安装失败回滚时用来区分新旧代际。
	Has(ctx context.Context, generation string) (bool, error)

	// Delete 删除整个代际及其全部条目，返回删除前是否存在。
	Delete(ctx context.Context, generation string) (bool, error)

	// Generations 返回按名称排序的全部代际。
	Generations(ctx context.Context) ([]string, error)

	// Close 释放底层资源。
	Close() error
}

// Bucket 是单个代际内的 request-key → Entry 映射。
type Bucket interface {
	Name() string

	// Match 按 opts 规则查找请求对应的条目，未命中返回 ErrNotFound。
	Match(ctx context.Context, u *url.URL, header http.Header, opts MatchOptions) (*Entry, error)

	// Put 以 entry.URL 推导出的 key 覆盖写入，条目要么完整存在要么不存在。
	// 代际已被删除时返回 ErrNotFound，不会重新创建代际。
	Put(ctx context.Context, entry *Entry) error
}

// MatchOptions 控制查找时是否忽略查询串与 Vary 头差异。
type MatchOptions struct {
	IgnoreSearch bool
	IgnoreVary   bool
}

// LenientMatch 是两种策略共用的查找规则。
var LenientMatch = MatchOptions{IgnoreSearch: true, IgnoreVary: true}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")

	// ErrStoreUnavailable 表示调用方未注入 Bucket。
	ErrStoreUnavailable = errors.New("cache store unavailable")

	// ErrRejected 表示存储在压力下拒绝了本次写入。
	ErrRejected = errors.New("cache write rejected")

	// ErrInvalidGeneration 表示代际名称不能安全地映射到存储键。
	ErrInvalidGeneration = errors.New("invalid cache generation")
)

// KeyFor 从 URL 推导请求键：scheme://host/path，忽略查询串与 fragment。
func KeyFor(u *url.URL) string {
	if u == nil {
		return ""
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + p
}

func validateGeneration(generation string) error {
	if generation == "" || generation == "." || generation == ".." {
		return ErrInvalidGeneration
	}
	if strings.ContainsAny(generation, `/\:`) {
		return ErrInvalidGeneration
	}
	return nil
}
