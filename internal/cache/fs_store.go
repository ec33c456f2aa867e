package cache

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const entrySuffix = ".entry"

// NewStore 以 basePath 为根目录构建磁盘缓存，每个代际是一个子目录：
//
//	<basePath>/<generation>/<sha1(key)>.entry
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 串行化同一条目的写入，读路径不加锁，依赖 rename 的原子性。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

type fileBucket struct {
	store *fileStore
	name  string
	dir   string
}

func (s *fileStore) Open(ctx context.Context, generation string) (Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.generationDir(generation)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create generation %s: %w", generation, err)
	}
	return &fileBucket{store: s, name: generation, dir: dir}, nil
}

func (s *fileStore) Has(ctx context.Context, generation string) (bool, error) {
	dir, err := s.generationDir(generation)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (s *fileStore) Delete(ctx context.Context, generation string) (bool, error) {
	exists, err := s.Has(ctx, generation)
	if err != nil || !exists {
		return false, err
	}
	dir, _ := s.generationDir(generation)
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("delete generation %s: %w", generation, err)
	}
	return true, nil
}

func (s *fileStore) Generations(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsDir() {
			result = append(result, item.Name())
		}
	}
	sort.Strings(result)
	return result, nil
}

func (s *fileStore) Close() error {
	return nil
}

func (s *fileStore) generationDir(generation string) (string, error) {
	if err := validateGeneration(generation); err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, generation), nil
}

func (b *fileBucket) Name() string {
	return b.name
}

func (b *fileBucket) Match(ctx context.Context, u *url.URL, header http.Header, opts MatchOptions) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(b.entryPath(KeyFor(u)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
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

func (b *fileBucket) Put(ctx context.Context, entry *Entry) error {
	key := entry.Key()
	if key == "" {
		return fmt.Errorf("invalid entry url: %q", entry.URL)
	}
	data, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	unlock := b.store.lockEntry(b.name + "::" + key)
	defer unlock()

	// 代际目录被删除后不再重建，迟到的写入直接失败。
	if info, err := os.Stat(b.dir); err != nil || !info.IsDir() {
		return ErrNotFound
	}

	tempFile, err := os.CreateTemp(b.dir, ".cache-*")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, bytes.NewReader(data))
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, b.entryPath(key)); err != nil {
		os.Remove(tempName)
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (b *fileBucket) entryPath(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(b.dir, hex.EncodeToString(sum[:])+entrySuffix)
}

func (s *fileStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
