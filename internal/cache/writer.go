package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/estimapres/edgehub/internal/metrics"
)

// Writer 是取数路径上的尽力而为写入器：不可缓存或超限的响应被跳过，
// 写入失败只记录日志与指标，绝不影响响应本身。
type Writer struct {
	logger       *logrus.Logger
	maxEntrySize int64
	now          func() time.Time

	pending sync.WaitGroup
}

// NewWriter 构造写入器，maxEntrySize <= 0 表示不限制正文大小。
func NewWriter(logger *logrus.Logger, maxEntrySize int64) *Writer {
	return &Writer{
		logger:       logger,
		maxEntrySize: maxEntrySize,
		now:          time.Now,
	}
}

// Put 同步写入，返回条目是否真正落盘。
func (w *Writer) Put(ctx context.Context, bucket Bucket, entry *Entry) bool {
	if bucket == nil {
		w.fail(nil, entry, ErrStoreUnavailable)
		return false
	}
	if !Cacheable(entry.Status, entry.Header) {
		metrics.CacheWrites.WithLabelValues("skipped").Inc()
		return false
	}
	if w.maxEntrySize > 0 && int64(len(entry.Body)) > w.maxEntrySize {
		metrics.CacheWrites.WithLabelValues("skipped").Inc()
		w.logger.WithFields(logrus.Fields{
			"action": "cache_write",
			"url":    entry.URL,
			"size":   len(entry.Body),
		}).Debug("cache_entry_too_large")
		return false
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = w.now().UTC()
	}
	if err := bucket.Put(ctx, entry); err != nil {
		w.fail(bucket, entry, err)
		return false
	}
	metrics.CacheWrites.WithLabelValues("stored").Inc()
	return true
}

// PutAsync 在后台写入 entry 的副本并立即返回；请求上下文取消不会中断写入。
func (w *Writer) PutAsync(ctx context.Context, bucket Bucket, entry *Entry) {
	cloned := entry.Clone()
	detached := context.WithoutCancel(ctx)
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		w.Put(detached, bucket, cloned)
	}()
}

// Wait 阻塞直到所有后台写入完成。
func (w *Writer) Wait() {
	w.pending.Wait()
}

func (w *Writer) fail(bucket Bucket, entry *Entry, err error) {
	metrics.CacheWrites.WithLabelValues("failed").Inc()
	fields := logrus.Fields{"action": "cache_write"}
	if bucket != nil {
		fields["generation"] = bucket.Name()
	}
	if entry != nil {
		fields["url"] = entry.URL
	}
	w.logger.WithFields(fields).WithError(err).Warn("cache_write_failed")
}
