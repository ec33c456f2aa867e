package worker

import (
	"context"
	"errors"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/estimapres/edgehub/internal/cache"
	"github.com/estimapres/edgehub/internal/metrics"
)

// Strategy 是 (request, bucket) 上的纯函数，除了写缓存没有其他副作用。
type Strategy interface {
	Name() StrategyName
	Serve(ctx context.Context, bucket cache.Bucket, req *Request) (*Response, error)
}

// CacheFirst 命中直接返回；未命中时回源，并在后台写入副本。
type CacheFirst struct {
	fetcher Fetcher
	writer  *cache.Writer
	logger  *logrus.Logger
}

// NewCacheFirst 构造 cache-first 策略。
func NewCacheFirst(fetcher Fetcher, writer *cache.Writer, logger *logrus.Logger) *CacheFirst {
	return &CacheFirst{fetcher: fetcher, writer: writer, logger: logger}
}

func (s *CacheFirst) Name() StrategyName {
	return StrategyCacheFirst
}

func (s *CacheFirst) Serve(ctx context.Context, bucket cache.Bucket, req *Request) (*Response, error) {
	if cached := lookup(ctx, s.logger, bucket, StrategyCacheFirst, req.URL); cached != nil {
		return cached, nil
	}

	resp, err := s.fetcher.Fetch(ctx, req)
	if err != nil {
		metrics.NetworkFetches.WithLabelValues(string(StrategyCacheFirst), "error").Inc()
		return nil, err
	}
	metrics.NetworkFetches.WithLabelValues(string(StrategyCacheFirst), "ok").Inc()

	if bucket != nil {
		s.writer.PutAsync(ctx, bucket, resp.entryFor(req))
	}
	return resp, nil
}

// NetworkFirst 总是先回源；失败时依次退回缓存条目与（仅导航请求）shell 文档。
type NetworkFirst struct {
	fetcher Fetcher
	writer  *cache.Writer
	logger  *logrus.Logger
	shell   *url.URL
}

// NewNetworkFirst 构造 network-first 策略，shell 为离线导航兜底文档的完整地址。
func NewNetworkFirst(fetcher Fetcher, writer *cache.Writer, logger *logrus.Logger, shell *url.URL) *NetworkFirst {
	return &NetworkFirst{fetcher: fetcher, writer: writer, logger: logger, shell: shell}
}

func (s *NetworkFirst) Name() StrategyName {
	return StrategyNetworkFirst
}

func (s *NetworkFirst) Serve(ctx context.Context, bucket cache.Bucket, req *Request) (*Response, error) {
	resp, fetchErr := s.fetcher.Fetch(ctx, req)
	if fetchErr == nil {
		metrics.NetworkFetches.WithLabelValues(string(StrategyNetworkFirst), "ok").Inc()
		if bucket != nil {
			s.writer.Put(ctx, bucket, resp.entryFor(req))
		}
		return resp, nil
	}
	metrics.NetworkFetches.WithLabelValues(string(StrategyNetworkFirst), "error").Inc()

	if cached := lookup(ctx, s.logger, bucket, StrategyNetworkFirst, req.URL); cached != nil {
		return cached, nil
	}

	if req.IsNavigation() && s.shell != nil {
		if shell := lookup(ctx, s.logger, bucket, StrategyNetworkFirst, s.shell); shell != nil {
			metrics.ShellFallbacks.Inc()
			s.logger.WithFields(logrus.Fields{
				"action": "fetch",
				"url":    req.URL.String(),
				"shell":  s.shell.String(),
			}).WithError(fetchErr).Info("shell_fallback")
			return shell, nil
		}
	}
	return nil, fetchErr
}

// lookup 以宽松规则查找缓存；除 ErrNotFound 以外的错误只记录日志并视为未命中。
func lookup(ctx context.Context, logger *logrus.Logger, bucket cache.Bucket, strategy StrategyName, u *url.URL) *Response {
	if bucket == nil {
		metrics.CacheLookups.WithLabelValues(string(strategy), "miss").Inc()
		return nil
	}
	entry, err := bucket.Match(ctx, u, nil, cache.LenientMatch)
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues(string(strategy), "hit").Inc()
		return responseFromEntry(entry)
	case errors.Is(err, cache.ErrNotFound):
	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"action":     "cache_match",
			"generation": bucket.Name(),
			"url":        u.String(),
		}).Warn("cache_match_failed")
	}
	metrics.CacheLookups.WithLabelValues(string(strategy), "miss").Inc()
	return nil
}
