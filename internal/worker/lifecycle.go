package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/estimapres/edgehub/internal/cache"
	"github.com/estimapres/edgehub/internal/config"
	"github.com/estimapres/edgehub/internal/logging"
	"github.com/estimapres/edgehub/internal/metrics"
)

// State 是 worker 生命周期状态。
type State string

const (
	StateNew        State = "new"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActive     State = "active"
	StateRedundant  State = "redundant"
)

// MessageSkipWaiting 是控制通道唯一识别的消息。
const MessageSkipWaiting = "SKIP_WAITING"

var (
	// ErrInstallFailed 表示 shell 资源未能完整写入新代际。
	ErrInstallFailed = errors.New("worker install failed")

	// ErrInvalidTransition 表示当前状态不允许该生命周期操作。
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// Options 汇总构造 Worker 所需的依赖。
type Options struct {
	Config  config.WorkerConfig
	Store   cache.Store
	Fetcher Fetcher
	Logger  *logrus.Logger
}

// Worker 是单个缓存代际的生命周期控制器。生命周期阶段持有写锁，
// 取数持有读锁，两者互斥。
type Worker struct {
	cfg      config.WorkerConfig
	origins  OriginMap
	store    cache.Store
	fetcher  Fetcher
	writer   *cache.Writer
	logger   *logrus.Logger
	selector *Selector

	strategies map[StrategyName]Strategy

	mu          sync.RWMutex
	state       State
	skipWaiting bool
	claimed     bool
	bucket      cache.Bucket
}

// New 校验依赖并构造 Worker，初始状态为 new。
func New(opts Options) (*Worker, error) {
	if opts.Store == nil {
		return nil, cache.ErrStoreUnavailable
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Config.CacheName == "" {
		return nil, errors.New("cache name is required")
	}
	if opts.Config.OriginURL() == nil || opts.Config.OriginURL().Host == "" {
		return nil, errors.New("origin is required")
	}

	origins := NewOriginMap(opts.Config)
	writer := cache.NewWriter(opts.Logger, opts.Config.MaxEntrySize)
	shell := resolveAsset(origins, opts.Config.ShellDocument)

	w := &Worker{
		cfg:      opts.Config,
		origins:  origins,
		store:    opts.Store,
		fetcher:  opts.Fetcher,
		writer:   writer,
		logger:   opts.Logger,
		selector: NewSelector(opts.Config, origins),
		state:    StateNew,
	}
	w.strategies = map[StrategyName]Strategy{
		StrategyCacheFirst:   NewCacheFirst(opts.Fetcher, writer, opts.Logger),
		StrategyNetworkFirst: NewNetworkFirst(opts.Fetcher, writer, opts.Logger, shell),
	}
	return w, nil
}

// Origins 暴露源站映射，供边缘层还原请求地址。
func (w *Worker) Origins() OriginMap {
	return w.origins
}

// Version 返回当前代际名称。
func (w *Worker) Version() string {
	return w.cfg.CacheName
}

// State 返回当前生命周期状态。
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Install 预取全部 shell 资源后再一次性写入新代际，任一步失败都不会留下半成品代际。
func (w *Worker) Install(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateNew {
		return fmt.Errorf("%w: install from %s", ErrInvalidTransition, w.state)
	}
	installID := uuid.NewString()
	w.setState(StateInstalling)
	started := time.Now()

	requests := make([]*Request, 0, len(w.cfg.ShellAssets))
	entries := make([]*cache.Entry, 0, len(w.cfg.ShellAssets))
	for _, asset := range w.cfg.ShellAssets {
		req := &Request{
			Method: http.MethodGet,
			URL:    resolveAsset(w.origins, asset),
			Header: http.Header{},
		}
		resp, err := w.fetcher.Fetch(ctx, req)
		if err != nil {
			return w.failInstall(installID, fmt.Errorf("fetch %s: %w", req.URL, err))
		}
		if resp.Status < 200 || resp.Status > 299 {
			return w.failInstall(installID, fmt.Errorf("fetch %s: unexpected status %d", req.URL, resp.Status))
		}
		entry := resp.entryFor(req)
		entry.StoredAt = time.Now().UTC()
		requests = append(requests, req)
		entries = append(entries, entry)
	}

	existed, err := w.store.Has(ctx, w.cfg.CacheName)
	if err != nil {
		return w.failInstall(installID, fmt.Errorf("inspect generation: %w", err))
	}
	bucket, err := w.store.Open(ctx, w.cfg.CacheName)
	if err != nil {
		return w.failInstall(installID, fmt.Errorf("open generation: %w", err))
	}
	for i, entry := range entries {
		if err := bucket.Put(ctx, entry); err != nil {
			if !existed {
				if _, delErr := w.store.Delete(context.WithoutCancel(ctx), w.cfg.CacheName); delErr != nil {
					w.logger.WithFields(logging.LifecycleFields(w.cfg.CacheName, string(StateInstalling))).
						WithError(delErr).Warn("install_rollback_failed")
				}
			}
			return w.failInstall(installID, fmt.Errorf("store %s: %w", requests[i].URL, err))
		}
	}

	w.bucket = bucket
	w.setState(StateInstalled)
	fields := logging.LifecycleFields(w.cfg.CacheName, string(StateInstalled))
	fields["install_id"] = installID
	fields["assets"] = len(entries)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	w.logger.WithFields(fields).Info("worker_installed")

	if w.cfg.SkipWaitingOnInstall {
		w.skipWaiting = true
	}
	if w.skipWaiting {
		return w.activateLocked(ctx)
	}
	return nil
}

func (w *Worker) failInstall(installID string, err error) error {
	w.setState(StateRedundant)
	fields := logging.LifecycleFields(w.cfg.CacheName, string(StateRedundant))
	fields["install_id"] = installID
	w.logger.WithFields(fields).WithError(err).Error("worker_install_failed")
	return fmt.Errorf("%w: %v", ErrInstallFailed, err)
}

// Activate 删除除当前版本外的全部代际，然后接管请求。
func (w *Worker) Activate(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activateLocked(ctx)
}

func (w *Worker) activateLocked(ctx context.Context) error {
	if w.state != StateInstalled {
		return fmt.Errorf("%w: activate from %s", ErrInvalidTransition, w.state)
	}
	w.setState(StateActivating)

	generations, err := w.store.Generations(ctx)
	if err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("list generations: %w", err)
	}
	for _, name := range generations {
		if name == w.cfg.CacheName {
			continue
		}
		deleted, err := w.store.Delete(ctx, name)
		if err != nil {
			w.setState(StateInstalled)
			return fmt.Errorf("delete generation %s: %w", name, err)
		}
		if deleted {
			metrics.GenerationsDeleted.Inc()
			w.logger.WithFields(logging.LifecycleFields(name, string(StateActivating))).Info("generation_deleted")
		}
	}

	w.claimed = true
	w.setState(StateActive)
	w.logger.WithFields(logging.LifecycleFields(w.cfg.CacheName, string(StateActive))).Info("clients_claimed")
	return nil
}

// SkipWaiting 标记立即接管；已安装完成的 worker 会马上激活。
func (w *Worker) SkipWaiting(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.skipWaiting = true
	if w.state == StateInstalled {
		return w.activateLocked(ctx)
	}
	return nil
}

// Message 处理控制通道消息，未识别的消息只记录日志。
func (w *Worker) Message(ctx context.Context, msg string) error {
	if msg != MessageSkipWaiting {
		w.logger.WithFields(logrus.Fields{
			"action":  "message",
			"message": msg,
		}).Debug("message_ignored")
		return nil
	}
	return w.SkipWaiting(ctx)
}

// FetchResult 描述一次取数事件的处理结果。Handled 为 false 时，
// 调用方应当直接把原始请求交给网络。
type FetchResult struct {
	Decision Decision
	Response *Response
	Handled  bool
}

// Fetch 只有在 active 且已接管之后才拦截请求。
func (w *Worker) Fetch(ctx context.Context, req *Request) (FetchResult, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	decision := w.selector.Select(req)
	if !decision.Intercepted() {
		return FetchResult{Decision: decision}, nil
	}
	if w.state != StateActive || !w.claimed {
		return FetchResult{Decision: Decision{Strategy: StrategyPassthrough, Rule: RuleNotControlled}}, nil
	}

	strategy := w.strategies[decision.Strategy]
	resp, err := strategy.Serve(ctx, w.bucket, req)
	if err != nil {
		return FetchResult{Decision: decision, Handled: true}, err
	}
	return FetchResult{Decision: decision, Response: resp, Handled: true}, nil
}

// Status 是 /-/worker 诊断接口的载荷。
type Status struct {
	State       State    `json:"state"`
	Version     string   `json:"version"`
	Claimed     bool     `json:"claimed"`
	SkipWaiting bool     `json:"skip_waiting"`
	Origin      string   `json:"origin"`
	Generations []string `json:"generations"`
}

// Snapshot 汇总状态与存储中的代际列表。
func (w *Worker) Snapshot(ctx context.Context) (Status, error) {
	w.mu.RLock()
	status := Status{
		State:       w.state,
		Version:     w.cfg.CacheName,
		Claimed:     w.claimed,
		SkipWaiting: w.skipWaiting,
		Origin:      w.origins.Origin().String(),
	}
	w.mu.RUnlock()

	generations, err := w.store.Generations(ctx)
	if err != nil {
		return status, fmt.Errorf("list generations: %w", err)
	}
	status.Generations = generations
	return status, nil
}

// Flush 阻塞直到后台缓存写入完成。
func (w *Worker) Flush() {
	w.writer.Wait()
}

// Close 等待后台缓存写入完成，然后关闭存储。
func (w *Worker) Close() error {
	w.Flush()
	return w.store.Close()
}

// ShellURL 返回离线导航兜底文档的公开地址。
func (w *Worker) ShellURL() *url.URL {
	return resolveAsset(w.origins, w.cfg.ShellDocument)
}

// resolveAsset 把以 / 开头的资源路径（可带查询串）解析为源站下的绝对地址。
func resolveAsset(origins OriginMap, asset string) *url.URL {
	ref, err := url.Parse(asset)
	if err != nil {
		return origins.RequestURL("", asset, "")
	}
	return origins.Origin().ResolveReference(ref)
}

func (w *Worker) setState(state State) {
	w.state = state
	w.logger.WithFields(logging.LifecycleFields(w.cfg.CacheName, string(state))).Debug("state_changed")
}
