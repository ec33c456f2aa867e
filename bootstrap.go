package main

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/estimapres/edgehub/internal/cache"
	"github.com/estimapres/edgehub/internal/config"
	"github.com/estimapres/edgehub/internal/payment"
	"github.com/estimapres/edgehub/internal/proxy"
	"github.com/estimapres/edgehub/internal/server"
	"github.com/estimapres/edgehub/internal/server/routes"
	"github.com/estimapres/edgehub/internal/worker"
)

// edgeRuntime 持有进程生命周期内共享的实例。
type edgeRuntime struct {
	app    *fiber.App
	worker *worker.Worker
}

// bootstrap 打开缓存存储、完成 worker 安装并装配 Fiber 应用。
// 所有请求共享同一个 http.Client、Store 与 Worker。
func bootstrap(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*edgeRuntime, error) {
	store, err := cache.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存存储失败: %w", err)
	}

	httpClient := server.NewUpstreamClient(cfg.Global)
	origins := worker.NewOriginMap(cfg.Worker)

	w, err := worker.New(worker.Options{
		Config:  cfg.Worker,
		Store:   store,
		Fetcher: worker.NewHTTPFetcher(httpClient, origins),
		Logger:  logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	dispatcher := worker.NewDispatcher(w)
	if _, err := dispatcher.Dispatch(ctx, worker.Event{Kind: worker.EventInstall}); err != nil {
		w.Close()
		return nil, err
	}

	relay := payment.NewRelay(payment.NewClient(httpClient, cfg.Payment), cfg.Payment, logger)
	edge := proxy.NewHandler(dispatcher, origins, proxy.NewForwarder(httpClient, origins), logger)

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      edge,
		ListenPort: cfg.Global.ListenPort,
		Routes: []server.RouteRegistrar{
			routes.RegisterWorkerRoutes(w, dispatcher, logger),
			routes.RegisterMetricsRoute(),
			relay.Routes(),
		},
	})
	if err != nil {
		w.Close()
		return nil, err
	}

	return &edgeRuntime{app: app, worker: w}, nil
}

// close 等待后台缓存写入后关闭存储。
func (rt *edgeRuntime) close(logger *logrus.Logger) {
	if err := rt.worker.Close(); err != nil {
		logger.WithError(err).WithField("action", "shutdown").Warn("store_close_failed")
	}
}
