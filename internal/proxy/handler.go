package proxy

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/estimapres/edgehub/internal/logging"
	"github.com/estimapres/edgehub/internal/server"
	"github.com/estimapres/edgehub/internal/worker"
)

const (
	headerStrategy = "X-Edgehub-Strategy"
	headerCacheHit = "X-Edgehub-Cache-Hit"
)

// Handler 把每个请求转换成 worker 的 fetch 事件：被拦截的请求由缓存策略作答，
// 其余请求交给 Forwarder 原样转发。
type Handler struct {
	dispatcher *worker.Dispatcher
	origins    worker.OriginMap
	forwarder  *Forwarder
	logger     *logrus.Logger
}

// NewHandler constructs the edge handler.
func NewHandler(dispatcher *worker.Dispatcher, origins worker.OriginMap, forwarder *Forwarder, logger *logrus.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		origins:    origins,
		forwarder:  forwarder,
		logger:     logger,
	}
}

// Handle 实现 server.ProxyHandler。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)

	// 只有源站与允许列表中的 Host 才会被取数，其余 Host 不做转发也不入缓存。
	if host := getHostHeader(c); !h.origins.Allows(host) {
		h.logger.WithFields(logrus.Fields{
			"action":     "proxy",
			"host":       host,
			"method":     c.Method(),
			"request_id": requestID,
		}).Warn("host_not_allowed")
		return server.WriteError(c, fiber.StatusMisdirectedRequest, "host_not_allowed")
	}

	req := h.buildRequest(c)

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	outcome, err := h.dispatcher.Dispatch(ctx, worker.Event{Kind: worker.EventFetch, Request: req})
	result := outcome.Fetch
	if err != nil {
		h.logResult(req, result.Decision, requestID, 0, false, started, err)
		if result.Handled {
			return server.WriteError(c, fiber.StatusBadGateway, "upstream_failed")
		}
		return server.WriteError(c, fiber.StatusInternalServerError, "worker_failed")
	}

	if !result.Handled {
		status, err := h.forwarder.Forward(c, req, result.Decision)
		h.logResult(req, result.Decision, requestID, status, false, started, err)
		if err != nil && status == 0 {
			return server.WriteError(c, fiber.StatusBadGateway, "upstream_failed")
		}
		return nil
	}

	resp := result.Response
	server.WriteHeaders(c, resp.Header)
	c.Set(headerStrategy, string(result.Decision.Strategy))
	c.Set(headerCacheHit, strconv.FormatBool(resp.FromCache))
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	h.logResult(req, result.Decision, requestID, resp.Status, resp.FromCache, started, nil)
	return c.Status(resp.Status).Send(resp.Body)
}

// buildRequest 根据 Host 头还原公开地址；GET 以外的请求保留请求体副本。
func (h *Handler) buildRequest(c fiber.Ctx) *worker.Request {
	uri := c.Request().URI()
	target := h.origins.RequestURL(getHostHeader(c), string(uri.PathOriginal()), string(uri.QueryString()))

	req := &worker.Request{
		Method: c.Method(),
		URL:    target,
		Header: server.RequestHeaders(c),
	}
	if body := c.Body(); len(body) > 0 {
		req.Body = append([]byte(nil), body...)
	}
	return req
}

func getHostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return strings.TrimSpace(string(raw))
	}
	return c.Hostname()
}

func (h *Handler) logResult(
	req *worker.Request,
	decision worker.Decision,
	requestID string,
	status int,
	cacheHit bool,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(string(decision.Strategy), decision.Rule, req.URL.Host, cacheHit)
	fields["action"] = "proxy"
	fields["method"] = req.Method
	fields["url"] = req.URL.String()
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}
