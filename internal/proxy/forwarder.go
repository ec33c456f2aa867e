package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/estimapres/edgehub/internal/server"
	"github.com/estimapres/edgehub/internal/worker"
)

// Forwarder 处理未被 worker 拦截的请求：方法、请求体与请求头原样发往网络，
// 响应以流的方式写回，不经过缓存。
type Forwarder struct {
	client  *http.Client
	origins worker.OriginMap
}

// NewForwarder 使用共享 http.Client 构造 Forwarder。
func NewForwarder(client *http.Client, origins worker.OriginMap) *Forwarder {
	return &Forwarder{client: client, origins: origins}
}

// Forward 返回上游状态码；status 为 0 表示没有拿到上游响应，调用方需要自行输出错误。
func (f *Forwarder) Forward(c fiber.Ctx, req *worker.Request, decision worker.Decision) (int, error) {
	upstream, err := f.buildUpstreamRequest(c, req)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(upstream)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	server.WriteHeaders(c, resp.Header)
	c.Set(headerStrategy, string(decision.Strategy))
	c.Status(resp.StatusCode)

	if req.Method == http.MethodHead {
		return resp.StatusCode, nil
	}
	if _, err := io.Copy(c.Response().BodyWriter(), resp.Body); err != nil {
		return resp.StatusCode, fmt.Errorf("forward stream failed: %w", err)
	}
	return resp.StatusCode, nil
}

func (f *Forwarder) buildUpstreamRequest(c fiber.Ctx, req *worker.Request) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	target := f.origins.Resolve(req.URL)
	upstream, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, err
	}

	// 只剔除 hop-by-hop 头，不追加 X-Forwarded-*：直通请求按客户端发出的样子到达网络。
	server.CopyHeaders(upstream.Header, req.Header)
	upstream.Header.Del("Host")
	upstream.Host = target.Host
	return upstream, nil
}
