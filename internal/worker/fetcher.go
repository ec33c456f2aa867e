package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/estimapres/edgehub/internal/server"
)

// Fetcher 执行真实的网络请求。只有传输层失败才返回 error，
// 4xx/5xx 仍然是一个正常的 Response。
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc 让普通函数满足 Fetcher，主要用于测试。
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPFetcher 基于共享 http.Client 回源，并把同源请求改写到 OriginUpstream。
type HTTPFetcher struct {
	client  *http.Client
	origins OriginMap
}

// NewHTTPFetcher 构造回源器，client 通常来自 server.NewUpstreamClient。
func NewHTTPFetcher(client *http.Client, origins OriginMap) *HTTPFetcher {
	return &HTTPFetcher{client: client, origins: origins}
}

// Fetch 读取完整响应体；Accept-Encoding 交给 Transport 处理，缓存中保存的是解压后的内容。
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	target := f.origins.Resolve(req.URL)

	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if req.Header != nil {
		server.CopyHeaders(httpReq.Header, req.Header)
	}
	httpReq.Header.Del("Accept-Encoding")
	httpReq.Header.Del("Host")
	httpReq.Host = target.Host

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	header := http.Header{}
	server.CopyHeaders(header, resp.Header)
	header.Del("Content-Length")

	return &Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   payload,
		URL:    req.URL.String(),
	}, nil
}
