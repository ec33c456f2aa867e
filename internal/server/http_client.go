package server

import (
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/estimapres/edgehub/internal/config"
)

const defaultUpstreamTimeout = 30 * time.Second

// 共享 Transport：复用长连接，超时集中在这里配置。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   20,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回 worker 回源、透传转发与支付中继共用的 http.Client。
// 策略本身不设超时，网络超时只由这里的 UpstreamTimeout 决定。
func NewUpstreamClient(cfg config.GlobalConfig) *http.Client {
	timeout := cfg.UpstreamTimeout.DurationValue()
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}

// hopByHopHeaders 是 RFC 7230 规定代理不得转发的头部。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Proxy-Connection":    {},
}

// IsHopByHopHeader reports whether the header should be stripped by proxies.
func IsHopByHopHeader(key string) bool {
	_, ok := hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}

// CopyHeaders 将 src 中允许透传的头追加到 dst。
func CopyHeaders(dst, src http.Header) {
	for key, values := range src {
		if IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// RequestHeaders 把 fasthttp 请求头转换为 http.Header。
func RequestHeaders(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

// WriteHeaders 把响应头写回 Fiber，跳过 hop-by-hop 字段；多值头保留全部取值。
func WriteHeaders(c fiber.Ctx, header http.Header) {
	for key, values := range header {
		if IsHopByHopHeader(key) {
			continue
		}
		for i, value := range values {
			if i == 0 {
				c.Set(key, value)
				continue
			}
			c.Response().Header.Add(key, value)
		}
	}
}
