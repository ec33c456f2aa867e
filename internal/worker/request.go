package worker

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/estimapres/edgehub/internal/cache"
)

// Request 是一次被拦截请求的快照，与具体 HTTP 框架无关。
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// NewRequest 构造 GET 请求，header 可以为空。
func NewRequest(rawURL string, header http.Header) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if header == nil {
		header = http.Header{}
	}
	return &Request{Method: http.MethodGet, URL: u, Header: header}, nil
}

// IsNavigation 判断是否为顶层页面导航：优先看 Sec-Fetch-Mode，缺失时退回 Accept。
func (r *Request) IsNavigation() bool {
	if r.Method != http.MethodGet {
		return false
	}
	if mode := strings.TrimSpace(r.Header.Get("Sec-Fetch-Mode")); mode != "" {
		return strings.EqualFold(mode, "navigate")
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/html")
}

// Response 是策略返回给边缘层的完整响应。
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	// URL 为响应对应的请求地址，缓存命中时是写入时的地址。
	URL       string
	FromCache bool
}

func responseFromEntry(entry *cache.Entry) *Response {
	return &Response{
		Status:    entry.Status,
		Header:    entry.Header.Clone(),
		Body:      entry.Body,
		URL:       entry.URL,
		FromCache: true,
	}
}

// entryFor 生成写入缓存的副本，调用方继续持有的 Response 不受影响。
func (r *Response) entryFor(req *Request) *cache.Entry {
	stored := *req.URL
	stored.Fragment = ""
	stored.RawFragment = ""
	return &cache.Entry{
		URL:         stored.String(),
		Status:      r.Status,
		Header:      r.Header.Clone(),
		Body:        append([]byte(nil), r.Body...),
		VaryHeaders: cache.CaptureVary(req.Header, r.Header),
	}
}
