package cache

import (
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Entry 是一次响应的不可变快照，与某个代际内唯一的请求键绑定。
type Entry struct {
	// URL 记录写入时的完整地址（含查询串），用于严格匹配。
	URL    string      `msgpack:"url"`
	Status int         `msgpack:"status"`
	Header http.Header `msgpack:"header"`
	Body   []byte      `msgpack:"body"`
	// VaryHeaders 保存写入时请求中被响应 Vary 点名的头部取值。
	VaryHeaders map[string]string `msgpack:"vary,omitempty"`
	StoredAt    time.Time         `msgpack:"stored_at"`
}

// Key 返回条目对应的请求键。
func (e *Entry) Key() string {
	u, err := url.Parse(e.URL)
	if err != nil {
		return ""
	}
	return KeyFor(u)
}

// Clone 深拷贝条目，调用方可以安全地修改返回值。
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cloned := *e
	cloned.Header = e.Header.Clone()
	cloned.Body = append([]byte(nil), e.Body...)
	if e.VaryHeaders != nil {
		cloned.VaryHeaders = make(map[string]string, len(e.VaryHeaders))
		for k, v := range e.VaryHeaders {
			cloned.VaryHeaders[k] = v
		}
	}
	return &cloned
}

// Matches 判断条目是否能服务给定请求。
func (e *Entry) Matches(u *url.URL, header http.Header, opts MatchOptions) bool {
	if !opts.IgnoreSearch {
		stored, err := url.Parse(e.URL)
		if err != nil || stored.RawQuery != u.RawQuery {
			return false
		}
	}
	if !opts.IgnoreVary {
		for _, name := range varyFields(e.Header) {
			if name == "*" {
				return false
			}
			if header.Get(name) != e.VaryHeaders[name] {
				return false
			}
		}
	}
	return true
}

// CaptureVary 记录请求中被响应 Vary 头点名的字段。
func CaptureVary(reqHeader, respHeader http.Header) map[string]string {
	fields := varyFields(respHeader)
	if len(fields) == 0 {
		return nil
	}
	captured := make(map[string]string, len(fields))
	for _, name := range fields {
		if name == "*" {
			continue
		}
		captured[name] = reqHeader.Get(name)
	}
	return captured
}

// Cacheable 判断响应是否允许写入缓存：2xx（206 除外）且没有 Vary: *。
// 非 2xx 一律不写，避免一次 404/500 长期占住 cache-first 资源的缓存位。
func Cacheable(status int, header http.Header) bool {
	if status < 200 || status > 299 || status == http.StatusPartialContent {
		return false
	}
	for _, name := range varyFields(header) {
		if name == "*" {
			return false
		}
	}
	return true
}

func varyFields(header http.Header) []string {
	var fields []string
	for _, value := range header.Values("Vary") {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if part != "*" {
				part = textproto.CanonicalMIMEHeaderKey(part)
			}
			fields = append(fields, part)
		}
	}
	return fields
}

func encodeEntry(entry *Entry) ([]byte, error) {
	return msgpack.Marshal(entry)
}

func decodeEntry(data []byte) (*Entry, error) {
	var entry Entry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
