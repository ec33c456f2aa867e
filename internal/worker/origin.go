package worker

import (
	"net"
	"net/url"
	"strings"

	"github.com/estimapres/edgehub/internal/config"
)

// OriginMap 描述对外源站与真实回源地址之间的映射，以及边缘层接受的其他 Host。
type OriginMap struct {
	origin   *url.URL
	upstream *url.URL
	allowed  map[string]struct{}
}

// NewOriginMap 从配置构造映射，OriginUpstream 为空时回源地址就是 Origin。
func NewOriginMap(cfg config.WorkerConfig) OriginMap {
	return OriginMap{
		origin:   cfg.OriginURL(),
		upstream: cfg.UpstreamURL(),
		allowed:  toSet(cfg.HostAllowList()),
	}
}

// Origin 返回对外源站地址的副本。
func (m OriginMap) Origin() *url.URL {
	cloned := *m.origin
	return &cloned
}

// IsOrigin 比较 scheme、host 与端口（缺省端口按 scheme 补齐）。
func (m OriginMap) IsOrigin(u *url.URL) bool {
	if u == nil || m.origin == nil {
		return false
	}
	if !strings.EqualFold(u.Scheme, m.origin.Scheme) {
		return false
	}
	return hostPort(u) == hostPort(m.origin)
}

// Allows 判断 Host 头是否可以进入 worker：空 Host 与源站 Host 总是允许，
// 其余按 hostname（去掉端口）查 AllowedHosts。
func (m OriginMap) Allows(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || (m.origin != nil && host == strings.ToLower(m.origin.Host)) {
		return true
	}
	if name, _, err := net.SplitHostPort(host); err == nil {
		host = name
	}
	_, ok := m.allowed[host]
	return ok
}

// RequestURL 根据 Host 头还原请求的公开地址：源站 Host 使用 Origin 的 scheme，
// 其余 Host 一律按 https 处理。
func (m OriginMap) RequestURL(host, path, rawQuery string) *url.URL {
	host = strings.ToLower(strings.TrimSpace(host))
	if path == "" {
		path = "/"
	}
	target := &url.URL{Scheme: "https", Host: host, RawQuery: rawQuery}
	if host == "" || host == strings.ToLower(m.origin.Host) {
		target.Scheme = m.origin.Scheme
		target.Host = m.origin.Host
	}
	setPath(target, path)
	return target
}

// Resolve 返回实际要请求的地址：同源请求改写到回源地址，其余保持不变。
func (m OriginMap) Resolve(u *url.URL) *url.URL {
	cloned := *u
	cloned.Fragment = ""
	cloned.RawFragment = ""
	if !m.IsOrigin(u) || m.upstream == nil {
		return &cloned
	}
	cloned.Scheme = m.upstream.Scheme
	cloned.Host = m.upstream.Host
	if prefix := strings.TrimSuffix(m.upstream.Path, "/"); prefix != "" {
		setPath(&cloned, prefix+u.EscapedPath())
	}
	return &cloned
}

func setPath(u *url.URL, escaped string) {
	if unescaped, err := url.PathUnescape(escaped); err == nil {
		u.Path = unescaped
		if unescaped != escaped {
			u.RawPath = escaped
		} else {
			u.RawPath = ""
		}
		return
	}
	u.Path = escaped
	u.RawPath = ""
}

func hostPort(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "https":
			port = "443"
		case "http":
			port = "80"
		}
	}
	return net.JoinHostPort(host, port)
}
