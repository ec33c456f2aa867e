package worker

import (
	"net/http"
	"strings"

	"github.com/estimapres/edgehub/internal/config"
)

// StrategyName 标识请求最终走哪条路径。
type StrategyName string

const (
	StrategyPassthrough  StrategyName = "passthrough"
	StrategyCacheFirst   StrategyName = "cache-first"
	StrategyNetworkFirst StrategyName = "network-first"
)

// 规则名会写进请求日志的 rule 字段。
const (
	RuleNonGet           = "non_get"
	RuleExcludedScheme   = "excluded_scheme"
	RuleOpaqueOrigin     = "opaque_origin"
	RuleSameOrigin       = "same_origin"
	RuleCacheFirstHost   = "cache_first_host"
	RuleNetworkFirstHost = "network_first_host"
	RuleDefault          = "default"
	RuleNotControlled    = "not_controlled"
)

// Decision 是选择器的输出。
type Decision struct {
	Strategy StrategyName
	Rule     string
}

// Intercepted 表示请求是否交给缓存策略处理。
func (d Decision) Intercepted() bool {
	return d.Strategy != StrategyPassthrough
}

type selectorRule struct {
	name     string
	strategy StrategyName
	match    func(*Request) bool
}

// Selector 是静态有序规则表，第一条命中的规则生效。
type Selector struct {
	rules []selectorRule
}

// NewSelector 按配置构造规则表。
func NewSelector(cfg config.WorkerConfig, origins OriginMap) *Selector {
	excluded := toSet(cfg.ExcludedSchemes)
	cacheFirst := toSet(cfg.CacheFirstHosts)
	networkFirst := toSet(cfg.NetworkFirstHosts)

	return &Selector{rules: []selectorRule{
		{RuleNonGet, StrategyPassthrough, func(r *Request) bool {
			return r.Method != http.MethodGet
		}},
		{RuleExcludedScheme, StrategyPassthrough, func(r *Request) bool {
			_, ok := excluded[strings.ToLower(r.URL.Scheme)]
			return ok
		}},
		{RuleOpaqueOrigin, StrategyPassthrough, func(r *Request) bool {
			scheme := strings.ToLower(r.URL.Scheme)
			return (scheme != "http" && scheme != "https") || r.URL.Hostname() == ""
		}},
		{RuleSameOrigin, StrategyCacheFirst, func(r *Request) bool {
			return origins.IsOrigin(r.URL)
		}},
		{RuleCacheFirstHost, StrategyCacheFirst, func(r *Request) bool {
			_, ok := cacheFirst[strings.ToLower(r.URL.Hostname())]
			return ok
		}},
		{RuleNetworkFirstHost, StrategyNetworkFirst, func(r *Request) bool {
			_, ok := networkFirst[strings.ToLower(r.URL.Hostname())]
			return ok
		}},
	}}
}

// Select 返回请求对应的策略；没有规则命中时默认 cache-first。
func (s *Selector) Select(req *Request) Decision {
	if req == nil || req.URL == nil {
		return Decision{Strategy: StrategyPassthrough, Rule: RuleOpaqueOrigin}
	}
	for _, rule := range s.rules {
		if rule.match(req) {
			return Decision{Strategy: rule.strategy, Rule: rule.name}
		}
	}
	return Decision{Strategy: StrategyCacheFirst, Rule: RuleDefault}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[strings.ToLower(value)] = struct{}{}
	}
	return set
}
