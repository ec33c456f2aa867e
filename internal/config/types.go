package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 支持的缓存存储驱动。
const (
	StoreDriverFS     = "fs"
	StoreDriverMemory = "memory"
	StoreDriverRedis  = "redis"
)

// GlobalConfig 描述进程级运行参数，日志、监听端口与上游超时都在这里。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// WorkerConfig 描述离线缓存 worker 的策略表与缓存代际。
type WorkerConfig struct {
	// Origin 是对外服务的源站（scheme://host[:port]），同源请求走 cache-first。
	Origin string `mapstructure:"Origin"`
	// OriginUpstream 是同源资源真正回源的地址，留空时等于 Origin。
	OriginUpstream       string   `mapstructure:"OriginUpstream"`
	CacheName            string   `mapstructure:"CacheName"`
	ShellAssets          []string `mapstructure:"ShellAssets"`
	ShellDocument        string   `mapstructure:"ShellDocument"`
	CacheFirstHosts      []string `mapstructure:"CacheFirstHosts"`
	NetworkFirstHosts    []string `mapstructure:"NetworkFirstHosts"`
	ExcludedSchemes      []string `mapstructure:"ExcludedSchemes"`
	SkipWaitingOnInstall bool     `mapstructure:"SkipWaitingOnInstall"`
	MaxEntrySize         int64    `mapstructure:"MaxEntrySize"`
	// AllowedHosts 限定边缘层接受的 Host 头（Origin 总是允许），
	// 留空时取 CacheFirstHosts 与 NetworkFirstHosts 的并集。
	AllowedHosts []string `mapstructure:"AllowedHosts"`
}

// StoreConfig 决定缓存代际落在哪种存储上。
type StoreConfig struct {
	Driver        string `mapstructure:"Driver"`
	Path          string `mapstructure:"Path"`
	MaxMemoryCost int64  `mapstructure:"MaxMemoryCost"`
	RedisAddr     string `mapstructure:"RedisAddr"`
	RedisPassword string `mapstructure:"RedisPassword"`
	RedisDB       int    `mapstructure:"RedisDB"`
	RedisPrefix   string `mapstructure:"RedisPrefix"`
}

// PaymentConfig 对应 Mercado Pago 中继所需的凭证与默认值。
type PaymentConfig struct {
	AccessToken         string `mapstructure:"AccessToken"`
	WebhookSecret       string `mapstructure:"WebhookSecret"`
	SiteURL             string `mapstructure:"SiteURL"`
	APIBase             string `mapstructure:"APIBase"`
	Currency            string `mapstructure:"Currency"`
	StatementDescriptor string `mapstructure:"StatementDescriptor"`
	DefaultTitle        string `mapstructure:"DefaultTitle"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig  `mapstructure:",squash"`
	Worker  WorkerConfig  `mapstructure:",squash"`
	Store   StoreConfig   `mapstructure:"Store"`
	Payment PaymentConfig `mapstructure:"Payment"`
}

// OriginURL 返回解析后的源站地址（假定 Validate 已经通过）。
func (w WorkerConfig) OriginURL() *url.URL {
	parsed, _ := url.Parse(strings.TrimSuffix(w.Origin, "/"))
	return parsed
}

// UpstreamURL 返回同源资源的回源地址，未配置时回退到 Origin。
func (w WorkerConfig) UpstreamURL() *url.URL {
	if strings.TrimSpace(w.OriginUpstream) == "" {
		return w.OriginURL()
	}
	parsed, _ := url.Parse(strings.TrimSuffix(w.OriginUpstream, "/"))
	return parsed
}

// HostAllowList 返回 Origin 之外允许经由边缘层访问的 hostname。
func (w WorkerConfig) HostAllowList() []string {
	if len(w.AllowedHosts) > 0 {
		return w.AllowedHosts
	}
	hosts := make([]string, 0, len(w.CacheFirstHosts)+len(w.NetworkFirstHosts))
	hosts = append(hosts, w.CacheFirstHosts...)
	return append(hosts, w.NetworkFirstHosts...)
}

// HasToken 表示是否配置了 Mercado Pago access token。
func (p PaymentConfig) HasToken() bool {
	return strings.TrimSpace(p.AccessToken) != ""
}

// AuthMode 输出 `token` 或 `anonymous`，供启动日志使用，避免泄露凭证。
func (p PaymentConfig) AuthMode() string {
	if p.HasToken() {
		return "token"
	}
	return "anonymous"
}
