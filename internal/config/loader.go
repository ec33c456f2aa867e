package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 默认策略表与原站 service worker 保持一致。
var (
	defaultShellAssets       = []string{"/", "/index.html", "/manifest.webmanifest", "/favicon.ico"}
	defaultCacheFirstHosts   = []string{"fonts.googleapis.com", "fonts.gstatic.com", "www.gstatic.com"}
	defaultNetworkFirstHosts = []string{
		"firestore.googleapis.com",
		"identitytoolkit.googleapis.com",
		"securetoken.googleapis.com",
		"firebaseinstallations.googleapis.com",
	}
	defaultExcludedSchemes = []string{"chrome-extension"}
)

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyWorkerDefaults(&cfg.Worker)
	applyStoreDefaults(&cfg.Store)
	applyPaymentDefaults(&cfg.Payment)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Store.Driver == StoreDriverFS {
		absStorage, err := filepath.Abs(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Store.Path = absStorage
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("UpstreamTimeout", "30s")

	v.SetDefault("CacheName", "estimapres-v6")
	v.SetDefault("ShellAssets", defaultShellAssets)
	v.SetDefault("ShellDocument", "/index.html")
	v.SetDefault("CacheFirstHosts", defaultCacheFirstHosts)
	v.SetDefault("NetworkFirstHosts", defaultNetworkFirstHosts)
	v.SetDefault("ExcludedSchemes", defaultExcludedSchemes)
	v.SetDefault("SkipWaitingOnInstall", true)
	v.SetDefault("MaxEntrySize", 10*1024*1024)

	v.SetDefault("Store.Driver", StoreDriverFS)
	v.SetDefault("Store.Path", "./storage")
	v.SetDefault("Store.MaxMemoryCost", 256*1024*1024)
	v.SetDefault("Store.RedisPrefix", "edgehub")

	v.SetDefault("Payment.APIBase", "https://api.mercadopago.com")
	v.SetDefault("Payment.Currency", "ARS")
	v.SetDefault("Payment.StatementDescriptor", "ESTIMAPRES")
	v.SetDefault("Payment.DefaultTitle", "Pago EstimaPres")
}

// bindEnv 沿用部署平台上的环境变量名，凭证不必写进配置文件。
func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"Payment.AccessToken":   "MP_ACCESS_TOKEN",
		"Payment.WebhookSecret": "MP_WEBHOOK_SECRET",
		"Payment.SiteURL":       "URL",
		"Store.RedisPassword":   "EDGEHUB_REDIS_PASSWORD",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}
	return nil
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
}

func applyWorkerDefaults(w *WorkerConfig) {
	w.Origin = strings.TrimSuffix(strings.TrimSpace(w.Origin), "/")
	w.OriginUpstream = strings.TrimSuffix(strings.TrimSpace(w.OriginUpstream), "/")
	w.CacheName = strings.TrimSpace(w.CacheName)
	if w.ShellDocument == "" {
		w.ShellDocument = "/index.html"
	}
	w.CacheFirstHosts = normalizeList(w.CacheFirstHosts)
	w.NetworkFirstHosts = normalizeList(w.NetworkFirstHosts)
	w.AllowedHosts = normalizeList(w.AllowedHosts)
	w.ExcludedSchemes = normalizeSchemes(w.ExcludedSchemes)
}

func applyStoreDefaults(s *StoreConfig) {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if s.Driver == "" {
		s.Driver = StoreDriverFS
	}
	if s.RedisPrefix == "" {
		s.RedisPrefix = "edgehub"
	}
}

func applyPaymentDefaults(p *PaymentConfig) {
	p.APIBase = strings.TrimSuffix(strings.TrimSpace(p.APIBase), "/")
	p.SiteURL = strings.TrimSuffix(strings.TrimSpace(p.SiteURL), "/")
	if p.Currency == "" {
		p.Currency = "ARS"
	}
}

func normalizeList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" {
			result = append(result, value)
		}
	}
	return result
}

// normalizeSchemes 统一为不带冒号的小写 scheme，兼容 "chrome-extension:" 写法。
func normalizeSchemes(values []string) []string {
	result := normalizeList(values)
	for i, value := range result {
		result[i] = strings.TrimSuffix(value, ":")
	}
	return result
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
