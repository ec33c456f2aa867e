package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedStoreDrivers = map[string]struct{}{
	StoreDriverFS:     {},
	StoreDriverMemory: {},
	StoreDriverRedis:  {},
}

const supportedStoreDriverList = "fs|memory|redis"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	if err := c.Worker.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return c.Payment.validate()
}

func (w *WorkerConfig) validate() error {
	if err := validateOrigin(w.Origin); err != nil {
		return fmt.Errorf("Worker.Origin: %w", err)
	}
	if w.OriginUpstream != "" {
		if err := validateOrigin(w.OriginUpstream); err != nil {
			return fmt.Errorf("Worker.OriginUpstream: %w", err)
		}
	}
	if w.CacheName == "" {
		return newFieldError("Worker.CacheName", "不能为空")
	}
	if strings.ContainsAny(w.CacheName, `/\ `) {
		return newFieldError("Worker.CacheName", "不允许包含路径分隔符或空格")
	}
	for i, asset := range w.ShellAssets {
		if !strings.HasPrefix(asset, "/") {
			return newFieldError(listField("Worker.ShellAssets", i), "必须是以 / 开头的同源路径")
		}
	}
	if !strings.HasPrefix(w.ShellDocument, "/") {
		return newFieldError("Worker.ShellDocument", "必须是以 / 开头的同源路径")
	}
	// 离线导航回退只能命中预缓存过的文档。
	if !containsString(w.ShellAssets, w.ShellDocument) {
		return newFieldError("Worker.ShellDocument", "必须包含在 ShellAssets 中")
	}
	hostLists := []struct {
		field string
		hosts []string
	}{
		{"Worker.CacheFirstHosts", w.CacheFirstHosts},
		{"Worker.NetworkFirstHosts", w.NetworkFirstHosts},
		{"Worker.AllowedHosts", w.AllowedHosts},
	}
	for _, list := range hostLists {
		for i, host := range list.hosts {
			if strings.ContainsAny(host, "/: ") {
				return newFieldError(listField(list.field, i), "仅允许填写 hostname")
			}
		}
	}
	if w.MaxEntrySize < 0 {
		return newFieldError("Worker.MaxEntrySize", "不能为负数")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if _, ok := supportedStoreDrivers[s.Driver]; !ok {
		return newFieldError("Store.Driver", "仅支持 "+supportedStoreDriverList)
	}
	switch s.Driver {
	case StoreDriverFS:
		if s.Path == "" {
			return newFieldError("Store.Path", "不能为空")
		}
	case StoreDriverMemory:
		if s.MaxMemoryCost <= 0 {
			return newFieldError("Store.MaxMemoryCost", "必须大于 0")
		}
	case StoreDriverRedis:
		if s.RedisAddr == "" {
			return newFieldError("Store.RedisAddr", "不能为空")
		}
		if s.RedisDB < 0 {
			return newFieldError("Store.RedisDB", "不能为负数")
		}
	}
	return nil
}

func (p *PaymentConfig) validate() error {
	if err := validateUpstream(p.APIBase); err != nil {
		return fmt.Errorf("Payment.APIBase: %w", err)
	}
	if p.SiteURL != "" {
		if err := validateUpstream(p.SiteURL); err != nil {
			return fmt.Errorf("Payment.SiteURL: %w", err)
		}
	}
	return nil
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

// validateOrigin 要求 scheme://host[:port]，不允许携带路径或查询串。
func validateOrigin(raw string) error {
	if err := validateUpstream(raw); err != nil {
		return err
	}
	parsed, _ := url.Parse(raw)
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("源站不允许包含路径: %s", raw)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("源站不允许包含查询串: %s", raw)
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
